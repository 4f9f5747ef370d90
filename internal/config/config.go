// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// MinTimeout is the floor applied to every vendor timeout.
const MinTimeout = 15 * time.Second

// Run modes.
const (
	ModeAPI    = "api"
	ModeWorker = "worker"
	ModeAll    = "all"
)

// Config is the root configuration.
type Config struct {
	Port        int      `env:"PORT" env-default:"8080"`
	RunMode     string   `env:"RUN_MODE" env-default:"all"`
	JWTSecret   string   `env:"JWT_SECRET" env-default:"development-secret-change-in-production"`
	FrontendURL string   `env:"FRONTEND_URL" env-default:"http://localhost:3000"`
	CORSOrigins []string `env:"CORS_ORIGINS" env-separator:","`

	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	Log       LogConfig
	Worker    WorkerConfig
	Scheduler SchedulerConfig
	State     StateConfig
	Retry     RetryConfig
	Breaker   BreakerConfig

	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT" env-default:"20s"`
	MediaTimeout time.Duration `env:"MEDIA_TIMEOUT" env-default:"60s"`

	Twitter   TwitterConfig
	LinkedIn  LinkedInConfig
	Facebook  FacebookConfig
	Instagram InstagramConfig
	TikTok    TikTokConfig
	YouTube   YouTubeConfig
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

// WorkerConfig sizes the task worker.
type WorkerConfig struct {
	Concurrency    int `env:"WORKER_CONCURRENCY" env-default:"2"`
	DequeueTimeout int `env:"WORKER_DEQUEUE_TIMEOUT" env-default:"5"`
}

// SchedulerConfig controls periodic maintenance.
type SchedulerConfig struct {
	Enabled      bool          `env:"SCHEDULER_ENABLED" env-default:"true"`
	Interval     time.Duration `env:"SCHEDULER_INTERVAL" env-default:"1m"`
	LockRequired bool          `env:"SCHEDULER_LOCK_REQUIRED" env-default:"true"`
}

// StateConfig controls OAuth state tokens.
type StateConfig struct {
	TTL            time.Duration `env:"STATE_TTL" env-default:"10m"`
	SweepThreshold int           `env:"STATE_SWEEP_THRESHOLD" env-default:"1000"`
}

// RetryConfig is the vendor retry policy.
type RetryConfig struct {
	MaxRetries   int           `env:"RETRY_MAX_RETRIES" env-default:"3"`
	InitialDelay time.Duration `env:"RETRY_INITIAL_DELAY" env-default:"1s"`
	MaxDelay     time.Duration `env:"RETRY_MAX_DELAY" env-default:"10s"`
	Factor       float64       `env:"RETRY_FACTOR" env-default:"2"`
}

// BreakerConfig is the per-platform circuit breaker policy.
type BreakerConfig struct {
	FailureThreshold int           `env:"BREAKER_FAILURE_THRESHOLD" env-default:"5"`
	ResetTimeout     time.Duration `env:"BREAKER_RESET_TIMEOUT" env-default:"60s"`
}

// TwitterConfig holds the X app credentials.
type TwitterConfig struct {
	ClientID     string   `env:"TWITTER_CLIENT_ID"`
	ClientSecret string   `env:"TWITTER_CLIENT_SECRET"`
	CallbackURL  string   `env:"TWITTER_CALLBACK_URL"`
	Scope        []string `env:"TWITTER_SCOPE" env-separator:" "`
}

// LinkedInConfig holds the LinkedIn app credentials.
type LinkedInConfig struct {
	ClientID            string   `env:"LINKEDIN_CLIENT_ID"`
	ClientSecret        string   `env:"LINKEDIN_CLIENT_SECRET"`
	RedirectURI         string   `env:"LINKEDIN_REDIRECT_URI"`
	Scope               []string `env:"LINKEDIN_SCOPE" env-separator:" "`
	RedirectAllowList   string   `env:"LINKEDIN_ALLOWED_REDIRECT_URIS"`
	RefreshBufferSec    int      `env:"LINKEDIN_REFRESH_BUFFER_SEC" env-default:"300"`
	RequestTimeoutMS    int      `env:"LINKEDIN_REQUEST_TIMEOUT_MS" env-default:"20000"`
}

// AllowedRedirectURIs splits the allow list on commas and whitespace.
func (c LinkedInConfig) AllowedRedirectURIs() []string {
	return strings.FieldsFunc(c.RedirectAllowList, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// RequestTimeout converts the millisecond setting and applies the floor.
func (c LinkedInConfig) RequestTimeout() time.Duration {
	return clamp(time.Duration(c.RequestTimeoutMS) * time.Millisecond)
}

// RefreshBuffer is how early a LinkedIn token is refreshed.
func (c LinkedInConfig) RefreshBuffer() time.Duration {
	return time.Duration(c.RefreshBufferSec) * time.Second
}

// FacebookConfig holds the Meta app credentials.
type FacebookConfig struct {
	AppID       string   `env:"FACEBOOK_APP_ID"`
	AppSecret   string   `env:"FACEBOOK_APP_SECRET"`
	RedirectURI string   `env:"FACEBOOK_REDIRECT_URI"`
	Scope       []string `env:"FACEBOOK_SCOPE" env-separator:","`
}

// InstagramConfig reuses the Meta app with its own redirect.
type InstagramConfig struct {
	RedirectURI string   `env:"INSTAGRAM_REDIRECT_URI"`
	Scope       []string `env:"INSTAGRAM_SCOPE" env-separator:","`
}

// TikTokConfig holds the TikTok app credentials.
type TikTokConfig struct {
	ClientKey    string   `env:"TIKTOK_CLIENT_KEY"`
	ClientSecret string   `env:"TIKTOK_CLIENT_SECRET"`
	RedirectURI  string   `env:"TIKTOK_REDIRECT_URI"`
	Scope        []string `env:"TIKTOK_SCOPE" env-separator:","`
}

// YouTubeConfig holds the Google app credentials.
type YouTubeConfig struct {
	ClientID     string   `env:"YOUTUBE_CLIENT_ID"`
	ClientSecret string   `env:"YOUTUBE_CLIENT_SECRET"`
	RedirectURI  string   `env:"YOUTUBE_REDIRECT_URI"`
	Scope        []string `env:"YOUTUBE_SCOPE" env-separator:" "`
}

// Load reads .env (when present) into the process environment and parses
// the configuration from it. Variables already set win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv parses the configuration from the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.RunMode = strings.ToLower(strings.TrimSpace(c.RunMode))
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
	c.HTTPTimeout = clamp(c.HTTPTimeout)
	c.MediaTimeout = clamp(c.MediaTimeout)
	if len(c.CORSOrigins) == 0 && c.FrontendURL != "" {
		c.CORSOrigins = []string{c.FrontendURL}
	}
}

func (c *Config) validate() error {
	switch c.RunMode {
	case ModeAPI, ModeWorker, ModeAll:
	default:
		return fmt.Errorf("invalid RUN_MODE %q (use api, worker or all)", c.RunMode)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("invalid WORKER_CONCURRENCY %d", c.Worker.Concurrency)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("invalid RETRY_MAX_RETRIES %d", c.Retry.MaxRetries)
	}
	return nil
}

// RunsAPI reports whether the HTTP server should start.
func (c *Config) RunsAPI() bool { return c.RunMode == ModeAPI || c.RunMode == ModeAll }

// RunsWorker reports whether the task worker should start.
func (c *Config) RunsWorker() bool { return c.RunMode == ModeWorker || c.RunMode == ModeAll }

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Log.Level)}
	if strings.EqualFold(c.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func clamp(d time.Duration) time.Duration {
	if d < MinTimeout {
		return MinTimeout
	}
	return d
}
