package main

// @title           Connect Core API
// @version         1.0
// @description     OAuth connections and publishing for social platforms.

// @contact.name   Click Studio
// @contact.url    https://github.com/clickstudio/connect-core/issues

// @host      localhost:8080
// @BasePath  /
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/clickstudio/connect-core/docs"
	"github.com/clickstudio/connect-core/internal/adapters/driven/auth"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors/facebook"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors/instagram"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors/linkedin"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors/tiktok"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors/twitter"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors/youtube"
	"github.com/clickstudio/connect-core/internal/adapters/driven/memory"
	"github.com/clickstudio/connect-core/internal/adapters/driven/postgres"
	postgresqueue "github.com/clickstudio/connect-core/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/clickstudio/connect-core/internal/adapters/driven/queue/redis"
	redisadapter "github.com/clickstudio/connect-core/internal/adapters/driven/redis"
	httpadapter "github.com/clickstudio/connect-core/internal/adapters/driving/http"
	"github.com/clickstudio/connect-core/internal/config"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
	"github.com/clickstudio/connect-core/internal/core/services"
	"github.com/clickstudio/connect-core/internal/resilience"
	"github.com/clickstudio/connect-core/internal/worker"
)

var version = "dev"

// pingFunc adapts a function to the readiness probe interface.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if len(os.Args) > 1 {
		cfg.RunMode = os.Args[1]
	}

	logger := cfg.Logger().With("service", "connect-core", "version", version)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if !cfg.RunsAPI() && !cfg.RunsWorker() {
		return fmt.Errorf("unknown mode %q (use api, worker or all)", cfg.RunMode)
	}
	logger.Info("connect-core starting", "mode", cfg.RunMode)
	docs.SwaggerInfo.Version = version

	probes := map[string]httpadapter.Pinger{}

	// ===== PostgreSQL (optional) =====
	var db *postgres.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = postgres.Connect(ctx, postgres.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		if err := db.InitSchema(ctx); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
		probes["postgres"] = db
		logger.Info("postgres connected")
	}

	// ===== Redis (optional) =====
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		probes["redis"] = pingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
		logger.Info("redis connected")
	}

	// ===== Stores: Redis, then PostgreSQL, then memory =====
	var encryptor *postgres.SecretEncryptor
	if cfg.EncryptionKey != "" {
		var err error
		if encryptor, err = postgres.NewSecretEncryptorFromPassphrase(cfg.EncryptionKey); err != nil {
			return fmt.Errorf("encryption key: %w", err)
		}
	}

	var (
		stateStore      driven.OAuthStateStore
		credentialStore driven.CredentialStore
		taskQueue       driven.TaskQueue
		lock            driven.DistributedLock
	)
	switch {
	case redisClient != nil:
		stateStore = redisadapter.NewStateStore(redisClient)
		lock = redisadapter.NewLock(redisClient)
		q, err := redisqueue.NewQueue(ctx, redisClient, fmt.Sprintf("worker-%d", os.Getpid()))
		if err != nil {
			return fmt.Errorf("create task queue: %w", err)
		}
		defer q.Close()
		taskQueue = q
	case db != nil:
		stateStore = postgres.NewOAuthStateStore(db)
		lock = postgres.NewAdvisoryLock(db)
		taskQueue = postgresqueue.NewQueue(db.DB)
	default:
		stateStore = memory.NewStateStore()
		logger.Warn("no DATABASE_URL or REDIS_URL: states and connections are kept in memory, background publishing is disabled")
	}
	if db != nil {
		credentialStore = postgres.NewCredentialStore(db, encryptor)
		if encryptor == nil {
			logger.Warn("ENCRYPTION_KEY not set: tokens are stored unencrypted")
		}
	} else {
		credentialStore = memory.NewCredentialStore()
	}

	states := services.NewStateManager(services.StateManagerConfig{
		Store:          stateStore,
		TTL:            cfg.State.TTL,
		SweepThreshold: cfg.State.SweepThreshold,
		Logger:         logger,
	})

	// ===== Connectors =====
	retry := resilience.DefaultOptions()
	retry.MaxRetries = cfg.Retry.MaxRetries
	retry.InitialDelay = cfg.Retry.InitialDelay
	retry.MaxDelay = cfg.Retry.MaxDelay
	retry.Factor = cfg.Retry.Factor
	retry.Logger = logger

	deps := connectors.Deps{
		States:           states,
		Store:            credentialStore,
		Lock:             lock,
		HTTPClient:       &http.Client{},
		Timeout:          cfg.HTTPTimeout,
		MediaTimeout:     cfg.MediaTimeout,
		Retry:            retry,
		BreakerThreshold: cfg.Breaker.FailureThreshold,
		BreakerReset:     cfg.Breaker.ResetTimeout,
		Logger:           logger,
	}
	linkedinDeps := deps
	linkedinDeps.Timeout = cfg.LinkedIn.RequestTimeout()
	linkedinDeps.RefreshBuffer = cfg.LinkedIn.RefreshBuffer()

	registry := connectors.NewRegistry(
		twitter.New(twitter.Config{Credentials: connectors.Credentials{
			ClientID:     cfg.Twitter.ClientID,
			ClientSecret: cfg.Twitter.ClientSecret,
			RedirectURI:  cfg.Twitter.CallbackURL,
			Scopes:       cfg.Twitter.Scope,
		}}, deps),
		linkedin.New(linkedin.Config{
			Credentials: connectors.Credentials{
				ClientID:     cfg.LinkedIn.ClientID,
				ClientSecret: cfg.LinkedIn.ClientSecret,
				RedirectURI:  cfg.LinkedIn.RedirectURI,
				Scopes:       cfg.LinkedIn.Scope,
			},
			AllowedRedirectURIs: cfg.LinkedIn.AllowedRedirectURIs(),
		}, linkedinDeps),
		facebook.New(facebook.Config{Credentials: connectors.Credentials{
			ClientID:     cfg.Facebook.AppID,
			ClientSecret: cfg.Facebook.AppSecret,
			RedirectURI:  cfg.Facebook.RedirectURI,
			Scopes:       cfg.Facebook.Scope,
		}}, deps),
		instagram.New(instagram.Config{Credentials: connectors.Credentials{
			ClientID:     cfg.Facebook.AppID,
			ClientSecret: cfg.Facebook.AppSecret,
			RedirectURI:  cfg.Instagram.RedirectURI,
			Scopes:       cfg.Instagram.Scope,
		}}, deps),
		tiktok.New(tiktok.Config{Credentials: connectors.Credentials{
			ClientID:     cfg.TikTok.ClientKey,
			ClientSecret: cfg.TikTok.ClientSecret,
			RedirectURI:  cfg.TikTok.RedirectURI,
			Scopes:       cfg.TikTok.Scope,
		}}, deps),
		youtube.New(youtube.Config{Credentials: connectors.Credentials{
			ClientID:     cfg.YouTube.ClientID,
			ClientSecret: cfg.YouTube.ClientSecret,
			RedirectURI:  cfg.YouTube.RedirectURI,
			Scopes:       cfg.YouTube.Scope,
		}}, deps),
	)
	for _, c := range registry.List() {
		logger.Info("platform", "platform", c.Platform(), "configured", c.IsConfigured())
	}

	// ===== Services =====
	oauthService := services.NewOAuthService(services.OAuthServiceConfig{
		Registry: registry,
		Store:    credentialStore,
		StateTTL: cfg.State.TTL,
		Logger:   logger,
	})
	healthService := services.NewHealthCoordinator(services.HealthCoordinatorConfig{
		Registry: registry,
		Store:    credentialStore,
		Logger:   logger,
	})
	publisher := services.NewPublisher(services.PublisherConfig{
		Registry: registry,
		Queue:    taskQueue,
		Logger:   logger,
	})
	if taskQueue != nil {
		probes["queue"] = taskQueue
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.RunsWorker() {
		if taskQueue == nil {
			if cfg.RunMode == config.ModeWorker {
				return errors.New("worker mode needs DATABASE_URL or REDIS_URL for the task queue")
			}
			logger.Warn("worker disabled: no task queue")
		} else {
			var scheduler *services.Scheduler
			if cfg.Scheduler.Enabled {
				scheduler = services.NewScheduler(services.SchedulerConfig{
					States:       stateStore,
					Credentials:  credentialStore,
					TaskQueue:    taskQueue,
					Lock:         lock,
					Logger:       logger,
					PollInterval: cfg.Scheduler.Interval,
					LockRequired: cfg.Scheduler.LockRequired,
				})
			}
			w := worker.NewWorker(worker.WorkerConfig{
				TaskQueue:      taskQueue,
				Publisher:      publisher,
				Health:         healthService,
				Scheduler:      scheduler,
				Logger:         logger,
				Concurrency:    cfg.Worker.Concurrency,
				DequeueTimeout: cfg.Worker.DequeueTimeout,
			})
			g.Go(func() error {
				if err := w.Start(gctx); err != nil {
					return fmt.Errorf("start worker: %w", err)
				}
				<-gctx.Done()
				w.Stop()
				return nil
			})
		}
	}

	if cfg.RunsAPI() {
		server := httpadapter.NewServer(httpadapter.Config{
			Host:           "0.0.0.0",
			Port:           cfg.Port,
			Version:        version,
			FrontendURL:    cfg.FrontendURL,
			AllowedOrigins: cfg.CORSOrigins,
		}, httpadapter.Deps{
			OAuth:    oauthService,
			Health:   healthService,
			Publish:  publisher,
			Verifier: auth.NewVerifier(cfg.JWTSecret),
			Probes:   probes,
			Logger:   logger,
		})
		g.Go(func() error { return server.Start(gctx) })
	}

	err := g.Wait()
	logger.Info("connect-core stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
