package connectors

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
	"github.com/clickstudio/connect-core/internal/metrics"
	"github.com/clickstudio/connect-core/internal/resilience"
)

// Credentials are the OAuth app credentials for one vendor.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Scopes replace the platform's default scopes when set.
	Scopes []string
}

// Deps are the collaborators shared by every platform connector.
type Deps struct {
	States driven.StateIssuer
	Store  driven.CredentialStore
	Lock   driven.DistributedLock // optional

	HTTPClient   *http.Client
	Timeout      time.Duration
	MediaTimeout time.Duration
	Retry        resilience.Options

	// BreakerThreshold and BreakerReset configure one breaker per platform.
	// A negative threshold disables the breaker.
	BreakerThreshold int
	BreakerReset     time.Duration

	// RateLimit is the per-platform request rate. Zero disables limiting.
	RateLimit rate.Limit
	RateBurst int

	RefreshBuffer time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

// NewAPIClient builds a vendor API client with its own breaker and limiter.
func (d Deps) NewAPIClient(platform domain.Platform, baseURL string, messages ErrorMessages) *APIClient {
	var breaker *resilience.Breaker
	if d.BreakerThreshold >= 0 {
		breaker = resilience.NewBreaker(resilience.BreakerConfig{
			Name:             string(platform),
			FailureThreshold: d.BreakerThreshold,
			ResetTimeout:     d.BreakerReset,
			Now:              d.Now,
			Logger:           d.Logger,
			OnStateChange: func(name string, from, to resilience.State) {
				metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			},
		})
	}

	var limiter *rate.Limiter
	if d.RateLimit > 0 {
		burst := d.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(d.RateLimit, burst)
	}

	return NewAPIClient(APIConfig{
		Platform:     platform,
		BaseURL:      baseURL,
		HTTPClient:   d.HTTPClient,
		Timeout:      d.Timeout,
		MediaTimeout: d.MediaTimeout,
		Retry:        d.Retry,
		Breaker:      breaker,
		Limiter:      limiter,
		Messages:     messages,
		Logger:       d.Logger,
	})
}

// BaseConfig assembles the shared lifecycle configuration for a platform.
func (d Deps) BaseConfig(platform domain.Platform, creds Credentials, defaults OAuthDefaults, api *APIClient) BaseConfig {
	if len(creds.Scopes) > 0 {
		defaults.Scopes = creds.Scopes
	}
	return BaseConfig{
		Platform:      platform,
		ClientID:      creds.ClientID,
		ClientSecret:  creds.ClientSecret,
		RedirectURI:   creds.RedirectURI,
		OAuth:         defaults,
		States:        d.States,
		Store:         d.Store,
		API:           api,
		Lock:          d.Lock,
		RefreshBuffer: d.RefreshBuffer,
		Now:           d.Now,
		Logger:        d.Logger,
	}
}
