package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
	"github.com/clickstudio/connect-core/internal/core/ports/driving"
	"github.com/clickstudio/connect-core/internal/metrics"
)

// DefaultCheckTimeout bounds one live connection check.
const DefaultCheckTimeout = 15 * time.Second

// HealthCoordinatorConfig holds configuration for the health coordinator.
type HealthCoordinatorConfig struct {
	Registry driven.ConnectorRegistry
	Store    driven.CredentialStore

	CheckTimeout time.Duration // default: 15s

	// RefreshHorizon widens RefreshExpired to tokens expiring within it.
	// Zero refreshes only tokens that have already expired.
	RefreshHorizon time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Ensure HealthCoordinator implements the interface.
var _ driving.HealthService = (*HealthCoordinator)(nil)

// HealthCoordinator classifies a user's connections with live vendor calls
// and repairs expired ones. Each platform is handled in isolation.
type HealthCoordinator struct {
	registry     driven.ConnectorRegistry
	store        driven.CredentialStore
	checkTimeout time.Duration
	horizon      time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewHealthCoordinator creates a new health coordinator.
func NewHealthCoordinator(cfg HealthCoordinatorConfig) *HealthCoordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.CheckTimeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &HealthCoordinator{
		registry:     cfg.Registry,
		store:        cfg.Store,
		checkTimeout: timeout,
		horizon:      cfg.RefreshHorizon,
		now:          now,
		logger:       logger,
	}
}

// CheckConnection classifies one platform. Healthy means a live profile
// call succeeded, not merely that a token is stored.
func (h *HealthCoordinator) CheckConnection(ctx context.Context, userID string, platform domain.Platform) (result domain.ConnectionHealth) {
	result = domain.ConnectionHealth{Platform: platform, CheckedAt: h.now()}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("health check panicked", "platform", platform, "user_id", userID, "panic", r)
			result.Status = domain.StatusError
			result.Error = fmt.Sprintf("check panicked: %v", r)
		}
		metrics.HealthChecks.WithLabelValues(string(platform), string(result.Status)).Inc()
	}()

	c, err := h.registry.Get(platform)
	if err != nil {
		result.Status = domain.StatusError
		result.Error = err.Error()
		return result
	}
	result.Configured = c.IsConfigured()

	conn, err := h.store.Get(ctx, userID, platform)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		result.Status = domain.StatusNotConnected
		return result
	case err != nil:
		result.Status = domain.StatusError
		result.Error = err.Error()
		return result
	case !conn.Connected:
		result.Status = domain.StatusNotConnected
		return result
	}

	result.Connected = true
	result.Username = conn.PlatformUsername
	result.ExpiresAt = conn.ExpiresAt
	result.CanRefresh = conn.HasRefreshToken()

	if !result.Configured {
		result.Status = domain.StatusError
		result.Error = (&domain.ConfigError{Platform: platform}).Error()
		return result
	}
	if conn.IsExpired(h.now()) {
		result.Status = domain.StatusTokenExpired
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()
	start := time.Now()
	_, err = c.FetchProfile(ctx, userID)
	result.LatencyMS = time.Since(start).Milliseconds()

	switch {
	case err == nil:
		result.Status = domain.StatusHealthy
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrReconnectRequired):
		result.Status = domain.StatusTokenExpired
		result.Error = err.Error()
	default:
		result.Status = domain.StatusError
		result.Error = err.Error()
	}
	return result
}

// CheckAll checks every registered platform concurrently and summarizes.
func (h *HealthCoordinator) CheckAll(ctx context.Context, userID string) *domain.HealthSummary {
	list := h.registry.List()
	checks := make([]domain.ConnectionHealth, len(list))

	var g errgroup.Group
	for i, c := range list {
		g.Go(func() error {
			checks[i] = h.CheckConnection(ctx, userID, c.Platform())
			return nil
		})
	}
	_ = g.Wait()

	summary := domain.Summarize(userID, checks, h.now())
	h.logger.Debug("health check complete",
		"user_id", userID,
		"overall", summary.Overall,
		"connected", summary.ConnectedCount,
		"healthy", summary.HealthyCount,
	)
	return summary
}

// RefreshExpired refreshes every connection whose token has expired, by
// stored expiry or because a live check reported it rejected, and that
// carries a refresh token. A failure on one platform is recorded and does
// not stop the rest.
func (h *HealthCoordinator) RefreshExpired(ctx context.Context, userID string) *domain.RefreshReport {
	report := &domain.RefreshReport{
		UserID:    userID,
		Refreshed: []domain.Platform{},
		Failed:    []domain.RefreshFailure{},
	}

	conns, err := h.store.List(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list connections", "user_id", userID, "error", err)
		for _, c := range h.registry.List() {
			report.Failed = append(report.Failed, domain.RefreshFailure{Platform: c.Platform(), Error: err.Error()})
		}
		return report
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	now := h.now()
	for _, c := range h.registry.List() {
		conn, ok := conns[c.Platform()]
		if !ok || !conn.Connected {
			continue
		}
		g.Go(func() (err error) {
			platform := c.Platform()
			var outcome string
			defer func() {
				if r := recover(); r != nil {
					outcome, err = "failed", fmt.Errorf("refresh panicked: %v", r)
				}
				mu.Lock()
				defer mu.Unlock()
				switch outcome {
				case "skipped":
					report.Skipped = append(report.Skipped, platform)
				case "refreshed":
					report.Refreshed = append(report.Refreshed, platform)
				case "failed":
					report.Failed = append(report.Failed, domain.RefreshFailure{Platform: platform, Error: err.Error()})
				}
			}()

			if !conn.NeedsRefresh(now, h.horizon) {
				// Stored expiry looks fine; the vendor may still reject the token.
				if h.CheckConnection(ctx, userID, platform).Status != domain.StatusTokenExpired {
					return nil
				}
			}
			if !conn.HasRefreshToken() || !c.IsConfigured() {
				outcome = "skipped"
				return nil
			}
			if _, err = c.RefreshAccessToken(ctx, userID); err != nil {
				outcome = "failed"
				return err
			}
			outcome = "refreshed"
			return nil
		})
	}
	_ = g.Wait()

	sortPlatforms(report.Refreshed)
	sortPlatforms(report.Skipped)
	sortFailures(report.Failed)
	if len(report.Refreshed) > 0 || len(report.Failed) > 0 {
		h.logger.Info("expired tokens refreshed",
			"user_id", userID,
			"refreshed", len(report.Refreshed),
			"failed", len(report.Failed),
		)
	}
	return report
}

func platformRank(p domain.Platform) int {
	return slices.Index(domain.AllPlatforms(), p)
}

func sortPlatforms(ps []domain.Platform) {
	slices.SortFunc(ps, func(a, b domain.Platform) int {
		return platformRank(a) - platformRank(b)
	})
}

func sortFailures(fs []domain.RefreshFailure) {
	slices.SortFunc(fs, func(a, b domain.RefreshFailure) int {
		return platformRank(a.Platform) - platformRank(b.Platform)
	})
}
