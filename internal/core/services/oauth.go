package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
	"github.com/clickstudio/connect-core/internal/core/ports/driving"
	"github.com/clickstudio/connect-core/internal/metrics"
)

// Ensure oauthService implements OAuthService
var _ driving.OAuthService = (*oauthService)(nil)

// OAuthServiceConfig holds configuration for the OAuth service.
type OAuthServiceConfig struct {
	// Registry resolves the connector of each platform.
	Registry driven.ConnectorRegistry

	// Store is read for connection status.
	Store driven.CredentialStore

	// StateTTL is reported as the expiry of a new authorization URL.
	StateTTL time.Duration // default: 10m

	Now    func() time.Time
	Logger *slog.Logger
}

// oauthService routes the per-platform lifecycle to the registered connectors.
type oauthService struct {
	registry driven.ConnectorRegistry
	store    driven.CredentialStore
	stateTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewOAuthService creates a new OAuth service.
func NewOAuthService(cfg OAuthServiceConfig) driving.OAuthService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &oauthService{
		registry: cfg.Registry,
		store:    cfg.Store,
		stateTTL: ttl,
		now:      now,
		logger:   logger,
	}
}

// Authorize starts an OAuth authorization flow.
func (s *oauthService) Authorize(ctx context.Context, req driving.AuthorizeRequest) (*driving.AuthorizeResponse, error) {
	c, err := s.registry.Get(req.Platform)
	if err != nil {
		return nil, err
	}
	auth, err := c.GetAuthorizationURL(ctx, req.UserID, req.RedirectURI)
	if err != nil {
		return nil, err
	}
	return &driving.AuthorizeResponse{
		URL:       auth.URL,
		State:     auth.State,
		ExpiresAt: s.now().Add(s.stateTTL),
	}, nil
}

// Complete exchanges the code and returns the resulting connection status.
func (s *oauthService) Complete(ctx context.Context, req driving.CompleteRequest) (*domain.ConnectionSummary, error) {
	c, err := s.registry.Get(req.Platform)
	if err != nil {
		return nil, err
	}
	if req.Code == "" {
		return nil, fmt.Errorf("%w: authorization code is required", domain.ErrInvalidInput)
	}
	if _, err := c.ExchangeCodeForToken(ctx, req.UserID, req.Code, req.State); err != nil {
		s.logger.Warn("oauth completion failed",
			"platform", req.Platform,
			"user_id", req.UserID,
			"error", err,
		)
		return nil, err
	}
	return s.summary(ctx, c, req.UserID)
}

// Status reports the token-free view of the stored connection.
func (s *oauthService) Status(ctx context.Context, userID string, platform domain.Platform) (*domain.ConnectionSummary, error) {
	c, err := s.registry.Get(platform)
	if err != nil {
		return nil, err
	}
	return s.summary(ctx, c, userID)
}

func (s *oauthService) summary(ctx context.Context, c driven.PlatformConnector, userID string) (*domain.ConnectionSummary, error) {
	conn, err := s.store.Get(ctx, userID, c.Platform())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get %s connection: %w", c.Platform(), err)
	}
	return conn.ToSummary(c.Platform(), c.IsConfigured()), nil
}

// Publish posts content to one platform.
func (s *oauthService) Publish(ctx context.Context, userID string, platform domain.Platform, req *domain.PublishRequest) (*domain.PublishResult, error) {
	c, err := s.registry.Get(platform)
	if err != nil {
		return nil, err
	}
	res, err := c.Publish(ctx, userID, req)
	metrics.Publishes.WithLabelValues(string(platform), metrics.Result(err)).Inc()
	if err != nil {
		s.logger.Warn("publish failed", "platform", platform, "user_id", userID, "error", err)
		return nil, err
	}
	s.logger.Info("published", "platform", platform, "user_id", userID, "id", res.ID)
	return res, nil
}

// Refresh forces a refresh grant and returns the updated status.
func (s *oauthService) Refresh(ctx context.Context, userID string, platform domain.Platform) (*domain.ConnectionSummary, error) {
	c, err := s.registry.Get(platform)
	if err != nil {
		return nil, err
	}
	if _, err := c.RefreshAccessToken(ctx, userID); err != nil {
		return nil, err
	}
	return s.summary(ctx, c, userID)
}

// Disconnect clears the platform connection.
func (s *oauthService) Disconnect(ctx context.Context, userID string, platform domain.Platform) error {
	c, err := s.registry.Get(platform)
	if err != nil {
		return err
	}
	return c.Disconnect(ctx, userID)
}
