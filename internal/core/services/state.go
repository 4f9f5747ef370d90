package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
	"github.com/clickstudio/connect-core/internal/metrics"
)

const (
	// DefaultStateTTL is how long an authorization attempt stays valid.
	DefaultStateTTL = 10 * time.Minute

	// DefaultSweepThreshold is the store size at which Generate sweeps expired states.
	DefaultSweepThreshold = 1000

	// stateBytes gives 256 bits of entropy.
	stateBytes = 32
)

// StateManagerConfig holds configuration for the state manager.
type StateManagerConfig struct {
	Store          driven.OAuthStateStore
	TTL            time.Duration    // default: 10m
	SweepThreshold int              // default: 1000
	Now            func() time.Time // default: time.Now
	Logger         *slog.Logger
}

// Ensure StateManager implements the interface.
var _ driven.StateIssuer = (*StateManager)(nil)

// StateManager issues and verifies single-use CSRF state tokens bound to a
// (user, platform) pair.
type StateManager struct {
	store          driven.OAuthStateStore
	ttl            time.Duration
	sweepThreshold int
	now            func() time.Time
	logger         *slog.Logger
}

// NewStateManager creates a new state manager.
func NewStateManager(cfg StateManagerConfig) *StateManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	threshold := cfg.SweepThreshold
	if threshold <= 0 {
		threshold = DefaultSweepThreshold
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &StateManager{
		store:          cfg.Store,
		ttl:            ttl,
		sweepThreshold: threshold,
		now:            now,
		logger:         logger,
	}
}

// TTL returns the configured state lifetime.
func (m *StateManager) TTL() time.Duration {
	return m.ttl
}

// Generate creates and stores a new state token for the user and platform.
func (m *StateManager) Generate(ctx context.Context, userID string, platform domain.Platform, opts driven.StateOptions) (*driven.OAuthState, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}

	m.maybeSweep(ctx)

	token, err := generateRandomString(stateBytes)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	now := m.now()
	state := &driven.OAuthState{
		Token:        token,
		UserID:       userID,
		Platform:     platform,
		RedirectURI:  opts.RedirectURI,
		CodeVerifier: opts.CodeVerifier,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("save oauth state: %w", err)
	}
	return state, nil
}

// Consume verifies the token against the user and platform and deletes it.
// Any mismatch returns domain.ErrInvalidState; the token is spent either way.
func (m *StateManager) Consume(ctx context.Context, token, userID string, platform domain.Platform) (*driven.OAuthState, error) {
	reason, state := m.consume(ctx, token, userID, platform)
	metrics.StateVerifications.WithLabelValues(reason).Inc()
	if reason != "ok" {
		m.logger.Warn("oauth state verification failed",
			"reason", reason,
			"platform", platform,
			"user_id", userID,
		)
		return nil, domain.ErrInvalidState
	}
	return state, nil
}

// Verify reports whether the token is valid for exactly this user and platform.
// It never returns an error; false means the flow must restart.
func (m *StateManager) Verify(ctx context.Context, token, userID string, platform domain.Platform) bool {
	_, err := m.Consume(ctx, token, userID, platform)
	return err == nil
}

func (m *StateManager) consume(ctx context.Context, token, userID string, platform domain.Platform) (string, *driven.OAuthState) {
	if token == "" {
		return "missing", nil
	}
	// A token presented with the wrong binding has leaked, so it is not put back.
	state, err := m.store.GetAndDelete(ctx, token)
	if err != nil {
		m.logger.Error("failed to load oauth state", "error", err)
		return "store_error", nil
	}
	switch {
	case state == nil:
		return "missing", nil
	case state.IsExpired(m.now()):
		return "expired", nil
	case state.UserID != userID:
		return "user_mismatch", nil
	case state.Platform != platform:
		return "platform_mismatch", nil
	}
	return "ok", state
}

// Sweep removes expired states from the store.
func (m *StateManager) Sweep(ctx context.Context) error {
	if err := m.store.Cleanup(ctx); err != nil {
		return fmt.Errorf("cleanup oauth states: %w", err)
	}
	return nil
}

func (m *StateManager) maybeSweep(ctx context.Context) {
	n, err := m.store.Count(ctx)
	if err != nil {
		m.logger.Debug("failed to count oauth states", "error", err)
		return
	}
	if n < m.sweepThreshold {
		return
	}
	if err := m.Sweep(ctx); err != nil {
		m.logger.Warn("opportunistic state sweep failed", "error", err)
		return
	}
	m.logger.Debug("swept expired oauth states", "size_before", n)
}

// generateRandomString creates a cryptographically secure URL-safe string.
func generateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
