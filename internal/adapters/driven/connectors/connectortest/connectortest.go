// Package connectortest provides in-memory wiring for connector tests.
package connectortest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors"
	"github.com/clickstudio/connect-core/internal/adapters/driven/memory"
	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/services"
	"github.com/clickstudio/connect-core/internal/resilience"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at a known instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env bundles the collaborators a connector under test uses.
type Env struct {
	Clock  *Clock
	States *services.StateManager
	Store  *memory.CredentialStore
	Deps   connectors.Deps
}

// NewEnv builds in-memory stores, a state manager and retry options that
// never sleep.
func NewEnv(t testing.TB) *Env {
	t.Helper()
	clock := NewClock()
	states := services.NewStateManager(services.StateManagerConfig{
		Store: memory.NewStateStore().WithClock(clock.Now),
		Now:   clock.Now,
	})
	store := memory.NewCredentialStore()

	return &Env{
		Clock:  clock,
		States: states,
		Store:  store,
		Deps: connectors.Deps{
			States: states,
			Store:  store,
			Retry: resilience.Options{
				MaxRetries:    2,
				InitialDelay:  time.Millisecond,
				Factor:        2,
				MaxRetryAfter: time.Minute,
				Sleep:         func(ctx context.Context, d time.Duration) error { return ctx.Err() },
			},
			BreakerThreshold: -1,
			Now:              clock.Now,
		},
	}
}

// Connect stores a connected record for the user.
func (e *Env) Connect(t testing.TB, userID string, platform domain.Platform, conn *domain.PlatformConnection) {
	t.Helper()
	conn.Connected = true
	if conn.ConnectedAt.IsZero() {
		conn.ConnectedAt = e.Clock.Now()
	}
	if err := e.Store.Save(context.Background(), userID, platform, conn); err != nil {
		t.Fatalf("save connection: %v", err)
	}
}

// ExpiresIn returns a pointer to now+d on the env clock.
func (e *Env) ExpiresIn(d time.Duration) *time.Time {
	t := e.Clock.Now().Add(d)
	return &t
}
