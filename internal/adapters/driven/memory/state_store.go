// Package memory provides process-local stores used when no Redis or
// PostgreSQL backend is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.OAuthStateStore = (*StateStore)(nil)

// StateStore keeps OAuth states in a map. It starts empty at process
// start and entries leave it on consumption or sweep.
type StateStore struct {
	mu     sync.Mutex
	states map[string]driven.OAuthState
	now    func() time.Time
}

// NewStateStore creates an empty in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		states: make(map[string]driven.OAuthState),
		now:    time.Now,
	}
}

// WithClock overrides the time source used by Cleanup.
func (s *StateStore) WithClock(now func() time.Time) *StateStore {
	s.now = now
	return s
}

// Save stores a new OAuth state.
func (s *StateStore) Save(ctx context.Context, state *driven.OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Token] = *state
	return nil
}

// GetAndDelete atomically retrieves and deletes the state.
func (s *StateStore) GetAndDelete(ctx context.Context, token string) (*driven.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[token]
	if !ok {
		return nil, nil
	}
	delete(s.states, token)
	return &st, nil
}

// Cleanup removes expired states.
func (s *StateStore) Cleanup(ctx context.Context) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, st := range s.states {
		if st.IsExpired(now) {
			delete(s.states, token)
		}
	}
	return nil
}

// Count returns the number of stored states.
func (s *StateStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states), nil
}
