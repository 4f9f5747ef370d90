package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CredentialStore = (*CredentialStore)(nil)

// CredentialStore keeps one document per user in memory. Values are
// deep-copied on the way in and out so callers never share state.
type CredentialStore struct {
	mu    sync.RWMutex
	users map[string]map[domain.Platform]*domain.PlatformConnection
}

// NewCredentialStore creates an empty in-memory credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		users: make(map[string]map[domain.Platform]*domain.PlatformConnection),
	}
}

// Get returns the connection for (user, platform).
func (s *CredentialStore) Get(ctx context.Context, userID string, platform domain.Platform) (*domain.PlatformConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.users[userID][platform]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(conn)
}

// Save creates or overwrites the platform entry.
func (s *CredentialStore) Save(ctx context.Context, userID string, platform domain.Platform, conn *domain.PlatformConnection) error {
	if err := conn.Validate(); err != nil {
		return err
	}
	c, err := clone(conn)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.users[userID]
	if !ok {
		doc = make(map[domain.Platform]*domain.PlatformConnection)
		s.users[userID] = doc
	}
	doc[platform] = c
	return nil
}

// UpdateTokens renews the token fields in place.
func (s *CredentialStore) UpdateTokens(ctx context.Context, userID string, platform domain.Platform, update domain.TokenUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.users[userID][platform]
	if !ok {
		return domain.ErrNotFound
	}
	conn.ApplyTokens(update)
	return nil
}

// Delete removes the platform entry.
func (s *CredentialStore) Delete(ctx context.Context, userID string, platform domain.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users[userID], platform)
	return nil
}

// List returns every platform entry of the user.
func (s *CredentialStore) List(ctx context.Context, userID string) (map[domain.Platform]*domain.PlatformConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.Platform]*domain.PlatformConnection, len(s.users[userID]))
	for p, conn := range s.users[userID] {
		c, err := clone(conn)
		if err != nil {
			return nil, err
		}
		out[p] = c
	}
	return out, nil
}

// ListExpiring returns refreshable connections expiring before the given time, soonest first.
func (s *CredentialStore) ListExpiring(ctx context.Context, before time.Time, limit int) ([]domain.ConnectionRef, error) {
	s.mu.RLock()
	var refs []domain.ConnectionRef
	for userID, doc := range s.users {
		for p, conn := range doc {
			if !conn.Connected || !conn.HasRefreshToken() || conn.ExpiresAt == nil {
				continue
			}
			if conn.ExpiresAt.Before(before) {
				exp := *conn.ExpiresAt
				refs = append(refs, domain.ConnectionRef{UserID: userID, Platform: p, ExpiresAt: &exp})
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].ExpiresAt.Before(*refs[j].ExpiresAt) })
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func clone(conn *domain.PlatformConnection) (*domain.PlatformConnection, error) {
	data, err := json.Marshal(conn)
	if err != nil {
		return nil, fmt.Errorf("copy connection: %w", err)
	}
	var out domain.PlatformConnection
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("copy connection: %w", err)
	}
	return &out, nil
}
