package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.OAuthStateStore = (*StateStore)(nil)

const statePrefix = "connect:oauth_state:"

// stateGrace keeps an expired state readable for a while so consumers can
// tell an expired token from an unknown one.
const stateGrace = time.Minute

// StateStore keeps OAuth states as JSON strings with a Redis TTL. States are
// shared by every instance behind the same Redis.
type StateStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewStateStore creates a Redis-backed state store.
func NewStateStore(client redis.UniversalClient) *StateStore {
	return &StateStore{client: client, now: time.Now}
}

// Save stores a state until ExpiresAt plus a short grace period.
func (s *StateStore) Save(ctx context.Context, state *driven.OAuthState) error {
	ttl := state.ExpiresAt.Sub(s.now()) + stateGrace
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal oauth state: %w", err)
	}
	if err := s.client.Set(ctx, statePrefix+state.Token, data, ttl).Err(); err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

// GetAndDelete consumes a state with GETDEL so two concurrent callbacks
// cannot both read it.
func (s *StateStore) GetAndDelete(ctx context.Context, token string) (*driven.OAuthState, error) {
	data, err := s.client.GetDel(ctx, statePrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume oauth state: %w", err)
	}
	var st driven.OAuthState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal oauth state: %w", err)
	}
	return &st, nil
}

// Cleanup is a no-op: Redis evicts states through their TTL.
func (s *StateStore) Cleanup(ctx context.Context) error {
	return nil
}

// Count scans the state keyspace.
func (s *StateStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, statePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("count oauth states: %w", err)
	}
	return n, nil
}
