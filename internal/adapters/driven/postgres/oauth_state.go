package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

// Ensure OAuthStateStore implements the interface.
var _ driven.OAuthStateStore = (*OAuthStateStore)(nil)

// OAuthStateStore implements driven.OAuthStateStore using PostgreSQL.
// Expiry is decided by the caller; the store only keeps rows until Cleanup.
type OAuthStateStore struct {
	db *DB
}

// NewOAuthStateStore creates a new PostgreSQL-backed OAuth state store.
func NewOAuthStateStore(db *DB) *OAuthStateStore {
	return &OAuthStateStore{db: db}
}

// Save stores a new OAuth state.
func (s *OAuthStateStore) Save(ctx context.Context, state *driven.OAuthState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_states (token, user_id, platform, redirect_uri, code_verifier, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		state.Token,
		state.UserID,
		string(state.Platform),
		state.RedirectURI,
		state.CodeVerifier,
		state.CreatedAt,
		state.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

// GetAndDelete removes the row and returns it in one statement, so only
// one caller can ever see a given token.
func (s *OAuthStateStore) GetAndDelete(ctx context.Context, token string) (*driven.OAuthState, error) {
	var (
		st       driven.OAuthState
		platform string
	)
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM oauth_states
		WHERE token = $1
		RETURNING token, user_id, platform, redirect_uri, code_verifier, created_at, expires_at
	`, token).Scan(
		&st.Token,
		&st.UserID,
		&platform,
		&st.RedirectURI,
		&st.CodeVerifier,
		&st.CreatedAt,
		&st.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get and delete oauth state: %w", err)
	}
	st.Platform = domain.Platform(platform)
	return &st, nil
}

// Cleanup removes expired states.
func (s *OAuthStateStore) Cleanup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at <= NOW()`); err != nil {
		return fmt.Errorf("cleanup oauth states: %w", err)
	}
	return nil
}

// Count returns the number of stored states.
func (s *OAuthStateStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM oauth_states`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count oauth states: %w", err)
	}
	return n, nil
}
