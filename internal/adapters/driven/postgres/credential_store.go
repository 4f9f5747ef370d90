package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CredentialStore = (*CredentialStore)(nil)

// CredentialStore keeps one row per user in user_connections. The
// connections column is a JSONB object keyed by platform name, and every
// write touches only its own key.
type CredentialStore struct {
	db        *DB
	encryptor *SecretEncryptor
}

// NewCredentialStore creates a credential store. A nil encryptor stores
// tokens in plain text.
func NewCredentialStore(db *DB, encryptor *SecretEncryptor) *CredentialStore {
	return &CredentialStore{db: db, encryptor: encryptor}
}

// Get returns the connection for (user, platform).
func (s *CredentialStore) Get(ctx context.Context, userID string, platform domain.Platform) (*domain.PlatformConnection, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT connections -> $2
		FROM user_connections
		WHERE user_id = $1 AND connections ? $2
	`, userID, string(platform)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return s.decode(raw, userID, platform)
}

// Save creates or overwrites the platform entry of the user document.
func (s *CredentialStore) Save(ctx context.Context, userID string, platform domain.Platform, conn *domain.PlatformConnection) error {
	if err := conn.Validate(); err != nil {
		return err
	}
	data, err := s.encode(conn, userID, platform)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_connections (user_id, connections, updated_at)
		VALUES ($1, jsonb_build_object($2::text, $3::jsonb), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET connections = jsonb_set(user_connections.connections, ARRAY[$2::text], $3::jsonb, true),
		    updated_at = NOW()
	`, userID, string(platform), data)
	if err != nil {
		return fmt.Errorf("save connection: %w", err)
	}
	return nil
}

// UpdateTokens locks the user row, applies the update and writes the
// platform entry back.
func (s *CredentialStore) UpdateTokens(ctx context.Context, userID string, platform domain.Platform, update domain.TokenUpdate) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var raw []byte
		err := tx.QueryRowContext(ctx, `
			SELECT connections -> $2
			FROM user_connections
			WHERE user_id = $1 AND connections ? $2
			FOR UPDATE
		`, userID, string(platform)).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock connection: %w", err)
		}

		conn, err := s.decode(raw, userID, platform)
		if err != nil {
			return err
		}
		conn.ApplyTokens(update)
		data, err := s.encode(conn, userID, platform)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE user_connections
			SET connections = jsonb_set(connections, ARRAY[$2::text], $3::jsonb, false),
			    updated_at = NOW()
			WHERE user_id = $1
		`, userID, string(platform), data); err != nil {
			return fmt.Errorf("update tokens: %w", err)
		}
		return nil
	})
}

// Delete removes the platform entry. The user row stays.
func (s *CredentialStore) Delete(ctx context.Context, userID string, platform domain.Platform) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_connections
		SET connections = connections - $2::text, updated_at = NOW()
		WHERE user_id = $1
	`, userID, string(platform))
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

// List returns every platform entry of the user document.
func (s *CredentialStore) List(ctx context.Context, userID string) (map[domain.Platform]*domain.PlatformConnection, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT connections FROM user_connections WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[domain.Platform]*domain.PlatformConnection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode connections: %w", err)
	}
	out := make(map[domain.Platform]*domain.PlatformConnection, len(doc))
	for name, entry := range doc {
		p, err := domain.ParsePlatform(name)
		if err != nil {
			// Unknown keys are left alone for other writers.
			continue
		}
		conn, err := s.decode(entry, userID, p)
		if err != nil {
			return nil, err
		}
		out[p] = conn
	}
	return out, nil
}

// ListExpiring returns refreshable connections expiring before the given
// time, soonest first. A limit <= 0 returns every match.
func (s *CredentialStore) ListExpiring(ctx context.Context, before time.Time, limit int) ([]domain.ConnectionRef, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT uc.user_id, c.key, (c.value ->> 'expires_at')::timestamptz AS expires_at
		FROM user_connections uc, jsonb_each(uc.connections) c
		WHERE COALESCE((c.value ->> 'connected')::boolean, false)
		  AND COALESCE(c.value ->> 'refresh_token', '') <> ''
		  AND c.value ? 'expires_at'
		  AND (c.value ->> 'expires_at')::timestamptz < $1
		ORDER BY expires_at
		LIMIT $2
	`, before, lim)
	if err != nil {
		return nil, fmt.Errorf("list expiring connections: %w", err)
	}
	defer rows.Close()

	var refs []domain.ConnectionRef
	for rows.Next() {
		var (
			userID, name string
			expiresAt    time.Time
		)
		if err := rows.Scan(&userID, &name, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan expiring connection: %w", err)
		}
		p, err := domain.ParsePlatform(name)
		if err != nil {
			continue
		}
		refs = append(refs, domain.ConnectionRef{UserID: userID, Platform: p, ExpiresAt: &expiresAt})
	}
	return refs, rows.Err()
}

func recordKey(userID string, platform domain.Platform) string {
	return userID + ":" + string(platform)
}

// encode seals every token of the connection and marshals it.
func (s *CredentialStore) encode(conn *domain.PlatformConnection, userID string, platform domain.Platform) ([]byte, error) {
	c := *conn
	if s.encryptor != nil {
		ad := recordKey(userID, platform)
		var err error
		if c.AccessToken, err = s.encryptor.Seal(c.AccessToken, ad); err != nil {
			return nil, fmt.Errorf("seal access token: %w", err)
		}
		if c.RefreshToken, err = s.encryptor.Seal(c.RefreshToken, ad); err != nil {
			return nil, fmt.Errorf("seal refresh token: %w", err)
		}
		c.Pages = append([]domain.FacebookPage(nil), conn.Pages...)
		for i := range c.Pages {
			if c.Pages[i].AccessToken, err = s.encryptor.Seal(c.Pages[i].AccessToken, ad); err != nil {
				return nil, fmt.Errorf("seal page token: %w", err)
			}
		}
		c.Accounts = append([]domain.InstagramAccount(nil), conn.Accounts...)
		for i := range c.Accounts {
			if c.Accounts[i].PageAccessToken, err = s.encryptor.Seal(c.Accounts[i].PageAccessToken, ad); err != nil {
				return nil, fmt.Errorf("seal page token: %w", err)
			}
		}
	}
	data, err := json.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("encode connection: %w", err)
	}
	return data, nil
}

func (s *CredentialStore) decode(raw []byte, userID string, platform domain.Platform) (*domain.PlatformConnection, error) {
	var conn domain.PlatformConnection
	if err := json.Unmarshal(raw, &conn); err != nil {
		return nil, fmt.Errorf("decode connection: %w", err)
	}
	if s.encryptor == nil {
		return &conn, nil
	}
	ad := recordKey(userID, platform)
	var err error
	if conn.AccessToken, err = s.encryptor.Open(conn.AccessToken, ad); err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	if conn.RefreshToken, err = s.encryptor.Open(conn.RefreshToken, ad); err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	for i := range conn.Pages {
		if conn.Pages[i].AccessToken, err = s.encryptor.Open(conn.Pages[i].AccessToken, ad); err != nil {
			return nil, fmt.Errorf("open page token: %w", err)
		}
	}
	for i := range conn.Accounts {
		if conn.Accounts[i].PageAccessToken, err = s.encryptor.Open(conn.Accounts[i].PageAccessToken, ad); err != nil {
			return nil, fmt.Errorf("open page token: %w", err)
		}
	}
	return &conn, nil
}
