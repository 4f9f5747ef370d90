package driven

import (
	"context"
	"time"

	"github.com/clickstudio/connect-core/internal/core/domain"
)

// OAuthState represents a pending OAuth authorization flow state.
// Used for CSRF protection and PKCE code verifier storage.
type OAuthState struct {
	// Token is a cryptographically random string used for CSRF protection.
	Token string `json:"token"`

	// UserID and Platform are the binding this token authorizes.
	UserID   string          `json:"user_id"`
	Platform domain.Platform `json:"platform"`

	// RedirectURI is the exact callback URL sent to the vendor.
	// The token exchange must repeat it byte-for-byte.
	RedirectURI string `json:"redirect_uri,omitempty"`

	// CodeVerifier is the PKCE code verifier (plain text, not hashed).
	CodeVerifier string `json:"code_verifier,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the state has passed its TTL.
func (s *OAuthState) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// OAuthStateStore manages OAuth flow state for CSRF protection.
// States are single-use and expire after a short period.
type OAuthStateStore interface {
	// Save stores a new OAuth state.
	Save(ctx context.Context, state *OAuthState) error

	// GetAndDelete atomically retrieves and deletes the state.
	// Returns nil, nil if the state doesn't exist. Expired states are
	// returned as-is so the caller can log the reason.
	GetAndDelete(ctx context.Context, token string) (*OAuthState, error)

	// Cleanup removes expired states.
	Cleanup(ctx context.Context) error

	// Count returns the number of stored states, expired ones included.
	Count(ctx context.Context) (int, error)
}

// StateOptions carries per-attempt context stored with the state.
type StateOptions struct {
	RedirectURI  string
	CodeVerifier string
}

// StateIssuer issues and consumes single-use state tokens.
type StateIssuer interface {
	// Generate creates and stores a state bound to (userID, platform).
	Generate(ctx context.Context, userID string, platform domain.Platform, opts StateOptions) (*OAuthState, error)

	// Consume verifies and deletes the state. Any mismatch returns
	// domain.ErrInvalidState.
	Consume(ctx context.Context, token, userID string, platform domain.Platform) (*OAuthState, error)
}
