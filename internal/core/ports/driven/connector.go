package driven

import (
	"context"

	"github.com/clickstudio/connect-core/internal/core/domain"
)

// AuthorizationURL is the vendor consent URL plus the state bound to it.
type AuthorizationURL struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// TokenSet is the result of a code exchange or refresh grant.
type TokenSet struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int    `json:"expiresIn,omitempty"` // seconds, 0 when non-expiring
}

// Profile is the vendor-side identity fetched after authorization.
type Profile struct {
	ID         string
	Username   string
	Name       string
	Email      string
	AvatarURL  string
	ProfileURL string
}

// PlatformConnector owns the OAuth lifecycle and publishing for one vendor.
// Every operation other than IsConfigured and Platform fails fast with a
// domain.ConfigError when the vendor credentials are absent.
type PlatformConnector interface {
	// Platform returns the vendor this connector serves.
	Platform() domain.Platform

	// IsConfigured reports whether the client id/secret pair is present.
	IsConfigured() bool

	// GetAuthorizationURL builds the consent URL and persists the state binding.
	// An empty callbackURL uses the configured redirect URI.
	GetAuthorizationURL(ctx context.Context, userID, callbackURL string) (*AuthorizationURL, error)

	// ExchangeCodeForToken verifies state, exchanges the code, fetches the
	// profile and persists the connection.
	ExchangeCodeForToken(ctx context.Context, userID, code, state string) (*TokenSet, error)

	// GetClient returns a usable access token, refreshing inside the buffer window.
	GetClient(ctx context.Context, userID string) (string, error)

	// RefreshAccessToken performs the refresh grant and persists the result.
	RefreshAccessToken(ctx context.Context, userID string) (string, error)

	// FetchProfile performs a live profile call with the stored token.
	FetchProfile(ctx context.Context, userID string) (*Profile, error)

	// Publish posts content on behalf of the user.
	Publish(ctx context.Context, userID string, req *domain.PublishRequest) (*domain.PublishResult, error)

	// Disconnect clears the stored connection for this platform only.
	Disconnect(ctx context.Context, userID string) error
}

// ConnectorRegistry resolves connectors by platform.
type ConnectorRegistry interface {
	// Get returns the connector for the platform or domain.ErrUnsupportedPlatform.
	Get(platform domain.Platform) (PlatformConnector, error)

	// List returns all registered connectors in platform order.
	List() []PlatformConnector
}
