package driving

import (
	"context"
	"time"

	"github.com/clickstudio/connect-core/internal/core/domain"
)

// OAuthService exposes the per-platform connection lifecycle to route handlers.
type OAuthService interface {
	// Authorize starts an OAuth authorization flow and returns the consent URL.
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error)

	// Complete exchanges the code returned by the vendor and stores the connection.
	Complete(ctx context.Context, req CompleteRequest) (*domain.ConnectionSummary, error)

	// Status reports whether the user is connected to the platform.
	Status(ctx context.Context, userID string, platform domain.Platform) (*domain.ConnectionSummary, error)

	// Publish posts content to one platform.
	Publish(ctx context.Context, userID string, platform domain.Platform, req *domain.PublishRequest) (*domain.PublishResult, error)

	// Refresh forces a refresh grant.
	Refresh(ctx context.Context, userID string, platform domain.Platform) (*domain.ConnectionSummary, error)

	// Disconnect clears the platform connection.
	Disconnect(ctx context.Context, userID string, platform domain.Platform) error
}

// AuthorizeRequest represents a request to start an OAuth flow.
// @Description Request to start OAuth authorization flow
type AuthorizeRequest struct {
	UserID   string          `json:"-"`
	Platform domain.Platform `json:"platform" example:"linkedin"`

	// RedirectURI overrides the configured callback URL.
	RedirectURI string `json:"redirect_uri,omitempty" example:"https://app.example.com/oauth/linkedin/callback"`
}

// AuthorizeResponse contains the authorization URL and state.
// @Description Response containing the OAuth authorization URL
type AuthorizeResponse struct {
	URL       string    `json:"url" example:"https://www.linkedin.com/oauth/v2/authorization?client_id=..."`
	State     string    `json:"state" example:"Zk3c..."`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CompleteRequest carries the code/state pair forwarded by the frontend.
// @Description OAuth completion parameters
type CompleteRequest struct {
	UserID   string          `json:"-"`
	Platform domain.Platform `json:"-"`
	Code     string          `json:"code" example:"AQT..."`
	State    string          `json:"state" example:"Zk3c..."`
}

// OAuthError represents an OAuth-specific error.
type OAuthError struct {
	Code        string `json:"error" example:"invalid_state"`
	Description string `json:"error_description" example:"The state parameter is invalid or expired"`
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// Common OAuth errors
var (
	ErrOAuthInvalidState      = &OAuthError{Code: "invalid_state", Description: "The state parameter is invalid or expired, please restart the connection"}
	ErrOAuthNotConfigured     = &OAuthError{Code: "not_configured", Description: "The platform is not configured on this server"}
	ErrOAuthReconnectRequired = &OAuthError{Code: "reconnect_required", Description: "The connection has expired, please reconnect"}
	ErrOAuthMissingCode       = &OAuthError{Code: "missing_code", Description: "The authorization code is required"}
)
