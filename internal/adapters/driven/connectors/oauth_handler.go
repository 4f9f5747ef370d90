package connectors

import (
	"context"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

// OAuthHandler supplies the vendor-specific parts of the OAuth lifecycle.
// Base drives the flow; each platform package implements this interface
// and may implement the optional hooks below.
type OAuthHandler interface {
	// AccountProfile fetches the account identity for an access token.
	AccountProfile(ctx context.Context, accessToken string) (*driven.Profile, error)
}

// CodeExchanger replaces the standard authorization code grant, for
// vendors with non-standard parameter names or a follow-up exchange.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*oauth2.Token, error)
}

// TokenRefresher replaces the standard refresh grant.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, conn *domain.PlatformConnection) (*oauth2.Token, error)
}

// ConnectionEnricher attaches platform data, such as Facebook pages, to a
// new connection before it is saved.
type ConnectionEnricher interface {
	Enrich(ctx context.Context, userID string, conn *domain.PlatformConnection) error
}

// AuthURLBuilder constructs the consent URL for vendors whose parameters
// differ from RFC 6749, such as TikTok's client_key.
type AuthURLBuilder interface {
	BuildAuthURL(redirectURI, state, codeChallenge string) string
}

// RedirectValidator rejects callback URLs the vendor app does not allow.
type RedirectValidator interface {
	ValidateRedirectURI(redirectURI string) error
}

// OAuthDefaults contains a provider's default OAuth configuration.
type OAuthDefaults struct {
	// AuthURL is the OAuth authorization endpoint.
	AuthURL string

	// TokenURL is the OAuth token exchange endpoint.
	TokenURL string

	// Scopes are requested on every authorization.
	Scopes []string

	// AuthStyle selects how client credentials are sent to TokenURL.
	AuthStyle oauth2.AuthStyle

	// PKCE enables an S256 code challenge.
	PKCE bool

	// AuthParams are extra authorization URL parameters.
	AuthParams url.Values
}

// Endpoint converts the defaults into an oauth2 endpoint.
func (d OAuthDefaults) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   d.AuthURL,
		TokenURL:  d.TokenURL,
		AuthStyle: d.AuthStyle,
	}
}

func (d OAuthDefaults) authOptions() []oauth2.AuthCodeOption {
	var opts []oauth2.AuthCodeOption
	for k, vs := range d.AuthParams {
		for _, v := range vs {
			opts = append(opts, oauth2.SetAuthURLParam(k, v))
		}
	}
	return opts
}
