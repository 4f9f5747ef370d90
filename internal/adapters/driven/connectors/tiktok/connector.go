// Package tiktok connects TikTok creators through the v2 Login Kit and
// initiates Content Posting API video publishes.
package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors"
	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

const (
	DefaultAuthURL    = "https://www.tiktok.com/v2/auth/authorize/"
	DefaultAPIBaseURL = "https://open.tiktokapis.com"

	tokenPath      = "/v2/oauth/token/"
	defaultPrivacy = "PUBLIC_TO_EVERYONE"
	maxTitleLength = 2200
)

// Scopes requested on authorization. TikTok separates scopes with commas.
var Scopes = []string{"user.info.basic", "video.upload", "video.publish"}

var messages = connectors.OAuthErrorMessages.Merge(connectors.ErrorMessages{
	"access_token_invalid":          "TikTok access token is invalid or expired",
	"scope_not_authorized":          "the TikTok account did not grant the required scope",
	"rate_limit_exceeded":           "TikTok rate limit exceeded",
	"spam_risk_too_many_posts":      "TikTok daily post limit reached",
	"url_ownership_unverified":      "the video URL domain is not verified with TikTok",
	"privacy_level_option_mismatch": "privacy level is not allowed for this TikTok account",
})

// Config holds the TikTok client key and secret. ClientID carries the client key.
type Config struct {
	connectors.Credentials
	AuthURL    string
	APIBaseURL string
}

// Ensure Connector implements the interface.
var _ driven.PlatformConnector = (*Connector)(nil)

// Connector serves TikTok.
type Connector struct {
	*connectors.Base
	authURL string
	scopes  []string
}

// New creates a TikTok connector.
func New(cfg Config, deps connectors.Deps) *Connector {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}

	api := deps.NewAPIClient(domain.PlatformTikTok, cfg.APIBaseURL, messages)
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = Scopes
	}
	c := &Connector{authURL: cfg.AuthURL, scopes: scopes}
	c.Base = connectors.NewBase(deps.BaseConfig(domain.PlatformTikTok, cfg.Credentials, connectors.OAuthDefaults{
		AuthURL:  cfg.AuthURL,
		TokenURL: strings.TrimRight(cfg.APIBaseURL, "/") + tokenPath,
		Scopes:   Scopes,
		PKCE:     true,
	}, api), c)
	return c
}

// BuildAuthURL uses client_key in place of client_id.
func (c *Connector) BuildAuthURL(redirectURI, state, codeChallenge string) string {
	params := url.Values{
		"client_key":    {c.ClientID()},
		"response_type": {"code"},
		"scope":         {strings.Join(c.scopes, ",")},
		"redirect_uri":  {redirectURI},
		"state":         {state},
	}
	if codeChallenge != "" {
		params.Set("code_challenge", codeChallenge)
		params.Set("code_challenge_method", "S256")
	}
	return c.authURL + "?" + params.Encode()
}

// ExchangeCode performs the authorization code grant with client_key.
func (c *Connector) ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*oauth2.Token, error) {
	form := url.Values{
		"client_key":    {c.ClientID()},
		"client_secret": {c.ClientSecret()},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {redirectURI},
	}
	if verifier != "" {
		form.Set("code_verifier", verifier)
	}
	return c.token(ctx, form)
}

// RefreshToken performs the refresh grant with client_key.
func (c *Connector) RefreshToken(ctx context.Context, conn *domain.PlatformConnection) (*oauth2.Token, error) {
	if conn.RefreshToken == "" {
		return nil, &domain.ReconnectError{Platform: domain.PlatformTikTok, Reason: "no refresh token available"}
	}
	return c.token(ctx, url.Values{
		"client_key":    {c.ClientID()},
		"client_secret": {c.ClientSecret()},
		"grant_type":    {"refresh_token"},
		"refresh_token": {conn.RefreshToken},
	})
}

// tokenResponse accepts both the flat and the data-wrapped token shapes.
type tokenResponse struct {
	AccessToken      string          `json:"access_token"`
	RefreshToken     string          `json:"refresh_token"`
	ExpiresIn        int64           `json:"expires_in"`
	RefreshExpiresIn int64           `json:"refresh_expires_in"`
	Scope            string          `json:"scope"`
	TokenType        string          `json:"token_type"`
	OpenID           string          `json:"open_id"`
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// errorCode returns the OAuth error code. Object-shaped errors carry
// "ok" on success and are ignored here.
func (t tokenResponse) errorCode() string {
	var code string
	if json.Unmarshal(t.Error, &code) != nil {
		return ""
	}
	return code
}

func (c *Connector) token(ctx context.Context, form url.Values) (*oauth2.Token, error) {
	resp, err := c.API().Do(ctx, connectors.Request{
		Method: http.MethodPost,
		Path:   tokenPath,
		Form:   form,
	})
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Data *tokenResponse `json:"data"`
		tokenResponse
	}
	if err := json.Unmarshal(resp.Body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	tr := wrapped.tokenResponse
	if wrapped.Data != nil && wrapped.Data.AccessToken != "" {
		tr = *wrapped.Data
	}
	if code := tr.errorCode(); code != "" {
		msg := messages[code]
		if msg == "" {
			msg = tr.ErrorDescription
		}
		return nil, &domain.VendorError{
			Platform:   domain.PlatformTikTok,
			StatusCode: http.StatusBadRequest,
			Code:       code,
			Message:    msg,
		}
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response is missing access_token")
	}

	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		ExpiresIn:    tr.ExpiresIn,
	}
	return tok.WithExtra(map[string]any{
		"expires_in":         float64(tr.ExpiresIn),
		"refresh_expires_in": float64(tr.RefreshExpiresIn),
		"scope":              tr.Scope,
		"open_id":            tr.OpenID,
	}), nil
}

// AccountProfile fetches the creator profile.
func (c *Connector) AccountProfile(ctx context.Context, accessToken string) (*driven.Profile, error) {
	var out struct {
		Data struct {
			User struct {
				OpenID          string `json:"open_id"`
				DisplayName     string `json:"display_name"`
				AvatarURL       string `json:"avatar_url"`
				ProfileDeepLink string `json:"profile_deep_link"`
			} `json:"user"`
		} `json:"data"`
	}
	err := c.API().DoJSON(ctx, connectors.Request{
		Path:  "/v2/user/info/",
		Query: url.Values{"fields": {"open_id,display_name,avatar_url,profile_deep_link"}},
		Token: accessToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	u := out.Data.User
	return &driven.Profile{
		ID:         u.OpenID,
		Username:   u.DisplayName,
		Name:       u.DisplayName,
		AvatarURL:  u.AvatarURL,
		ProfileURL: u.ProfileDeepLink,
	}, nil
}

// Publish initiates a pull-from-URL video post and returns the publish id.
// TikTok processes the video asynchronously.
func (c *Connector) Publish(ctx context.Context, userID string, req *domain.PublishRequest) (*domain.PublishResult, error) {
	if err := c.RequireConfigured(); err != nil {
		return nil, err
	}
	if req == nil || req.VideoURL == "" {
		return nil, fmt.Errorf("%w: TikTok posts need a video url", domain.ErrInvalidInput)
	}
	title := req.Title
	if title == "" {
		title = req.Text
	}
	if r := []rune(title); len(r) > maxTitleLength {
		title = string(r[:maxTitleLength])
	}
	privacy := req.Privacy
	if privacy == "" {
		privacy = defaultPrivacy
	}

	return connectors.WithAuthRetry(ctx, c.Base, userID, func(ctx context.Context, token string) (*domain.PublishResult, error) {
		var out struct {
			Data struct {
				PublishID string `json:"publish_id"`
			} `json:"data"`
		}
		err := c.API().DoJSON(ctx, connectors.Request{
			Method: http.MethodPost,
			Path:   "/v2/post/publish/video/init/",
			Token:  token,
			JSON: map[string]any{
				"post_info": map[string]any{
					"title":         title,
					"privacy_level": privacy,
				},
				"source_info": map[string]string{
					"source":    "PULL_FROM_URL",
					"video_url": req.VideoURL,
				},
			},
		}, &out)
		if err != nil {
			return nil, err
		}
		return &domain.PublishResult{
			Platform: domain.PlatformTikTok,
			ID:       out.Data.PublishID,
			Caption:  title,
		}, nil
	})
}
