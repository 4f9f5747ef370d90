// Package twitter connects X (Twitter) accounts through OAuth 2.0 with PKCE
// and publishes posts through the v2 API.
package twitter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/oauth2"

	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors"
	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

const (
	// MaxTextLength is the post limit. Longer text is rejected, not truncated.
	MaxTextLength = 280

	DefaultAuthURL    = "https://twitter.com/i/oauth2/authorize"
	DefaultTokenURL   = "https://api.twitter.com/2/oauth2/token"
	DefaultAPIBaseURL = "https://api.twitter.com"
)

// Scopes requested on authorization.
var Scopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}

var messages = connectors.OAuthErrorMessages.Merge(connectors.ErrorMessages{
	"duplicate-content": "you already posted this text",
})

// Config holds the X app credentials and endpoint overrides.
type Config struct {
	connectors.Credentials
	AuthURL    string
	TokenURL   string
	APIBaseURL string
}

// Ensure Connector implements the interface.
var _ driven.PlatformConnector = (*Connector)(nil)

// Connector serves X (Twitter).
type Connector struct {
	*connectors.Base
}

// New creates an X connector.
func New(cfg Config, deps connectors.Deps) *Connector {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}

	api := deps.NewAPIClient(domain.PlatformTwitter, cfg.APIBaseURL, messages)
	c := &Connector{}
	c.Base = connectors.NewBase(deps.BaseConfig(domain.PlatformTwitter, cfg.Credentials, connectors.OAuthDefaults{
		AuthURL:   cfg.AuthURL,
		TokenURL:  cfg.TokenURL,
		Scopes:    Scopes,
		AuthStyle: oauth2.AuthStyleInHeader,
		PKCE:      true,
	}, api), c)
	return c
}

// AccountProfile fetches the authenticated user.
func (c *Connector) AccountProfile(ctx context.Context, accessToken string) (*driven.Profile, error) {
	var out struct {
		Data struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Username        string `json:"username"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"data"`
	}
	err := c.API().DoJSON(ctx, connectors.Request{
		Path:  "/2/users/me",
		Query: map[string][]string{"user.fields": {"profile_image_url"}},
		Token: accessToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &driven.Profile{
		ID:         out.Data.ID,
		Username:   out.Data.Username,
		Name:       out.Data.Name,
		AvatarURL:  out.Data.ProfileImageURL,
		ProfileURL: "https://twitter.com/" + out.Data.Username,
	}, nil
}

// Publish posts a text tweet.
func (c *Connector) Publish(ctx context.Context, userID string, req *domain.PublishRequest) (*domain.PublishResult, error) {
	if err := c.RequireConfigured(); err != nil {
		return nil, err
	}
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: text is required", domain.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(req.Text); n > MaxTextLength {
		return nil, fmt.Errorf("%w: %d characters, X allows %d", domain.ErrTextTooLong, n, MaxTextLength)
	}

	return connectors.WithAuthRetry(ctx, c.Base, userID, func(ctx context.Context, token string) (*domain.PublishResult, error) {
		var out struct {
			Data struct {
				ID   string `json:"id"`
				Text string `json:"text"`
			} `json:"data"`
		}
		err := c.API().DoJSON(ctx, connectors.Request{
			Method: http.MethodPost,
			Path:   "/2/tweets",
			Token:  token,
			JSON:   map[string]string{"text": req.Text},
		}, &out)
		if err != nil {
			return nil, err
		}

		text := out.Data.Text
		if text == "" {
			text = req.Text
		}
		return &domain.PublishResult{
			Platform: domain.PlatformTwitter,
			ID:       out.Data.ID,
			URL:      domain.StringPtr(permalink(out.Data.ID)),
			Text:     text,
		}, nil
	})
}

func permalink(id string) string {
	if id == "" {
		return ""
	}
	return "https://twitter.com/i/web/status/" + id
}
