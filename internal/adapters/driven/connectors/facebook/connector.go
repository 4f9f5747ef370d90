// Package facebook connects Facebook users and their Pages through the
// Graph API and publishes feed and photo posts.
package facebook

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors"
	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

// Scopes requested on authorization.
var Scopes = []string{"pages_manage_posts", "pages_read_engagement", "pages_show_list", "public_profile", "email"}

// Config holds the Facebook app credentials and endpoint overrides.
type Config struct {
	connectors.Credentials
	AuthURL      string
	TokenURL     string
	GraphBaseURL string
}

func (cfg *Config) setDefaults() {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.GraphBaseURL == "" {
		cfg.GraphBaseURL = DefaultGraphBaseURL
	}
}

// Ensure Connector implements the interface.
var _ driven.PlatformConnector = (*Connector)(nil)

// Connector serves Facebook.
type Connector struct {
	*connectors.Base
	graph *Graph
}

// New creates a Facebook connector.
func New(cfg Config, deps connectors.Deps) *Connector {
	cfg.setDefaults()
	api := deps.NewAPIClient(domain.PlatformFacebook, cfg.GraphBaseURL, Messages)
	c := &Connector{graph: NewGraph(api, cfg.ClientID, cfg.ClientSecret)}
	c.Base = connectors.NewBase(deps.BaseConfig(domain.PlatformFacebook, cfg.Credentials, connectors.OAuthDefaults{
		AuthURL:   cfg.AuthURL,
		TokenURL:  cfg.TokenURL,
		Scopes:    Scopes,
		AuthStyle: oauth2.AuthStyleInParams,
	}, api), c)
	return c
}

// AccountProfile fetches the Facebook user.
func (c *Connector) AccountProfile(ctx context.Context, accessToken string) (*driven.Profile, error) {
	return c.graph.Me(ctx, accessToken)
}

// ExchangeCode trades the code for a short-lived token, then upgrades it.
func (c *Connector) ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*oauth2.Token, error) {
	short, err := c.StandardExchange(ctx, code, redirectURI, verifier)
	if err != nil {
		return nil, err
	}
	return c.graph.ExchangeLongLived(ctx, short.AccessToken)
}

// RefreshToken renews the long-lived token with itself.
func (c *Connector) RefreshToken(ctx context.Context, conn *domain.PlatformConnection) (*oauth2.Token, error) {
	return c.graph.ExchangeLongLived(ctx, conn.AccessToken)
}

// Enrich stores the managed pages and their tokens on the connection.
func (c *Connector) Enrich(ctx context.Context, userID string, conn *domain.PlatformConnection) error {
	pages, err := c.graph.Pages(ctx, conn.AccessToken)
	if err != nil {
		return err
	}
	conn.Pages = conn.Pages[:0]
	for _, p := range pages {
		conn.Pages = append(conn.Pages, p.FacebookPage)
	}
	return nil
}

// Publish posts to the user feed or, with PageID, as the page using the
// page token. Images go to the photos edge instead of the feed.
func (c *Connector) Publish(ctx context.Context, userID string, req *domain.PublishRequest) (*domain.PublishResult, error) {
	if err := c.RequireConfigured(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: publish request is required", domain.ErrInvalidInput)
	}
	image := req.MediaMode == domain.MediaImage || req.ImageURL != ""
	if image && req.ImageURL == "" {
		return nil, fmt.Errorf("%w: Facebook image posts need a public image url", domain.ErrInvalidInput)
	}
	if !image && strings.TrimSpace(req.Text) == "" && req.LinkURL == "" {
		return nil, fmt.Errorf("%w: text or link is required", domain.ErrInvalidInput)
	}

	return connectors.WithAuthRetry(ctx, c.Base, userID, func(ctx context.Context, userToken string) (*domain.PublishResult, error) {
		target, token := "me", userToken
		if req.PageID != "" {
			conn, err := c.Connection(ctx, userID)
			if err != nil {
				return nil, err
			}
			page, ok := conn.Page(req.PageID)
			if !ok {
				return nil, fmt.Errorf("%w: %s", domain.ErrNoPage, req.PageID)
			}
			target = page.ID
			if page.AccessToken != "" {
				token = page.AccessToken
			}
		}

		if image {
			var out struct {
				ID     string `json:"id"`
				PostID string `json:"post_id"`
			}
			form := url.Values{"url": {req.ImageURL}, "caption": {req.Text}}
			if err := c.graph.Post(ctx, token, "/"+target+"/photos", form, &out); err != nil {
				return nil, err
			}
			link := out.PostID
			if link == "" {
				link = out.ID
			}
			return &domain.PublishResult{
				Platform: domain.PlatformFacebook,
				ID:       out.ID,
				URL:      domain.StringPtr(permalink(link)),
				Text:     req.Text,
				Caption:  req.Text,
			}, nil
		}

		form := url.Values{"message": {req.Text}}
		if req.LinkURL != "" {
			form.Set("link", req.LinkURL)
		}
		var out struct {
			ID string `json:"id"`
		}
		if err := c.graph.Post(ctx, token, "/"+target+"/feed", form, &out); err != nil {
			return nil, err
		}
		return &domain.PublishResult{
			Platform: domain.PlatformFacebook,
			ID:       out.ID,
			URL:      domain.StringPtr(permalink(out.ID)),
			Text:     req.Text,
		}, nil
	})
}

func permalink(id string) string {
	if id == "" {
		return ""
	}
	return "https://www.facebook.com/" + id
}
