// Package instagram publishes to Instagram Business accounts linked to
// Facebook Pages, using the Facebook app and the Graph API.
package instagram

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors/facebook"
	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
	"github.com/clickstudio/connect-core/internal/resilience"
)

// DefaultContainerDelay is the wait between creating and publishing a
// media container, needed for the container to become visible.
const DefaultContainerDelay = 2 * time.Second

// Scopes requested on authorization.
var Scopes = []string{
	"instagram_basic",
	"instagram_content_publish",
	"pages_show_list",
	"pages_read_engagement",
	"business_management",
}

// Config holds the Facebook app credentials used for Instagram.
type Config struct {
	connectors.Credentials
	AuthURL        string
	TokenURL       string
	GraphBaseURL   string
	ContainerDelay time.Duration // default: 2s

	// Sleep waits between container steps. Defaults to resilience.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Ensure Connector implements the interface.
var _ driven.PlatformConnector = (*Connector)(nil)

// Connector serves Instagram.
type Connector struct {
	*connectors.Base
	graph *facebook.Graph
	delay time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Instagram connector.
func New(cfg Config, deps connectors.Deps) *Connector {
	if cfg.AuthURL == "" {
		cfg.AuthURL = facebook.DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = facebook.DefaultTokenURL
	}
	if cfg.GraphBaseURL == "" {
		cfg.GraphBaseURL = facebook.DefaultGraphBaseURL
	}
	if cfg.ContainerDelay <= 0 {
		cfg.ContainerDelay = DefaultContainerDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = resilience.Sleep
	}

	api := deps.NewAPIClient(domain.PlatformInstagram, cfg.GraphBaseURL, facebook.Messages)
	c := &Connector{
		graph: facebook.NewGraph(api, cfg.ClientID, cfg.ClientSecret),
		delay: cfg.ContainerDelay,
		sleep: cfg.Sleep,
	}
	c.Base = connectors.NewBase(deps.BaseConfig(domain.PlatformInstagram, cfg.Credentials, connectors.OAuthDefaults{
		AuthURL:   cfg.AuthURL,
		TokenURL:  cfg.TokenURL,
		Scopes:    Scopes,
		AuthStyle: oauth2.AuthStyleInParams,
	}, api), c)
	return c
}

// AccountProfile fetches the Facebook user that owns the pages.
func (c *Connector) AccountProfile(ctx context.Context, accessToken string) (*driven.Profile, error) {
	return c.graph.Me(ctx, accessToken)
}

// ExchangeCode trades the code for a long-lived Facebook token.
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

// Enrich collects the Instagram Business accounts linked to the user's
// pages. Instagram requires a connected Facebook account, and a user with
// no linked business account cannot connect.
func (c *Connector) Enrich(ctx context.Context, userID string, conn *domain.PlatformConnection) error {
	if _, err := c.ConnectionFor(ctx, userID, domain.PlatformFacebook); err != nil {
		return err
	}
	pages, err := c.graph.Pages(ctx, conn.AccessToken)
	if err != nil {
		return err
	}
	conn.Accounts = conn.Accounts[:0]
	for _, p := range pages {
		if p.InstagramAccountID == "" {
			continue
		}
		conn.Accounts = append(conn.Accounts, domain.InstagramAccount{
			ID:              p.InstagramAccountID,
			Username:        p.InstagramUsername,
			PageID:          p.ID,
			PageName:        p.Name,
			PageAccessToken: p.AccessToken,
		})
	}
	if len(conn.Accounts) == 0 {
		return domain.ErrNoInstagramAccount
	}
	first := conn.Accounts[0]
	conn.PlatformUsername = first.Username
	if first.Username != "" {
		conn.ProfileURL = "https://www.instagram.com/" + first.Username
	}
	return nil
}

// Publish creates a media container, waits, then publishes it. Each step
// is retried on its own by the API client.
func (c *Connector) Publish(ctx context.Context, userID string, req *domain.PublishRequest) (*domain.PublishResult, error) {
	if err := c.RequireConfigured(); err != nil {
		return nil, err
	}
	if req == nil || req.ImageURL == "" {
		return nil, fmt.Errorf("%w: Instagram posts need a public image url", domain.ErrInvalidInput)
	}
	if _, err := c.ConnectionFor(ctx, userID, domain.PlatformFacebook); err != nil {
		return nil, err
	}

	return connectors.WithAuthRetry(ctx, c.Base, userID, func(ctx context.Context, userToken string) (*domain.PublishResult, error) {
		conn, err := c.Connection(ctx, userID)
		if err != nil {
			return nil, err
		}
		account, ok := conn.Account(req.InstagramAccountID)
		if !ok {
			return nil, domain.ErrNoInstagramAccount
		}
		token := account.PageAccessToken
		if token == "" {
			token = userToken
		}

		var container struct {
			ID string `json:"id"`
		}
		form := url.Values{"image_url": {req.ImageURL}, "caption": {req.Text}}
		if err := c.graph.Post(ctx, token, "/"+account.ID+"/media", form, &container); err != nil {
			return nil, fmt.Errorf("create media container: %w", err)
		}
		if container.ID == "" {
			return nil, fmt.Errorf("create media container: empty creation id")
		}

		if err := c.sleep(ctx, c.delay); err != nil {
			return nil, err
		}

		var published struct {
			ID string `json:"id"`
		}
		form = url.Values{"creation_id": {container.ID}}
		if err := c.graph.Post(ctx, token, "/"+account.ID+"/media_publish", form, &published); err != nil {
			return nil, fmt.Errorf("publish media container: %w", err)
		}

		return &domain.PublishResult{
			Platform: domain.PlatformInstagram,
			ID:       published.ID,
			URL:      c.permalink(ctx, token, published.ID),
			Caption:  req.Text,
		}, nil
	})
}

// permalink looks up the post URL. Failure leaves the URL empty.
func (c *Connector) permalink(ctx context.Context, token, mediaID string) *string {
	if mediaID == "" {
		return nil
	}
	var out struct {
		Permalink string `json:"permalink"`
	}
	if err := c.graph.Get(ctx, token, "/"+mediaID, url.Values{"fields": {"permalink"}}, &out); err != nil {
		c.Logger().Debug("permalink lookup failed", "media_id", mediaID, "error", err)
		return nil
	}
	return domain.StringPtr(out.Permalink)
}
