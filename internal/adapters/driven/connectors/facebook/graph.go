package facebook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors"
	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

const (
	GraphVersion        = "v18.0"
	DefaultAuthURL      = "https://www.facebook.com/" + GraphVersion + "/dialog/oauth"
	DefaultTokenURL     = "https://graph.facebook.com/" + GraphVersion + "/oauth/access_token"
	DefaultGraphBaseURL = "https://graph.facebook.com/" + GraphVersion
)

// Messages maps Graph API error codes and types to user-facing text.
var Messages = connectors.OAuthErrorMessages.Merge(connectors.ErrorMessages{
	"190":            "Facebook session has expired or was revoked",
	"200":            "the app lacks permission for this action",
	"368":            "Facebook temporarily blocked this action",
	"4":              "Facebook application request limit reached",
	"17":             "Facebook user request limit reached",
	"32":             "Facebook page request limit reached",
	"OAuthException": "Facebook rejected the access token",
})

// Graph wraps the Graph API calls shared by the Facebook and Instagram connectors.
type Graph struct {
	api          *connectors.APIClient
	clientID     string
	clientSecret string
}

// NewGraph creates a Graph API helper.
func NewGraph(api *connectors.APIClient, clientID, clientSecret string) *Graph {
	return &Graph{api: api, clientID: clientID, clientSecret: clientSecret}
}

// ExchangeLongLived trades a token for a long-lived (about 60 day) token.
// Facebook has no refresh grant; re-running this exchange renews the token.
func (g *Graph) ExchangeLongLived(ctx context.Context, token string) (*oauth2.Token, error) {
	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	err := g.do(ctx, connectors.Request{
		Path: "/oauth/access_token",
		Query: url.Values{
			"grant_type":        {"fb_exchange_token"},
			"client_id":         {g.clientID},
			"client_secret":     {g.clientSecret},
			"fb_exchange_token": {token},
		},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("long-lived token exchange: %w", err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("long-lived token exchange: empty access token")
	}
	return &oauth2.Token{
		AccessToken: out.AccessToken,
		TokenType:   out.TokenType,
		ExpiresIn:   out.ExpiresIn,
	}, nil
}

// Me fetches the Facebook user behind a token.
func (g *Graph) Me(ctx context.Context, token string) (*driven.Profile, error) {
	var out struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	err := g.do(ctx, connectors.Request{
		Path:  "/me",
		Query: url.Values{"fields": {"id,name,email,picture"}},
		Token: token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &driven.Profile{
		ID:         out.ID,
		Username:   out.Name,
		Name:       out.Name,
		Email:      out.Email,
		AvatarURL:  out.Picture.Data.URL,
		ProfileURL: "https://www.facebook.com/" + out.ID,
	}, nil
}

// Page is a managed page with its linked Instagram account, if any.
type Page struct {
	domain.FacebookPage
	InstagramUsername string
}

// Pages lists the pages the user manages, with page tokens.
func (g *Graph) Pages(ctx context.Context, token string) ([]Page, error) {
	var out struct {
		Data []struct {
			ID                       string `json:"id"`
			Name                     string `json:"name"`
			AccessToken              string `json:"access_token"`
			Category                 string `json:"category"`
			InstagramBusinessAccount *struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"instagram_business_account"`
		} `json:"data"`
	}
	err := g.do(ctx, connectors.Request{
		Path:  "/me/accounts",
		Query: url.Values{"fields": {"id,name,access_token,category,instagram_business_account{id,username}"}},
		Token: token,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	pages := make([]Page, 0, len(out.Data))
	for _, p := range out.Data {
		page := Page{FacebookPage: domain.FacebookPage{
			ID:          p.ID,
			Name:        p.Name,
			AccessToken: p.AccessToken,
			Category:    p.Category,
		}}
		if ig := p.InstagramBusinessAccount; ig != nil {
			page.InstagramAccountID = ig.ID
			page.InstagramUsername = ig.Username
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// do runs a Graph call. Error 190 (expired or revoked session) arrives as a
// 400 and is reported as a 401 so the caller's refresh path applies.
func (g *Graph) do(ctx context.Context, req connectors.Request, out any) error {
	err := g.api.DoJSON(ctx, req, out)
	var ve *domain.VendorError
	if errors.As(err, &ve) && ve.Code == "190" {
		ve.StatusCode = http.StatusUnauthorized
	}
	return err
}

// Post sends a form-encoded POST to a Graph edge and returns the decoded body.
func (g *Graph) Post(ctx context.Context, token, path string, form url.Values, out any) error {
	return g.do(ctx, connectors.Request{
		Method: http.MethodPost,
		Path:   path,
		Token:  token,
		Form:   form,
	}, out)
}

// Get reads a Graph node.
func (g *Graph) Get(ctx context.Context, token, path string, query url.Values, out any) error {
	return g.do(ctx, connectors.Request{
		Path:  path,
		Query: query,
		Token: token,
	}, out)
}
