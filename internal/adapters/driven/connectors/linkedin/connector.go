// Package linkedin connects LinkedIn members and publishes UGC posts,
// including the register-then-upload image flow.
package linkedin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/oauth2"

	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors"
	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

const (
	// MaxCommentaryLength is the post limit. Longer text is truncated with "...".
	MaxCommentaryLength = 1300

	DefaultAuthURL    = "https://www.linkedin.com/oauth/v2/authorization"
	DefaultTokenURL   = "https://www.linkedin.com/oauth/v2/accessToken"
	DefaultAPIBaseURL = "https://api.linkedin.com"

	imageRecipe  = "urn:li:digitalmediaRecipe:feedshare-image"
	shareContent = "com.linkedin.ugc.ShareContent"
	uploadKey    = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"
	defaultTitle = "Shared via Click"
	restliHeader = "X-Restli-Protocol-Version"
)

// Scopes requested on authorization.
var Scopes = []string{"openid", "profile", "email", "w_member_social"}

var messages = connectors.OAuthErrorMessages.Merge(connectors.ErrorMessages{
	"redirect_uri_mismatch": "redirect URI does not match the one used to start the LinkedIn authorization",
	"invalid_grant":         "LinkedIn authorization code expired or was already used",
	"expired_token":         "LinkedIn access token has expired",
	"65600":                 "LinkedIn access token is invalid",
	"65601":                 "LinkedIn access token was revoked",
})

// Config holds the LinkedIn app credentials and endpoint overrides.
type Config struct {
	connectors.Credentials

	// AllowedRedirectURIs restricts callback URLs when non-empty.
	AllowedRedirectURIs []string

	AuthURL    string
	TokenURL   string
	APIBaseURL string
}

// Ensure Connector implements the interface.
var _ driven.PlatformConnector = (*Connector)(nil)

// Connector serves LinkedIn.
type Connector struct {
	*connectors.Base
	allowed []string
}

// New creates a LinkedIn connector.
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

	api := deps.NewAPIClient(domain.PlatformLinkedIn, cfg.APIBaseURL, messages)
	c := &Connector{allowed: cfg.AllowedRedirectURIs}
	c.Base = connectors.NewBase(deps.BaseConfig(domain.PlatformLinkedIn, cfg.Credentials, connectors.OAuthDefaults{
		AuthURL:   cfg.AuthURL,
		TokenURL:  cfg.TokenURL,
		Scopes:    Scopes,
		AuthStyle: oauth2.AuthStyleInParams,
	}, api), c)
	return c
}

// ValidateRedirectURI enforces the configured allow-list.
func (c *Connector) ValidateRedirectURI(redirectURI string) error {
	if len(c.allowed) == 0 || slices.Contains(c.allowed, redirectURI) {
		return nil
	}
	return fmt.Errorf("%w: redirect uri %q is not allowed for LinkedIn", domain.ErrInvalidInput, redirectURI)
}

// AccountProfile fetches the OpenID userinfo document.
func (c *Connector) AccountProfile(ctx context.Context, accessToken string) (*driven.Profile, error) {
	var out struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := c.API().DoJSON(ctx, connectors.Request{Path: "/v2/userinfo", Token: accessToken}, &out); err != nil {
		return nil, err
	}
	return &driven.Profile{
		ID:        out.Sub,
		Username:  out.Name,
		Name:      out.Name,
		Email:     out.Email,
		AvatarURL: out.Picture,
	}, nil
}

// TruncateCommentary caps text at MaxCommentaryLength runes, ending in "...".
func TruncateCommentary(text string) string {
	if utf8.RuneCountInString(text) <= MaxCommentaryLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxCommentaryLength-3]) + "..."
}

// Publish creates a UGC post. IMAGE requests register an upload, PUT the
// bytes and reference the resulting asset.
func (c *Connector) Publish(ctx context.Context, userID string, req *domain.PublishRequest) (*domain.PublishResult, error) {
	if err := c.RequireConfigured(); err != nil {
		return nil, err
	}
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: text is required", domain.ErrInvalidInput)
	}
	mode := req.MediaMode
	if mode == "" {
		mode = domain.MediaNone
	}
	switch mode {
	case domain.MediaNone:
	case domain.MediaArticle:
		if req.LinkURL == "" {
			return nil, fmt.Errorf("%w: article posts need a link url", domain.ErrInvalidInput)
		}
	case domain.MediaImage:
		if !req.HasImage() {
			return nil, fmt.Errorf("%w: image posts need an image", domain.ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: LinkedIn does not support media mode %s", domain.ErrInvalidInput, mode)
	}

	conn, err := c.Connection(ctx, userID)
	if err != nil {
		return nil, err
	}
	author := "urn:li:person:" + conn.PlatformUserID
	text := TruncateCommentary(req.Text)

	return connectors.WithAuthRetry(ctx, c.Base, userID, func(ctx context.Context, token string) (*domain.PublishResult, error) {
		var media []map[string]any
		fellBack := false

		switch mode {
		case domain.MediaArticle:
			title := req.LinkTitle
			if title == "" {
				title = defaultTitle
			}
			media = []map[string]any{{
				"status":      "READY",
				"originalUrl": req.LinkURL,
				"description": map[string]string{"text": truncateRunes(text, 200)},
				"title":       map[string]string{"text": title},
			}}
		case domain.MediaImage:
			asset, err := c.uploadImage(ctx, token, author, req)
			switch {
			case err == nil:
				entry := map[string]any{"status": "READY", "media": asset}
				if req.Title != "" {
					entry["title"] = map[string]string{"text": req.Title}
				}
				media = []map[string]any{entry}
			case req.FallbackToTextOnImageError && !errors.Is(err, domain.ErrUnauthorized):
				c.Logger().Warn("image upload failed, posting text only", "user_id", userID, "error", err)
				mode = domain.MediaNone
				fellBack = true
			default:
				return nil, fmt.Errorf("upload image: %w", err)
			}
		}

		content := map[string]any{
			"shareCommentary":    map[string]string{"text": text},
			"shareMediaCategory": string(mode),
		}
		if len(media) > 0 {
			content["media"] = media
		}
		body := map[string]any{
			"author":          author,
			"lifecycleState":  "PUBLISHED",
			"specificContent": map[string]any{shareContent: content},
			"visibility":      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
		}

		resp, err := c.API().Do(ctx, connectors.Request{
			Method: http.MethodPost,
			Path:   "/v2/ugcPosts",
			Token:  token,
			JSON:   body,
			Header: http.Header{restliHeader: {"2.0.0"}},
		})
		if err != nil {
			return nil, err
		}
		var out struct {
			ID string `json:"id"`
		}
		if err := resp.Decode(&out); err != nil {
			return nil, err
		}
		id := out.ID
		if id == "" {
			id = resp.Header.Get("X-RestLi-Id")
		}

		return &domain.PublishResult{
			Platform:       domain.PlatformLinkedIn,
			ID:             id,
			URL:            domain.StringPtr(permalink(id)),
			Text:           text,
			FellBackToText: fellBack,
		}, nil
	})
}

// uploadImage registers an asset, uploads the bytes and returns the asset URN.
func (c *Connector) uploadImage(ctx context.Context, token, owner string, req *domain.PublishRequest) (string, error) {
	data := req.ImageData
	if len(data) == 0 {
		resp, err := c.API().Do(ctx, connectors.Request{Path: req.ImageURL, Media: true, Header: http.Header{"Accept": {"image/*"}}})
		if err != nil {
			return "", fmt.Errorf("fetch image: %w", err)
		}
		data = resp.Body
	}

	var reg struct {
		Value struct {
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
			Asset string `json:"asset"`
		} `json:"value"`
	}
	err := c.API().DoJSON(ctx, connectors.Request{
		Method: http.MethodPost,
		Path:   "/v2/assets",
		Query:  map[string][]string{"action": {"registerUpload"}},
		Token:  token,
		Header: http.Header{restliHeader: {"2.0.0"}},
		JSON: map[string]any{
			"registerUploadRequest": map[string]any{
				"recipes": []string{imageRecipe},
				"owner":   owner,
				"serviceRelationships": []map[string]string{{
					"relationshipType": "OWNER",
					"identifier":       "urn:li:userGeneratedContent",
				}},
			},
		},
	}, &reg)
	if err != nil {
		return "", fmt.Errorf("register upload: %w", err)
	}
	uploadURL := reg.Value.UploadMechanism[uploadKey].UploadURL
	if uploadURL == "" || reg.Value.Asset == "" {
		return "", fmt.Errorf("register upload: response is missing upload url or asset")
	}

	_, err = c.API().Do(ctx, connectors.Request{
		Method:      http.MethodPut,
		Path:        uploadURL,
		Token:       token,
		Body:        data,
		ContentType: "application/octet-stream",
		Media:       true,
	})
	if err != nil {
		return "", fmt.Errorf("put image bytes: %w", err)
	}
	return reg.Value.Asset, nil
}

func permalink(id string) string {
	if id == "" {
		return ""
	}
	return "https://www.linkedin.com/feed/update/" + id
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
