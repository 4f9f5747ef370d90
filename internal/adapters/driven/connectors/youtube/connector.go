// Package youtube connects YouTube channels through Google OAuth and
// opens resumable upload sessions for videos.
package youtube

import (
	"context"
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
	DefaultAuthURL    = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultTokenURL   = "https://oauth2.googleapis.com/token"
	DefaultAPIBaseURL = "https://www.googleapis.com"

	defaultPrivacy  = "public"
	defaultCategory = "22" // People & Blogs
)

// Scopes requested on authorization.
var Scopes = []string{
	"https://www.googleapis.com/auth/youtube.upload",
	"https://www.googleapis.com/auth/youtube",
	"https://www.googleapis.com/auth/youtube.force-ssl",
}

var messages = connectors.OAuthErrorMessages.Merge(connectors.ErrorMessages{
	"invalid_grant":         "Google refresh token expired or was revoked",
	"quotaExceeded":         "YouTube API quota exceeded for today",
	"uploadLimitExceeded":   "YouTube upload limit reached for this channel",
	"youtubeSignupRequired": "the Google account has no YouTube channel",
	"forbidden":             "the channel does not allow this action",
	"401":                   "Google access token is invalid or expired",
})

// Config holds the Google OAuth client and endpoint overrides.
type Config struct {
	connectors.Credentials
	AuthURL    string
	TokenURL   string
	APIBaseURL string
}

// Ensure Connector implements the interface.
var _ driven.PlatformConnector = (*Connector)(nil)

// Connector serves YouTube.
type Connector struct {
	*connectors.Base
}

// New creates a YouTube connector.
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

	api := deps.NewAPIClient(domain.PlatformYouTube, cfg.APIBaseURL, messages)
	c := &Connector{}
	c.Base = connectors.NewBase(deps.BaseConfig(domain.PlatformYouTube, cfg.Credentials, connectors.OAuthDefaults{
		AuthURL:   cfg.AuthURL,
		TokenURL:  cfg.TokenURL,
		Scopes:    Scopes,
		AuthStyle: oauth2.AuthStyleInParams,
		// consent forces Google to issue a refresh token on every grant
		AuthParams: url.Values{
			"access_type": {"offline"},
			"prompt":      {"consent"},
		},
	}, api), c)
	return c
}

// AccountProfile fetches the channel owned by the token.
func (c *Connector) AccountProfile(ctx context.Context, accessToken string) (*driven.Profile, error) {
	var out struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title      string `json:"title"`
				CustomURL  string `json:"customUrl"`
				Thumbnails struct {
					Default struct {
						URL string `json:"url"`
					} `json:"default"`
				} `json:"thumbnails"`
			} `json:"snippet"`
		} `json:"items"`
	}
	err := c.API().DoJSON(ctx, connectors.Request{
		Path:  "/youtube/v3/channels",
		Query: url.Values{"part": {"snippet"}, "mine": {"true"}},
		Token: accessToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("%w: the Google account has no YouTube channel", domain.ErrNotFound)
	}

	ch := out.Items[0]
	profileURL := "https://www.youtube.com/channel/" + ch.ID
	username := ch.Snippet.Title
	if ch.Snippet.CustomURL != "" {
		username = ch.Snippet.CustomURL
		profileURL = "https://www.youtube.com/" + strings.TrimPrefix(ch.Snippet.CustomURL, "/")
	}
	return &driven.Profile{
		ID:         ch.ID,
		Username:   username,
		Name:       ch.Snippet.Title,
		AvatarURL:  ch.Snippet.Thumbnails.Default.URL,
		ProfileURL: profileURL,
	}, nil
}

// Publish opens a resumable upload session carrying the video metadata.
// The returned ID is the session location the video bytes must be sent to.
func (c *Connector) Publish(ctx context.Context, userID string, req *domain.PublishRequest) (*domain.PublishResult, error) {
	if err := c.RequireConfigured(); err != nil {
		return nil, err
	}
	if req == nil || strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: YouTube videos need a title", domain.ErrInvalidInput)
	}
	privacy := req.Privacy
	if privacy == "" {
		privacy = defaultPrivacy
	}
	description := req.Description
	if description == "" {
		description = req.Text
	}

	return connectors.WithAuthRetry(ctx, c.Base, userID, func(ctx context.Context, token string) (*domain.PublishResult, error) {
		resp, err := c.API().Do(ctx, connectors.Request{
			Method: http.MethodPost,
			Path:   "/upload/youtube/v3/videos",
			Query: url.Values{
				"uploadType": {"resumable"},
				"part":       {"snippet,status"},
			},
			Token:  token,
			Header: http.Header{"X-Upload-Content-Type": {"video/*"}},
			JSON: map[string]any{
				"snippet": map[string]any{
					"title":       req.Title,
					"description": description,
					"categoryId":  defaultCategory,
				},
				"status": map[string]any{
					"privacyStatus":           privacy,
					"selfDeclaredMadeForKids": false,
				},
			},
		})
		if err != nil {
			return nil, err
		}
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, fmt.Errorf("upload session response has no location")
		}
		return &domain.PublishResult{
			Platform: domain.PlatformYouTube,
			ID:       location,
			Text:     req.Title,
			Caption:  description,
		}, nil
	})
}
