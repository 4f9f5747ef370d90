package domain

import (
	"fmt"
	"time"
)

// DefaultRefreshBuffer is how long before expiry a token is proactively refreshed.
const DefaultRefreshBuffer = 5 * time.Minute

// PlatformConnection is the stored OAuth record for one (user, platform) pair.
type PlatformConnection struct {
	Connected bool `json:"connected"`

	// Token fields are never serialized to API responses; see ToSummary.
	AccessToken      string     `json:"access_token,omitempty"`
	RefreshToken     string     `json:"refresh_token,omitempty"`
	TokenType        string     `json:"token_type,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"` // nil means non-expiring
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
	Scope            string     `json:"scope,omitempty"`

	// Vendor-side identity
	PlatformUserID   string `json:"platform_user_id,omitempty"`
	PlatformUsername string `json:"platform_username,omitempty"`
	DisplayName      string `json:"display_name,omitempty"`
	Email            string `json:"email,omitempty"`
	AvatarURL        string `json:"avatar_url,omitempty"`
	ProfileURL       string `json:"profile_url,omitempty"`

	// Platform-specific sub-collections, each with its own token
	Pages    []FacebookPage     `json:"pages,omitempty"`
	Accounts []InstagramAccount `json:"accounts,omitempty"`

	// Exact redirect URI and state issuance time used for the authorization
	RedirectURI    string     `json:"redirect_uri,omitempty"`
	StateCreatedAt *time.Time `json:"state_created_at,omitempty"`

	ConnectedAt     time.Time  `json:"connected_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at,omitempty"`
}

// FacebookPage is a Page the user manages, with its own page access token.
type FacebookPage struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	AccessToken        string `json:"access_token,omitempty"`
	Category           string `json:"category,omitempty"`
	InstagramAccountID string `json:"instagram_account_id,omitempty"`
}

// InstagramAccount is an Instagram Business account linked to a Facebook Page.
type InstagramAccount struct {
	ID              string `json:"id"`
	Username        string `json:"username,omitempty"`
	PageID          string `json:"page_id"`
	PageName        string `json:"page_name,omitempty"`
	PageAccessToken string `json:"page_access_token,omitempty"`
}

// IsExpired checks if the access token has expired
func (c *PlatformConnection) IsExpired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(*c.ExpiresAt)
}

// NeedsRefresh reports whether now has reached expiresAt minus buffer.
// The boundary itself counts as needing a refresh.
func (c *PlatformConnection) NeedsRefresh(now time.Time, buffer time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Add(-buffer))
}

// HasRefreshToken reports whether a refresh grant is possible.
func (c *PlatformConnection) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// IsStale reports an expired token with no refresh path.
func (c *PlatformConnection) IsStale(now time.Time) bool {
	return c.IsExpired(now) && !c.HasRefreshToken()
}

// Validate enforces that a connected record carries an access token.
func (c *PlatformConnection) Validate() error {
	if c.Connected && c.AccessToken == "" {
		return fmt.Errorf("%w: connected record without access token", ErrInvalidInput)
	}
	return nil
}

// Page finds a linked Facebook page by id.
func (c *PlatformConnection) Page(id string) (*FacebookPage, bool) {
	for i := range c.Pages {
		if c.Pages[i].ID == id {
			return &c.Pages[i], true
		}
	}
	return nil, false
}

// Account finds a linked Instagram account by id. An empty id selects the first.
func (c *PlatformConnection) Account(id string) (*InstagramAccount, bool) {
	if len(c.Accounts) == 0 {
		return nil, false
	}
	if id == "" {
		return &c.Accounts[0], true
	}
	for i := range c.Accounts {
		if c.Accounts[i].ID == id {
			return &c.Accounts[i], true
		}
	}
	return nil, false
}

// ApplyTokens stores a refreshed token set in place. An empty refresh token keeps the old one.
func (c *PlatformConnection) ApplyTokens(u TokenUpdate) {
	c.AccessToken = u.AccessToken
	if u.RefreshToken != "" {
		c.RefreshToken = u.RefreshToken
	}
	c.ExpiresAt = u.ExpiresAt
	if u.RefreshExpiresAt != nil {
		c.RefreshExpiresAt = u.RefreshExpiresAt
	}
	if u.Scope != "" {
		c.Scope = u.Scope
	}
	refreshed := u.RefreshedAt
	c.LastRefreshedAt = &refreshed
	c.UpdatedAt = refreshed
}

// TokenUpdate is the set of fields written on token renewal.
type TokenUpdate struct {
	AccessToken      string
	RefreshToken     string // empty keeps the stored refresh token
	ExpiresAt        *time.Time
	RefreshExpiresAt *time.Time
	Scope            string
	RefreshedAt      time.Time
}

// ConnectionRef points at one stored connection.
type ConnectionRef struct {
	UserID    string     `json:"user_id"`
	Platform  Platform   `json:"platform"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ConnectionSummary provides a safe view without tokens
type ConnectionSummary struct {
	Platform    Platform           `json:"platform"`
	Connected   bool               `json:"connected"`
	Configured  bool               `json:"configured"`
	ConnectedAt *time.Time         `json:"connectedAt,omitempty"`
	Username    string             `json:"username,omitempty"`
	DisplayName string             `json:"displayName,omitempty"`
	AvatarURL   string             `json:"avatarUrl,omitempty"`
	ExpiresAt   *time.Time         `json:"expiresAt,omitempty"`
	Pages       []PageSummary      `json:"pages,omitempty"`
	Accounts    []InstagramSummary `json:"accounts,omitempty"`
}

// PageSummary is a token-free Facebook page view.
type PageSummary struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	InstagramAccountID string `json:"instagramAccountId,omitempty"`
}

// InstagramSummary is a token-free Instagram account view.
type InstagramSummary struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	PageID   string `json:"pageId"`
}

// ToSummary converts a connection to its token-free view. A nil connection is reported as disconnected.
func (c *PlatformConnection) ToSummary(platform Platform, configured bool) *ConnectionSummary {
	s := &ConnectionSummary{Platform: platform, Configured: configured}
	if c == nil || !c.Connected {
		return s
	}
	connectedAt := c.ConnectedAt
	s.Connected = true
	s.ConnectedAt = &connectedAt
	s.Username = c.PlatformUsername
	s.DisplayName = c.DisplayName
	s.AvatarURL = c.AvatarURL
	s.ExpiresAt = c.ExpiresAt
	for _, p := range c.Pages {
		s.Pages = append(s.Pages, PageSummary{ID: p.ID, Name: p.Name, InstagramAccountID: p.InstagramAccountID})
	}
	for _, a := range c.Accounts {
		s.Accounts = append(s.Accounts, InstagramSummary{ID: a.ID, Username: a.Username, PageID: a.PageID})
	}
	return s
}
