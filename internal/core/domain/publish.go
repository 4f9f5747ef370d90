package domain

import "strings"

// MediaMode selects how media is attached to a post.
type MediaMode string

const (
	MediaNone    MediaMode = "NONE"
	MediaArticle MediaMode = "ARTICLE"
	MediaImage   MediaMode = "IMAGE"
	MediaVideo   MediaMode = "VIDEO"
)

// ParseMediaMode normalizes a media mode, defaulting to NONE.
func ParseMediaMode(s string) MediaMode {
	switch MediaMode(strings.ToUpper(strings.TrimSpace(s))) {
	case MediaArticle:
		return MediaArticle
	case MediaImage:
		return MediaImage
	case MediaVideo:
		return MediaVideo
	default:
		return MediaNone
	}
}

// PublishRequest carries the content and per-platform options of a post.
type PublishRequest struct {
	Text      string    `json:"text"`
	MediaMode MediaMode `json:"mediaMode,omitempty"`

	// ARTICLE
	LinkURL   string `json:"linkUrl,omitempty"`
	LinkTitle string `json:"linkTitle,omitempty"`

	// IMAGE: either a public URL or raw bytes
	ImageURL  string `json:"imageUrl,omitempty"`
	ImageData []byte `json:"-"`

	// VIDEO
	VideoURL    string `json:"videoUrl,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Privacy     string `json:"privacy,omitempty"`

	// Facebook page to post as; empty posts to the user feed
	PageID string `json:"pageId,omitempty"`

	// Instagram business account; empty selects the first linked account
	InstagramAccountID string `json:"instagramAccountId,omitempty"`

	// Post text only when the LinkedIn image upload fails
	FallbackToTextOnImageError bool `json:"fallbackToTextOnImageError,omitempty"`
}

// HasImage reports whether the request carries image content.
func (r *PublishRequest) HasImage() bool {
	return r.ImageURL != "" || len(r.ImageData) > 0
}

// PublishResult is returned from a successful publish call.
type PublishResult struct {
	Platform Platform `json:"platform"`
	ID       string   `json:"id"`
	URL      *string  `json:"url"`
	Text     string   `json:"text,omitempty"`
	Caption  string   `json:"caption,omitempty"`

	// Set when an image upload failed and a text-only post was made instead
	FellBackToText bool `json:"fellBackToText,omitempty"`
}

// PlatformPublishOutcome is one entry of a multi-platform publish.
type PlatformPublishOutcome struct {
	Platform Platform       `json:"platform"`
	Success  bool           `json:"success"`
	Result   *PublishResult `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
