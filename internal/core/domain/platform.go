package domain

import (
	"fmt"
	"strings"
)

// Platform identifies a social network the user can link.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
)

// AllPlatforms returns every supported platform in display order.
func AllPlatforms() []Platform {
	return []Platform{
		PlatformTwitter,
		PlatformLinkedIn,
		PlatformFacebook,
		PlatformInstagram,
		PlatformTikTok,
		PlatformYouTube,
	}
}

// ParsePlatform validates a platform name. "x" is accepted as Twitter.
func ParsePlatform(s string) (Platform, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "x" {
		return PlatformTwitter, nil
	}
	for _, p := range AllPlatforms() {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s)
}

// DisplayName returns the human readable vendor name.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformTwitter:
		return "Twitter"
	case PlatformLinkedIn:
		return "LinkedIn"
	case PlatformFacebook:
		return "Facebook"
	case PlatformInstagram:
		return "Instagram"
	case PlatformTikTok:
		return "TikTok"
	case PlatformYouTube:
		return "YouTube"
	default:
		return string(p)
	}
}

// IsVideoPlatform reports whether publishing goes through /upload.
func (p Platform) IsVideoPlatform() bool {
	return p == PlatformTikTok || p == PlatformYouTube
}
