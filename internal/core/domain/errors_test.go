package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorsAreDistinct(t *testing.T) {
	allErrors := []error{
		ErrNotFound,
		ErrInvalidInput,
		ErrUnauthorized,
		ErrNotConfigured,
		ErrUnsupportedPlatform,
		ErrInvalidState,
		ErrNotConnected,
		ErrReconnectRequired,
		ErrTextTooLong,
		ErrCircuitOpen,
		ErrNoPage,
		ErrNoInstagramAccount,
		ErrRefreshInProgress,
	}

	for i, err1 := range allErrors {
		for j, err2 := range allErrors {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("errors should be distinct: %v and %v", err1, err2)
			}
		}
	}
}

func TestConfigError(t *testing.T) {
	err := fmt.Errorf("authorize: %w", &ConfigError{Platform: PlatformTikTok, Missing: []string{"TIKTOK_CLIENT_KEY"}})

	if !errors.Is(err, ErrNotConfigured) {
		t.Error("expected ConfigError to unwrap to ErrNotConfigured")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Platform != PlatformTikTok {
		t.Errorf("expected ConfigError for tiktok, got %v", err)
	}
}

func TestVendorError(t *testing.T) {
	tests := []struct {
		status       int
		unauthorized bool
		client       bool
		server       bool
		rateLimited  bool
	}{
		{401, true, true, false, false},
		{400, false, true, false, false},
		{429, false, false, false, true},
		{503, false, false, true, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := &VendorError{Platform: PlatformLinkedIn, StatusCode: tt.status, Message: "boom"}
			if got := errors.Is(err, ErrUnauthorized); got != tt.unauthorized {
				t.Errorf("Is(ErrUnauthorized) = %v, want %v", got, tt.unauthorized)
			}
			if got := err.IsClientError(); got != tt.client {
				t.Errorf("IsClientError() = %v, want %v", got, tt.client)
			}
			if got := err.IsServerError(); got != tt.server {
				t.Errorf("IsServerError() = %v, want %v", got, tt.server)
			}
			if got := err.IsRateLimited(); got != tt.rateLimited {
				t.Errorf("IsRateLimited() = %v, want %v", got, tt.rateLimited)
			}
		})
	}
}

func TestRateLimitError(t *testing.T) {
	err := &RateLimitError{Platform: PlatformFacebook, RetryAfter: 1500 * time.Millisecond}
	if err.RetryAfterSeconds() != 2 {
		t.Errorf("expected rounding up to 2, got %d", err.RetryAfterSeconds())
	}
	want := "Facebook rate limit exceeded, try again after 2 seconds"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}

	def := &RateLimitError{Platform: PlatformFacebook}
	if def.RetryAfterSeconds() != 60 {
		t.Errorf("expected default 60, got %d", def.RetryAfterSeconds())
	}
}

func TestReconnectError(t *testing.T) {
	err := &ReconnectError{Platform: PlatformLinkedIn}
	if !errors.Is(err, ErrReconnectRequired) {
		t.Error("expected ReconnectError to unwrap to ErrReconnectRequired")
	}
}
