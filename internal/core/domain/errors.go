package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotConfigured indicates the vendor client credentials are absent
	ErrNotConfigured = errors.New("platform not configured")

	// ErrUnsupportedPlatform indicates no connector is registered for the platform
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrInvalidState indicates the OAuth state is missing, mismatched, consumed or expired
	ErrInvalidState = errors.New("invalid or expired oauth state")

	// ErrNotConnected indicates the user has no connection for the platform
	ErrNotConnected = errors.New("account not connected")

	// ErrReconnectRequired indicates the stored token is expired and cannot be refreshed
	ErrReconnectRequired = errors.New("reconnect required")

	// ErrTextTooLong indicates the post text exceeds the platform limit
	ErrTextTooLong = errors.New("text exceeds platform limit")

	// ErrCircuitOpen indicates the circuit breaker is rejecting calls
	ErrCircuitOpen = errors.New("service unavailable: circuit open")

	// ErrNoPage indicates the requested Facebook page is not linked to the connection
	ErrNoPage = errors.New("facebook page not found")

	// ErrNoInstagramAccount indicates no Instagram business account is reachable
	ErrNoInstagramAccount = errors.New("no instagram business account linked")

	// ErrRefreshInProgress indicates another instance holds the refresh lock
	ErrRefreshInProgress = errors.New("token refresh in progress")
)

// ConfigError reports missing vendor credentials for a platform.
type ConfigError struct {
	Platform Platform
	Missing  []string
}

func (e *ConfigError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("%s oauth not configured", e.Platform)
	}
	return fmt.Sprintf("%s oauth not configured: missing %s", e.Platform, strings.Join(e.Missing, ", "))
}

func (e *ConfigError) Unwrap() error { return ErrNotConfigured }

// VendorError is a normalized non-2xx response from a platform API.
// Message is safe to show to users; Body keeps the raw payload as metadata.
type VendorError struct {
	Platform   Platform
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
	Body       string
}

func (e *VendorError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Platform.DisplayName(), msg)
}

// Unwrap maps authentication failures onto ErrUnauthorized.
func (e *VendorError) Unwrap() error {
	if e.StatusCode == 401 {
		return ErrUnauthorized
	}
	return nil
}

// IsRateLimited reports whether the vendor answered 429.
func (e *VendorError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsClientError reports a 4xx rejection other than rate limiting.
func (e *VendorError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 429
}

// IsServerError reports a 5xx failure.
func (e *VendorError) IsServerError() bool {
	return e.StatusCode >= 500
}

// DefaultRetryAfter is used when a 429 carries no Retry-After header.
const DefaultRetryAfter = 60 * time.Second

// RateLimitError is surfaced once rate limit retries are exhausted.
type RateLimitError struct {
	Platform   Platform
	RetryAfter time.Duration
	Cause      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded, try again after %d seconds",
		e.Platform.DisplayName(), e.RetryAfterSeconds())
}

func (e *RateLimitError) Unwrap() error { return e.Cause }

// RetryAfterSeconds returns the delay rounded up to whole seconds.
func (e *RateLimitError) RetryAfterSeconds() int {
	d := e.RetryAfter
	if d <= 0 {
		d = DefaultRetryAfter
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// ReconnectError carries the platform whose connection has gone stale.
type ReconnectError struct {
	Platform Platform
	Reason   string
}

func (e *ReconnectError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s token expired, please reconnect your %s account", e.Platform, e.Platform.DisplayName())
	}
	return fmt.Sprintf("%s: %s, please reconnect your %s account", e.Platform, e.Reason, e.Platform.DisplayName())
}

func (e *ReconnectError) Unwrap() error { return ErrReconnectRequired }
