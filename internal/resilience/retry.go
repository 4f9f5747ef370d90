// Package resilience wraps vendor calls with bounded retries and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"slices"
	"syscall"
	"time"

	"github.com/clickstudio/connect-core/internal/core/domain"
)

// Options configures Retry. Zero values mean no retries and no delay;
// use DefaultOptions for the standard policy.
type Options struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration // 0 disables the cap
	Factor       float64       // <= 0 means 2

	// RetryStatuses whitelists 4xx statuses that are safe to retry.
	RetryStatuses []int

	// MaxRetryAfter bounds how long a vendor Retry-After is honoured.
	// Longer delays are not waited on; the 429 is returned immediately.
	MaxRetryAfter time.Duration

	// OnRetry is called before each wait with the 1-based retry number.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

// DefaultOptions returns 3 retries, 1s initial delay, 10s cap, factor 2.
func DefaultOptions() Options {
	return Options{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		Factor:        2,
		MaxRetryAfter: time.Minute,
	}
}

// Backoff returns min(initial * factor^(attempt-1), max) for a 1-based attempt.
func Backoff(attempt int, initial, maxDelay time.Duration, factor float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if factor <= 0 {
		factor = 2
	}
	d := float64(initial) * math.Pow(factor, float64(attempt-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Retry calls fn at most MaxRetries+1 times. On exhaustion, or on a
// non-retryable error, the last error is returned unchanged.
func Retry[T any](ctx context.Context, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := max(opts.MaxRetries, 0)

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= maxRetries || ctx.Err() != nil {
			return zero, err
		}

		retryable, retryAfter := Classify(err, opts.RetryStatuses)
		if !retryable {
			return zero, err
		}

		delay := Backoff(attempt+1, opts.InitialDelay, opts.MaxDelay, opts.Factor)
		if retryAfter > 0 {
			if opts.MaxRetryAfter > 0 && retryAfter > opts.MaxRetryAfter {
				logger.Warn("retry-after exceeds limit, not retrying",
					"retry_after", retryAfter, "limit", opts.MaxRetryAfter)
				return zero, err
			}
			delay = retryAfter
		}

		logger.Warn("retrying after failure",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"delay", delay,
			"error", err,
		)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, err, delay)
		}

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, err
		}
	}
}

// Do is Retry for functions without a result.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Classify reports whether err may succeed on retry, and the vendor-requested
// delay for 429 responses when one was given.
func Classify(err error, whitelist []int) (bool, time.Duration) {
	if err == nil || errors.Is(err, context.Canceled) {
		return false, 0
	}
	if errors.Is(err, domain.ErrCircuitOpen) {
		return false, 0
	}

	var vendorErr *domain.VendorError
	if errors.As(err, &vendorErr) {
		switch {
		case vendorErr.IsRateLimited():
			return true, vendorErr.RetryAfter
		case vendorErr.IsServerError():
			return true, 0
		default:
			return slices.Contains(whitelist, vendorErr.StatusCode), 0
		}
	}

	// Per-attempt timeouts; a cancelled parent is caught by the caller.
	if errors.Is(err, context.DeadlineExceeded) {
		return true, 0
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true, 0
	}
	return false, 0
}

// Sleep waits for d without blocking past ctx cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
