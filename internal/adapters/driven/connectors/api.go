package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/metrics"
	"github.com/clickstudio/connect-core/internal/resilience"
)

const (
	// DefaultRequestTimeout bounds a single vendor call.
	DefaultRequestTimeout = 20 * time.Second

	// DefaultMediaTimeout bounds media fetches and uploads.
	DefaultMediaTimeout = 2 * time.Minute

	// MinRequestTimeout is the floor applied to configured timeouts.
	MinRequestTimeout = 15 * time.Second

	maxResponseBytes = 8 << 20
)

// APIConfig holds configuration for a vendor API client.
type APIConfig struct {
	Platform     domain.Platform
	BaseURL      string
	HTTPClient   *http.Client
	Timeout      time.Duration // default: 20s, floor 15s
	MediaTimeout time.Duration // default: 2m
	Retry        resilience.Options
	Breaker      *resilience.Breaker // nil disables the breaker
	Limiter      *rate.Limiter       // nil disables client-side rate limiting
	Messages     ErrorMessages
	Logger       *slog.Logger
}

// APIClient performs vendor HTTP calls through the rate limiter, the
// circuit breaker and the retry policy.
type APIClient struct {
	platform     domain.Platform
	baseURL      string
	httpClient   *http.Client
	timeout      time.Duration
	mediaTimeout time.Duration
	retry        resilience.Options
	breaker      *resilience.Breaker
	limiter      *rate.Limiter
	messages     ErrorMessages
	logger       *slog.Logger
}

// NewAPIClient creates a vendor API client.
func NewAPIClient(cfg APIConfig) *APIClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if timeout < MinRequestTimeout {
		timeout = MinRequestTimeout
	}
	mediaTimeout := cfg.MediaTimeout
	if mediaTimeout <= 0 {
		mediaTimeout = DefaultMediaTimeout
	}
	if mediaTimeout < timeout {
		mediaTimeout = timeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	messages := cfg.Messages
	if messages == nil {
		messages = OAuthErrorMessages
	}

	c := &APIClient{
		platform:     cfg.Platform,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   httpClient,
		timeout:      timeout,
		mediaTimeout: mediaTimeout,
		retry:        cfg.Retry,
		breaker:      cfg.Breaker,
		limiter:      cfg.Limiter,
		messages:     messages,
		logger:       logger.With("platform", cfg.Platform),
	}

	onRetry := c.retry.OnRetry
	c.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.Retries.WithLabelValues(string(c.platform)).Inc()
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}
	if c.retry.Logger == nil {
		c.retry.Logger = c.logger
	}
	return c
}

// Request describes one vendor call. Exactly one of JSON, Form or Body
// may be set.
type Request struct {
	Method      string
	Path        string // relative to BaseURL, or an absolute URL
	Query       url.Values
	Token       string // bearer token, omitted when empty
	JSON        any
	Form        url.Values
	Body        []byte
	ContentType string
	Header      http.Header

	// Media selects the longer media timeout.
	Media bool

	// RetryStatuses whitelists additional 4xx statuses for this call.
	RetryStatuses []int
}

// Response is a fully read vendor response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Platform returns the vendor this client talks to.
func (c *APIClient) Platform() domain.Platform {
	return c.platform
}

// HTTPClient returns the underlying client, for use by the oauth2 package.
func (c *APIClient) HTTPClient() *http.Client {
	return c.httpClient
}

// Messages returns the vendor error message table.
func (c *APIClient) Messages() ErrorMessages {
	return c.messages
}

// Do executes the request. Non-2xx responses are returned as
// *domain.VendorError after retries are exhausted.
func (c *APIClient) Do(ctx context.Context, req Request) (*Response, error) {
	opts := c.retry
	if len(req.RetryStatuses) > 0 {
		opts.RetryStatuses = append(append([]int(nil), opts.RetryStatuses...), req.RetryStatuses...)
	}
	return guard(c, ctx, opts, func(ctx context.Context) (*Response, error) {
		return c.attempt(ctx, req)
	})
}

// DoJSON executes the request and decodes the response into out.
func (c *APIClient) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// Guard runs fn under the same limiter, breaker and retry policy as Do.
// Used for calls made by other clients, such as oauth2 token exchanges.
func (c *APIClient) Guard(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := guard(c, ctx, c.retry, func(ctx context.Context) (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		if err := c.wait(ctx); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, fn(ctx)
	})
	return err
}

// guard wraps fn in the client's retry policy and, when set, its breaker.
func guard[T any](c *APIClient, ctx context.Context, opts resilience.Options, fn func(ctx context.Context) (T, error)) (T, error) {
	run := func(ctx context.Context) (T, error) {
		return resilience.Retry(ctx, opts, fn)
	}
	if c.breaker == nil {
		return run(ctx)
	}
	return resilience.Call(ctx, c.breaker, run)
}

func (c *APIClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (c *APIClient) attempt(ctx context.Context, req Request) (*Response, error) {
	timeout := c.timeout
	if req.Media {
		timeout = c.mediaTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	metrics.VendorLatency.WithLabelValues(string(c.platform)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VendorRequests.WithLabelValues(string(c.platform), "error").Inc()
		return nil, fmt.Errorf("%s request: %w", c.platform, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.VendorRequests.WithLabelValues(string(c.platform), "error").Inc()
		return nil, fmt.Errorf("read %s response: %w", c.platform, err)
	}
	metrics.VendorRequests.WithLabelValues(string(c.platform), statusClass(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ve := newVendorError(c.platform, resp.StatusCode, resp.Header, body, c.messages)
		c.logger.Debug("vendor request failed",
			"method", httpReq.Method,
			"path", httpReq.URL.Path,
			"status", resp.StatusCode,
			"code", ve.Code,
		)
		return nil, ve
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *APIClient) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := req.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(target, "/")
	}
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}

	var body io.Reader
	contentType := req.ContentType
	switch {
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	return httpReq, nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
