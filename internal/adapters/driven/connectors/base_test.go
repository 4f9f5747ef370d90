package connectors_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors/connectortest"
	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

const testRedirect = "https://app.example.com/oauth/linkedin/callback"

type stubHandler struct {
	calls atomic.Int32
	err   error
}

func (h *stubHandler) AccountProfile(ctx context.Context, accessToken string) (*driven.Profile, error) {
	h.calls.Add(1)
	if h.err != nil {
		return nil, h.err
	}
	return &driven.Profile{ID: "member-1", Username: "Ada Lovelace", Name: "Ada Lovelace", Email: "ada@example.com"}, nil
}

type fixture struct {
	env     *connectortest.Env
	base    *connectors.Base
	handler *stubHandler
	srv     *httptest.Server

	tokenCalls   atomic.Int32
	refreshCalls atomic.Int32

	mu             sync.Mutex
	lastForm       url.Values
	exchangeStatus int
	refreshStatus  int
	refreshBody    string
	refreshGate    chan struct{}

	logs bytes.Buffer
}

func newFixture(t *testing.T, creds connectors.Credentials) *fixture {
	t.Helper()
	f := &fixture{
		env:           connectortest.NewEnv(t),
		handler:       &stubHandler{},
		refreshStatus: http.StatusOK,
		refreshBody:   `{"access_token":"fresh","expires_in":3600,"token_type":"Bearer"}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.lastForm = r.PostForm
		status, body, gate := f.refreshStatus, f.refreshBody, f.refreshGate
		exchangeStatus := f.exchangeStatus
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if exchangeStatus != 0 {
				w.Header().Set("Retry-After", "42")
				w.WriteHeader(exchangeStatus)
				fmt.Fprint(w, `{"error":"rate_limited"}`)
				return
			}
			fmt.Fprint(w, `{"access_token":"abc","refresh_token":"r1","expires_in":3600,"token_type":"Bearer","scope":"openid profile"}`)
		case "refresh_token":
			f.refreshCalls.Add(1)
			if gate != nil {
				<-gate
			}
			w.WriteHeader(status)
			fmt.Fprint(w, body)
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"unsupported_grant_type"}`)
		}
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	f.env.Deps.Logger = slog.New(slog.NewTextHandler(&f.logs, nil))
	api := f.env.Deps.NewAPIClient(domain.PlatformLinkedIn, f.srv.URL, nil)
	f.base = connectors.NewBase(f.env.Deps.BaseConfig(domain.PlatformLinkedIn, creds, connectors.OAuthDefaults{
		AuthURL:   f.srv.URL + "/authorize",
		TokenURL:  f.srv.URL + "/token",
		Scopes:    []string{"openid", "profile"},
		AuthStyle: oauth2.AuthStyleInParams,
	}, api), f.handler)
	return f
}

func configured() connectors.Credentials {
	return connectors.Credentials{ClientID: "client-id", ClientSecret: "client-secret", RedirectURI: testRedirect}
}

func TestBase_NotConfiguredFailsFast(t *testing.T) {
	f := newFixture(t, connectors.Credentials{ClientID: "client-id"})
	ctx := context.Background()

	assert.False(t, f.base.IsConfigured())

	_, err := f.base.GetAuthorizationURL(ctx, "user-1", "")
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"client secret"}, cfgErr.Missing)

	_, err = f.base.ExchangeCodeForToken(ctx, "user-1", "code", "state")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	_, err = f.base.GetClient(ctx, "user-1")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	_, err = f.base.RefreshAccessToken(ctx, "user-1")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	assert.ErrorIs(t, f.base.Disconnect(ctx, "user-1"), domain.ErrNotConfigured)

	assert.Zero(t, f.tokenCalls.Load(), "no network calls when not configured")
}

func TestBase_GetAuthorizationURL(t *testing.T) {
	f := newFixture(t, configured())

	res, err := f.base.GetAuthorizationURL(context.Background(), "user-1", "")
	require.NoError(t, err)

	u, err := url.Parse(res.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, testRedirect, q.Get("redirect_uri"))
	assert.Equal(t, "openid profile", q.Get("scope"))
	assert.Equal(t, res.State, q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Empty(t, q.Get("code_challenge"), "pkce is off for this platform")
}

func TestBase_ExchangeCodeForToken(t *testing.T) {
	f := newFixture(t, configured())
	ctx := context.Background()
	callback := "https://app.example.com/custom/callback"

	auth, err := f.base.GetAuthorizationURL(ctx, "user-1", callback)
	require.NoError(t, err)

	tokens, err := f.base.ExchangeCodeForToken(ctx, "user-1", "the-code", auth.State)
	require.NoError(t, err)
	assert.Equal(t, "abc", tokens.AccessToken)
	assert.Equal(t, "r1", tokens.RefreshToken)
	assert.Equal(t, 3600, tokens.ExpiresIn)

	f.mu.Lock()
	form := f.lastForm
	f.mu.Unlock()
	assert.Equal(t, "the-code", form.Get("code"))
	assert.Equal(t, callback, form.Get("redirect_uri"), "redirect uri must repeat the one used for the code")
	assert.Equal(t, "client-secret", form.Get("client_secret"))

	conn, err := f.env.Store.Get(ctx, "user-1", domain.PlatformLinkedIn)
	require.NoError(t, err)
	assert.True(t, conn.Connected)
	assert.Equal(t, "abc", conn.AccessToken)
	assert.Equal(t, "member-1", conn.PlatformUserID)
	assert.Equal(t, "openid profile", conn.Scope)
	assert.Equal(t, callback, conn.RedirectURI)
	require.NotNil(t, conn.ExpiresAt)
	assert.Equal(t, f.env.Clock.Now().Add(time.Hour), *conn.ExpiresAt)

	// The state was consumed by the first exchange.
	_, err = f.base.ExchangeCodeForToken(ctx, "user-1", "the-code", auth.State)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestBase_ExchangeRejectsForeignState(t *testing.T) {
	f := newFixture(t, configured())
	ctx := context.Background()

	auth, err := f.base.GetAuthorizationURL(ctx, "user-1", "")
	require.NoError(t, err)

	_, err = f.base.ExchangeCodeForToken(ctx, "user-2", "code", auth.State)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Zero(t, f.tokenCalls.Load())
}

func TestBase_ExchangeRequiresCode(t *testing.T) {
	f := newFixture(t, configured())
	_, err := f.base.ExchangeCodeForToken(context.Background(), "user-1", "", "state")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBase_GetClientRefreshBoundary(t *testing.T) {
	tests := []struct {
		name        string
		expiresIn   time.Duration
		wantRefresh bool
	}{
		{"outside buffer", 5*time.Minute + time.Second, false},
		{"at buffer boundary", 5 * time.Minute, true},
		{"inside buffer", time.Minute, true},
		{"already expired", -time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, configured())
			f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
				AccessToken:  "stored",
				RefreshToken: "r1",
				ExpiresAt:    f.env.ExpiresIn(tt.expiresIn),
			})

			token, err := f.base.GetClient(context.Background(), "user-1")
			require.NoError(t, err)
			if tt.wantRefresh {
				assert.Equal(t, "fresh", token)
				assert.Equal(t, int32(1), f.refreshCalls.Load())
			} else {
				assert.Equal(t, "stored", token)
				assert.Zero(t, f.refreshCalls.Load())
			}
		})
	}
}

func TestBase_GetClientWithoutExpiry(t *testing.T) {
	f := newFixture(t, configured())
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{AccessToken: "forever"})

	token, err := f.base.GetClient(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "forever", token)
}

func TestBase_ExpiredWithoutRefreshTokenNeedsReconnect(t *testing.T) {
	f := newFixture(t, configured())
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
		AccessToken: "stale",
		ExpiresAt:   f.env.ExpiresIn(-time.Second),
	})

	_, err := f.base.GetClient(context.Background(), "user-1")
	var re *domain.ReconnectError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, domain.PlatformLinkedIn, re.Platform)
	assert.ErrorIs(t, err, domain.ErrReconnectRequired)
}

func TestBase_InsideBufferWithoutRefreshTokenReturnsCurrent(t *testing.T) {
	f := newFixture(t, configured())
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
		AccessToken: "still-valid",
		ExpiresAt:   f.env.ExpiresIn(time.Minute),
	})

	token, err := f.base.GetClient(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "still-valid", token)
}

func TestBase_GetClientNotConnected(t *testing.T) {
	f := newFixture(t, configured())
	_, err := f.base.GetClient(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestBase_RefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	f := newFixture(t, configured())
	ctx := context.Background()
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
		AccessToken:  "old",
		RefreshToken: "keep-me",
		ExpiresAt:    f.env.ExpiresIn(time.Hour),
	})

	token, err := f.base.RefreshAccessToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)

	conn, err := f.env.Store.Get(ctx, "user-1", domain.PlatformLinkedIn)
	require.NoError(t, err)
	assert.Equal(t, "fresh", conn.AccessToken)
	assert.Equal(t, "keep-me", conn.RefreshToken)
	require.NotNil(t, conn.LastRefreshedAt)
	assert.Equal(t, f.env.ExpiresIn(time.Hour), conn.ExpiresAt)
}

func TestBase_RefreshLogsRotationOnlyWhenTokenChanges(t *testing.T) {
	f := newFixture(t, configured())
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
		AccessToken:  "old",
		RefreshToken: "keep-me",
	})

	_, err := f.base.RefreshAccessToken(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Contains(t, f.logs.String(), "rotated=false")

	f.refreshBody = `{"access_token":"fresh","refresh_token":"r2","expires_in":60}`
	_, err = f.base.RefreshAccessToken(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Contains(t, f.logs.String(), "rotated=true")
}

func TestBase_RefreshRateLimitedSurfacesRetryAfter(t *testing.T) {
	f := newFixture(t, configured())
	f.refreshStatus = http.StatusTooManyRequests
	f.refreshBody = `{"error":"rate_limited"}`
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
		AccessToken:  "old",
		RefreshToken: "r1",
		ExpiresAt:    f.env.ExpiresIn(time.Minute),
	})

	_, err := f.base.GetClient(context.Background(), "user-1")
	var rl *domain.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, domain.PlatformLinkedIn, rl.Platform)
	assert.Equal(t, int(domain.DefaultRetryAfter/time.Second), rl.RetryAfterSeconds())
	assert.Contains(t, err.Error(), "try again after")
	assert.False(t, errors.Is(err, domain.ErrReconnectRequired))
}

func TestBase_ExchangeRateLimitedSurfacesRetryAfter(t *testing.T) {
	f := newFixture(t, configured())
	f.exchangeStatus = http.StatusTooManyRequests
	ctx := context.Background()

	res, err := f.base.GetAuthorizationURL(ctx, "user-1", "")
	require.NoError(t, err)

	_, err = f.base.ExchangeCodeForToken(ctx, "user-1", "code", res.State)
	var rl *domain.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 42, rl.RetryAfterSeconds())
}

func TestBase_ForcedRefreshDoesNotJoinLazyRefresh(t *testing.T) {
	f := newFixture(t, configured())
	gate := make(chan struct{})
	f.refreshGate = gate
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
		AccessToken:  "old",
		RefreshToken: "r1",
		ExpiresAt:    f.env.ExpiresIn(time.Minute),
	})

	var wg sync.WaitGroup
	var lazyErr, forcedErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, lazyErr = f.base.GetClient(context.Background(), "user-1")
	}()
	require.Eventually(t, func() bool { return f.refreshCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	go func() {
		defer wg.Done()
		_, forcedErr = f.base.RefreshAccessToken(context.Background(), "user-1")
	}()

	require.Eventually(t, func() bool { return f.refreshCalls.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()
	require.NoError(t, lazyErr)
	require.NoError(t, forcedErr)
}

func TestBase_CancelledCallerDoesNotAbortSharedRefresh(t *testing.T) {
	f := newFixture(t, configured())
	gate := make(chan struct{})
	f.refreshGate = gate
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
		AccessToken:  "old",
		RefreshToken: "r1",
		ExpiresAt:    f.env.ExpiresIn(time.Minute),
	})

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.base.GetClient(ctx, "user-1")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return f.refreshCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan string, 1)
	go func() {
		token, err := f.base.GetClient(context.Background(), "user-1")
		assert.NoError(t, err)
		second <- token
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(gate)
	assert.Equal(t, "fresh", <-second)
	assert.Equal(t, int32(1), f.refreshCalls.Load())

	conn, err := f.env.Store.Get(context.Background(), "user-1", domain.PlatformLinkedIn)
	require.NoError(t, err)
	assert.Equal(t, "fresh", conn.AccessToken)
}

func TestBase_RefreshStoresRotatedToken(t *testing.T) {
	f := newFixture(t, configured())
	ctx := context.Background()
	f.refreshBody = `{"access_token":"fresh","refresh_token":"r2","expires_in":60}`
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
		AccessToken:  "old",
		RefreshToken: "r1",
	})

	_, err := f.base.RefreshAccessToken(ctx, "user-1")
	require.NoError(t, err)

	conn, err := f.env.Store.Get(ctx, "user-1", domain.PlatformLinkedIn)
	require.NoError(t, err)
	assert.Equal(t, "r2", conn.RefreshToken)
}

func TestBase_RefreshRejectedNeedsReconnect(t *testing.T) {
	f := newFixture(t, configured())
	f.refreshStatus = http.StatusBadRequest
	f.refreshBody = `{"error":"invalid_grant","error_description":"refresh token revoked"}`
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
		AccessToken:  "old",
		RefreshToken: "revoked",
	})

	_, err := f.base.RefreshAccessToken(context.Background(), "user-1")
	var re *domain.ReconnectError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Reason, "invalid or expired")
}

func TestBase_ConcurrentGetClientRefreshesOnce(t *testing.T) {
	f := newFixture(t, configured())
	gate := make(chan struct{})
	f.refreshGate = gate
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
		AccessToken:  "old",
		RefreshToken: "r1",
		ExpiresAt:    f.env.ExpiresIn(time.Minute),
	})

	const callers = 10
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = f.base.GetClient(context.Background(), "user-1")
		}(i)
	}

	require.Eventually(t, func() bool { return f.refreshCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "fresh", tokens[i])
	}
	assert.Equal(t, int32(1), f.refreshCalls.Load())
}

func TestWithAuthRetry_RefreshesOnceOn401(t *testing.T) {
	f := newFixture(t, configured())
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
		AccessToken:  "old",
		RefreshToken: "r1",
		ExpiresAt:    f.env.ExpiresIn(time.Hour),
	})

	var seen []string
	got, err := connectors.WithAuthRetry(context.Background(), f.base, "user-1", func(ctx context.Context, token string) (string, error) {
		seen = append(seen, token)
		if token == "old" {
			return "", &domain.VendorError{Platform: domain.PlatformLinkedIn, StatusCode: http.StatusUnauthorized}
		}
		return "posted", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "posted", got)
	assert.Equal(t, []string{"old", "fresh"}, seen)
	assert.Equal(t, int32(1), f.refreshCalls.Load())
}

func TestWithAuthRetry_SecondUnauthorizedPropagates(t *testing.T) {
	f := newFixture(t, configured())
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
		AccessToken:  "old",
		RefreshToken: "r1",
	})

	calls := 0
	_, err := connectors.WithAuthRetry(context.Background(), f.base, "user-1", func(ctx context.Context, token string) (string, error) {
		calls++
		return "", &domain.VendorError{Platform: domain.PlatformLinkedIn, StatusCode: http.StatusUnauthorized}
	})

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, 2, calls, "exactly one retry")
	assert.Equal(t, int32(1), f.refreshCalls.Load(), "exactly one refresh")
}

func TestWithAuthRetry_FailedRefreshNeedsReconnect(t *testing.T) {
	f := newFixture(t, configured())
	f.refreshStatus = http.StatusServiceUnavailable
	f.refreshBody = `{"error":"temporarily_unavailable"}`
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{
		AccessToken:  "old",
		RefreshToken: "r1",
	})

	calls := 0
	_, err := connectors.WithAuthRetry(context.Background(), f.base, "user-1", func(ctx context.Context, token string) (string, error) {
		calls++
		return "", &domain.VendorError{Platform: domain.PlatformLinkedIn, StatusCode: http.StatusUnauthorized}
	})

	assert.ErrorIs(t, err, domain.ErrReconnectRequired)
	assert.Equal(t, 1, calls)
}

func TestWithAuthRetry_RateLimitSurfacesRetryAfter(t *testing.T) {
	f := newFixture(t, configured())
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{AccessToken: "tok"})

	_, err := connectors.WithAuthRetry(context.Background(), f.base, "user-1", func(ctx context.Context, token string) (string, error) {
		return "", &domain.VendorError{Platform: domain.PlatformLinkedIn, StatusCode: http.StatusTooManyRequests, RetryAfter: 90 * time.Second}
	})

	var rl *domain.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 90, rl.RetryAfterSeconds())
	assert.Zero(t, f.refreshCalls.Load())
}

func TestWithAuthRetry_OtherErrorsPassThrough(t *testing.T) {
	f := newFixture(t, configured())
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{AccessToken: "tok"})

	boom := errors.New("boom")
	_, err := connectors.WithAuthRetry(context.Background(), f.base, "user-1", func(ctx context.Context, token string) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, f.refreshCalls.Load())
}

func TestBase_FetchProfileAndDisconnect(t *testing.T) {
	f := newFixture(t, configured())
	ctx := context.Background()
	f.env.Connect(t, "user-1", domain.PlatformLinkedIn, &domain.PlatformConnection{AccessToken: "tok"})
	f.env.Connect(t, "user-1", domain.PlatformTwitter, &domain.PlatformConnection{AccessToken: "other"})

	profile, err := f.base.FetchProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "member-1", profile.ID)

	require.NoError(t, f.base.Disconnect(ctx, "user-1"))
	_, err = f.env.Store.Get(ctx, "user-1", domain.PlatformLinkedIn)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.env.Store.Get(ctx, "user-1", domain.PlatformTwitter)
	assert.NoError(t, err, "other platforms are untouched")
}
