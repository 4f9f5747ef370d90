// Package connectors holds the OAuth lifecycle shared by every platform
// connector, the vendor API client and the connector registry.
package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
	"github.com/clickstudio/connect-core/internal/metrics"
)

const (
	// DefaultRefreshLockTTL bounds how long one instance may hold a refresh lock.
	DefaultRefreshLockTTL = 30 * time.Second

	refreshWaitAttempts = 10
	refreshWaitInterval = 300 * time.Millisecond
)

// BaseConfig holds configuration shared by all platform connectors.
type BaseConfig struct {
	Platform     domain.Platform
	ClientID     string
	ClientSecret string
	RedirectURI  string
	OAuth        OAuthDefaults

	States driven.StateIssuer
	Store  driven.CredentialStore
	API    *APIClient

	// Lock serializes refresh across instances. Optional.
	Lock           driven.DistributedLock
	RefreshLockTTL time.Duration // default: 30s

	RefreshBuffer time.Duration    // default: 5m
	Now           func() time.Time // default: time.Now
	Logger        *slog.Logger
}

// Base implements the authorization, token and connection lifecycle.
// Platform packages embed it and add Publish.
type Base struct {
	platform     domain.Platform
	clientID     string
	clientSecret string
	redirectURI  string
	defaults     OAuthDefaults

	states  driven.StateIssuer
	store   driven.CredentialStore
	api     *APIClient
	lock    driven.DistributedLock
	lockTTL time.Duration

	buffer time.Duration
	now    func() time.Time
	logger *slog.Logger

	handler OAuthHandler
	group   singleflight.Group
}

// NewBase creates the shared lifecycle for a platform.
func NewBase(cfg BaseConfig, handler OAuthHandler) *Base {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := cfg.RefreshBuffer
	if buffer <= 0 {
		buffer = domain.DefaultRefreshBuffer
	}
	lockTTL := cfg.RefreshLockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultRefreshLockTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Base{
		platform:     cfg.Platform,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		defaults:     cfg.OAuth,
		states:       cfg.States,
		store:        cfg.Store,
		api:          cfg.API,
		lock:         cfg.Lock,
		lockTTL:      lockTTL,
		buffer:       buffer,
		now:          now,
		logger:       logger.With("platform", cfg.Platform),
		handler:      handler,
	}
}

// Platform returns the vendor this connector serves.
func (b *Base) Platform() domain.Platform {
	return b.platform
}

// IsConfigured reports whether the client id/secret pair is present.
func (b *Base) IsConfigured() bool {
	return b.clientID != "" && b.clientSecret != ""
}

// RequireConfigured returns a ConfigError when credentials are absent.
func (b *Base) RequireConfigured() error {
	if b.IsConfigured() {
		return nil
	}
	var missing []string
	if b.clientID == "" {
		missing = append(missing, "client id")
	}
	if b.clientSecret == "" {
		missing = append(missing, "client secret")
	}
	return &domain.ConfigError{Platform: b.platform, Missing: missing}
}

// API returns the vendor API client.
func (b *Base) API() *APIClient {
	return b.api
}

// Store returns the credential store.
func (b *Base) Store() driven.CredentialStore {
	return b.store
}

// Logger returns the platform-scoped logger.
func (b *Base) Logger() *slog.Logger {
	return b.logger
}

// ClientID returns the OAuth client id.
func (b *Base) ClientID() string {
	return b.clientID
}

// ClientSecret returns the OAuth client secret.
func (b *Base) ClientSecret() string {
	return b.clientSecret
}

// Now returns the current time from the configured clock.
func (b *Base) Now() time.Time {
	return b.now()
}

func (b *Base) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     b.clientID,
		ClientSecret: b.clientSecret,
		Endpoint:     b.defaults.Endpoint(),
		RedirectURL:  redirectURI,
		Scopes:       b.defaults.Scopes,
	}
}

// oauthContext makes the oauth2 package use the vendor HTTP client.
func (b *Base) oauthContext(ctx context.Context) context.Context {
	if b.api == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, b.api.HTTPClient())
}

// GetAuthorizationURL builds the consent URL and persists the state binding.
func (b *Base) GetAuthorizationURL(ctx context.Context, userID, callbackURL string) (*driven.AuthorizationURL, error) {
	if err := b.RequireConfigured(); err != nil {
		return nil, err
	}

	redirectURI := callbackURL
	if redirectURI == "" {
		redirectURI = b.redirectURI
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("%w: redirect uri is required", domain.ErrInvalidInput)
	}
	if v, ok := b.handler.(RedirectValidator); ok {
		if err := v.ValidateRedirectURI(redirectURI); err != nil {
			return nil, err
		}
	}

	var verifier string
	if b.defaults.PKCE {
		verifier = oauth2.GenerateVerifier()
	}

	state, err := b.states.Generate(ctx, userID, b.platform, driven.StateOptions{
		RedirectURI:  redirectURI,
		CodeVerifier: verifier,
	})
	if err != nil {
		return nil, err
	}

	var authURL string
	if builder, ok := b.handler.(AuthURLBuilder); ok {
		var challenge string
		if verifier != "" {
			challenge = oauth2.S256ChallengeFromVerifier(verifier)
		}
		authURL = builder.BuildAuthURL(redirectURI, state.Token, challenge)
	} else {
		opts := b.defaults.authOptions()
		if verifier != "" {
			opts = append(opts, oauth2.S256ChallengeOption(verifier))
		}
		authURL = b.oauthConfig(redirectURI).AuthCodeURL(state.Token, opts...)
	}

	b.logger.Debug("authorization url generated", "user_id", userID)
	return &driven.AuthorizationURL{URL: authURL, State: state.Token}, nil
}

// ExchangeCodeForToken verifies state, exchanges the code, fetches the
// profile and persists the connection.
func (b *Base) ExchangeCodeForToken(ctx context.Context, userID, code, stateToken string) (*driven.TokenSet, error) {
	if err := b.RequireConfigured(); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code is required", domain.ErrInvalidInput)
	}

	state, err := b.states.Consume(ctx, stateToken, userID, b.platform)
	if err != nil {
		return nil, err
	}

	tok, err := b.exchange(ctx, code, state.RedirectURI, state.CodeVerifier)
	if err != nil {
		if rl := rateLimited(b.platform, err); rl != nil {
			return nil, rl
		}
		return nil, fmt.Errorf("exchange %s code: %w", b.platform, err)
	}

	profile, err := b.handler.AccountProfile(ctx, tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch %s profile: %w", b.platform, err)
	}

	now := b.now()
	stateCreated := state.CreatedAt
	expiresIn := tokenExpiresIn(tok, now)
	conn := &domain.PlatformConnection{
		Connected:        true,
		AccessToken:      tok.AccessToken,
		RefreshToken:     tok.RefreshToken,
		TokenType:        tok.Type(),
		ExpiresAt:        expiryFrom(now, expiresIn),
		RefreshExpiresAt: expiryFrom(now, extraInt(tok, "refresh_expires_in")),
		Scope:            extraString(tok, "scope"),
		PlatformUserID:   profile.ID,
		PlatformUsername: profile.Username,
		DisplayName:      profile.Name,
		Email:            profile.Email,
		AvatarURL:        profile.AvatarURL,
		ProfileURL:       profile.ProfileURL,
		RedirectURI:      state.RedirectURI,
		StateCreatedAt:   &stateCreated,
		ConnectedAt:      now,
		UpdatedAt:        now,
	}

	if e, ok := b.handler.(ConnectionEnricher); ok {
		if err := e.Enrich(ctx, userID, conn); err != nil {
			return nil, err
		}
	}

	if err := b.store.Save(ctx, userID, b.platform, conn); err != nil {
		return nil, fmt.Errorf("save %s connection: %w", b.platform, err)
	}

	b.logger.Info("account connected", "user_id", userID, "username", profile.Username)
	return &driven.TokenSet{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

func (b *Base) exchange(ctx context.Context, code, redirectURI, verifier string) (*oauth2.Token, error) {
	if ex, ok := b.handler.(CodeExchanger); ok {
		return ex.ExchangeCode(ctx, code, redirectURI, verifier)
	}
	return b.StandardExchange(ctx, code, redirectURI, verifier)
}

// StandardExchange performs the RFC 6749 authorization code grant with a
// form-encoded body.
func (b *Base) StandardExchange(ctx context.Context, code, redirectURI, verifier string) (*oauth2.Token, error) {
	conf := b.oauthConfig(redirectURI)
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	var tok *oauth2.Token
	err := b.api.Guard(b.oauthContext(ctx), func(ctx context.Context) error {
		t, err := conf.Exchange(ctx, code, opts...)
		if err != nil {
			return fromRetrieveError(b.platform, err, b.api.Messages())
		}
		tok = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// StandardRefresh performs the refresh_token grant.
func (b *Base) StandardRefresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	conf := b.oauthConfig(b.redirectURI)
	var tok *oauth2.Token
	err := b.api.Guard(b.oauthContext(ctx), func(ctx context.Context) error {
		src := conf.TokenSource(ctx, &oauth2.Token{
			RefreshToken: refreshToken,
			Expiry:       time.Unix(1, 0),
		})
		t, err := src.Token()
		if err != nil {
			return fromRetrieveError(b.platform, err, b.api.Messages())
		}
		tok = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// Connection returns the stored connection or ErrNotConnected.
func (b *Base) Connection(ctx context.Context, userID string) (*domain.PlatformConnection, error) {
	return b.ConnectionFor(ctx, userID, b.platform)
}

// ConnectionFor returns the user's stored connection on another platform,
// for vendors that build on one, or ErrNotConnected.
func (b *Base) ConnectionFor(ctx context.Context, userID string, platform domain.Platform) (*domain.PlatformConnection, error) {
	conn, err := b.store.Get(ctx, userID, platform)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", platform.DisplayName(), domain.ErrNotConnected)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s connection: %w", platform, err)
	}
	if !conn.Connected || conn.AccessToken == "" {
		return nil, fmt.Errorf("%s: %w", platform.DisplayName(), domain.ErrNotConnected)
	}
	return conn, nil
}

// GetClient returns a usable access token.
func (b *Base) GetClient(ctx context.Context, userID string) (string, error) {
	return b.AccessToken(ctx, userID)
}

// AccessToken returns the stored token, refreshing it first when it
// expires within the refresh buffer.
func (b *Base) AccessToken(ctx context.Context, userID string) (string, error) {
	if err := b.RequireConfigured(); err != nil {
		return "", err
	}
	conn, err := b.Connection(ctx, userID)
	if err != nil {
		return "", err
	}

	now := b.now()
	if !conn.NeedsRefresh(now, b.buffer) {
		return conn.AccessToken, nil
	}
	if !b.canRefresh(conn) {
		if conn.IsExpired(now) {
			return "", &domain.ReconnectError{Platform: b.platform, Reason: "token expired and no refresh token available"}
		}
		return conn.AccessToken, nil
	}
	return b.refresh(ctx, userID, false)
}

// RefreshAccessToken performs the refresh grant and persists the result.
func (b *Base) RefreshAccessToken(ctx context.Context, userID string) (string, error) {
	if err := b.RequireConfigured(); err != nil {
		return "", err
	}
	return b.refresh(ctx, userID, true)
}

func (b *Base) canRefresh(conn *domain.PlatformConnection) bool {
	if _, ok := b.handler.(TokenRefresher); ok {
		return true
	}
	return conn.HasRefreshToken()
}

// refresh collapses concurrent refreshes for a user into one grant.
// Forced refreshes get their own flight so a caller holding a rejected
// token never receives that token back from a lazy refresh.
func (b *Base) refresh(ctx context.Context, userID string, force bool) (string, error) {
	key := userID
	if force {
		key += ":force"
	}
	// The flight outlives any single caller; each waiter still honours its own ctx.
	flightCtx := context.WithoutCancel(ctx)
	ch := b.group.DoChan(key, func() (any, error) {
		return b.refreshLocked(flightCtx, userID, force)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (b *Base) refreshLocked(ctx context.Context, userID string, force bool) (string, error) {
	if b.lock != nil {
		name := fmt.Sprintf("refresh:%s:%s", userID, b.platform)
		acquired, err := b.lock.Acquire(ctx, name, b.lockTTL)
		if err != nil {
			return "", fmt.Errorf("acquire refresh lock: %w", err)
		}
		if !acquired {
			return b.awaitRefresh(ctx, userID)
		}
		defer func() {
			if err := b.lock.Release(context.WithoutCancel(ctx), name); err != nil {
				b.logger.Warn("failed to release refresh lock", "error", err)
			}
		}()
	}

	conn, err := b.Connection(ctx, userID)
	if err != nil {
		return "", err
	}
	now := b.now()
	if !force && !conn.NeedsRefresh(now, b.buffer) {
		return conn.AccessToken, nil
	}
	if !b.canRefresh(conn) {
		return "", &domain.ReconnectError{Platform: b.platform, Reason: "no refresh token available"}
	}

	var tok *oauth2.Token
	if r, ok := b.handler.(TokenRefresher); ok {
		tok, err = r.RefreshToken(ctx, conn)
	} else {
		tok, err = b.StandardRefresh(ctx, conn.RefreshToken)
	}
	metrics.TokenRefreshes.WithLabelValues(string(b.platform), metrics.Result(err)).Inc()
	if err != nil {
		b.logger.Warn("token refresh failed", "user_id", userID, "error", err)
		var ve *domain.VendorError
		if errors.As(err, &ve) && ve.IsClientError() {
			return "", &domain.ReconnectError{Platform: b.platform, Reason: ve.Message}
		}
		if rl := rateLimited(b.platform, err); rl != nil {
			return "", rl
		}
		return "", fmt.Errorf("refresh %s token: %w", b.platform, err)
	}

	now = b.now()
	update := domain.TokenUpdate{
		AccessToken:      tok.AccessToken,
		RefreshToken:     tok.RefreshToken,
		ExpiresAt:        expiryFrom(now, tokenExpiresIn(tok, now)),
		RefreshExpiresAt: expiryFrom(now, extraInt(tok, "refresh_expires_in")),
		Scope:            extraString(tok, "scope"),
		RefreshedAt:      now,
	}
	if err := b.store.UpdateTokens(ctx, userID, b.platform, update); err != nil {
		return "", fmt.Errorf("save refreshed %s token: %w", b.platform, err)
	}

	// x/oauth2 carries the old refresh token forward when the vendor omits one.
	rotated := tok.RefreshToken != "" && tok.RefreshToken != conn.RefreshToken
	b.logger.Info("token refreshed", "user_id", userID, "rotated", rotated)
	return tok.AccessToken, nil
}

// awaitRefresh polls the store while another instance refreshes.
func (b *Base) awaitRefresh(ctx context.Context, userID string) (string, error) {
	for i := 0; i < refreshWaitAttempts; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(refreshWaitInterval):
		}
		conn, err := b.Connection(ctx, userID)
		if err != nil {
			return "", err
		}
		if !conn.NeedsRefresh(b.now(), b.buffer) {
			return conn.AccessToken, nil
		}
	}
	return "", domain.ErrRefreshInProgress
}

// FetchProfile performs a live profile call with the stored token.
func (b *Base) FetchProfile(ctx context.Context, userID string) (*driven.Profile, error) {
	if err := b.RequireConfigured(); err != nil {
		return nil, err
	}
	return WithAuthRetry(ctx, b, userID, func(ctx context.Context, token string) (*driven.Profile, error) {
		return b.handler.AccountProfile(ctx, token)
	})
}

// Disconnect clears the stored connection for this platform only.
func (b *Base) Disconnect(ctx context.Context, userID string) error {
	if err := b.RequireConfigured(); err != nil {
		return err
	}
	if err := b.store.Delete(ctx, userID, b.platform); err != nil {
		return fmt.Errorf("delete %s connection: %w", b.platform, err)
	}
	b.logger.Info("account disconnected", "user_id", userID)
	return nil
}

// WithAuthRetry runs fn with a valid token. On a 401 it refreshes exactly
// once and retries fn once; a failed refresh surfaces as a ReconnectError.
// An exhausted 429 surfaces as a RateLimitError.
func WithAuthRetry[T any](ctx context.Context, b *Base, userID string, fn func(ctx context.Context, token string) (T, error)) (T, error) {
	var zero T
	token, err := b.AccessToken(ctx, userID)
	if err != nil {
		return zero, err
	}

	res, err := fn(ctx, token)
	if err == nil || !errors.Is(err, domain.ErrUnauthorized) {
		return res, asRateLimit(b.platform, err)
	}

	b.logger.Info("vendor rejected token, refreshing once", "user_id", userID)
	token, rerr := b.RefreshAccessToken(ctx, userID)
	if rerr != nil {
		var re *domain.ReconnectError
		if errors.As(rerr, &re) {
			return zero, rerr
		}
		return zero, &domain.ReconnectError{Platform: b.platform, Reason: "token refresh failed"}
	}

	res, err = fn(ctx, token)
	return res, asRateLimit(b.platform, err)
}

// tokenExpiresIn returns the lifetime in seconds, preferring the raw
// expires_in value over the computed expiry.
func tokenExpiresIn(tok *oauth2.Token, now time.Time) int {
	if n := extraInt(tok, "expires_in"); n > 0 {
		return n
	}
	if tok.ExpiresIn > 0 {
		return int(tok.ExpiresIn)
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	secs := math.Round(tok.Expiry.Sub(now).Seconds())
	if secs <= 0 {
		return 0
	}
	return int(secs)
}

func expiryFrom(now time.Time, seconds int) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := now.Add(time.Duration(seconds) * time.Second)
	return &t
}

func extraInt(tok *oauth2.Token, key string) int {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func extraString(tok *oauth2.Token, key string) string {
	if s, ok := tok.Extra(key).(string); ok {
		return s
	}
	return ""
}
