package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickstudio/connect-core/internal/adapters/driven/memory"
	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
	"github.com/clickstudio/connect-core/internal/core/ports/driven/mocks"
	"github.com/clickstudio/connect-core/internal/core/ports/driving"
)

func newTestOAuthService(clock *testClock, connectors ...*mocks.MockConnector) (driving.OAuthService, *memory.CredentialStore) {
	store := memory.NewCredentialStore()
	svc := NewOAuthService(OAuthServiceConfig{
		Registry: mocks.NewMockRegistry(connectors...),
		Store:    store,
		Now:      clock.Now,
	})
	return svc, store
}

func TestOAuthService_Authorize(t *testing.T) {
	clock := newTestClock()
	twitter := mocks.NewMockConnector(domain.PlatformTwitter)
	var gotCallback string
	twitter.GetAuthorizationURLFn = func(ctx context.Context, userID, callbackURL string) (*driven.AuthorizationURL, error) {
		gotCallback = callbackURL
		return &driven.AuthorizationURL{URL: "https://x.com/i/oauth2/authorize?state=s1", State: "s1"}, nil
	}
	svc, _ := newTestOAuthService(clock, twitter)

	resp, err := svc.Authorize(context.Background(), driving.AuthorizeRequest{
		UserID:      "user-1",
		Platform:    domain.PlatformTwitter,
		RedirectURI: "https://app.example.com/cb",
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.State)
	assert.Equal(t, clock.Now().Add(DefaultStateTTL), resp.ExpiresAt)
	assert.Equal(t, "https://app.example.com/cb", gotCallback)
}

func TestOAuthService_UnsupportedPlatform(t *testing.T) {
	svc, _ := newTestOAuthService(newTestClock(), mocks.NewMockConnector(domain.PlatformTwitter))

	_, err := svc.Authorize(context.Background(), driving.AuthorizeRequest{UserID: "user-1", Platform: domain.PlatformTikTok})
	assert.ErrorIs(t, err, domain.ErrUnsupportedPlatform)
}

func TestOAuthService_Complete(t *testing.T) {
	clock := newTestClock()
	linkedin := mocks.NewMockConnector(domain.PlatformLinkedIn)
	svc, store := newTestOAuthService(clock, linkedin)
	ctx := context.Background()

	linkedin.ExchangeCodeForTokenFn = func(ctx context.Context, userID, code, state string) (*driven.TokenSet, error) {
		assert.Equal(t, "code-1", code)
		assert.Equal(t, "state-1", state)
		return &driven.TokenSet{AccessToken: "AQV"}, store.Save(ctx, userID, domain.PlatformLinkedIn, &domain.PlatformConnection{
			Connected:        true,
			AccessToken:      "AQV",
			PlatformUsername: "ada",
			ConnectedAt:      clock.Now(),
		})
	}

	summary, err := svc.Complete(ctx, driving.CompleteRequest{
		UserID:   "user-1",
		Platform: domain.PlatformLinkedIn,
		Code:     "code-1",
		State:    "state-1",
	})
	require.NoError(t, err)
	assert.True(t, summary.Connected)
	assert.True(t, summary.Configured)
	assert.Equal(t, "ada", summary.Username)
}

func TestOAuthService_CompleteRequiresCode(t *testing.T) {
	linkedin := mocks.NewMockConnector(domain.PlatformLinkedIn)
	svc, _ := newTestOAuthService(newTestClock(), linkedin)

	_, err := svc.Complete(context.Background(), driving.CompleteRequest{UserID: "user-1", Platform: domain.PlatformLinkedIn, State: "s"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, linkedin.Calls("ExchangeCodeForToken"))
}

func TestOAuthService_CompletePropagatesStateError(t *testing.T) {
	linkedin := mocks.NewMockConnector(domain.PlatformLinkedIn)
	linkedin.ExchangeCodeForTokenFn = func(ctx context.Context, userID, code, state string) (*driven.TokenSet, error) {
		return nil, domain.ErrInvalidState
	}
	svc, _ := newTestOAuthService(newTestClock(), linkedin)

	_, err := svc.Complete(context.Background(), driving.CompleteRequest{UserID: "user-1", Platform: domain.PlatformLinkedIn, Code: "c", State: "s"})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestOAuthService_Status(t *testing.T) {
	youtube := mocks.NewMockConnector(domain.PlatformYouTube)
	youtube.Configured = false
	svc, _ := newTestOAuthService(newTestClock(), youtube)

	summary, err := svc.Status(context.Background(), "user-1", domain.PlatformYouTube)
	require.NoError(t, err)
	assert.False(t, summary.Connected)
	assert.False(t, summary.Configured)
}

func TestOAuthService_Publish(t *testing.T) {
	twitter := mocks.NewMockConnector(domain.PlatformTwitter)
	svc, _ := newTestOAuthService(newTestClock(), twitter)
	ctx := context.Background()

	res, err := svc.Publish(ctx, "user-1", domain.PlatformTwitter, &domain.PublishRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "post-twitter", res.ID)

	twitter.PublishFn = func(ctx context.Context, userID string, req *domain.PublishRequest) (*domain.PublishResult, error) {
		return nil, domain.ErrTextTooLong
	}
	_, err = svc.Publish(ctx, "user-1", domain.PlatformTwitter, &domain.PublishRequest{Text: "long"})
	assert.ErrorIs(t, err, domain.ErrTextTooLong)
}

func TestOAuthService_Refresh(t *testing.T) {
	clock := newTestClock()
	tiktok := mocks.NewMockConnector(domain.PlatformTikTok)
	svc, store := newTestOAuthService(clock, tiktok)
	ctx := context.Background()

	expires := clock.Now().Add(24 * time.Hour)
	tiktok.RefreshAccessTokenFn = func(ctx context.Context, userID string) (string, error) {
		return "act.new", store.Save(ctx, userID, domain.PlatformTikTok, &domain.PlatformConnection{
			Connected:   true,
			AccessToken: "act.new",
			ExpiresAt:   &expires,
		})
	}
	summary, err := svc.Refresh(ctx, "user-1", domain.PlatformTikTok)
	require.NoError(t, err)
	require.NotNil(t, summary.ExpiresAt)
	assert.Equal(t, expires, *summary.ExpiresAt)

	tiktok.RefreshAccessTokenFn = func(ctx context.Context, userID string) (string, error) {
		return "", &domain.ReconnectError{Platform: domain.PlatformTikTok, Reason: "refresh token revoked"}
	}
	_, err = svc.Refresh(ctx, "user-1", domain.PlatformTikTok)
	assert.ErrorIs(t, err, domain.ErrReconnectRequired)
}

func TestOAuthService_Disconnect(t *testing.T) {
	facebook := mocks.NewMockConnector(domain.PlatformFacebook)
	boom := errors.New("store down")
	facebook.DisconnectFn = func(ctx context.Context, userID string) error { return boom }
	svc, _ := newTestOAuthService(newTestClock(), facebook)

	err := svc.Disconnect(context.Background(), "user-1", domain.PlatformFacebook)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, facebook.Calls("Disconnect"))
}
