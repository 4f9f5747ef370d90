package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

// openTestDB connects to CONNECT_TEST_DATABASE_URL and resets the tables.
// Tests are skipped when the variable is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("CONNECT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CONNECT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Connect(ctx, DefaultConfig(url))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.InitSchema(ctx))
	_, err = db.ExecContext(ctx, `TRUNCATE user_connections, oauth_states, tasks`)
	require.NoError(t, err)
	return db
}

func testConnection(access, refresh string, expiresAt time.Time) *domain.PlatformConnection {
	now := time.Now().UTC().Truncate(time.Second)
	exp := expiresAt.UTC().Truncate(time.Second)
	return &domain.PlatformConnection{
		Connected:        true,
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresAt:        &exp,
		PlatformUsername: "clickstudio",
		ConnectedAt:      now,
		UpdatedAt:        now,
	}
}

func TestCredentialStore_SaveGetDelete(t *testing.T) {
	db := openTestDB(t)
	store := NewCredentialStore(db, nil)
	ctx := context.Background()

	_, err := store.Get(ctx, "user-1", domain.PlatformTwitter)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Save(ctx, "user-1", domain.PlatformTwitter, testConnection("a1", "r1", time.Now().Add(time.Hour))))
	require.NoError(t, store.Save(ctx, "user-1", domain.PlatformLinkedIn, testConnection("a2", "", time.Now().Add(time.Hour))))

	got, err := store.Get(ctx, "user-1", domain.PlatformTwitter)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AccessToken)
	assert.Equal(t, "clickstudio", got.PlatformUsername)

	all, err := store.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.Delete(ctx, "user-1", domain.PlatformTwitter))
	require.NoError(t, store.Delete(ctx, "user-1", domain.PlatformTwitter))
	_, err = store.Get(ctx, "user-1", domain.PlatformTwitter)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	linkedin, err := store.Get(ctx, "user-1", domain.PlatformLinkedIn)
	require.NoError(t, err)
	assert.Equal(t, "a2", linkedin.AccessToken, "other platform entries are untouched")
}

func TestCredentialStore_RejectsConnectedWithoutToken(t *testing.T) {
	db := openTestDB(t)
	store := NewCredentialStore(db, nil)

	err := store.Save(context.Background(), "user-1", domain.PlatformTwitter, testConnection("", "", time.Now()))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCredentialStore_UpdateTokens(t *testing.T) {
	db := openTestDB(t)
	store := NewCredentialStore(db, nil)
	ctx := context.Background()

	err := store.UpdateTokens(ctx, "user-1", domain.PlatformTwitter, domain.TokenUpdate{AccessToken: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Save(ctx, "user-1", domain.PlatformTwitter, testConnection("a1", "r1", time.Now())))
	newExp := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.UpdateTokens(ctx, "user-1", domain.PlatformTwitter, domain.TokenUpdate{
		AccessToken: "a2",
		ExpiresAt:   &newExp,
		RefreshedAt: time.Now(),
	}))

	got, err := store.Get(ctx, "user-1", domain.PlatformTwitter)
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, "r1", got.RefreshToken, "empty refresh token keeps the old one")
	assert.True(t, newExp.Equal(*got.ExpiresAt))
	assert.NotNil(t, got.LastRefreshedAt)
}

func TestCredentialStore_ListExpiring(t *testing.T) {
	db := openTestDB(t)
	store := NewCredentialStore(db, nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, "user-1", domain.PlatformTwitter, testConnection("a", "r", now.Add(10*time.Minute))))
	require.NoError(t, store.Save(ctx, "user-2", domain.PlatformYouTube, testConnection("a", "r", now.Add(5*time.Minute))))
	require.NoError(t, store.Save(ctx, "user-2", domain.PlatformFacebook, testConnection("a", "", now.Add(time.Minute))))
	require.NoError(t, store.Save(ctx, "user-3", domain.PlatformTikTok, testConnection("a", "r", now.Add(3*time.Hour))))

	refs, err := store.ListExpiring(ctx, now.Add(15*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "user-2", refs[0].UserID)
	assert.Equal(t, domain.PlatformYouTube, refs[0].Platform)
	assert.Equal(t, "user-1", refs[1].UserID)

	refs, err = store.ListExpiring(ctx, now.Add(15*time.Minute), 1)
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestCredentialStore_EncryptsTokensAtRest(t *testing.T) {
	db := openTestDB(t)
	enc, err := NewSecretEncryptorFromPassphrase("test-secret")
	require.NoError(t, err)
	store := NewCredentialStore(db, enc)
	ctx := context.Background()

	conn := testConnection("plain-access", "plain-refresh", time.Now().Add(time.Hour))
	conn.Pages = []domain.FacebookPage{{ID: "p1", Name: "Page", AccessToken: "page-token"}}
	require.NoError(t, store.Save(ctx, "user-1", domain.PlatformFacebook, conn))
	assert.Equal(t, "plain-access", conn.AccessToken, "caller's value is not modified")

	var raw string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT connections::text FROM user_connections WHERE user_id = $1`, "user-1").Scan(&raw))
	assert.False(t, strings.Contains(raw, "plain-access"))
	assert.False(t, strings.Contains(raw, "page-token"))
	assert.True(t, strings.Contains(raw, sealedPrefix))

	got, err := store.Get(ctx, "user-1", domain.PlatformFacebook)
	require.NoError(t, err)
	assert.Equal(t, "plain-access", got.AccessToken)
	assert.Equal(t, "plain-refresh", got.RefreshToken)
	assert.Equal(t, "page-token", got.Pages[0].AccessToken)
}

func TestOAuthStateStore(t *testing.T) {
	db := openTestDB(t)
	store := NewOAuthStateStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Save(ctx, &driven.OAuthState{
		Token: "live", UserID: "user-1", Platform: domain.PlatformTwitter,
		RedirectURI: "https://app.example.com/cb", CodeVerifier: "v",
		CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute),
	}))
	require.NoError(t, store.Save(ctx, &driven.OAuthState{
		Token: "old", UserID: "user-1", Platform: domain.PlatformLinkedIn,
		CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-50 * time.Minute),
	}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	st, err := store.GetAndDelete(ctx, "live")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, domain.PlatformTwitter, st.Platform)
	assert.Equal(t, "v", st.CodeVerifier)

	st, err = store.GetAndDelete(ctx, "live")
	require.NoError(t, err)
	assert.Nil(t, st)

	require.NoError(t, store.Cleanup(ctx))
	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAdvisoryLock(t *testing.T) {
	db := openTestDB(t)
	a := NewAdvisoryLock(db)
	b := NewAdvisoryLock(db)
	ctx := context.Background()

	ok, err := a.Acquire(ctx, "scheduler", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Acquire(ctx, "scheduler", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "not reentrant")

	ok, err = b.Acquire(ctx, "scheduler", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx, "scheduler"))
	require.NoError(t, a.Release(ctx, "scheduler"))

	ok, err = b.Acquire(ctx, "scheduler", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Extend(ctx, "scheduler", time.Minute))
	require.NoError(t, b.Release(ctx, "scheduler"))
	require.NoError(t, b.Ping(ctx))
}

func TestLockKeyIsStable(t *testing.T) {
	assert.Equal(t, lockKey("refresh:user-1:twitter"), lockKey("refresh:user-1:twitter"))
	assert.NotEqual(t, lockKey("a"), lockKey("b"))
}
