package instagram_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors/connectortest"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors/instagram"
	"github.com/clickstudio/connect-core/internal/core/domain"
)

type graphServer struct {
	*httptest.Server

	mu         sync.Mutex
	steps      []string
	tokens     []string
	noAccounts bool
}

func newGraphServer(t *testing.T) *graphServer {
	t.Helper()
	g := &graphServer{}
	record := func(step, token string) {
		g.mu.Lock()
		g.steps = append(g.steps, step)
		g.tokens = append(g.tokens, token)
		g.mu.Unlock()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"short","token_type":"bearer"}`)
	})
	mux.HandleFunc("GET /oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"long","token_type":"bearer","expires_in":5183944}`)
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"fb-user","name":"Katherine Johnson"}`)
	})
	mux.HandleFunc("GET /me/accounts", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		none := g.noAccounts
		g.mu.Unlock()
		if none {
			fmt.Fprint(w, `{"data":[{"id":"page-1","name":"No IG","access_token":"pt"}]}`)
			return
		}
		fmt.Fprint(w, `{"data":[
			{"id":"page-1","name":"Orbit","access_token":"page-token","instagram_business_account":{"id":"17841400","username":"orbit.studio"}},
			{"id":"page-2","name":"Other","access_token":"page-token-2","instagram_business_account":{"id":"17841499","username":"other"}}
		]}`)
	})
	mux.HandleFunc("POST /17841400/media", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://cdn.example.com/pic.jpg", r.PostForm.Get("image_url"))
		assert.Equal(t, "sunrise", r.PostForm.Get("caption"))
		record("container", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"id":"container-1"}`)
	})
	mux.HandleFunc("POST /17841400/media_publish", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "container-1", r.PostForm.Get("creation_id"))
		record("publish", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"id":"media-1"}`)
	})
	mux.HandleFunc("GET /media-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"permalink":"https://www.instagram.com/p/Cabc/"}`)
	})

	g.Server = httptest.NewServer(mux)
	t.Cleanup(g.Close)
	return g
}

type sleeper struct {
	mu    sync.Mutex
	delay []time.Duration
	after func()
}

func (s *sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delay = append(s.delay, d)
	s.mu.Unlock()
	if s.after != nil {
		s.after()
	}
	return ctx.Err()
}

func newConnector(t *testing.T, g *graphServer, env *connectortest.Env, s *sleeper) *instagram.Connector {
	t.Helper()
	return instagram.New(instagram.Config{
		Credentials: connectors.Credentials{
			ClientID:     "fb-app",
			ClientSecret: "fb-secret",
			RedirectURI:  "https://app.example.com/oauth/instagram/callback",
		},
		AuthURL:      g.URL + "/dialog/oauth",
		TokenURL:     g.URL + "/oauth/access_token",
		GraphBaseURL: g.URL,
		Sleep:        s.Sleep,
	}, env.Deps)
}

func linkFacebook(t *testing.T, env *connectortest.Env) {
	t.Helper()
	env.Connect(t, "user-1", domain.PlatformFacebook, &domain.PlatformConnection{AccessToken: "fb-user-token"})
}

func connect(t *testing.T, c *instagram.Connector) error {
	t.Helper()
	ctx := context.Background()
	auth, err := c.GetAuthorizationURL(ctx, "user-1", "")
	require.NoError(t, err)
	_, err = c.ExchangeCodeForToken(ctx, "user-1", "code", auth.State)
	return err
}

func TestConnect_CollectsBusinessAccounts(t *testing.T) {
	g := newGraphServer(t)
	env := connectortest.NewEnv(t)
	linkFacebook(t, env)
	c := newConnector(t, g, env, &sleeper{})
	require.NoError(t, connect(t, c))

	conn, err := env.Store.Get(context.Background(), "user-1", domain.PlatformInstagram)
	require.NoError(t, err)
	require.Len(t, conn.Accounts, 2)
	assert.Equal(t, "17841400", conn.Accounts[0].ID)
	assert.Equal(t, "page-token", conn.Accounts[0].PageAccessToken)
	assert.Equal(t, "orbit.studio", conn.PlatformUsername)
	assert.Equal(t, "https://www.instagram.com/orbit.studio", conn.ProfileURL)
}

func TestConnect_RequiresBusinessAccount(t *testing.T) {
	g := newGraphServer(t)
	g.noAccounts = true
	env := connectortest.NewEnv(t)
	linkFacebook(t, env)
	c := newConnector(t, g, env, &sleeper{})

	err := connect(t, c)
	assert.ErrorIs(t, err, domain.ErrNoInstagramAccount)

	_, err = env.Store.Get(context.Background(), "user-1", domain.PlatformInstagram)
	assert.ErrorIs(t, err, domain.ErrNotFound, "nothing is stored")
}

func TestPublish_ContainerThenPublish(t *testing.T) {
	g := newGraphServer(t)
	env := connectortest.NewEnv(t)
	linkFacebook(t, env)
	s := &sleeper{}
	s.after = func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		assert.Equal(t, []string{"container"}, g.steps, "waits between the two steps")
	}
	c := newConnector(t, g, env, s)
	require.NoError(t, connect(t, c))

	res, err := c.Publish(context.Background(), "user-1", &domain.PublishRequest{
		Text:     "sunrise",
		ImageURL: "https://cdn.example.com/pic.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "media-1", res.ID)
	require.NotNil(t, res.URL)
	assert.Equal(t, "https://www.instagram.com/p/Cabc/", *res.URL)

	assert.Equal(t, []time.Duration{instagram.DefaultContainerDelay}, s.delay)
	assert.Equal(t, []string{"container", "publish"}, g.steps)
	assert.Equal(t, []string{"Bearer page-token", "Bearer page-token"}, g.tokens)
}

func TestPublish_RequiresImageURL(t *testing.T) {
	g := newGraphServer(t)
	env := connectortest.NewEnv(t)
	c := newConnector(t, g, env, &sleeper{})

	_, err := c.Publish(context.Background(), "user-1", &domain.PublishRequest{Text: "no image"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPublish_UnknownAccount(t *testing.T) {
	g := newGraphServer(t)
	env := connectortest.NewEnv(t)
	linkFacebook(t, env)
	c := newConnector(t, g, env, &sleeper{})
	require.NoError(t, connect(t, c))

	_, err := c.Publish(context.Background(), "user-1", &domain.PublishRequest{
		ImageURL:           "https://cdn.example.com/pic.jpg",
		InstagramAccountID: "missing",
	})
	assert.ErrorIs(t, err, domain.ErrNoInstagramAccount)
}

func TestConnect_RequiresFacebook(t *testing.T) {
	g := newGraphServer(t)
	env := connectortest.NewEnv(t)
	c := newConnector(t, g, env, &sleeper{})

	err := connect(t, c)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Contains(t, err.Error(), "Facebook")

	_, err = env.Store.Get(context.Background(), "user-1", domain.PlatformInstagram)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPublish_RequiresFacebook(t *testing.T) {
	g := newGraphServer(t)
	env := connectortest.NewEnv(t)
	linkFacebook(t, env)
	c := newConnector(t, g, env, &sleeper{})
	require.NoError(t, connect(t, c))

	require.NoError(t, env.Store.Delete(context.Background(), "user-1", domain.PlatformFacebook))

	_, err := c.Publish(context.Background(), "user-1", &domain.PublishRequest{
		Text:     "sunrise",
		ImageURL: "https://cdn.example.com/pic.jpg",
	})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Empty(t, g.steps, "nothing is sent to the vendor")
}
