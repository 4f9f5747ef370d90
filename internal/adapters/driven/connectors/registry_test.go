package connectors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors/connectortest"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors/twitter"
	"github.com/clickstudio/connect-core/internal/adapters/driven/connectors/youtube"
	"github.com/clickstudio/connect-core/internal/core/domain"
)

func TestRegistry(t *testing.T) {
	env := connectortest.NewEnv(t)
	yt := youtube.New(youtube.Config{}, env.Deps)
	tw := twitter.New(twitter.Config{Credentials: connectors.Credentials{ClientID: "id", ClientSecret: "secret"}}, env.Deps)

	reg := connectors.NewRegistry(yt, tw)

	got, err := reg.Get(domain.PlatformTwitter)
	require.NoError(t, err)
	assert.Same(t, tw, got)

	_, err = reg.Get(domain.PlatformTikTok)
	assert.ErrorIs(t, err, domain.ErrUnsupportedPlatform)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, domain.PlatformTwitter, list[0].Platform(), "listed in platform order")
	assert.Equal(t, domain.PlatformYouTube, list[1].Platform())

	assert.Equal(t, []domain.Platform{domain.PlatformTwitter}, reg.Configured())
	assert.True(t, reg.IsConfigured(domain.PlatformTwitter))
	assert.False(t, reg.IsConfigured(domain.PlatformYouTube))
	assert.False(t, reg.IsConfigured(domain.PlatformFacebook))
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	env := connectortest.NewEnv(t)
	first := twitter.New(twitter.Config{}, env.Deps)
	second := twitter.New(twitter.Config{}, env.Deps)

	reg := connectors.NewRegistry(first)
	reg.Register(second)

	got, err := reg.Get(domain.PlatformTwitter)
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Len(t, reg.List(), 1)
}
