package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresTokenAndBaseURL(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("MEME_API_BASE_URL", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("BOT_TOKEN", "123:abc")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("MEME_API_BASE_URL", "http://localhost:2233/")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "123:abc", cfg.BotToken)
	// Trailing slash is normalized away.
	require.Equal(t, "http://localhost:2233", cfg.APIBaseURL)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("MEME_API_BASE_URL", "http://localhost:2233")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.MetadataTimeout)
	require.Equal(t, 60*time.Second, cfg.GenerateTimeout)
	require.True(t, cfg.EagerRefresh)
	require.True(t, cfg.TolerateExcess)
	require.Empty(t, cfg.DisabledMemes)
	require.Nil(t, cfg.DenySet())
}

func TestLoadDenyList(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("MEME_API_BASE_URL", "http://localhost:2233")
	t.Setenv("DISABLED_MEMES", "petpet, drake ,,")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"petpet", "drake"}, cfg.DisabledMemes)

	deny := cfg.DenySet()
	require.Contains(t, deny, "petpet")
	require.Contains(t, deny, "drake")
	require.Len(t, deny, 2)
}
