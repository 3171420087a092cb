package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:5000", cfg.HTTP.Listen)
	assert.Equal(t, 5, cfg.Phone.PollIntervalSec)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headunit.toml")
	data := `
[http]
listen = "127.0.0.1:8080"

[phone]
poll_interval_sec = 2
held_timer_policy = "pause"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Listen)
	assert.Equal(t, 2, cfg.Phone.PollIntervalSec)
	assert.Equal(t, HeldTimerPause, cfg.Phone.HeldTimerPolicy)
	// Untouched sections keep defaults.
	assert.Equal(t, "localhost:6600", cfg.Music.MPDAddr)
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headunit.toml")
	data := `
[phone]
held_timer_policy = "freeze"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
