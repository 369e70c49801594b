package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "bolt", cfg.Storage.Type)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, 8080, cfg.Server.APIPort)
	assert.Equal(t, []string{"Spotify"}, cfg.Tracking.Denylist)
	assert.Equal(t, []string{"playing", "streaming"}, cfg.Tracking.EligibleKinds)
	assert.Equal(t, "60s", cfg.Tracking.MinSessionDuration)
	assert.Equal(t, "500ms", cfg.Tracking.WriteRetry.InitialInterval)
	assert.Equal(t, "playtime:presence", cfg.Feed.Channel)
	assert.Equal(t, "casino game: %s", cfg.Reporter.Template)
	assert.Equal(t, "localhost", cfg.Storage.Redis.Host)
	assert.Equal(t, 256, cfg.Cache.Size)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  type: sqlite
  path: /tmp/playtime.db
tracking:
  denylist: ["Spotify", "Netflix"]
  min_session_duration: 2m
feed:
  type: stdin
reporter:
  enabled: true
  label: Poker
  interval: 5m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "/tmp/playtime.db", cfg.Storage.Path)
	assert.Equal(t, []string{"Spotify", "Netflix"}, cfg.Tracking.Denylist)
	assert.Equal(t, "2m", cfg.Tracking.MinSessionDuration)
	assert.Equal(t, "stdin", cfg.Feed.Type)
	assert.True(t, cfg.Reporter.Enabled)
	assert.Equal(t, "Poker", cfg.Reporter.Label)
	assert.Equal(t, "5m", cfg.Reporter.Interval)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PLAYTIME_STORAGE_TYPE", "redis")
	t.Setenv("PLAYTIME_STORAGE_REDIS_HOST", "redis.internal")
	t.Setenv("PLAYTIME_TRACKING_MIN_SESSION_DURATION", "90s")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, "redis.internal", cfg.Storage.Redis.Host)
	assert.Equal(t, "90s", cfg.Tracking.MinSessionDuration)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown storage", "storage:\n  type: mongo\n"},
		{"missing path", "storage:\n  type: sqlite\n  path: \"\"\n"},
		{"unknown feed", "feed:\n  type: kafka\n"},
		{"bad duration", "tracking:\n  min_session_duration: soon\n"},
		{"negative duration", "tracking:\n  min_session_duration: -5s\n"},
		{"bad metrics port", "server:\n  metrics_port: 70000\n"},
		{"reporter without label", "reporter:\n  enabled: true\n"},
		{"reporter template without verb", "reporter:\n  enabled: true\n  label: Poker\n  template: static\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsZeroMinSessionDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "tracking:\n  min_session_duration: 0s\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_session_duration must be positive")

	cfg, err := Load(writeConfig(t, "tracking:\n  min_session_duration: 1s\n"))
	require.NoError(t, err)
	assert.Equal(t, "1s", cfg.Tracking.MinSessionDuration)
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "storage: [unterminated\n"))
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "bolt", cfg.Storage.Type)
	assert.Equal(t, "10m", cfg.Reporter.Interval)
	assert.Equal(t, "localhost", cfg.Feed.Redis.Host)
}

func TestUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
storage:
  type: bolt
  pth: /tmp/typo.bolt
tracking:
  denylist: ["Spotify"]
dns:
  upstream: 1.1.1.1
`)

	unknown, err := UnknownKeys(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"dns.upstream", "storage.pth"}, unknown)
}

func TestUnknownKeysMissingFile(t *testing.T) {
	_, err := UnknownKeys(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
