package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no stray .env is read
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 65536, cfg.Lobby.MaxFrameSize)
	assert.Equal(t, 1000, cfg.Game.TickMs)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "gamelobby.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
lobby:
  port: 7777
  upload_timeout: 3s
game:
  port_min: 9500
  port_max: 9510
storage:
  type: redis
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Lobby.Port)
	assert.Equal(t, 3*time.Second, cfg.Lobby.UploadTimeout)
	assert.Equal(t, 9500, cfg.Game.PortMin)
	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, "0.0.0.0", cfg.Lobby.Host)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "gamelobby.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lobby:\n  port: 7777\n"), 0o600))
	t.Setenv("GAMELOBBY_LOBBY_PORT", "6666")
	t.Setenv("GAMELOBBY_AUTH_PASSWORD_HASH", "sha256")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Lobby.Port)
	assert.Equal(t, "sha256", cfg.Auth.PasswordHash)
}

func TestDotEnvIsRead(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GAMELOBBY_GAME_TICKET_SECRET=s3cret\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("GAMELOBBY_GAME_TICKET_SECRET") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Game.TicketSecret)
}

func TestLoadMissingFile(t *testing.T) {
	dir := inTempDir(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"inverted port range", func(c *Config) { c.Game.PortMin, c.Game.PortMax = 9200, 9100 }},
		{"zero frame size", func(c *Config) { c.Lobby.MaxFrameSize = 0 }},
		{"zero tick", func(c *Config) { c.Game.TickMs = 0 }},
		{"unknown storage", func(c *Config) { c.Storage.Type = "sqlite" }},
		{"unknown blob store", func(c *Config) { c.Marketplace.BlobStore = "ftp" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}
