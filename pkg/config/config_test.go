package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, DefaultFilePort, cfg.File.Port)
	assert.Equal(t, DefaultUserPort, cfg.User.Port)
	assert.Equal(t, DefaultRouterPort, cfg.Router.Port)
	assert.Equal(t, int64(10<<20), cfg.File.SizeLimit)
	assert.Equal(t, 8*time.Hour, cfg.Router.Timeout.Std())
	assert.Equal(t, time.Minute, cfg.Router.VirginTimeout.Std())
	assert.Equal(t, 10, cfg.Router.MaxSessions)
	assert.False(t, cfg.Router.NewSessionsWin)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr())
}

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, Validate(GetDefaultConfig()))
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "LOUD"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestValidate_PortOutOfRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Router.Port = 70000

	require.Error(t, Validate(cfg))
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: debug
file:
  basedir: "ca:/srv/games"
  sizelimit: 1048576
router:
  server: /usr/bin/playserver
  timeout: 30m
  newsessionswin: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "ca:/srv/games", cfg.File.BaseDir)
	assert.Equal(t, int64(1048576), cfg.File.SizeLimit)
	assert.Equal(t, "/usr/bin/playserver", cfg.Router.Server)
	assert.Equal(t, 30*time.Minute, cfg.Router.Timeout.Std())
	assert.True(t, cfg.Router.NewSessionsWin)

	// Unset sections fall back to defaults.
	assert.Equal(t, DefaultUserPort, cfg.User.Port)
}

func TestLoad_DurationAsSeconds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("router:\n  virgintimeout: 90\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Router.VirginTimeout.Std())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRouterPort, cfg.Router.Port)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := GetDefaultConfig()
	cfg.User.Key = "pepper"
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pepper", loaded.User.Key)
}
