package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_MissingFilesUseDefaults(t *testing.T) {
	root := t.TempDir()
	configDir := filepath.Join(root, "config")

	cfg, err := Load(configDir)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Listener.Workers)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, filepath.Join(root, "logs"), cfg.Logging.Dir)
	assert.False(t, cfg.Listener.DefaultOptions.WaitForSyncWhenOnline)
}

func TestLoad_LocalOverridesBase(t *testing.T) {
	root := t.TempDir()
	configDir := filepath.Join(root, "config")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	writeFile(t, configDir, "config.yml", `
logging:
  level: debug
  dedup:
    window: 2s
listener:
  workers: 4
  default_options:
    include_query_metadata_changes: true
`)
	writeFile(t, configDir, "config.local.yml", `
listener:
  workers: 2
  default_options:
    wait_for_sync_when_online: true
`)

	cfg, err := Load(configDir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Listener.Workers)
	assert.True(t, cfg.Listener.DefaultOptions.WaitForSyncWhenOnline)
	assert.True(t, cfg.Listener.DefaultOptions.IncludeQueryMetadataChanges)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2*time.Second, cfg.Logging.Dedup.Window)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SYNTRIX_LISTEN_WORKERS", "3")
	t.Setenv("SYNTRIX_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "config"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Listener.Workers)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "warn", cfg.Logging.Console.Level)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("malformed yaml", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "config.yml", "listener: [unclosed")
		_, err := Load(dir)
		assert.ErrorContains(t, err, "failed to parse")
	})

	t.Run("invalid value", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "config.yml", "listener:\n  workers: -1\n")
		_, err := Load(dir)
		assert.ErrorContains(t, err, "configuration error")
	})
}
