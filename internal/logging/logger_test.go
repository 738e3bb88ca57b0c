package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/syntrix-client/internal/config"
)

func captureConsole(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := console
	console = &buf
	t.Cleanup(func() { console = prev })
	return &buf
}

func fileConfig(t *testing.T) config.LoggingConfig {
	cfg := config.DefaultLoggingConfig()
	cfg.Dir = t.TempDir()
	cfg.Console.Enabled = false
	cfg.File.Enabled = true
	cfg.Dedup.Enabled = false
	return cfg
}

func TestNewLogger_FileOutputs(t *testing.T) {
	cfg := fileConfig(t)
	cfg.File.Format = "json"

	logger, err := NewLogger(cfg)
	require.NoError(t, err)

	logger.Info("listener registered", "listener", "abc")
	logger.Warn("listen failed", "query", "users")
	require.NoError(t, Shutdown())

	main, err := os.ReadFile(filepath.Join(cfg.Dir, "listen.log"))
	require.NoError(t, err)
	assert.Contains(t, string(main), `"msg":"listener registered"`)
	assert.Contains(t, string(main), `"msg":"listen failed"`)

	errs, err := os.ReadFile(filepath.Join(cfg.Dir, "errors.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(errs), "listener registered")
	assert.Contains(t, string(errs), "listen failed")
}

func TestNewLogger_ConsoleLevel(t *testing.T) {
	buf := captureConsole(t)
	cfg := config.DefaultLoggingConfig()
	cfg.Console.Level = "warn"
	cfg.Dedup.Enabled = false

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Error("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLogger_NoOutputs(t *testing.T) {
	cfg := config.DefaultLoggingConfig()
	cfg.Console.Enabled = false
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	logger.Info("nowhere")
	require.NoError(t, Shutdown())
}

func TestNewLogger_DedupFlushedOnShutdown(t *testing.T) {
	buf := captureConsole(t)
	cfg := config.DefaultLoggingConfig()
	cfg.Dedup.Window = time.Hour

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		logger.Debug("ignored below level")
		logger.Info("snapshot suppressed", "reason", "no_changes")
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "snapshot suppressed"))

	require.NoError(t, Shutdown())
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "snapshot suppressed"))
	assert.Contains(t, out, "repeated_count=2")
}

func TestInitialize(t *testing.T) {
	buf := captureConsole(t)
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := config.DefaultLoggingConfig()
	cfg.Dedup.Enabled = false
	require.NoError(t, Initialize(cfg))
	assert.Contains(t, buf.String(), "Logging initialized")
	require.NoError(t, Shutdown())
}

func TestNewLogger_BadDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	cfg := fileConfig(t)
	cfg.Dir = filepath.Join(blocker, "logs")
	_, err := NewLogger(cfg)
	assert.ErrorContains(t, err, "failed to create log directory")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
