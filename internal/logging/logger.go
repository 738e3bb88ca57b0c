package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/syntrixbase/syntrix-client/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	mainLogFile  = "listen.log"
	errorLogFile = "errors.log"
)

var (
	// closers are released by Shutdown: rotating files and dedup handlers.
	closers   []io.Closer
	closersMu sync.Mutex

	// console is the writer used for console output; tests replace it.
	console io.Writer = os.Stdout
)

// Initialize builds a logger from cfg and installs it as slog's default.
func Initialize(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)

	slog.Info("Logging initialized",
		"level", cfg.Level,
		"dir", cfg.Dir,
		"console", cfg.Console.Enabled,
		"file", cfg.File.Enabled,
		"dedup_window", cfg.Dedup.Window,
	)
	return nil
}

// NewLogger creates a logger with the outputs enabled in cfg. File output
// writes every record at or above the file level to listen.log and warnings
// and errors to errors.log, both rotated by size and age.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var handlers []slog.Handler

	if cfg.Console.Enabled {
		handlers = append(handlers, newHandler(console, cfg.Console.Format, parseLevel(cfg.Console.Level)))
	}

	if cfg.File.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		level := parseLevel(cfg.File.Level)

		listen := rotatingFile(cfg, mainLogFile)
		handlers = append(handlers, newHandler(listen, cfg.File.Format, level))

		errLevel := max(level, slog.LevelWarn)
		errs := rotatingFile(cfg, errorLogFile)
		handlers = append(handlers, NewLevelFilter(newHandler(errs, cfg.File.Format, errLevel), errLevel))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, nil)
	case 1:
		handler = handlers[0]
	default:
		handler = NewMultiHandler(handlers...)
	}

	if cfg.Dedup.Enabled && cfg.Dedup.Window > 0 {
		dedup := NewDedupHandler(handler, cfg.Dedup.Window)
		register(dedup)
		handler = dedup
	}

	return slog.New(handler), nil
}

// Shutdown flushes dedup summaries and closes log files. Closers are
// released in reverse order of creation so summaries reach open files.
func Shutdown() error {
	closersMu.Lock()
	defer closersMu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close log output: %w", err))
		}
	}
	closers = nil
	return errors.Join(errs...)
}

func rotatingFile(cfg config.LoggingConfig, name string) *lumberjack.Logger {
	f := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	}
	register(f)
	return f
}

func register(c io.Closer) {
	closersMu.Lock()
	defer closersMu.Unlock()
	closers = append(closers, c)
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
