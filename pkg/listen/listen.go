// Package listen is the public entry point of the client. Open loads the
// configuration directory, installs the configured logger and starts a
// listen engine on top of the caller's local cache.
package listen

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/syntrixbase/syntrix-client/internal/config"
	"github.com/syntrixbase/syntrix-client/internal/engine"
	"github.com/syntrixbase/syntrix-client/internal/listener"
	"github.com/syntrixbase/syntrix-client/internal/logging"
	"github.com/syntrixbase/syntrix-client/internal/query"
	"github.com/syntrixbase/syntrix-client/internal/view"
)

type (
	Query           = query.Query
	Snapshot        = view.Snapshot
	Changes         = view.Changes
	TargetChange    = view.TargetChange
	ListenOptions   = listener.ListenOptions
	Handler         = listener.Handler
	Registration    = engine.Registration
	Cache           = engine.Cache
	RemoteKeysCache = engine.RemoteKeysCache
	Option          = engine.Option
)

var (
	// NewQuery validates and compiles a collection query.
	NewQuery = query.New
	// IncludeAllMetadataChanges returns options surfacing every metadata change.
	IncludeAllMetadataChanges = listener.IncludeAllMetadataChanges
	// WithMetrics replaces the default Prometheus metrics sink.
	WithMetrics = engine.WithMetrics

	// ErrNilCache is returned by Open without a cache.
	ErrNilCache = errors.New("listen: nil cache")
)

// Client is a running listen engine plus the logging it set up. Engine
// methods (Listen, ApplyChanges, HandleOnlineStateChange, HandleError, ...)
// are available directly on the Client.
type Client struct {
	*engine.Engine

	cfg       config.Config
	closeOnce sync.Once
	closeErr  error
}

// Open reads configDir (config.yml, then config.local.yml, then environment
// overrides), initializes logging from it and starts the engine. Log files
// resolve against the parent of configDir.
func Open(configDir string, cache Cache, opts ...Option) (*Client, error) {
	if cache == nil {
		return nil, ErrNilCache
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	// The engine picks up the logger Initialize just installed.
	eng := engine.New(cfg.Listener, cache, opts...)
	slog.Info("Listen client started", "workers", cfg.Listener.Workers, "config_dir", configDir)
	return &Client{Engine: eng, cfg: *cfg}, nil
}

// Config returns the effective configuration.
func (c *Client) Config() config.Config { return c.cfg }

// Close stops the engine, then flushes and closes log outputs. Calling it
// again returns the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.Engine.Close()
		slog.Info("Listen client stopped")
		c.closeErr = logging.Shutdown()
	})
	return c.closeErr
}
