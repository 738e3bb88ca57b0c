package engine

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/syntrixbase/syntrix-client/internal/listener"
)

const (
	defaultWorkers = 16
	maxWorkers     = 1024
)

// Config holds the listen engine configuration
type Config struct {
	// Workers is the number of serial delivery queues shared by listeners.
	Workers int `yaml:"workers"`
	// DefaultOptions apply to Listen calls that pass no options.
	DefaultOptions listener.ListenOptions `yaml:"default_options"`
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		Workers: defaultWorkers,
	}
}

// ApplyDefaults fills in missing values with defaults
func (c *Config) ApplyDefaults() {
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
}

// ApplyEnvOverrides applies environment variable overrides
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SYNTRIX_LISTEN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("Ignoring invalid SYNTRIX_LISTEN_WORKERS", "value", v, "error", err)
			return
		}
		c.Workers = n
	}
}

// ResolvePaths is a no-op; the engine has no path settings.
func (c *Config) ResolvePaths(_, _ string) {}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Workers <= 0 || c.Workers > maxWorkers {
		return fmt.Errorf("listener.workers must be between 1 and %d, got %d", maxWorkers, c.Workers)
	}
	return nil
}
