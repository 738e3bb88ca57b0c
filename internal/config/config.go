package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/syntrixbase/syntrix-client/internal/engine"
	"gopkg.in/yaml.v3"
)

// Config holds the client configuration
type Config struct {
	Logging  LoggingConfig `yaml:"logging"`
	Listener engine.Config `yaml:"listener"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Logging:  DefaultLoggingConfig(),
		Listener: engine.DefaultConfig(),
	}
}

// Load reads configuration from configDir.
// Order: defaults -> config.yml -> config.local.yml -> ApplyDefaults -> ApplyEnvOverrides -> ResolvePaths -> Validate
// Missing files are skipped. Runtime data (logs) resolves against the
// parent of configDir.
func Load(configDir string) (*Config, error) {
	cfg := DefaultConfig()

	for _, name := range []string{"config.yml", "config.local.yml"} {
		if err := loadFile(filepath.Join(configDir, name), cfg); err != nil {
			return nil, err
		}
	}

	dataDir := filepath.Dir(filepath.Clean(configDir))
	if err := ApplyServiceConfigs(configDir, dataDir, &cfg.Logging, &cfg.Listener); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func loadFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return nil
}
