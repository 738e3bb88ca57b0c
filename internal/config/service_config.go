package config

// ServiceConfig defines the configuration lifecycle every section follows.
type ServiceConfig interface {
	// ApplyDefaults fills zero values with defaults
	ApplyDefaults()

	// ApplyEnvOverrides applies SYNTRIX_* environment variables
	ApplyEnvOverrides()

	// ResolvePaths makes relative paths absolute.
	// - configDir: base for config-related paths
	// - dataDir: base for runtime data such as logs
	ResolvePaths(configDir, dataDir string)

	// Validate returns an error if the section is invalid.
	Validate() error
}

// ApplyServiceConfigs runs the lifecycle on each section in order and stops
// at the first validation error.
func ApplyServiceConfigs(configDir, dataDir string, configs ...ServiceConfig) error {
	for _, cfg := range configs {
		cfg.ApplyDefaults()
		cfg.ApplyEnvOverrides()
		cfg.ResolvePaths(configDir, dataDir)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}
