package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 16, cfg.Workers)
	assert.False(t, cfg.DefaultOptions.WaitForSyncWhenOnline)
	assert.NoError(t, cfg.Validate())

	var empty Config
	empty.ApplyDefaults()
	assert.Equal(t, 16, empty.Workers)
}

func TestConfig_ApplyEnvOverrides(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		t.Setenv("SYNTRIX_LISTEN_WORKERS", "8")
		cfg := DefaultConfig()
		cfg.ApplyEnvOverrides()
		assert.Equal(t, 8, cfg.Workers)
	})

	t.Run("invalid is ignored", func(t *testing.T) {
		t.Setenv("SYNTRIX_LISTEN_WORKERS", "many")
		cfg := DefaultConfig()
		cfg.ApplyEnvOverrides()
		assert.Equal(t, 16, cfg.Workers)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		wantErr bool
	}{
		{"one", 1, false},
		{"max", 1024, false},
		{"zero", 0, true},
		{"negative", -2, true},
		{"too many", 1025, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Workers: tt.workers}
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
