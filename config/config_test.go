package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesConstants(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 10, cfg.Epochs)
	assert.Equal(t, 30, cfg.ImageWidth)
	assert.Equal(t, 30, cfg.ImageHeight)
	assert.Equal(t, 43, cfg.NumCategories)
	assert.InDelta(t, 0.4, cfg.TestSize, 1e-9)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("TRAFFIC_EPOCHS", "3")
	t.Setenv("TRAFFIC_TEST_SIZE", "0.25")
	t.Setenv("TRAFFIC_SKIP_INVALID_IMAGES", "true")
	t.Setenv("TRAFFIC_LOG_LEVEL", " DEBUG ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Epochs)
	assert.InDelta(t, 0.25, cfg.TestSize, 1e-9)
	assert.True(t, cfg.SkipInvalidImages)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, NumCategories, cfg.NumCategories)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("TRAFFIC_EPOCHS", "ten")
	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero epochs", func(c *Config) { c.Epochs = 0 }},
		{"negative width", func(c *Config) { c.ImageWidth = -1 }},
		{"zero height", func(c *Config) { c.ImageHeight = 0 }},
		{"no categories", func(c *Config) { c.NumCategories = 0 }},
		{"test size zero", func(c *Config) { c.TestSize = 0 }},
		{"test size one", func(c *Config) { c.TestSize = 1 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"zero learning rate", func(c *Config) { c.LearningRate = 0 }},
		{"dropout one", func(c *Config) { c.DropoutRate = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestEnvVarsArePrefixed(t *testing.T) {
	for _, v := range Default().EnvVars() {
		assert.Contains(t, v.Name, EnvPrefix)
		assert.NotEmpty(t, v.Description)
	}
}
