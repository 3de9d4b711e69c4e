package generator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, 100, config.CacheMaxSize)
	assert.Equal(t, time.Duration(0), config.CacheTTL)
	assert.Equal(t, DefaultMaxWildcardDepth, config.MaxWildcardDepth)
	assert.False(t, config.StrictMode)
	assert.Nil(t, config.Seed)
	assert.NoError(t, config.Validate())
}

func TestConfigFromEnvironment(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, config *Config)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, config *Config) {
				assert.Equal(t, DefaultConfig(), config)
			},
		},
		{
			name:    "cache",
			envVars: map[string]string{"DYNPROMPTS_CACHE_MAX_SIZE": "5", "DYNPROMPTS_CACHE_TTL": "5m"},
			check: func(t *testing.T, config *Config) {
				assert.Equal(t, 5, config.CacheMaxSize)
				assert.Equal(t, 5*time.Minute, config.CacheTTL)
			},
		},
		{
			name:    "depth and strict mode",
			envVars: map[string]string{"DYNPROMPTS_MAX_WILDCARD_DEPTH": "4", "DYNPROMPTS_STRICT_MODE": "true"},
			check: func(t *testing.T, config *Config) {
				assert.Equal(t, 4, config.MaxWildcardDepth)
				assert.True(t, config.StrictMode)
			},
		},
		{
			name:    "seed and log level",
			envVars: map[string]string{"DYNPROMPTS_SEED": "1234", "DYNPROMPTS_LOG_LEVEL": "debug"},
			check: func(t *testing.T, config *Config) {
				require.NotNil(t, config.Seed)
				assert.Equal(t, uint64(1234), *config.Seed)
				assert.Equal(t, "debug", config.LogLevel)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			config, err := ConfigFromEnvironment()
			require.NoError(t, err)
			tt.check(t, config)
		})
	}
}

func TestConfigFromEnvironment_Invalid(t *testing.T) {
	t.Setenv("DYNPROMPTS_CACHE_MAX_SIZE", "lots")

	_, err := ConfigFromEnvironment()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestNewConfigWithDefaults(t *testing.T) {
	assert.Equal(t, DefaultConfig(), NewConfigWithDefaults(nil))

	seed := uint64(9)
	config := NewConfigWithDefaults(&Config{CacheMaxSize: 3, Seed: &seed})
	assert.Equal(t, 3, config.CacheMaxSize)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, DefaultMaxWildcardDepth, config.MaxWildcardDepth)

	seed = 10
	assert.Equal(t, uint64(9), *config.Seed)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative cache", func(c *Config) { c.CacheMaxSize = -1 }},
		{"negative ttl", func(c *Config) { c.CacheTTL = -time.Second }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero depth", func(c *Config) { c.MaxWildcardDepth = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestGlobalConfig(t *testing.T) {
	original := GetGlobalConfig()
	t.Cleanup(func() {
		SetGlobalConfig(original)
	})

	SetGlobalConfig(&Config{CacheMaxSize: 7, LogLevel: "warn"})
	got := GetGlobalConfig()
	assert.Equal(t, 7, got.CacheMaxSize)
	assert.Equal(t, DefaultMaxWildcardDepth, got.MaxWildcardDepth)

	got.CacheMaxSize = 99
	assert.Equal(t, 7, GetGlobalConfig().CacheMaxSize)
}
