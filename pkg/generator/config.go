package generator

import (
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"

	"github.com/benjaminschreck/go-dynprompts/internal/logging"
)

// EnvPrefix prefixes every environment variable read by ConfigFromEnvironment.
const EnvPrefix = "DYNPROMPTS_"

// Config contains the tunables of a generator.
type Config struct {
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// CacheMaxSize is the maximum number of parsed templates kept per
	// generator. 0 disables caching.
	CacheMaxSize int `env:"CACHE_MAX_SIZE" envDefault:"100"`
	// CacheTTL is the time-to-live for cached templates. 0 means no expiration.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"0s"`
	// MaxWildcardDepth bounds nested wildcard resolution.
	MaxWildcardDepth int `env:"MAX_WILDCARD_DEPTH" envDefault:"32"`
	// StrictMode makes undefined template variables an error.
	StrictMode bool `env:"STRICT_MODE" envDefault:"false"`
	// Seed, when set, makes every call produce the same random choices.
	Seed *uint64 `env:"SEED"`
}

var (
	globalConfig      *Config
	globalConfigMutex sync.RWMutex
	configOnce        sync.Once
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel:         "info",
		CacheMaxSize:     100,
		MaxWildcardDepth: DefaultMaxWildcardDepth,
	}
}

// ConfigFromEnvironment reads DYNPROMPTS_* variables on top of the defaults.
func ConfigFromEnvironment() (*Config, error) {
	config := DefaultConfig()
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	return config, nil
}

// NewConfigWithDefaults fills the zero fields of overrides with defaults.
func NewConfigWithDefaults(overrides *Config) *Config {
	defaults := DefaultConfig()
	if overrides == nil {
		return defaults
	}

	config := *overrides
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.MaxWildcardDepth == 0 {
		config.MaxWildcardDepth = defaults.MaxWildcardDepth
	}
	if config.Seed != nil {
		seed := *config.Seed
		config.Seed = &seed
	}
	return &config
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.CacheMaxSize < 0 {
		return errors.New("cache max size cannot be negative")
	}
	if c.CacheTTL < 0 {
		return errors.New("cache TTL cannot be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MaxWildcardDepth <= 0 {
		return errors.New("max wildcard depth must be positive")
	}
	return nil
}

// GetGlobalConfig returns a copy of the process-wide configuration. It is
// read from the environment on first use.
func GetGlobalConfig() *Config {
	configOnce.Do(func() {
		config, err := ConfigFromEnvironment()
		if err != nil {
			logging.WithField("error", err).Warn("Ignoring invalid environment configuration")
			config = DefaultConfig()
		}
		globalConfigMutex.Lock()
		if globalConfig == nil {
			globalConfig = config
		}
		globalConfigMutex.Unlock()
	})

	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()
	return NewConfigWithDefaults(globalConfig)
}

// SetGlobalConfig replaces the process-wide configuration and applies its
// log level.
func SetGlobalConfig(config *Config) {
	configOnce.Do(func() {})

	globalConfigMutex.Lock()
	globalConfig = NewConfigWithDefaults(config)
	level := globalConfig.LogLevel
	globalConfigMutex.Unlock()

	if err := logging.SetLevel(level); err != nil {
		logging.WithField("error", err).Warn("Ignoring invalid log level")
	}
}
