// Package config loads host configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

var validate = validator.New()

// Config holds all host configuration.
type Config struct {
	Script  ScriptConfig
	Logging LogConfig
}

// ScriptConfig configures the runtime host.
type ScriptConfig struct {
	BaseDir      string        `envconfig:"SCRIPT_BASE_DIR"`
	CacheBackend string        `envconfig:"SCRIPT_CACHE_BACKEND" default:"memory" validate:"oneof=memory dir"`
	CacheDir     string        `envconfig:"SCRIPT_CACHE_DIR" validate:"required_if=CacheBackend dir"`
	PolicyFile   string        `envconfig:"SCRIPT_POLICY_FILE"`
	GrantsFile   string        `envconfig:"SCRIPT_GRANTS_FILE"`
	Timeout      time.Duration `envconfig:"SCRIPT_TIMEOUT" default:"30s" validate:"gte=0"`
	FetchTimeout time.Duration `envconfig:"SCRIPT_FETCH_TIMEOUT" default:"10s" validate:"gte=0"`
	MaxOutput    int           `envconfig:"SCRIPT_MAX_OUTPUT" default:"1048576" validate:"gte=0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Script: ScriptConfig{
			CacheBackend: "memory",
			Timeout:      30 * time.Second,
			FetchTimeout: 10 * time.Second,
			MaxOutput:    1 << 20,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
