package store

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for the Store.
type Config struct {
	// MaxFanOut bounds concurrent index row writes per index operation.
	// Default: 0 (unlimited)
	MaxFanOut int `yaml:"max_fan_out"`

	// IndexTablePrefix is prepended to default index table names
	// ({table}{field}). Declared names are used as is.
	// Default: ""
	IndexTablePrefix string `yaml:"index_table_prefix"`

	// Logger receives compensation and repair logs.
	// Default: slog.Default()
	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Logger: slog.Default()}
}

// LoadConfig parses a YAML configuration on top of the defaults.
func LoadConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.MaxFanOut < 0 {
		return Config{}, fmt.Errorf("invalid config: max_fan_out must not be negative, got %d", cfg.MaxFanOut)
	}
	return cfg, nil
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.MaxFanOut < 0 {
		c.MaxFanOut = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
