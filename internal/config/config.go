// Package config loads broker configuration from environment variables,
// with the listening port supplied positionally per spec §6.5.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config lists the tunable parameters for the broker process. Port is not
// an env-tagged field: it is always taken from the required positional
// `broker <port>` argument and merged in after Load.
type Config struct {
	Port int `env:"-"`

	LogLevel    string `env:"TOPICBROKER_LOG_LEVEL" envDefault:"info"`
	DatabasePath string `env:"TOPICBROKER_DATABASE_PATH" envDefault:"data/topicbroker.db"`
	MetricsAddr string `env:"TOPICBROKER_METRICS_ADDR" envDefault:":9090"`
	MDNSEnabled bool   `env:"TOPICBROKER_MDNS_ENABLED" envDefault:"true"`

	UDPRatePerSecond float64 `env:"TOPICBROKER_UDP_RATE" envDefault:"200"`
	UDPRateBurst     int     `env:"TOPICBROKER_UDP_BURST" envDefault:"400"`
}

// Load derives configuration from environment variables, falling back to
// the struct tag defaults above.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks for invalid combinations Load cannot catch via struct
// tags alone.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("config: TOPICBROKER_LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	if c.UDPRatePerSecond <= 0 {
		return fmt.Errorf("config: TOPICBROKER_UDP_RATE must be > 0, got %f", c.UDPRatePerSecond)
	}
	if c.UDPRateBurst <= 0 {
		return fmt.Errorf("config: TOPICBROKER_UDP_BURST must be > 0, got %d", c.UDPRateBurst)
	}
	return nil
}
