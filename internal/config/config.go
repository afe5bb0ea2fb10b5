// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	API   APIConfig
	Cache CacheConfig
	HTTP  HTTPConfig
	Log   LogConfig
}

// APIConfig holds upstream API configuration
type APIConfig struct {
	BaseURL   string        `env:"FRACTALTHORNS_BASE_URL" envDefault:"https://fractalthorns.com"`
	UserAgent string        `env:"FRACTALRHOMB_USER_AGENT"`
	SplashKey string        `env:"FRACTALTHORNS_API_KEY"`
	Timeout   time.Duration `env:"FRACTALTHORNS_TIMEOUT" envDefault:"30s"`
	ConnLimit int           `env:"FRACTALTHORNS_CONN_LIMIT" envDefault:"6"`
}

// CacheConfig holds cache persistence configuration
type CacheConfig struct {
	Dir string `env:"FRACTALRHOMB_CACHE_DIR" envDefault:".apicache"`
}

// HTTPConfig holds the admin server configuration
type HTTPConfig struct {
	Addr            string        `env:"FRACTALRHOMB_ADDR" envDefault:":8080"`
	AdminToken      string        `env:"FRACTALRHOMB_ADMIN_TOKEN"`
	ShutdownTimeout time.Duration `env:"FRACTALRHOMB_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `env:"FRACTALRHOMB_LOG_LEVEL" envDefault:"info"`
	Pretty bool   `env:"FRACTALRHOMB_LOG_PRETTY" envDefault:"false"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasSplashKey returns true if splash submission is configured
func (c *Config) HasSplashKey() bool {
	return c.API.SplashKey != ""
}

// Validate checks value ranges the env tags cannot express
func (c *Config) Validate() error {
	if c.API.ConnLimit < 1 {
		return fmt.Errorf("FRACTALTHORNS_CONN_LIMIT must be at least 1, got %d", c.API.ConnLimit)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("FRACTALTHORNS_TIMEOUT must be positive, got %s", c.API.Timeout)
	}
	return nil
}
