// Package config collects the server's runtime settings from the
// environment and applies sane defaults for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultPort           = 8080
	DefaultDBPath         = "exchange.db"
	DefaultSettleInterval = 30 * time.Second
	DefaultEnv            = "development"

	// Development-only fallback; production must set JWT_SECRET.
	devJWTSecret = "dev-secret-change-me"
)

type Config struct {
	Port           int
	DBPath         string
	JWTSecret      string
	InternalSecret string
	Env            string
	Debug          bool
	SettleInterval time.Duration
}

// FromEnv builds a Config from environment variables, applies defaults,
// and validates the result.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DBPath:         os.Getenv("DB_PATH"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		InternalSecret: os.Getenv("INTERNAL_SECRET"),
		Env:            os.Getenv("ENV"),
		Debug:          os.Getenv("DEBUG") == "true",
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("SETTLE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SETTLE_INTERVAL %q: %w", v, err)
		}
		cfg.SettleInterval = d
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.Env == "" {
		c.Env = DefaultEnv
	}
	if c.SettleInterval == 0 {
		c.SettleInterval = DefaultSettleInterval
	}
	if c.JWTSecret == "" && c.Env != "production" {
		c.JWTSecret = devJWTSecret
	}
	if c.InternalSecret == "" {
		c.InternalSecret = c.JWTSecret
	}
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in production")
	}
	if c.SettleInterval < time.Second {
		return fmt.Errorf("settle interval must be at least 1s, got %s", c.SettleInterval)
	}
	return nil
}

// Production reports whether the server runs with production settings.
func (c *Config) Production() bool {
	return c.Env == "production"
}
