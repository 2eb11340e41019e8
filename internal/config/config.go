package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Storage backends for users and access tokens.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds application level settings. Database and logger settings are
// read by their own packages.
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"service-user-go"`
	AppKey  string `env:"APP_KEY"`

	// Debug exposes real error text in 500 responses.
	Debug bool `env:"APP_DEBUG" envDefault:"false"`

	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8431"`
	HTTPBasePath    string        `env:"HTTP_BASE_PATH" envDefault:"/api"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	TokenIssuer string `env:"TOKEN_ISSUER" envDefault:"service-user-go"`
	BcryptCost  int    `env:"BCRYPT_COST" envDefault:"12"`

	Storage     string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	AutoMigrate bool   `env:"DATABASE_AUTO_MIGRATE" envDefault:"true"`
}

// Load parses Config from the environment. Callers load .env beforehand.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AppKey == "" {
		return errors.New("APP_KEY is required")
	}
	switch c.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST out of range: %d", c.BcryptCost)
	}
	if c.HTTPBasePath == "/" {
		c.HTTPBasePath = ""
	}
	return nil
}
