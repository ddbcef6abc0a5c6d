package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env is the process configuration read from the environment
type Env struct {
	Addr string `env:"STOREFRONT_ADDR" envDefault:":8080"`

	// RedisURL enables the Redis catalog, shared list cache and Redis settings
	RedisURL    string `env:"STOREFRONT_REDIS_URL"`
	RedisPrefix string `env:"STOREFRONT_REDIS_PREFIX" envDefault:"storefront"`

	// BackendURL selects the hosted backend catalog instead of Redis
	BackendURL          string        `env:"STOREFRONT_BACKEND_URL"`
	BackendAPIKey       string        `env:"STOREFRONT_BACKEND_API_KEY"`
	BackendClientID     string        `env:"STOREFRONT_BACKEND_CLIENT_ID"`
	BackendClientSecret string        `env:"STOREFRONT_BACKEND_CLIENT_SECRET"`
	BackendTokenURL     string        `env:"STOREFRONT_BACKEND_TOKEN_URL"`
	BackendTimeout      time.Duration `env:"STOREFRONT_BACKEND_TIMEOUT" envDefault:"10s"`

	AdminToken string `env:"STOREFRONT_ADMIN_TOKEN"`

	PrefetchTimeout time.Duration `env:"STOREFRONT_PREFETCH_TIMEOUT" envDefault:"0s"`
	ListCacheTTL    time.Duration `env:"STOREFRONT_LIST_CACHE_TTL" envDefault:"1m"`
	StatInterval    time.Duration `env:"STOREFRONT_STAT_INTERVAL" envDefault:"10s"`
}

// LoadEnv loads an optional .env file, then parses the environment
func LoadEnv(files ...string) (*Env, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ListCacheTTL < 0 || cfg.PrefetchTimeout < 0 {
		return nil, errors.New("durations must not be negative")
	}
	if cfg.StatInterval <= 0 {
		return nil, errors.New("STOREFRONT_STAT_INTERVAL must be positive")
	}
	return &cfg, nil
}
