// Package config loads the gateway's settings from the environment, after
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

type Config struct {
	HTTPAddr   string `env:"SCENYX_HTTP_ADDR" envDefault:":8080"`
	AuthSecret string `env:"SCENYX_AUTH_SECRET,required,notEmpty"`

	Storage     string `env:"SCENYX_STORAGE" envDefault:"memory"`
	SQLitePath  string `env:"SCENYX_SQLITE_PATH" envDefault:"scenyx.db"`
	PostgresDSN string `env:"SCENYX_POSTGRES_DSN"`

	// ValkeyAddr enables cross-process fan-out. Empty keeps fan-out in-process.
	ValkeyAddr          string `env:"SCENYX_VALKEY_ADDR"`
	ValkeyChannelPrefix string `env:"SCENYX_VALKEY_CHANNEL_PREFIX" envDefault:"scenyx:scene:"`

	AllowedOrigin string `env:"SCENYX_ALLOWED_ORIGIN" envDefault:"http://127.0.0.1:5173"`
	SeedFile      string `env:"SCENYX_SEED_FILE"`

	ShutdownTimeout   time.Duration `env:"SCENYX_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ReadHeaderTimeout time.Duration `env:"SCENYX_READ_HEADER_TIMEOUT" envDefault:"5s"`
}

// Load reads the given .env files, ".env" when none are named, and then
// parses the environment. Missing files are skipped; variables already set
// in the environment win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that depend on each other.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StorageSQLite:
		if c.SQLitePath == "" {
			return errors.New("SCENYX_SQLITE_PATH is required for sqlite storage")
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return errors.New("SCENYX_POSTGRES_DSN is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown SCENYX_STORAGE %q: want memory, sqlite or postgres", c.Storage)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SCENYX_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}
