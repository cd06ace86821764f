package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SCENYX_HTTP_ADDR", "SCENYX_AUTH_SECRET", "SCENYX_STORAGE", "SCENYX_SQLITE_PATH",
		"SCENYX_POSTGRES_DSN", "SCENYX_VALKEY_ADDR", "SCENYX_VALKEY_CHANNEL_PREFIX",
		"SCENYX_ALLOWED_ORIGIN", "SCENYX_SEED_FILE", "SCENYX_SHUTDOWN_TIMEOUT",
		"SCENYX_READ_HEADER_TIMEOUT",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func missingFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCENYX_AUTH_SECRET", "s3cret")

	cfg, err := Load(missingFile(t))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, "scenyx:scene:", cfg.ValkeyChannelPrefix)
	assert.Equal(t, "http://127.0.0.1:5173", cfg.AllowedOrigin)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5*time.Second, cfg.ReadHeaderTimeout)
	assert.Empty(t, cfg.ValkeyAddr)
}

func TestLoadRequiresSecret(t *testing.T) {
	clearEnv(t)

	_, err := Load(missingFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCENYX_AUTH_SECRET")
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SCENYX_AUTH_SECRET=from-file\nSCENYX_HTTP_ADDR=:9000\n"), 0o600))
	t.Setenv("SCENYX_HTTP_ADDR", ":7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.AuthSecret)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
}

func TestValidate(t *testing.T) {
	base := Config{Storage: StorageMemory, ShutdownTimeout: time.Second, SQLitePath: "x.db"}

	tcs := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "memory", mutate: func(*Config) {}},
		{name: "sqlite", mutate: func(c *Config) { c.Storage = StorageSQLite }},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage = StorageSQLite; c.SQLitePath = "" }, wantErr: "SCENYX_SQLITE_PATH"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage = StoragePostgres }, wantErr: "SCENYX_POSTGRES_DSN"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage = "redis" }, wantErr: "unknown SCENYX_STORAGE"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.ShutdownTimeout = 0 }, wantErr: "SCENYX_SHUTDOWN_TIMEOUT"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
