package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera.dev/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, int32(10), cfg.Postgres.MaxConns)
	assert.Equal(t, 30*time.Minute, cfg.Postgres.ConnMaxLifetime)
	assert.Equal(t, "tessera", cfg.Auth.Issuer)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TESSERA_PG_DSN", "postgres://localhost/tessera")
	t.Setenv("TESSERA_ACCESS_TOKEN_TTL", "1h")
	t.Setenv("TESSERA_LOG_LEVEL", " DEBUG ")
	t.Setenv("TESSERA_PG_RETRY_ATTEMPTS", "5")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/tessera", cfg.Postgres.DSN)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Postgres.RetryAttempts)
}

func TestLoadEnvFileDoesNotOverrideProcessEnv(t *testing.T) {
	t.Setenv("TESSERA_HTTP_ADDR", ":7070")
	t.Cleanup(func() {
		os.Unsetenv("TESSERA_AUTH_ISSUER")
		os.Unsetenv("TESSERA_PG_MAX_CONNS")
	})

	cfg, err := config.Load("testdata/.env.test")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, "file-issuer", cfg.Auth.Issuer)
	assert.Equal(t, int32(25), cfg.Postgres.MaxConns)
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := config.Load("testdata/does-not-exist.env")
	require.Error(t, err)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("TESSERA_PG_MAX_CONNS", "many")

	_, err := config.Load()
	require.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestValidate(t *testing.T) {
	base := config.Config{
		LogFormat: "json",
		Postgres:  config.Postgres{MaxConns: 10},
		Auth:      config.Auth{AccessTokenTTL: time.Minute},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown log format", func(c *config.Config) { c.LogFormat = "xml" }},
		{"min above max", func(c *config.Config) { c.Postgres.MinConns = 11 }},
		{"zero ttl", func(c *config.Config) { c.Auth.AccessTokenTTL = 0 }},
		{"short production secret", func(c *config.Config) {
			c.Env = "production"
			c.Auth.Secret = "short"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), config.ErrInvalidConfig)
		})
	}
}
