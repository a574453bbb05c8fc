// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const envPrefix = "TESSERA_"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
	// ErrInvalidConfig is returned when parsed values are inconsistent.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config holds every setting the binaries read.
type Config struct {
	Env             string        `env:"ENV" envDefault:"development"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Postgres Postgres
	Auth     Auth
}

// Postgres configures the connection pool.
type Postgres struct {
	DSN             string        `env:"PG_DSN"`
	MaxConns        int32         `env:"PG_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"PG_MIN_CONNS" envDefault:"0"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" envDefault:"30m"`
	RetryAttempts   int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"2s"`
}

// Auth configures access-token signing.
type Auth struct {
	Secret         string        `env:"AUTH_SECRET"`
	Issuer         string        `env:"AUTH_ISSUER" envDefault:"tessera"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
}

// Load reads the optional dotenv files, then parses the TESSERA_ variables.
// Variables already present in the process environment win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		// a missing .env is fine
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}

	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: envPrefix})
	if err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c Config) Validate() error {
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("%w: min conns %d exceeds max conns %d", ErrInvalidConfig, c.Postgres.MinConns, c.Postgres.MaxConns)
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("%w: access token ttl must be positive", ErrInvalidConfig)
	}
	if c.IsProduction() && len(c.Auth.Secret) < 32 {
		return fmt.Errorf("%w: auth secret must be at least 32 bytes in production", ErrInvalidConfig)
	}
	return nil
}

func (c Config) IsProduction() bool { return c.Env == "production" }
