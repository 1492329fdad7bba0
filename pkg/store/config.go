package store

import (
	"time"

	"github.com/StricklySoft/tokengate/pkg/clients/postgres"
	"github.com/StricklySoft/tokengate/pkg/clients/redis"
	sserr "github.com/StricklySoft/tokengate/pkg/errors"
	"github.com/StricklySoft/tokengate/pkg/token"
)

// Backend selects a Store implementation.
type Backend string

const (
	BackendEphemeral Backend = "ephemeral"
	BackendPostgres  Backend = "postgres"
	BackendRedis     Backend = "redis"
)

// Secret is a string that redacts itself in logs and marshalled output.
type Secret string

// String and GoString hide the value from fmt and loggers.
func (s Secret) String() string   { return "[REDACTED]" }
func (s Secret) GoString() string { return "[REDACTED]" }

// Value returns the plain secret.
func (s Secret) Value() string { return string(s) }

// MarshalText keeps secrets out of JSON and YAML dumps.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// EphemeralConfig configures the stateless backend.
type EphemeralConfig struct {
	// Secret is the signing key material; at least 32 bytes.
	Secret Secret `json:"-" yaml:"secret" env:"SECRET"`
}

// Config is the store section of a service configuration. Load it with
// pkg/config; nested blocks read POSTGRES_* and REDIS_* variables.
type Config struct {
	Backend       Backend `json:"backend" yaml:"backend" env:"BACKEND" envDefault:"ephemeral"`
	MaxToken      int     `json:"max_token" yaml:"max_token" env:"MAX_TOKEN" envDefault:"-1"`
	DefaultExpire int64   `json:"default_expire" yaml:"default_expire" env:"DEFAULT_EXPIRE" envDefault:"86400"`
	AutoMigrate   bool    `json:"auto_migrate" yaml:"auto_migrate" env:"AUTO_MIGRATE"`

	Ephemeral EphemeralConfig `json:"ephemeral" yaml:"ephemeral" env:"EPHEMERAL"`
	Postgres  postgres.Config `json:"postgres" yaml:"postgres" env:"POSTGRES"`
	Redis     redis.Config    `json:"redis" yaml:"redis" env:"REDIS"`
}

// Validate fills an empty Backend and DefaultExpire with their defaults and
// checks the selected backend's settings. A MaxToken of 0 is rejected; use
// -1 for no bound.
func (c *Config) Validate() error {
	if c.Backend == "" {
		c.Backend = BackendEphemeral
	}
	if c.DefaultExpire == 0 {
		c.DefaultExpire = int64(token.DefaultExpire / time.Second)
	}
	if c.MaxToken != Unlimited && c.MaxToken < 1 {
		return sserr.Newf(sserr.CodeValidationRange,
			"store: max_token must be -1 or at least 1, got %d", c.MaxToken)
	}
	if c.DefaultExpire < 1 {
		return sserr.Newf(sserr.CodeValidationRange,
			"store: default_expire must be positive, got %d", c.DefaultExpire)
	}

	switch c.Backend {
	case BackendEphemeral:
		if _, err := token.KeyFromSecret(c.Ephemeral.Secret.Value()); err != nil {
			return err
		}
	case BackendPostgres:
		if err := c.Postgres.Validate(); err != nil {
			return sserr.Wrap(err, sserr.CodeValidation, "store: invalid postgres configuration")
		}
	case BackendRedis:
		if err := c.Redis.Validate(); err != nil {
			return sserr.Wrap(err, sserr.CodeValidation, "store: invalid redis configuration")
		}
	default:
		return sserr.Newf(sserr.CodeValidationFormat, "store: unknown backend %q", c.Backend)
	}
	return nil
}
