package redis

import (
	"fmt"
	"net/url"
	"time"
)

const maxStatementLen = 100

// Connection defaults.
const (
	DefaultHost          = "localhost"
	DefaultPort          = 6379
	DefaultPoolSize      = 10
	DefaultDialTimeout   = 5 * time.Second
	DefaultReadTimeout   = 3 * time.Second
	DefaultWriteTimeout  = 3 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// Secret is a string that redacts itself in logs and marshalled output.
type Secret string

const redacted = "[REDACTED]"

// String and GoString hide the value from fmt and loggers.
func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// Value returns the plain secret.
func (s Secret) Value() string { return string(s) }

// MarshalText keeps secrets out of JSON and YAML dumps.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config holds the key-value store connection settings. Env tags are
// relative; the store configuration nests this block under REDIS.
type Config struct {
	// URI (redis:// or rediss://) overrides the individual fields.
	URI string `json:"uri,omitempty" yaml:"uri" env:"URI"`

	Host       string `json:"host,omitempty" yaml:"host" env:"HOST"`
	Port       int    `json:"port,omitempty" yaml:"port" env:"PORT"`
	DB         int    `json:"db" yaml:"db" env:"DB"`
	Password   Secret `json:"-" yaml:"password" env:"PASSWORD"`
	TLSEnabled bool   `json:"tls_enabled,omitempty" yaml:"tls_enabled" env:"TLS_ENABLED"`

	PoolSize     int           `json:"pool_size,omitempty" yaml:"pool_size" env:"POOL_SIZE"`
	DialTimeout  time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// Validate fills zero fields with defaults and checks the rest.
func (c *Config) Validate() error {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("redis: pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("redis: timeouts must not be negative")
	}

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: uri is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: uri scheme must be redis or rediss, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: port must be between 1 and 65535, got %d", c.Port)
	}
	if c.DB < 0 {
		return fmt.Errorf("redis: db must not be negative, got %d", c.DB)
	}
	return nil
}

func truncateStatement(s string) string {
	if len(s) <= maxStatementLen {
		return s
	}
	return s[:maxStatementLen] + "..."
}
