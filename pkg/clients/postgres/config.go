package postgres

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const maxStatementLen = 100

// Connection defaults.
const (
	DefaultHost              = "localhost"
	DefaultPort              = 5432
	DefaultDatabase          = "tokengate"
	DefaultUser              = "postgres"
	DefaultMaxConns    int32 = 10
	DefaultMinConns    int32 = 1
	DefaultConnectTimeout    = 10 * time.Second
	DefaultHealthTimeout     = 5 * time.Second
)

// SSLMode is a libpq sslmode value.
type SSLMode string

const (
	SSLModeDisable    SSLMode = "disable"
	SSLModePrefer     SSLMode = "prefer"
	SSLModeRequire    SSLMode = "require"
	SSLModeVerifyCA   SSLMode = "verify-ca"
	SSLModeVerifyFull SSLMode = "verify-full"
)

// Valid reports whether m is a supported mode.
func (m SSLMode) Valid() bool {
	switch m {
	case SSLModeDisable, SSLModePrefer, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
		return true
	}
	return false
}

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

// Config holds the relational store connection settings. Env tags are
// relative; the store configuration nests this block under POSTGRES.
type Config struct {
	// URI, when set, overrides the individual connection fields.
	URI string `json:"uri,omitempty" yaml:"uri" env:"URI"`

	Host        string  `json:"host,omitempty" yaml:"host" env:"HOST"`
	Port        int     `json:"port,omitempty" yaml:"port" env:"PORT"`
	Database    string  `json:"database,omitempty" yaml:"database" env:"DATABASE"`
	User        string  `json:"user,omitempty" yaml:"user" env:"USER"`
	Password    Secret  `json:"-" yaml:"password" env:"PASSWORD"`
	SSLMode     SSLMode `json:"ssl_mode,omitempty" yaml:"ssl_mode" env:"SSLMODE"`
	SSLRootCert string  `json:"ssl_root_cert,omitempty" yaml:"ssl_root_cert" env:"SSL_ROOT_CERT"`

	MaxConns       int32         `json:"max_conns,omitempty" yaml:"max_conns" env:"MAX_CONNS"`
	MinConns       int32         `json:"min_conns,omitempty" yaml:"min_conns" env:"MIN_CONNS"`
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// Validate fills zero fields with defaults and checks the rest.
func (c *Config) Validate() error {
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MaxConns < c.MinConns {
		return fmt.Errorf("postgres: max_conns (%d) must be >= min_conns (%d)", c.MaxConns, c.MinConns)
	}

	if c.URI != "" {
		if _, err := url.Parse(c.URI); err != nil {
			return fmt.Errorf("postgres: uri is invalid: %w", err)
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
		return fmt.Errorf("postgres: port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.User == "" {
		return errors.New("postgres: user must not be empty")
	}
	if c.SSLMode == "" {
		c.SSLMode = SSLModePrefer
	}
	if !c.SSLMode.Valid() {
		return fmt.Errorf("postgres: ssl_mode %q is not valid", c.SSLMode)
	}
	return nil
}

// ConnectionString renders a postgres:// URL. TLS material is passed
// through libpq parameters understood by pgx.
func (c *Config) ConnectionString() string {
	if c.URI != "" {
		return c.URI
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password.Value()),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", string(c.SSLMode))
	}
	if c.SSLRootCert != "" {
		q.Set("sslrootcert", c.SSLRootCert)
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func truncateStatement(sql string) string {
	if len(sql) <= maxStatementLen {
		return sql
	}
	return sql[:maxStatementLen] + "..."
}
