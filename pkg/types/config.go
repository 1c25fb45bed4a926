package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// BackendKind names the storage engine family active for the process.
type BackendKind string

// Supported backend kinds. The values are the literal tokens accepted in
// configuration (DATABASE_TYPE).
const (
	BackendSQLite   BackendKind = "sqlite"
	BackendPostgres BackendKind = "postgresql"
	BackendMySQL    BackendKind = "mysql"
	BackendMongo    BackendKind = "mongodb"
)

// knownBackends lists the backends that ParseBackendKind accepts.
var knownBackends = map[BackendKind]bool{
	BackendSQLite:   true,
	BackendPostgres: true,
	BackendMySQL:    true,
	BackendMongo:    true,
}

// Relational reports whether the kind is served by a pooled SQL engine.
func (k BackendKind) Relational() bool {
	return k == BackendSQLite || k == BackendPostgres || k == BackendMySQL
}

func (k BackendKind) String() string { return string(k) }

// ParseBackendKind maps a configuration token to a BackendKind. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseBackendKind(s string) (BackendKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", ErrBackendEmpty
	}
	k := BackendKind(s)
	if !knownBackends[k] {
		return "", fmt.Errorf("%w: %q", ErrBackendUnknown, s)
	}
	return k, nil
}

// ConnectionParams holds the per-kind connection parameters. Path is used by
// the embedded SQLite kind only; the networked kinds use Host, Port and
// Database. User and Password are optional for MongoDB.
type ConnectionParams struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"-" yaml:"password"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	// SSLMode is passed to PostgreSQL as sslmode; empty means "disable".
	SSLMode string `json:"sslmode,omitempty" yaml:"sslmode,omitempty"`
}

// PoolConfig bounds the relational connection pool. Size connections are kept
// idle; up to Size+Overflow may be open at once. A borrow that waits longer
// than Timeout fails with ErrPoolExhausted.
type PoolConfig struct {
	Size     int           `json:"size" yaml:"size"`
	Overflow int           `json:"overflow" yaml:"overflow"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
	PrePing  bool          `json:"pre_ping" yaml:"pre_ping"`
}

// Default pool bounds.
const (
	DefaultPoolSize     = 5
	DefaultPoolOverflow = 10
	DefaultPoolTimeout  = 30 * time.Second
)

// DefaultPoolConfig returns the pool bounds used when none are configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Size:     DefaultPoolSize,
		Overflow: DefaultPoolOverflow,
		Timeout:  DefaultPoolTimeout,
		PrePing:  true,
	}
}

// MaxOpen returns the hard cap on open connections.
func (p PoolConfig) MaxOpen() int {
	return p.Size + p.Overflow
}

// Config selects a backend and carries its parameters. It is built once at
// startup and never mutated afterwards.
type Config struct {
	Backend BackendKind      `json:"backend" yaml:"backend"`
	Params  ConnectionParams `json:"params" yaml:"params"`
	Pool    PoolConfig       `json:"pool" yaml:"pool"`
	// Debug enables statement logging in the engine.
	Debug bool `json:"debug" yaml:"debug"`
}

// Configuration errors. All of them wrap ErrConfig so callers can treat any
// of them as a startup-fatal condition with a single errors.Is check.
var (
	ErrConfig         = errors.New("configuration error")
	ErrBackendEmpty   = fmt.Errorf("%w: backend must not be empty", ErrConfig)
	ErrBackendUnknown = fmt.Errorf("%w: unsupported database type", ErrConfig)
	ErrParamMissing   = fmt.Errorf("%w: missing connection parameter", ErrConfig)
	ErrPoolInvalid    = fmt.Errorf("%w: invalid pool bounds", ErrConfig)
)

// Validate checks that the parameters required by the selected kind are
// present. The database name is mandatory for every kind (the file path for
// SQLite); credentials are mandatory for the networked relational kinds only.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return fmt.Errorf("%w: %q", ErrBackendUnknown, string(c.Backend))
	}

	p := c.Params
	switch c.Backend {
	case BackendSQLite:
		if strings.TrimSpace(p.Path) == "" {
			return missing("path")
		}
	case BackendPostgres, BackendMySQL:
		if p.Host == "" {
			return missing("host")
		}
		if p.Database == "" {
			return missing("database")
		}
		if p.User == "" {
			return missing("user")
		}
		if p.Password == "" {
			return missing("password")
		}
	case BackendMongo:
		if p.Host == "" {
			return missing("host")
		}
		if p.Database == "" {
			return missing("database")
		}
	}

	if c.Backend.Relational() {
		if c.Pool.Size < 0 || c.Pool.Overflow < 0 || c.Pool.Timeout < 0 {
			return ErrPoolInvalid
		}
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrParamMissing, field)
}
