package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/koustreak/pgstudio/internal/errs"
)

// ConnConfig identifies a single PostgreSQL database. It is the shape the
// client pre-populates its connection form with and the shape it sends back
// when asking to test or query a different database.
type ConnConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password,omitempty" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"sslmode,omitempty" yaml:"sslmode"`
}

// Config holds all settings needed to connect to and pool a database.
type Config struct {
	Conn ConnConfig

	// Pool tuning
	MaxConns        int32         // maximum number of connections in the pool
	MinConns        int32         // minimum number of idle connections kept alive
	MaxConnLifetime time.Duration // maximum time a connection may be reused
	MaxConnIdleTime time.Duration // maximum time a connection may sit idle

	// Timeouts
	ConnectTimeout time.Duration // time limit for establishing a new connection
	QueryTimeout   time.Duration // default per-statement deadline (applied by callers)
	SlowQuery      time.Duration // traced statements at or above this are logged at warn

	// ApplicationName is reported in pg_stat_activity.
	ApplicationName string
}

// DefaultConfig returns pool settings suited to a single-user admin tool.
func DefaultConfig(conn ConnConfig) *Config {
	return &Config{
		Conn:            conn,
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		QueryTimeout:    30 * time.Second,
		SlowQuery:       time.Second,
		ApplicationName: "pgstudio",
	}
}

// TemporaryConfig returns settings for a short-lived pool opened against a
// caller-supplied database for the duration of one request.
func TemporaryConfig(conn ConnConfig) *Config {
	cfg := DefaultConfig(conn)
	cfg.MaxConns = 2
	cfg.MinConns = 0
	cfg.ConnectTimeout = 5 * time.Second
	return cfg
}

// DSN builds a postgres:// URL. User and password are URL-escaped so that
// credentials containing '@', ':' or spaces survive.
func (c ConnConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else if c.User != "" {
		u.User = url.User(c.User)
	}
	return u.String()
}

// Redacted returns a copy without the password, safe to log or to expose
// through the config endpoint.
func (c ConnConfig) Redacted() ConnConfig {
	c.Password = ""
	return c
}

var validSSLModes = map[string]bool{
	"":            true,
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the fields a connection attempt cannot do without.
func (c ConnConfig) Validate() error {
	if c.Host == "" {
		return errs.New(errs.ErrKindInvalidInput, "host cannot be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return errs.Newf(errs.ErrKindInvalidInput, "port must be between 1 and 65535, got %d", c.Port)
	}
	if c.User == "" {
		return errs.New(errs.ErrKindInvalidInput, "user cannot be empty")
	}
	if c.Database == "" {
		return errs.New(errs.ErrKindInvalidInput, "database cannot be empty")
	}
	if !validSSLModes[c.SSLMode] {
		return errs.Newf(errs.ErrKindInvalidInput, "unsupported sslmode %q", c.SSLMode)
	}
	return nil
}

func (c ConnConfig) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.Database)
}
