// Package config loads pgstudio settings.
//
// Sources, lowest precedence first: built-in defaults, the YAML file
// (pgstudio.yaml), a .env file in the working directory, then the process
// environment. The .env file never overrides variables that are already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/pgstudio/internal/database"
	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/filestore"
	"github.com/koustreak/pgstudio/internal/logger"
)

// DefaultFile is read when no config path is given and the file exists.
const DefaultFile = "pgstudio.yaml"

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig   `yaml:"database"`
	Server   ServerConfig     `yaml:"server"`
	Log      logger.Config    `yaml:"log"`
	Export   filestore.Config `yaml:"export"`
}

// DatabaseConfig is the process-wide pool.
type DatabaseConfig struct {
	database.ConnConfig `yaml:",inline"`

	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	SlowQuery       time.Duration `yaml:"slow_query"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in settings.
func Default() *Config {
	pool := database.DefaultConfig(database.ConnConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Database: "postgres",
		SSLMode:  "disable",
	})
	log := logger.DefaultConfig()
	log.Output = nil

	export := filestore.DefaultConfig("", "", "")
	export.Provider = filestore.ProviderNone

	return &Config{
		Database: DatabaseConfig{
			ConnConfig:      pool.Conn,
			MaxConns:        pool.MaxConns,
			MinConns:        pool.MinConns,
			MaxConnLifetime: pool.MaxConnLifetime,
			MaxConnIdleTime: pool.MaxConnIdleTime,
			ConnectTimeout:  pool.ConnectTimeout,
			QueryTimeout:    pool.QueryTimeout,
			SlowQuery:       pool.SlowQuery,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Log:    *log,
		Export: *export,
	}
}

// Pool converts the database section to driver settings.
func (d DatabaseConfig) Pool() *database.Config {
	cfg := database.DefaultConfig(d.ConnConfig)
	cfg.MaxConns = d.MaxConns
	cfg.MinConns = d.MinConns
	cfg.MaxConnLifetime = d.MaxConnLifetime
	cfg.MaxConnIdleTime = d.MaxConnIdleTime
	cfg.ConnectTimeout = d.ConnectTimeout
	cfg.QueryTimeout = d.QueryTimeout
	cfg.SlowQuery = d.SlowQuery
	return cfg
}

// Load reads path (or DefaultFile when path is empty and it exists), applies
// .env and environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.readFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read .env", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("failed to parse %s", path), err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	db := &c.Database
	setString(&db.Host, "POSTGRES_HOST")
	setString(&db.User, "POSTGRES_USER")
	setString(&db.Password, "POSTGRES_PASSWORD")
	setString(&db.Database, "POSTGRES_DB")
	setString(&db.SSLMode, "POSTGRES_SSLMODE")
	setString(&c.Server.Addr, "PGSTUDIO_ADDR")
	setString(&c.Log.Level, "PGSTUDIO_LOG_LEVEL")
	setString(&c.Log.Format, "PGSTUDIO_LOG_FORMAT")
	setString(&c.Log.File, "PGSTUDIO_LOG_FILE")

	ex := &c.Export
	if v, ok := os.LookupEnv("PGSTUDIO_EXPORT_PROVIDER"); ok {
		ex.Provider = filestore.Provider(v)
	}
	setString(&ex.Endpoint, "PGSTUDIO_EXPORT_ENDPOINT")
	setString(&ex.AccessKey, "PGSTUDIO_EXPORT_ACCESS_KEY")
	setString(&ex.SecretKey, "PGSTUDIO_EXPORT_SECRET_KEY")
	setString(&ex.Region, "PGSTUDIO_EXPORT_REGION")
	setString(&ex.Bucket, "PGSTUDIO_EXPORT_BUCKET")
	setString(&ex.Prefix, "PGSTUDIO_EXPORT_PREFIX")

	if err := setInt(&db.Port, "POSTGRES_PORT"); err != nil {
		return err
	}
	if err := setDuration(&db.QueryTimeout, "PGSTUDIO_QUERY_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&db.SlowQuery, "PGSTUDIO_SLOW_QUERY"); err != nil {
		return err
	}
	if err := setBool(&ex.UseSSL, "PGSTUDIO_EXPORT_USE_SSL"); err != nil {
		return err
	}
	return setDuration(&ex.URLExpiry, "PGSTUDIO_EXPORT_URL_EXPIRY")
}

// --- env helpers ---

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("%s must be an integer, got %q", key, v), err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("%s must be a boolean, got %q", key, v), err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("%s must be a duration such as 30s, got %q", key, v), err)
	}
	*dst = d
	return nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	db := c.Database
	if err := db.ConnConfig.Validate(); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "database."+errs.Message(err), err)
	}
	if db.Port < 1 {
		return errs.Newf(errs.ErrKindInvalidInput, "database.port must be between 1 and 65535, got %d", db.Port)
	}
	if db.MaxConns < 1 {
		return errs.Newf(errs.ErrKindInvalidInput, "database.max_conns must be >= 1, got %d", db.MaxConns)
	}
	if db.MinConns < 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "database.min_conns must be >= 0, got %d", db.MinConns)
	}
	if db.MaxConns < db.MinConns {
		return errs.Newf(errs.ErrKindInvalidInput, "database.max_conns (%d) must be >= min_conns (%d)", db.MaxConns, db.MinConns)
	}
	if db.ConnectTimeout <= 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "database.connect_timeout must be positive, got %v", db.ConnectTimeout)
	}
	if db.QueryTimeout < 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "database.query_timeout must be >= 0, got %v", db.QueryTimeout)
	}

	if c.Server.Addr == "" {
		return errs.New(errs.ErrKindInvalidInput, "server.addr cannot be empty")
	}
	for name, d := range map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if d <= 0 {
			return errs.Newf(errs.ErrKindInvalidInput, "%s must be positive, got %v", name, d)
		}
	}

	if err := c.Log.Validate(); err != nil {
		return err
	}

	return c.Export.Validate()
}
