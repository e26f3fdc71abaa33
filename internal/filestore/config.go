package filestore

import (
	"time"

	"github.com/koustreak/pgstudio/internal/errs"
)

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderNone   Provider = ""
	ProviderMinIO  Provider = "minio"
	ProviderMemory Provider = "memory"
)

// Config selects and configures the export store.
type Config struct {
	// Provider is the storage backend. Empty disables exports.
	Provider Provider `yaml:"provider"`

	// minio settings; Endpoint is host:port, e.g. "localhost:9000"
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`

	// Bucket receives every export and is created on first use. Prefix is
	// prepended to every key inside it.
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	// URLExpiry is the lifetime of presigned download URLs.
	URLExpiry time.Duration `yaml:"url_expiry"`
}

// DefaultConfig returns minio settings for local development.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    "pgstudio-exports",
		Prefix:    "exports/",
		URLExpiry: 15 * time.Minute,
	}
}

// Enabled reports whether a provider is configured.
func (c *Config) Enabled() bool {
	return c != nil && c.Provider != ProviderNone
}

// Validate checks the settings the configured provider needs.
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	switch c.Provider {
	case ProviderMemory:
	case ProviderMinIO:
		if c.Endpoint == "" {
			return errs.New(errs.ErrKindInvalidInput, "export.endpoint cannot be empty for the minio provider")
		}
		if c.AccessKey == "" || c.SecretKey == "" {
			return errs.New(errs.ErrKindInvalidInput, "export.access_key and export.secret_key are required for the minio provider")
		}
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "unsupported export provider %q", c.Provider)
	}
	if c.Bucket == "" {
		return errs.New(errs.ErrKindInvalidInput, "export.bucket cannot be empty")
	}
	if c.URLExpiry < time.Second || c.URLExpiry > 7*24*time.Hour {
		return errs.Newf(errs.ErrKindInvalidInput, "export.url_expiry must be between 1s and 168h, got %s", c.URLExpiry)
	}
	return nil
}
