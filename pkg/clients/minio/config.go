package minio

import (
	"errors"
	"time"
)

// Default settings for the media object store.
const (
	DefaultEndpoint = "localhost:9000"

	// DefaultURLExpiry is how long a presigned media URL stays valid.
	DefaultURLExpiry = 15 * time.Minute

	// DefaultHealthTimeout bounds a health probe when the caller's
	// context has no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// Secret is a string type that redacts its value in String(), GoString(),
// and MarshalText() so the object store secret key never lands in logs.
// Use [Secret.Value] where the raw value is actually needed.
type Secret string

const redacted = "[REDACTED]"

// String returns the redacted placeholder.
func (s Secret) String() string { return redacted }

// GoString returns the redacted placeholder for %#v formatting.
func (s Secret) GoString() string { return redacted }

// Value returns the actual secret string.
func (s Secret) Value() string { return string(s) }

// MarshalText returns the redacted placeholder for text serialization.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config holds the object store connection configuration.
type Config struct {
	// Endpoint is the host:port of the S3-compatible server.
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"ENDPOINT"`

	AccessKey string `json:"access_key" yaml:"access_key" env:"ACCESS_KEY"`

	// SecretKey uses the Secret type to prevent accidental logging.
	SecretKey Secret `json:"-" yaml:"-" env:"SECRET_KEY"`

	UseSSL bool   `json:"use_ssl,omitempty" yaml:"use_ssl" env:"USE_SSL"`
	Region string `json:"region,omitempty" yaml:"region" env:"REGION"`

	// Bucket holds the speech media objects.
	Bucket string `json:"bucket" yaml:"bucket" env:"BUCKET"`

	// URLExpiry is the lifetime of presigned media URLs.
	URLExpiry time.Duration `json:"url_expiry,omitempty" yaml:"url_expiry" env:"URL_EXPIRY"`
}

// DefaultConfig returns a Config with local-development defaults. Set
// credentials and the bucket before passing it to [NewClient].
func DefaultConfig() *Config {
	return &Config{
		Endpoint:  DefaultEndpoint,
		URLExpiry: DefaultURLExpiry,
	}
}

// Validate checks the configuration and applies defaults for zero-valued
// fields.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.AccessKey == "" {
		return errors.New("minio: config access_key must not be empty")
	}
	if c.SecretKey.Value() == "" {
		return errors.New("minio: config secret_key must not be empty")
	}
	if c.Bucket == "" {
		return errors.New("minio: config bucket must not be empty")
	}
	if c.URLExpiry == 0 {
		c.URLExpiry = DefaultURLExpiry
	}
	if c.URLExpiry < 0 {
		return errors.New("minio: config url_expiry must be non-negative")
	}
	return nil
}
