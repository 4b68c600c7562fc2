package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/tendant/catalog-uploads/pkg/uploads"
	"github.com/tendant/catalog-uploads/pkg/uploads/objectkey"
)

// Storage backend names
const (
	BackendSignedHTTP = "signedhttp"
	BackendS3         = "s3"
	BackendMemory     = "memory"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:        "8080",
		Environment: "development",
		Store: StoreConfig{
			Backend: BackendSignedHTTP,
			Bucket:  "imagenes",
			Region:  "auto",
			Timeout: uploads.DefaultStoreTimeout,
		},
		Upload: UploadConfig{
			Prefix:        objectkey.DefaultPrefix,
			MaxBytes:      uploads.DefaultMaxUploadBytes,
			ReadGrantTTL:  uploads.DefaultReadTTL,
			WriteGrantTTL: uploads.DefaultWriteTTL,
			ClockSkew:     2 * time.Minute,
		},
	}
}

// ServerConfig represents server configuration for the upload service
type ServerConfig struct {
	Port        string `yaml:"port" env:"PORT" env-default:"8080" env-description:"HTTP listen port"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"development" env-description:"local, development, testing or production"`

	Store  StoreConfig  `yaml:"store"`
	Upload UploadConfig `yaml:"upload"`
	Auth   AuthConfig   `yaml:"auth"`

	// DevStore mounts the in-process S3-compatible store under /_store
	DevStore bool `yaml:"dev_store" env:"DEV_STORE" env-description:"serve an in-memory object store under /_store"`
}

// StoreConfig describes the object store
type StoreConfig struct {
	Backend         string        `yaml:"backend" env:"STORE_BACKEND" env-default:"signedhttp" env-description:"signedhttp, s3 or memory"`
	Endpoint        string        `yaml:"endpoint" env:"STORE_ENDPOINT" env-description:"S3-compatible endpoint, e.g. https://<account>.r2.cloudflarestorage.com"`
	Bucket          string        `yaml:"bucket" env:"STORE_BUCKET" env-default:"imagenes" env-description:"bucket name"`
	AccessKeyID     string        `yaml:"access_key_id" env:"STORE_ACCESS_KEY_ID" env-description:"access key id"`
	SecretAccessKey string        `yaml:"-" env:"STORE_SECRET_ACCESS_KEY" env-description:"secret access key"`
	Region          string        `yaml:"region" env:"STORE_REGION" env-default:"auto" env-description:"credential scope region"`
	Timeout         time.Duration `yaml:"timeout" env:"STORE_TIMEOUT" env-default:"10s" env-description:"per-request object store timeout"`
}

// UploadConfig describes grant issuance and verification limits
type UploadConfig struct {
	Prefix        string        `yaml:"prefix" env:"UPLOAD_PREFIX" env-default:"products" env-description:"object key prefix"`
	MaxBytes      int64         `yaml:"max_bytes" env:"UPLOAD_MAX_BYTES" env-default:"5242880" env-description:"size ceiling in bytes"`
	PublicBaseURL string        `yaml:"public_base_url" env:"PUBLIC_BASE_URL" env-description:"public base URL for accepted objects"`
	PrivateReads  bool          `yaml:"private_reads" env:"PRIVATE_READS" env-description:"return presigned GET URLs instead of public URLs"`
	ReadGrantTTL  time.Duration `yaml:"read_grant_ttl" env:"READ_GRANT_TTL" env-default:"1h" env-description:"read grant lifetime, at most 2h"`
	WriteGrantTTL time.Duration `yaml:"write_grant_ttl" env:"WRITE_GRANT_TTL" env-default:"10m" env-description:"write grant lifetime"`
	ClockSkew     time.Duration `yaml:"clock_skew" env:"CLOCK_SKEW" env-default:"2m" env-description:"how far grant issue times are backdated"`
}

// AuthConfig describes bearer token validation
type AuthConfig struct {
	JWTSecret   string `yaml:"-" env:"AUTH_JWT_SECRET" env-description:"HS256 secret for session tokens"`
	AdminEmails string `yaml:"admin_emails" env:"AUTH_ADMIN_EMAILS" env-description:"comma separated administrator emails"`

	// StaticAdmin treats every caller as an administrator; refused in production
	StaticAdmin bool `yaml:"static_admin" env:"AUTH_STATIC_ADMIN" env-description:"treat every caller as admin (non-production only)"`
}

func (c *ServerConfig) normalize() {
	c.Upload.Prefix = objectkey.CleanPrefix(c.Upload.Prefix)
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = uploads.DefaultMaxUploadBytes
	}
	if c.Upload.ReadGrantTTL <= 0 {
		c.Upload.ReadGrantTTL = uploads.DefaultReadTTL
	}
	c.Upload.ReadGrantTTL = min(c.Upload.ReadGrantTTL, uploads.MaxReadTTL)
	if c.Upload.WriteGrantTTL <= 0 {
		c.Upload.WriteGrantTTL = uploads.DefaultWriteTTL
	}
	if c.Store.Timeout <= 0 {
		c.Store.Timeout = uploads.DefaultStoreTimeout
	}
	if c.Store.Region == "" {
		c.Store.Region = "auto"
	}
}

// IsProduction reports whether the environment is production
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Validate validates the server configuration. Missing endpoint or credentials
// are not rejected here; the services fail closed at call time instead.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.Environment {
	case "local", "development", "testing", "production":
	default:
		return fmt.Errorf("environment must be one of local, development, testing, production, got: %s", c.Environment)
	}

	switch c.Store.Backend {
	case BackendSignedHTTP, BackendS3:
	case BackendMemory:
		if !c.DevStore {
			return errors.New("memory store backend requires the dev store")
		}
	default:
		return fmt.Errorf("store backend must be 'signedhttp', 's3' or 'memory', got: %s", c.Store.Backend)
	}

	if c.Store.Bucket == "" {
		return errors.New("store bucket is required")
	}

	if c.Upload.WriteGrantTTL < time.Second || c.Upload.WriteGrantTTL > 7*24*time.Hour {
		return fmt.Errorf("write grant ttl must be between 1s and 7d, got: %s", c.Upload.WriteGrantTTL)
	}
	if c.Upload.ClockSkew < 0 {
		return fmt.Errorf("clock skew cannot be negative")
	}
	// Issue times are backdated by the skew, so shorter grants are born expired.
	if c.Upload.WriteGrantTTL <= c.Upload.ClockSkew {
		return fmt.Errorf("write grant ttl %s must exceed clock skew %s", c.Upload.WriteGrantTTL, c.Upload.ClockSkew)
	}
	if c.Upload.ReadGrantTTL <= c.Upload.ClockSkew {
		return fmt.Errorf("read grant ttl %s must exceed clock skew %s", c.Upload.ReadGrantTTL, c.Upload.ClockSkew)
	}

	if c.Upload.PublicBaseURL != "" {
		u, err := url.Parse(c.Upload.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("public base url must be absolute, got: %s", c.Upload.PublicBaseURL)
		}
	}

	if c.IsProduction() {
		if c.DevStore {
			return errors.New("dev store cannot be enabled in production")
		}
		if c.Auth.StaticAdmin {
			return errors.New("static admin auth cannot be enabled in production")
		}
	}

	return nil
}
