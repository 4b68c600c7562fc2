package config

import (
	"fmt"
	"io"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv applies environment variable overrides. Variables that are set win over
// defaults and earlier options; unset ones leave the current value alone.
//
// Server:
//
//	PORT, ENVIRONMENT, DEV_STORE
//
// Object store:
//
//	STORE_BACKEND, STORE_ENDPOINT, STORE_BUCKET, STORE_REGION, STORE_TIMEOUT,
//	STORE_ACCESS_KEY_ID, STORE_SECRET_ACCESS_KEY
//
// Uploads:
//
//	UPLOAD_PREFIX, UPLOAD_MAX_BYTES, PUBLIC_BASE_URL, PRIVATE_READS,
//	READ_GRANT_TTL, WRITE_GRANT_TTL, CLOCK_SKEW
//
// Auth:
//
//	AUTH_JWT_SECRET, AUTH_ADMIN_EMAILS, AUTH_STATIC_ADMIN
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithConfigFile reads a YAML or .env file, then the environment on top of it.
func WithConfigFile(path string) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return nil
		}
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return nil
	}
}

// Usage writes the environment variable table to w
func Usage(w io.Writer) {
	var cfg ServerConfig
	cleanenv.FUsage(w, &cfg, nil)()
}
