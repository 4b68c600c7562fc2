package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (local, development, testing, production)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithStore configures the object store backend, endpoint and bucket
func WithStore(backend, endpoint, bucket string) Option {
	return func(c *ServerConfig) error {
		if backend == "" {
			return fmt.Errorf("store backend cannot be empty")
		}
		c.Store.Backend = backend
		c.Store.Endpoint = endpoint
		if bucket != "" {
			c.Store.Bucket = bucket
		}
		return nil
	}
}

// WithCredentials sets the object store key pair
func WithCredentials(accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		c.Store.AccessKeyID = accessKeyID
		c.Store.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithUploadPrefix sets the object key prefix
func WithUploadPrefix(prefix string) Option {
	return func(c *ServerConfig) error {
		c.Upload.Prefix = prefix
		return nil
	}
}

// WithMaxUploadBytes sets the size ceiling; non-positive values fall back to the default
func WithMaxUploadBytes(n int64) Option {
	return func(c *ServerConfig) error {
		c.Upload.MaxBytes = n
		return nil
	}
}

// WithPublicBaseURL sets the base for public object URLs
func WithPublicBaseURL(base string) Option {
	return func(c *ServerConfig) error {
		c.Upload.PublicBaseURL = base
		return nil
	}
}

// WithPrivateReads makes public URLs presigned GET grants
func WithPrivateReads(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.Upload.PrivateReads = enabled
		return nil
	}
}

// WithGrantTTLs sets read and write grant lifetimes; zero keeps the current value
func WithGrantTTLs(read, write time.Duration) Option {
	return func(c *ServerConfig) error {
		if read < 0 || write < 0 {
			return fmt.Errorf("grant ttl cannot be negative")
		}
		if read > 0 {
			c.Upload.ReadGrantTTL = read
		}
		if write > 0 {
			c.Upload.WriteGrantTTL = write
		}
		return nil
	}
}

// WithAuth sets the session token secret and administrator allow-list
func WithAuth(secret string, adminEmails string) Option {
	return func(c *ServerConfig) error {
		c.Auth.JWTSecret = secret
		c.Auth.AdminEmails = adminEmails
		return nil
	}
}

// WithStaticAdmin treats every caller as an administrator
func WithStaticAdmin(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.Auth.StaticAdmin = enabled
		return nil
	}
}

// WithDevStore enables the in-process object store
func WithDevStore(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.DevStore = enabled
		return nil
	}
}
