package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/catalog-uploads/pkg/uploads"
	"github.com/tendant/catalog-uploads/pkg/uploads/auth"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, BackendSignedHTTP, cfg.Store.Backend)
	assert.Equal(t, "imagenes", cfg.Store.Bucket)
	assert.Equal(t, "auto", cfg.Store.Region)
	assert.Equal(t, "products", cfg.Upload.Prefix)
	assert.Equal(t, int64(5*1024*1024), cfg.Upload.MaxBytes)
	assert.Equal(t, time.Hour, cfg.Upload.ReadGrantTTL)
	assert.Equal(t, 10*time.Minute, cfg.Upload.WriteGrantTTL)
	assert.Equal(t, 2*time.Minute, cfg.Upload.ClockSkew)
	assert.Equal(t, 10*time.Second, cfg.Store.Timeout)
	assert.False(t, cfg.DevStore)
}

func TestWithEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORE_BACKEND", "s3")
	t.Setenv("STORE_ENDPOINT", "https://acct.r2.cloudflarestorage.com")
	t.Setenv("STORE_BUCKET", "catalogo")
	t.Setenv("STORE_ACCESS_KEY_ID", "AK")
	t.Setenv("STORE_SECRET_ACCESS_KEY", "SK")
	t.Setenv("UPLOAD_PREFIX", "/shop one/img/")
	t.Setenv("UPLOAD_MAX_BYTES", "-1")
	t.Setenv("PUBLIC_BASE_URL", "https://img.example.com")
	t.Setenv("PRIVATE_READS", "true")
	t.Setenv("READ_GRANT_TTL", "5h")
	t.Setenv("WRITE_GRANT_TTL", "5m")
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("AUTH_ADMIN_EMAILS", "a@x.com,b@x.com")

	cfg, err := Load(WithEnv())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, BackendS3, cfg.Store.Backend)
	assert.Equal(t, "catalogo", cfg.Store.Bucket)
	assert.Equal(t, "AK", cfg.Store.AccessKeyID)
	assert.Equal(t, "SK", cfg.Store.SecretAccessKey)
	assert.Equal(t, "shopone/img", cfg.Upload.Prefix)
	assert.Equal(t, uploads.DefaultMaxUploadBytes, cfg.Upload.MaxBytes, "non-positive falls back")
	assert.True(t, cfg.Upload.PrivateReads)
	assert.Equal(t, uploads.MaxReadTTL, cfg.Upload.ReadGrantTTL, "read ttl is capped")
	assert.Equal(t, 5*time.Minute, cfg.Upload.WriteGrantTTL)
	assert.Equal(t, "a@x.com,b@x.com", cfg.Auth.AdminEmails)
}

func TestWithEnvKeepsEarlierOptions(t *testing.T) {
	t.Setenv("STORE_BUCKET", "")
	os.Unsetenv("STORE_BUCKET")

	cfg, err := Load(WithStore(BackendSignedHTTP, "https://minio.local:9000", "from-option"), WithEnv())
	require.NoError(t, err)
	assert.Equal(t, "from-option", cfg.Store.Bucket)
	assert.Equal(t, "https://minio.local:9000", cfg.Store.Endpoint)
}

func TestWithConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7070"
environment: local
dev_store: true
store:
  backend: memory
  bucket: fotos
upload:
  prefix: catalog
  write_grant_ttl: 3m
`), 0o600))

	cfg, err := Load(WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "local", cfg.Environment)
	assert.True(t, cfg.DevStore)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "fotos", cfg.Store.Bucket)
	assert.Equal(t, "catalog", cfg.Upload.Prefix)
	assert.Equal(t, 3*time.Minute, cfg.Upload.WriteGrantTTL)

	_, err = Load(WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr string
	}{
		{name: "empty port option", opts: []Option{WithPort("")}, wantErr: "port cannot be empty"},
		{name: "unknown environment", opts: []Option{WithEnvironment("staging")}, wantErr: "environment must be one of"},
		{name: "unknown backend", opts: []Option{WithStore("azure", "", "")}, wantErr: "store backend must be"},
		{name: "memory without dev store", opts: []Option{WithStore(BackendMemory, "", "")}, wantErr: "requires the dev store"},
		{name: "relative public base", opts: []Option{WithPublicBaseURL("/images")}, wantErr: "public base url must be absolute"},
		{name: "dev store in production", opts: []Option{WithEnvironment("production"), WithDevStore(true)}, wantErr: "dev store cannot be enabled"},
		{name: "static admin in production", opts: []Option{WithEnvironment("production"), WithStaticAdmin(true)}, wantErr: "static admin"},
		{name: "negative ttl", opts: []Option{WithGrantTTLs(-time.Second, 0)}, wantErr: "cannot be negative"},
		{name: "write ttl within skew", opts: []Option{WithGrantTTLs(0, time.Minute)}, wantErr: "write grant ttl 1m0s must exceed clock skew"},
		{name: "write ttl equal to skew", opts: []Option{WithGrantTTLs(0, 2*time.Minute)}, wantErr: "must exceed clock skew"},
		{name: "read ttl within skew", opts: []Option{WithGrantTTLs(90*time.Second, 0)}, wantErr: "read grant ttl 1m30s must exceed clock skew"},
		{name: "write ttl too long", opts: []Option{WithGrantTTLs(0, 8*24*time.Hour)}, wantErr: "write grant ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildDevStore(t *testing.T) {
	cfg, err := Load(
		WithEnvironment("local"),
		WithStore(BackendMemory, "", ""),
		WithDevStore(true),
		WithStaticAdmin(true),
	)
	require.NoError(t, err)

	comps, err := cfg.Build(nil)
	require.NoError(t, err)
	require.NotNil(t, comps.DevStore)
	assert.Equal(t, devAccessKeyID, comps.Signer.AccessKeyID())
	assert.IsType(t, auth.Static{}, comps.Authorizer)

	res, err := comps.Service.Authorize(context.Background(),
		uploads.Capability{IsAdmin: true},
		uploads.UploadRequest{Filename: "a.png", ClaimedContentType: "image/png", SizeBytes: 10})
	require.NoError(t, err)
	assert.Contains(t, res.UploadURL, "http://localhost:8080/_store/imagenes/products/")
}

func TestBuildFailsClosedWithoutCredentials(t *testing.T) {
	for _, backend := range []string{BackendSignedHTTP, BackendS3} {
		t.Run(backend, func(t *testing.T) {
			cfg, err := Load(WithStore(backend, "https://acct.r2.cloudflarestorage.com", ""))
			require.NoError(t, err)

			comps, err := cfg.Build(nil)
			require.NoError(t, err)
			assert.IsType(t, &auth.JWTAuthorizer{}, comps.Authorizer)

			_, err = comps.Service.Authorize(context.Background(),
				uploads.Capability{IsAdmin: true},
				uploads.UploadRequest{Filename: "a.png", ClaimedContentType: "image/png", SizeBytes: 10})
			assert.Equal(t, uploads.KindConfiguration, uploads.KindOf(err))

			_, err = comps.Service.Verify(context.Background(), uploads.Capability{IsAdmin: true}, "products/1-a.png")
			assert.Equal(t, uploads.KindConfiguration, uploads.KindOf(err))
		})
	}
}

func TestBuildLogsUnavailableURLStrategy(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = cfg.Build(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "public url strategy unavailable")
	assert.Contains(t, buf.String(), "endpoint and bucket are required")
}

func TestUsage(t *testing.T) {
	var buf bytes.Buffer
	Usage(&buf)
	assert.Contains(t, buf.String(), "STORE_ENDPOINT")
	assert.Contains(t, buf.String(), "UPLOAD_MAX_BYTES")
}
