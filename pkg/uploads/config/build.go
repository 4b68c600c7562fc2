package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tendant/catalog-uploads/pkg/uploads"
	"github.com/tendant/catalog-uploads/pkg/uploads/auth"
	"github.com/tendant/catalog-uploads/pkg/uploads/devstore"
	"github.com/tendant/catalog-uploads/pkg/uploads/metrics"
	"github.com/tendant/catalog-uploads/pkg/uploads/sigv4"
	memorystorage "github.com/tendant/catalog-uploads/pkg/uploads/storage/memory"
	s3storage "github.com/tendant/catalog-uploads/pkg/uploads/storage/s3"
	"github.com/tendant/catalog-uploads/pkg/uploads/storage/signedhttp"
	"github.com/tendant/catalog-uploads/pkg/uploads/urlstrategy"
)

// Dev store credentials when none are configured outside production.
const (
	devAccessKeyID = "devstore"
	devSecretKey   = "devstore-secret"
)

// DevStorePath is where the dev store is mounted
const DevStorePath = "/_store"

// Components are the wired pieces a server needs
type Components struct {
	Service    uploads.Service
	Store      uploads.BlobStore
	Signer     *sigv4.Signer
	Authorizer auth.Authorizer
	Metrics    *metrics.Metrics

	// DevStore serves /{bucket}/* and is mounted at DevStorePath; nil unless enabled
	DevStore http.Handler
}

// Build creates the upload service and its collaborators from the configuration
func (c *ServerConfig) Build(logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := metrics.New()

	creds := sigv4.Credentials{AccessKeyID: c.Store.AccessKeyID, SecretKey: c.Store.SecretAccessKey}
	endpoint := c.Store.Endpoint
	if c.DevStore {
		if !creds.Valid() {
			creds = sigv4.Credentials{AccessKeyID: devAccessKeyID, SecretKey: devSecretKey}
		}
		if endpoint == "" {
			endpoint = "http://localhost:" + strings.TrimPrefix(c.Port, ":") + DevStorePath
		}
	}
	if !creds.Valid() || endpoint == "" {
		logger.Warn("object store not configured, upload calls will fail",
			"endpoint_set", endpoint != "", "credentials", creds)
	}

	signer := sigv4.New(
		sigv4.WithCredentials(creds),
		sigv4.WithRegion(c.Store.Region),
		sigv4.WithClockSkew(c.Upload.ClockSkew),
	)

	comps := &Components{Signer: signer, Metrics: m}

	var devBacking *memorystorage.Backend
	switch c.Store.Backend {
	case BackendMemory:
		devBacking = memorystorage.New()
		comps.Store = devBacking
	case BackendS3:
		store, err := s3storage.New(s3storage.Config{
			Region:          c.Store.Region,
			Bucket:          c.Store.Bucket,
			AccessKeyID:     creds.AccessKeyID,
			SecretAccessKey: creds.SecretKey,
			Endpoint:        endpoint,
			UsePathStyle:    true,
			Observer:        m,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build s3 store: %w", err)
		}
		comps.Store = store
	default:
		store, err := signedhttp.New(signedhttp.Config{
			Endpoint: endpoint,
			Bucket:   c.Store.Bucket,
			Signer:   signer,
			Observer: m,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build signed http store: %w", err)
		}
		comps.Store = store
	}

	if c.DevStore {
		if devBacking == nil {
			devBacking = memorystorage.New()
		}
		verifier := sigv4.NewVerifier(
			sigv4.StaticCredentials{creds.AccessKeyID: creds.SecretKey},
			sigv4.WithVerifierScope(c.Store.Region, sigv4.DefaultService),
		)
		comps.DevStore = devstore.NewHandlers(devBacking, c.Store.Bucket, verifier,
			devstore.WithLogger(logger.With("component", "devstore"))).Routes()
	}

	comps.Authorizer = c.buildAuthorizer(logger)

	options := []uploads.Option{
		uploads.WithBlobStore(comps.Store),
		uploads.WithSigner(signer),
		uploads.WithEndpoint(endpoint, c.Store.Bucket),
		uploads.WithPrefix(c.Upload.Prefix),
		uploads.WithMaxUploadBytes(c.Upload.MaxBytes),
		uploads.WithWriteTTL(c.Upload.WriteGrantTTL),
		uploads.WithReadTTL(c.Upload.ReadGrantTTL),
		uploads.WithStoreTimeout(c.Store.Timeout),
		uploads.WithRecorder(m),
		uploads.WithLogger(logger),
	}

	urls, err := urlstrategy.NewRecommendedStrategy(c.Upload.PrivateReads, c.Upload.PublicBaseURL, urlstrategy.Config{
		Endpoint: endpoint,
		Bucket:   c.Store.Bucket,
		Signer:   signer,
		ReadTTL:  c.Upload.ReadGrantTTL,
	})
	if err != nil {
		logger.Warn("public url strategy unavailable, using storage urls",
			"private_reads", c.Upload.PrivateReads,
			"public_base_url", c.Upload.PublicBaseURL,
			"error", err)
	} else {
		options = append(options, uploads.WithURLStrategy(urls))
	}

	svc, err := uploads.New(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload service: %w", err)
	}
	comps.Service = svc

	return comps, nil
}

func (c *ServerConfig) buildAuthorizer(logger *slog.Logger) auth.Authorizer {
	if c.Auth.StaticAdmin && !c.IsProduction() {
		logger.Warn("static admin auth enabled, every caller is an administrator")
		return auth.Static{Capability: uploads.Capability{IsAdmin: true, SubjectID: "static-admin"}}
	}
	if c.Auth.JWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET not set, admin endpoints will fail")
	}
	return auth.NewJWTAuthorizer(c.Auth.JWTSecret, auth.ParseEmails(c.Auth.AdminEmails))
}
