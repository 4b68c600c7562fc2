package uploads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/catalog-uploads/pkg/uploads/contentpolicy"
	"github.com/tendant/catalog-uploads/pkg/uploads/objectkey"
	"github.com/tendant/catalog-uploads/pkg/uploads/sigv4"
)

const (
	// DefaultMaxUploadBytes is the size ceiling when none is configured.
	DefaultMaxUploadBytes int64 = 5 * 1024 * 1024

	DefaultWriteTTL     = 600 * time.Second
	DefaultReadTTL      = time.Hour
	MaxReadTTL          = 7200 * time.Second
	DefaultStoreTimeout = 10 * time.Second
)

// service implements the Service interface
type service struct {
	store        BlobStore
	signer       URLSigner
	endpoint     *url.URL
	endpointErr  error
	bucket       string
	prefix       string
	maxBytes     int64
	writeTTL     time.Duration
	readTTL      time.Duration
	storeTimeout time.Duration
	keys         objectkey.Generator
	urls         URLStrategy
	recorder     Recorder
	logger       *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithBlobStore sets the object store backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithSigner sets the signer used for presigned grants
func WithSigner(signer URLSigner) Option {
	return func(s *service) {
		s.signer = signer
	}
}

// WithEndpoint sets the object store endpoint and bucket that grants are addressed to.
// Objects live at <endpoint>/<bucket>/<key> (path-style addressing).
func WithEndpoint(endpoint, bucket string) Option {
	return func(s *service) {
		s.bucket = strings.Trim(bucket, "/")
		s.endpoint, s.endpointErr = nil, nil
		if endpoint == "" {
			return
		}
		u, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
		if err != nil || u.Scheme == "" || u.Host == "" {
			s.endpointErr = fmt.Errorf("invalid endpoint %q", endpoint)
			return
		}
		s.endpoint = u
	}
}

// WithPrefix sets the key prefix; it is cleaned and falls back to "products"
func WithPrefix(prefix string) Option {
	return func(s *service) {
		s.prefix = objectkey.CleanPrefix(prefix)
	}
}

// WithoutPrefix stores objects at the bucket root
func WithoutPrefix() Option {
	return func(s *service) {
		s.prefix = ""
	}
}

// WithMaxUploadBytes sets the size ceiling; non-positive values keep the default
func WithMaxUploadBytes(n int64) Option {
	return func(s *service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithWriteTTL sets how long a PUT grant stays valid
func WithWriteTTL(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.writeTTL = d
		}
	}
}

// WithReadTTL sets how long a GET grant stays valid, capped at two hours
func WithReadTTL(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.readTTL = min(d, MaxReadTTL)
		}
	}
}

// WithStoreTimeout bounds every object store call
func WithStoreTimeout(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithKeyGenerator replaces the timestamp key generator
func WithKeyGenerator(g objectkey.Generator) Option {
	return func(s *service) {
		s.keys = g
	}
}

// WithURLStrategy sets how public URLs are computed
func WithURLStrategy(strategy URLStrategy) Option {
	return func(s *service) {
		s.urls = strategy
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a new service instance with the given options.
// Missing endpoint or credentials do not fail New; every call then fails closed
// with a KindConfiguration error.
func New(options ...Option) (Service, error) {
	s := &service{
		prefix:       objectkey.DefaultPrefix,
		maxBytes:     DefaultMaxUploadBytes,
		writeTTL:     DefaultWriteTTL,
		readTTL:      DefaultReadTTL,
		storeTimeout: DefaultStoreTimeout,
		recorder:     noopRecorder{},
		logger:       slog.Default(),
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.keys == nil {
		s.keys = objectkey.NewTimestampGenerator(s.prefix)
	}
	if s.urls == nil {
		s.urls = storageURLStrategy{s: s}
	}

	return s, nil
}

func (s *service) Authorize(ctx context.Context, caller Capability, req UploadRequest) (*AuthorizeResult, error) {
	const op = "uploads.authorize"

	if !caller.IsAdmin {
		return nil, newError(KindForbidden, op, "forbidden", ErrNotAdmin)
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, newError(KindValidation, op, "filename required", ErrFilenameRequired)
	}
	if req.SizeBytes <= 0 {
		return nil, newError(KindValidation, op, "invalid file size", ErrInvalidSize)
	}
	if req.SizeBytes > s.maxBytes {
		return nil, newError(KindValidation, op,
			fmt.Sprintf("file too large (max %d bytes)", s.maxBytes), ErrUploadTooLarge)
	}

	base, _ := SanitizeFilename(filename)
	resolved, err := contentpolicy.Resolve(filename, req.ClaimedContentType)
	if err != nil {
		e := newError(KindValidation, op, "file type not allowed", err)
		if errors.Is(err, contentpolicy.ErrMismatch) {
			e.Message = "file type does not match extension"
		}
		e.Reason = ReasonBadType
		return nil, e
	}

	if err := s.configured(); err != nil {
		return nil, newError(KindConfiguration, op, "upload storage not configured", err)
	}

	key := s.keys.GenerateKey(&objectkey.KeyMetadata{BaseName: base, Extension: resolved.Extension})
	if err := objectkey.Validate(key, s.prefix); err != nil {
		return nil, newError(KindConfiguration, op, "upload storage not configured", err)
	}

	contentType := string(resolved.ContentType)
	grant, err := s.presign(http.MethodPut, key, http.Header{"Content-Type": {contentType}}, s.writeTTL)
	if err != nil {
		return nil, s.signError(op, err)
	}

	publicURL, err := s.urls.PublicURL(ctx, key)
	if err != nil {
		return nil, s.signError(op, err)
	}

	s.recorder.GrantIssued(http.MethodPut)
	s.logger.InfoContext(ctx, "upload grant issued",
		"op", op,
		"grant_id", grant.ID,
		"subject_id", caller.SubjectID,
		"object_key", key,
		"content_type", contentType,
		"size", req.SizeBytes,
		"expires_at", grant.ExpiresAt,
	)

	return &AuthorizeResult{
		Grant:       *grant,
		UploadURL:   grant.URL,
		PublicURL:   publicURL,
		ObjectKey:   key,
		ContentType: resolved.ContentType,
	}, nil
}

func (s *service) ReadGrant(ctx context.Context, caller Capability, objectKey string) (*SignedGrant, error) {
	const op = "uploads.read_grant"

	if !caller.IsAdmin {
		return nil, newError(KindForbidden, op, "forbidden", ErrNotAdmin)
	}
	key, err := s.checkKey(op, objectKey)
	if err != nil {
		return nil, err
	}
	if err := s.configured(); err != nil {
		return nil, newError(KindConfiguration, op, "upload storage not configured", err)
	}

	grant, err := s.presign(http.MethodGet, key, nil, s.readTTL)
	if err != nil {
		return nil, s.signError(op, err)
	}

	s.recorder.GrantIssued(http.MethodGet)
	s.logger.InfoContext(ctx, "read grant issued",
		"op", op,
		"grant_id", grant.ID,
		"subject_id", caller.SubjectID,
		"object_key", key,
		"expires_at", grant.ExpiresAt,
	)
	return grant, nil
}

func (s *service) presign(method, key string, headers http.Header, ttl time.Duration) (*SignedGrant, error) {
	p, err := s.signer.Presign(method, s.objectURL(key), headers, ttl)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &SignedGrant{
		ID:             id,
		Method:         method,
		ObjectKey:      key,
		URL:            p.URL,
		IssuedAt:       p.IssuedAt,
		ExpiresAt:      p.ExpiresAt,
		SignatureToken: p.Signature,
	}, nil
}

func (s *service) checkKey(op, objectKey string) (string, error) {
	key := strings.TrimSpace(objectKey)
	if key == "" {
		return "", newError(KindValidation, op, "blob required", ErrObjectKeyRequired)
	}
	if err := objectkey.Validate(key, s.prefix); err != nil {
		return "", newError(KindValidation, op, "invalid blob", err)
	}
	return key, nil
}

func (s *service) configured() error {
	switch {
	case s.endpointErr != nil:
		return fmt.Errorf("%w: %v", ErrNotConfigured, s.endpointErr)
	case s.endpoint == nil:
		return fmt.Errorf("%w: missing endpoint", ErrNotConfigured)
	case s.bucket == "":
		return fmt.Errorf("%w: missing bucket", ErrNotConfigured)
	case s.signer == nil:
		return fmt.Errorf("%w: missing signer", ErrNotConfigured)
	}
	return nil
}

func (s *service) signError(op string, err error) error {
	if errors.Is(err, sigv4.ErrMissingCredentials) || errors.Is(err, sigv4.ErrMissingHost) ||
		errors.Is(err, sigv4.ErrInvalidExpires) || errors.Is(err, ErrNotConfigured) {
		return newError(KindConfiguration, op, "upload storage not configured", err)
	}
	return newError(KindInfrastructure, op, "could not create upload url", err)
}

// objectURL addresses key path-style under the endpoint.
func (s *service) objectURL(key string) *url.URL {
	u := *s.endpoint
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + s.bucket + "/" + key
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return &u
}

// storageURLStrategy is the fallback public URL: <endpoint>/<bucket>/<key>.
type storageURLStrategy struct {
	s *service
}

func (st storageURLStrategy) PublicURL(_ context.Context, objectKey string) (string, error) {
	if err := st.s.configured(); err != nil {
		return "", err
	}
	return st.s.objectURL(objectKey).String(), nil
}
