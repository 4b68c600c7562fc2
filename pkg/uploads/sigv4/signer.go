package sigv4

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	Algorithm  = "AWS4-HMAC-SHA256"
	TimeFormat = "20060102T150405Z"
	DateFormat = "20060102"
	Terminator = "aws4_request"

	DefaultRegion  = "auto"
	DefaultService = "s3"

	// UnsignedPayload is the payload hash sentinel for presigned URLs
	UnsignedPayload = "UNSIGNED-PAYLOAD"

	// EmptyPayloadHash is the SHA-256 of an empty body
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	DefaultClockSkew = 2 * time.Minute
	MaxExpires       = 7 * 24 * time.Hour

	HeaderAuthorization     = "Authorization"
	HeaderXAmzDate          = "X-Amz-Date"
	HeaderXAmzContentSHA256 = "X-Amz-Content-Sha256"

	QueryAlgorithm     = "X-Amz-Algorithm"
	QueryCredential    = "X-Amz-Credential"
	QueryDate          = "X-Amz-Date"
	QueryExpires       = "X-Amz-Expires"
	QuerySignedHeaders = "X-Amz-SignedHeaders"
	QuerySignature     = "X-Amz-Signature"
)

// Credentials is an access key pair. The secret never appears in String or log output.
type Credentials struct {
	AccessKeyID string
	SecretKey   string
}

// Valid reports whether both halves of the key pair are set.
func (c Credentials) Valid() bool {
	return c.AccessKeyID != "" && c.SecretKey != ""
}

func (c Credentials) String() string {
	return "Credentials{AccessKeyID: " + c.AccessKeyID + ", SecretKey: [redacted]}"
}

// LogValue keeps the secret out of slog output.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("access_key_id", c.AccessKeyID))
}

// Signer produces SigV4 signatures. It holds no mutable state after New and is safe for concurrent use.
type Signer struct {
	creds   Credentials
	region  string
	service string
	skew    time.Duration
	now     func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		region:  DefaultRegion,
		service: DefaultService,
		skew:    DefaultClockSkew,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AccessKeyID returns the non-secret half of the key pair.
func (s *Signer) AccessKeyID() string {
	return s.creds.AccessKeyID
}

// Presigned is a URL carrying its own time-boxed authorization.
type Presigned struct {
	URL           string
	Method        string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	SignedHeaders []string
	Signature     string
}

// Presign builds a query-presigned URL for method on u. Every header in headers is signed,
// together with host, so the caller of the URL must send exactly those values.
//
// Example:
//
//	p, err := signer.Presign("PUT", u, http.Header{"Content-Type": {"image/png"}}, 10*time.Minute)
//	// p.URL: https://host/bucket/key?X-Amz-Algorithm=AWS4-HMAC-SHA256&X-Amz-Credential=...
func (s *Signer) Presign(method string, u *url.URL, headers http.Header, expires time.Duration) (*Presigned, error) {
	if !s.creds.Valid() {
		return nil, ErrMissingCredentials
	}
	if u == nil || u.Host == "" {
		return nil, ErrMissingHost
	}
	if expires < time.Second || expires > MaxExpires {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExpires, expires)
	}
	if expires <= s.skew {
		return nil, fmt.Errorf("%w: %s does not exceed clock skew %s", ErrInvalidExpires, expires, s.skew)
	}

	issuedAt := s.issueTime()
	scope := s.scope(issuedAt)
	values, signed := headerSet(headers, u.Host)

	query := u.Query()
	query.Del(QuerySignature)
	query.Set(QueryAlgorithm, Algorithm)
	query.Set(QueryCredential, s.creds.AccessKeyID+"/"+scope.String())
	query.Set(QueryDate, issuedAt.Format(TimeFormat))
	query.Set(QueryExpires, strconv.FormatInt(int64(expires/time.Second), 10))
	query.Set(QuerySignedHeaders, strings.Join(signed, ";"))

	creq := CanonicalRequest{
		Method:        method,
		Path:          u.Path,
		Query:         query,
		Headers:       values,
		SignedHeaders: signed,
		PayloadHash:   UnsignedPayload,
	}
	signature := Sign(SigningKey(s.creds.SecretKey, scope), StringToSign(issuedAt, scope, creq.Hash()))
	query.Set(QuerySignature, signature)

	return &Presigned{
		URL:           encodedURL(u, query),
		Method:        method,
		IssuedAt:      issuedAt,
		ExpiresAt:     issuedAt.Add(expires),
		SignedHeaders: signed,
		Signature:     signature,
	}, nil
}

// SignRequest adds header authentication to req. Every header already present on req is
// signed together with host, x-amz-date and x-amz-content-sha256. payloadHash is the hex
// SHA-256 of the body, EmptyPayloadHash for bodiless requests, or UnsignedPayload.
func (s *Signer) SignRequest(req *http.Request, payloadHash string) error {
	if !s.creds.Valid() {
		return ErrMissingCredentials
	}
	host := req.Host
	if host == "" && req.URL != nil {
		host = req.URL.Host
	}
	if host == "" {
		return ErrMissingHost
	}
	if payloadHash == "" {
		payloadHash = EmptyPayloadHash
	}

	issuedAt := s.issueTime()
	scope := s.scope(issuedAt)

	req.Header.Del(HeaderAuthorization)
	req.Header.Set(HeaderXAmzDate, issuedAt.Format(TimeFormat))
	req.Header.Set(HeaderXAmzContentSHA256, payloadHash)
	values, signed := headerSet(req.Header, host)

	creq := CanonicalRequest{
		Method:        req.Method,
		Path:          req.URL.Path,
		Query:         req.URL.Query(),
		Headers:       values,
		SignedHeaders: signed,
		PayloadHash:   payloadHash,
	}
	signature := Sign(SigningKey(s.creds.SecretKey, scope), StringToSign(issuedAt, scope, creq.Hash()))

	req.Header.Set(HeaderAuthorization, fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		Algorithm, s.creds.AccessKeyID, scope, strings.Join(signed, ";"), signature))
	return nil
}

func (s *Signer) issueTime() time.Time {
	return s.now().Add(-s.skew).UTC().Truncate(time.Second)
}

func (s *Signer) scope(t time.Time) Scope {
	return Scope{Date: t.Format(DateFormat), Region: s.region, Service: s.service}
}
