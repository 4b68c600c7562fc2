package sigv4

import (
	"crypto/hmac"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CredentialsStore resolves an access key id to its secret.
type CredentialsStore interface {
	SecretFor(accessKeyID string) (string, bool)
}

// StaticCredentials maps access key ids to secrets.
type StaticCredentials map[string]string

func (c StaticCredentials) SecretFor(accessKeyID string) (string, bool) {
	secret, ok := c[accessKeyID]
	return secret, ok && secret != ""
}

// Verifier checks SigV4 signatures on incoming requests.
type Verifier struct {
	store     CredentialsStore
	region    string
	service   string
	allowance time.Duration
	now       func() time.Time
}

// NewVerifier creates a Verifier backed by store.
func NewVerifier(store CredentialsStore, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		store:     store,
		region:    DefaultRegion,
		service:   DefaultService,
		allowance: 15 * time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Grant describes a request whose signature checked out.
type Grant struct {
	AccessKeyID string
	Method      string
	Path        string
	IssuedAt    time.Time
	// ExpiresAt is zero for header-authenticated requests.
	ExpiresAt     time.Time
	SignedHeaders []string
	PayloadHash   string
	Presigned     bool
}

// Signs reports whether name (any case) was covered by the signature.
func (g *Grant) Signs(name string) bool {
	name = strings.ToLower(name)
	for _, h := range g.SignedHeaders {
		if h == name {
			return true
		}
	}
	return false
}

// Verify dispatches to VerifyHeader or VerifyPresigned depending on how r is signed.
func (v *Verifier) Verify(r *http.Request) (*Grant, error) {
	if r.Header.Get(HeaderAuthorization) != "" {
		return v.VerifyHeader(r)
	}
	if r.URL.Query().Has(QueryAlgorithm) {
		return v.VerifyPresigned(r)
	}
	return nil, ErrMissingAuthentication
}

// VerifyPresigned checks a query-presigned request. The request is valid from
// issue time minus the skew allowance up to and including issue time plus X-Amz-Expires.
func (v *Verifier) VerifyPresigned(r *http.Request) (*Grant, error) {
	query := r.URL.Query()

	if alg := query.Get(QueryAlgorithm); alg != Algorithm {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}

	issuedAt, err := time.Parse(TimeFormat, query.Get(QueryDate))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedAuthorization, QueryDate, err)
	}

	accessKeyID, scope, err := v.parseCredential(query.Get(QueryCredential), issuedAt)
	if err != nil {
		return nil, err
	}

	expiresSec, err := strconv.ParseInt(query.Get(QueryExpires), 10, 64)
	if err != nil || expiresSec < 1 || time.Duration(expiresSec)*time.Second > MaxExpires {
		return nil, fmt.Errorf("%w: %s", ErrMalformedAuthorization, QueryExpires)
	}
	expiresAt := issuedAt.Add(time.Duration(expiresSec) * time.Second)

	signed, err := parseSignedHeaders(query.Get(QuerySignedHeaders))
	if err != nil {
		return nil, err
	}

	now := v.now()
	if now.After(expiresAt) {
		return nil, ErrExpired
	}
	if now.Before(issuedAt.Add(-v.allowance)) {
		return nil, ErrRequestTimeTooSkewed
	}

	provided := query.Get(QuerySignature)
	query.Del(QuerySignature)

	payloadHash := UnsignedPayload
	if h := r.Header.Get(HeaderXAmzContentSHA256); h != "" && containsName(signed, "x-amz-content-sha256") {
		payloadHash = h
	}

	if err := v.check(r, query, signed, payloadHash, accessKeyID, scope, issuedAt, provided); err != nil {
		return nil, err
	}

	return &Grant{
		AccessKeyID:   accessKeyID,
		Method:        r.Method,
		Path:          r.URL.Path,
		IssuedAt:      issuedAt,
		ExpiresAt:     expiresAt,
		SignedHeaders: signed,
		PayloadHash:   payloadHash,
		Presigned:     true,
	}, nil
}

// VerifyHeader checks a request signed with an Authorization header. The x-amz-date
// must lie within the skew allowance of the verifier's clock.
func (v *Verifier) VerifyHeader(r *http.Request) (*Grant, error) {
	issuedAt, err := time.Parse(TimeFormat, r.Header.Get(HeaderXAmzDate))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedAuthorization, HeaderXAmzDate, err)
	}

	if skew := v.now().Sub(issuedAt); skew < -v.allowance || skew > v.allowance {
		return nil, ErrRequestTimeTooSkewed
	}

	alg, rest, ok := strings.Cut(r.Header.Get(HeaderAuthorization), " ")
	if !ok {
		return nil, fmt.Errorf("%w: authorization header does not contain expected parts", ErrMalformedAuthorization)
	}
	if alg != Algorithm {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}

	var credential, signedList, provided string
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "Credential="):
			credential = strings.TrimPrefix(part, "Credential=")
		case strings.HasPrefix(part, "SignedHeaders="):
			signedList = strings.TrimPrefix(part, "SignedHeaders=")
		case strings.HasPrefix(part, "Signature="):
			provided = strings.TrimPrefix(part, "Signature=")
		}
	}
	if credential == "" || signedList == "" || provided == "" {
		return nil, fmt.Errorf("%w: authorization header does not contain expected key=value pairs", ErrMalformedAuthorization)
	}

	accessKeyID, scope, err := v.parseCredential(credential, issuedAt)
	if err != nil {
		return nil, err
	}

	signed, err := parseSignedHeaders(signedList)
	if err != nil {
		return nil, err
	}

	payloadHash := r.Header.Get(HeaderXAmzContentSHA256)
	if payloadHash == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedAuthorization, HeaderXAmzContentSHA256)
	}

	if err := v.check(r, r.URL.Query(), signed, payloadHash, accessKeyID, scope, issuedAt, provided); err != nil {
		return nil, err
	}

	return &Grant{
		AccessKeyID:   accessKeyID,
		Method:        r.Method,
		Path:          r.URL.Path,
		IssuedAt:      issuedAt,
		SignedHeaders: signed,
		PayloadHash:   payloadHash,
	}, nil
}

func (v *Verifier) check(r *http.Request, query url.Values, signed []string, payloadHash, accessKeyID string, scope Scope, issuedAt time.Time, provided string) error {
	secret, ok := v.store.SecretFor(accessKeyID)
	if !ok {
		return ErrUnknownAccessKey
	}

	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	values := make(map[string]string, len(signed))
	for _, name := range signed {
		if name == "host" {
			values[name] = host
			continue
		}
		vv := r.Header.Values(name)
		trimmed := make([]string, len(vv))
		for i, val := range vv {
			trimmed[i] = canonicalHeaderValue(val)
		}
		values[name] = strings.Join(trimmed, ",")
	}

	creq := CanonicalRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         query,
		Headers:       values,
		SignedHeaders: signed,
		PayloadHash:   payloadHash,
	}
	expected := Sign(SigningKey(secret, scope), StringToSign(issuedAt, scope, creq.Hash()))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(provided))) {
		return ErrSignatureDoesNotMatch
	}
	return nil
}

func (v *Verifier) parseCredential(raw string, issuedAt time.Time) (string, Scope, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 5 || parts[0] == "" {
		return "", Scope{}, fmt.Errorf("%w: credential does not contain necessary parts", ErrMalformedAuthorization)
	}
	scope := Scope{Date: parts[1], Region: parts[2], Service: parts[3]}
	switch {
	case scope.Date != issuedAt.UTC().Format(DateFormat):
		return "", Scope{}, fmt.Errorf("%w: date %q", ErrInvalidScope, scope.Date)
	case scope.Region != v.region:
		return "", Scope{}, fmt.Errorf("%w: region %q", ErrInvalidScope, scope.Region)
	case scope.Service != v.service:
		return "", Scope{}, fmt.Errorf("%w: service %q", ErrInvalidScope, scope.Service)
	case parts[4] != Terminator:
		return "", Scope{}, fmt.Errorf("%w: terminator %q", ErrInvalidScope, parts[4])
	}
	return parts[0], scope, nil
}

func parseSignedHeaders(raw string) ([]string, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty signed headers", ErrMalformedAuthorization)
	}
	names := strings.Split(raw, ";")
	for i, name := range names {
		if name == "" || name != strings.ToLower(name) {
			return nil, fmt.Errorf("%w: signed header %q", ErrMalformedAuthorization, name)
		}
		if i > 0 && names[i-1] >= name {
			return nil, fmt.Errorf("%w: signed headers not sorted", ErrMalformedAuthorization)
		}
	}
	if !containsName(names, "host") {
		return nil, fmt.Errorf("%w: host must be signed", ErrMalformedAuthorization)
	}
	return names, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
