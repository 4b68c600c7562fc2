package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// CanonicalRequest is the fixed-format description of a request that gets hashed and signed.
type CanonicalRequest struct {
	Method string
	// Path is the decoded URL path; it is URI-encoded segment by segment when serialized.
	Path  string
	Query url.Values
	// Headers maps lower-cased header names to their values; only SignedHeaders are serialized.
	Headers       map[string]string
	SignedHeaders []string
	PayloadHash   string
}

// String serializes the request as method, URI, query, headers, signed header list and payload hash.
func (c CanonicalRequest) String() string {
	var b strings.Builder
	b.WriteString(c.Method)
	b.WriteByte('\n')
	b.WriteString(canonicalURI(c.Path))
	b.WriteByte('\n')
	b.WriteString(canonicalQuery(c.Query))
	b.WriteByte('\n')
	for _, name := range c.SignedHeaders {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(canonicalHeaderValue(c.Headers[name]))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(strings.Join(c.SignedHeaders, ";"))
	b.WriteByte('\n')
	b.WriteString(c.PayloadHash)
	return b.String()
}

// Hash returns the hex SHA-256 of the serialized request.
func (c CanonicalRequest) Hash() string {
	return HashPayload([]byte(c.String()))
}

// Scope is the credential scope date/region/service/aws4_request.
type Scope struct {
	Date    string
	Region  string
	Service string
}

func (s Scope) String() string {
	return s.Date + "/" + s.Region + "/" + s.Service + "/" + Terminator
}

// StringToSign joins the algorithm tag, timestamp, scope and hashed canonical request.
func StringToSign(t time.Time, scope Scope, hashedCanonicalRequest string) string {
	return strings.Join([]string{
		Algorithm,
		t.UTC().Format(TimeFormat),
		scope.String(),
		hashedCanonicalRequest,
	}, "\n")
}

// SigningKey runs the HMAC cascade kDate, kRegion, kService, kSigning.
func SigningKey(secretKey string, scope Scope) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), scope.Date)
	kRegion := hmacSHA256(kDate, scope.Region)
	kService := hmacSHA256(kRegion, scope.Service)
	return hmacSHA256(kService, Terminator)
}

// Sign returns the hex signature of stringToSign under key.
func Sign(key []byte, stringToSign string) string {
	return hex.EncodeToString(hmacSHA256(key, stringToSign))
}

// HashPayload returns the lower-case hex SHA-256 of payload.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	return uriEncode(path, false)
}

func canonicalQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		values := append([]string(nil), q[k]...)
		sort.Strings(values)
		for _, v := range values {
			pairs = append(pairs, uriEncode(k, true)+"="+uriEncode(v, true))
		}
	}
	return strings.Join(pairs, "&")
}

func canonicalHeaderValue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// uriEncode percent-encodes everything except RFC 3986 unreserved characters,
// and '/' when encodeSlash is false.
func uriEncode(s string, encodeSlash bool) string {
	const hexUpper = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hexUpper[c>>4])
			b.WriteByte(hexUpper[c&0x0F])
		}
	}
	return b.String()
}

// headerSet lower-cases names and joins repeated values with commas.
func headerSet(h http.Header, host string) (map[string]string, []string) {
	values := map[string]string{"host": host}
	for name, vv := range h {
		lower := strings.ToLower(name)
		if lower == "host" || lower == "authorization" {
			continue
		}
		trimmed := make([]string, len(vv))
		for i, v := range vv {
			trimmed[i] = canonicalHeaderValue(v)
		}
		values[lower] = strings.Join(trimmed, ",")
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return values, names
}

// encodedURL renders scheme://host/path?query with the same encoding the signature covered.
func encodedURL(u *url.URL, q url.Values) string {
	out := u.Scheme + "://" + u.Host + canonicalURI(u.Path)
	if qs := canonicalQuery(q); qs != "" {
		out += "?" + qs
	}
	return out
}
