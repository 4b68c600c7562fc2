// Package auth turns a bearer token into an uploads.Capability.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/catalog-uploads/pkg/uploads"
)

var (
	// ErrMissingToken is returned when the request carries no bearer token
	ErrMissingToken = errors.New("missing token")

	// ErrInvalidToken is returned for tokens that fail signature or claim validation
	ErrInvalidToken = errors.New("invalid token")

	// ErrNotConfigured is returned when no signing secret is configured
	ErrNotConfigured = errors.New("auth not configured")
)

// RoleAdmin is the role value that grants administrator scope.
const RoleAdmin = "admin"

// Authorizer authenticates a request.
type Authorizer interface {
	Authenticate(r *http.Request) (uploads.Capability, error)
}

// Metadata is the role-carrying part of a session token.
type Metadata struct {
	Role string `json:"role,omitempty"`
}

// Claims are the session token claims; Subject identifies the user.
type Claims struct {
	jwt.RegisteredClaims
	Email        string   `json:"email,omitempty"`
	AppMetadata  Metadata `json:"app_metadata"`
	UserMetadata Metadata `json:"user_metadata"`
}

// JWTAuthorizer validates HS256 session tokens. A caller is an administrator when
// either metadata role is "admin" or the token email is on the allow-list.
type JWTAuthorizer struct {
	secret []byte
	admins map[string]struct{}
	now    func() time.Time
}

// NewJWTAuthorizer creates an authorizer. An empty allow-list matches nobody.
func NewJWTAuthorizer(secret string, adminEmails []string) *JWTAuthorizer {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		if email = normalizeEmail(email); email != "" {
			admins[email] = struct{}{}
		}
	}
	return &JWTAuthorizer{secret: []byte(secret), admins: admins, now: time.Now}
}

// WithClock replaces time.Now for expiry checks
func (a *JWTAuthorizer) WithClock(now func() time.Time) *JWTAuthorizer {
	if now != nil {
		a.now = now
	}
	return a
}

func (a *JWTAuthorizer) Authenticate(r *http.Request) (uploads.Capability, error) {
	if len(a.secret) == 0 {
		return uploads.Capability{}, ErrNotConfigured
	}

	tokenString := jwtauth.TokenFromHeader(r)
	if tokenString == "" {
		return uploads.Capability{}, ErrMissingToken
	}

	claims, err := a.parse(tokenString)
	if err != nil {
		return uploads.Capability{}, err
	}

	return uploads.Capability{
		IsAdmin:   a.isAdmin(claims),
		SubjectID: claims.Subject,
	}, nil
}

func (a *JWTAuthorizer) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (a *JWTAuthorizer) isAdmin(c *Claims) bool {
	// app_metadata is server-controlled; user_metadata only counts when it is unset.
	role := c.AppMetadata.Role
	if role == "" {
		role = c.UserMetadata.Role
	}
	if role == RoleAdmin {
		return true
	}
	if email := normalizeEmail(c.Email); email != "" {
		_, ok := a.admins[email]
		return ok
	}
	return false
}

// GenerateToken signs claims with HS256. Used by tooling and tests.
func GenerateToken(claims Claims, secretKey []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Static always returns the same capability; for local development
type Static struct {
	Capability uploads.Capability
}

func (s Static) Authenticate(*http.Request) (uploads.Capability, error) {
	return s.Capability, nil
}

// ParseEmails splits a comma separated allow-list
func ParseEmails(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = normalizeEmail(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type contextKey struct{}

// WithCapability stores c in ctx
func WithCapability(ctx context.Context, c uploads.Capability) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the capability stored by WithCapability; the zero value grants nothing
func FromContext(ctx context.Context) uploads.Capability {
	c, _ := ctx.Value(contextKey{}).(uploads.Capability)
	return c
}
