package objectkey

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultPrefix is used when no upload prefix is configured or the configured one cleans to nothing.
const DefaultPrefix = "products"

var (
	// ErrInvalidKey is returned for keys with traversal sequences or characters outside the key alphabet
	ErrInvalidKey = errors.New("objectkey: invalid key")

	// ErrOutsidePrefix is returned for keys that do not live under the configured prefix
	ErrOutsidePrefix = errors.New("objectkey: key outside upload prefix")
)

var (
	prefixStrip  = regexp.MustCompile(`[^a-zA-Z0-9/_-]+`)
	segmentStrip = regexp.MustCompile(`[^a-z0-9-]+`)
	extStrip     = regexp.MustCompile(`[^a-z0-9]+`)
	validKey     = regexp.MustCompile(`^[a-zA-Z0-9/_-]+(\.[a-z0-9]+)?$`)
)

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates an object key from an already slugified base name and extension
	GenerateKey(metadata *KeyMetadata) string
}

// KeyMetadata contains information that influences key generation
type KeyMetadata struct {
	BaseName  string
	Extension string
}

// TimestampGenerator builds keys as <prefix>/<unixMillis>-<base>.<ext>
// Keys are unique with overwhelming probability, not guaranteed.
type TimestampGenerator struct {
	Prefix string
	Now    func() time.Time
}

func NewTimestampGenerator(prefix string) *TimestampGenerator {
	return &TimestampGenerator{
		Prefix: strings.Trim(prefixStrip.ReplaceAllString(prefix, ""), "/"),
		Now:    time.Now,
	}
}

func (g *TimestampGenerator) GenerateKey(metadata *KeyMetadata) string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	base, ext := "", ""
	if metadata != nil {
		base = strings.Trim(segmentStrip.ReplaceAllString(strings.ToLower(metadata.BaseName), "-"), "-")
		ext = extStrip.ReplaceAllString(strings.ToLower(metadata.Extension), "")
	}
	if base == "" {
		base = "archivo"
	}

	name := fmt.Sprintf("%d-%s", now().UnixMilli(), base)
	if ext != "" {
		name += "." + ext
	}
	if g.Prefix == "" {
		return name
	}
	return g.Prefix + "/" + name
}

// CleanPrefix strips characters outside [a-zA-Z0-9/_-] and surrounding slashes,
// falling back to DefaultPrefix.
func CleanPrefix(raw string) string {
	cleaned := strings.Trim(prefixStrip.ReplaceAllString(strings.TrimSpace(raw), ""), "/")
	if cleaned == "" {
		return DefaultPrefix
	}
	return cleaned
}

// Validate checks that key has the shape this package produces and, when prefix is
// non-empty, that it lives directly under prefix.
func Validate(key, prefix string) error {
	if prefix != "" && !strings.HasPrefix(key, prefix+"/") {
		return fmt.Errorf("%w: %q", ErrOutsidePrefix, key)
	}
	if strings.Contains(key, "..") || strings.Contains(key, "//") ||
		strings.HasPrefix(key, "/") || !validKey.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
