// Package contentpolicy decides which image uploads are acceptable and what
// canonical MIME type they are stored under.
package contentpolicy

import (
	"errors"
	"fmt"
	"strings"
)

// ContentType is one of the canonical image MIME types accepted into the catalog.
type ContentType string

const (
	JPEG ContentType = "image/jpeg"
	PNG  ContentType = "image/png"
	GIF  ContentType = "image/gif"
	WebP ContentType = "image/webp"
	AVIF ContentType = "image/avif"
)

var (
	// ErrNotAllowed is returned when neither the extension nor the claimed type is an allowed image type
	ErrNotAllowed = errors.New("contentpolicy: file type not allowed")

	// ErrMismatch is returned when the extension and the claimed content type disagree
	ErrMismatch = errors.New("contentpolicy: file extension does not match content type")
)

var extensionTypes = map[string]ContentType{
	"jpg":  JPEG,
	"jpeg": JPEG,
	"png":  PNG,
	"gif":  GIF,
	"webp": WebP,
	"avif": AVIF,
}

var canonicalExtensions = map[ContentType]string{
	JPEG: "jpg",
	PNG:  "png",
	GIF:  "gif",
	WebP: "webp",
	AVIF: "avif",
}

// Resolved is the outcome of a successful Resolve.
type Resolved struct {
	ContentType ContentType
	// Extension is lower-cased and has no leading dot.
	Extension string
}

// Resolve maps a filename and the client's claimed MIME type to a canonical content type.
//
// A known extension wins, and a non-empty claim must agree with it. A name without any
// extension is accepted only when the claimed type is itself canonical. Every other input
// is rejected with an error wrapping ErrNotAllowed or ErrMismatch.
func Resolve(filename, claimedContentType string) (Resolved, error) {
	ext := Extension(filename)
	claimed, claimedOK := Canonical(claimedContentType)
	claimedRaw := normalizeMediaType(claimedContentType)

	if ext == "" {
		if !claimedOK {
			return Resolved{}, fmt.Errorf("%w: %q", ErrNotAllowed, claimedRaw)
		}
		return Resolved{ContentType: claimed, Extension: canonicalExtensions[claimed]}, nil
	}

	mapped, ok := extensionTypes[ext]
	if !ok {
		return Resolved{}, fmt.Errorf("%w: extension %q", ErrNotAllowed, ext)
	}

	if claimedRaw != "" && ContentType(claimedRaw) != mapped {
		return Resolved{}, fmt.Errorf("%w: %q is not %s", ErrMismatch, claimedRaw, mapped)
	}

	return Resolved{ContentType: mapped, Extension: ext}, nil
}

// Extension returns the lower-cased text after the last dot of filename, or "" if there is none.
func Extension(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// Canonical reports whether contentType names one of the allowed image types.
// Case and media type parameters are ignored.
func Canonical(contentType string) (ContentType, bool) {
	ct := ContentType(normalizeMediaType(contentType))
	_, ok := canonicalExtensions[ct]
	return ct, ok
}

// IsAllowed reports whether a stored object's content type is an allowed image type.
func IsAllowed(contentType string) bool {
	_, ok := Canonical(contentType)
	return ok
}

// CanonicalExtension returns the extension used for keys of the given type.
func CanonicalExtension(ct ContentType) string {
	return canonicalExtensions[ct]
}

// Types returns the canonical MIME set.
func Types() []ContentType {
	return []ContentType{JPEG, PNG, GIF, WebP, AVIF}
}

func normalizeMediaType(v string) string {
	if idx := strings.IndexByte(v, ';'); idx >= 0 {
		v = v[:idx]
	}
	return strings.ToLower(strings.TrimSpace(v))
}
