package contentpolicy

import "bytes"

// SniffLength is the number of leading bytes needed by MatchesSignature.
const SniffLength = 16

var (
	pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegPrefix   = []byte{0xFF, 0xD8}
	gif87a       = []byte("GIF87a")
	gif89a       = []byte("GIF89a")
	riffMarker   = []byte("RIFF")
	webpMarker   = []byte("WEBP")
	ftypMarker   = []byte("ftyp")
)

// MatchesSignature reports whether head, the first bytes of an object, carries the
// magic number of the declared content type. Unknown types never match.
func MatchesSignature(contentType string, head []byte) bool {
	ct, ok := Canonical(contentType)
	if !ok {
		return false
	}

	switch ct {
	case PNG:
		return bytes.HasPrefix(head, pngSignature)
	case JPEG:
		return bytes.HasPrefix(head, jpegPrefix)
	case GIF:
		return bytes.HasPrefix(head, gif87a) || bytes.HasPrefix(head, gif89a)
	case WebP:
		return len(head) >= 12 &&
			bytes.Equal(head[0:4], riffMarker) &&
			bytes.Equal(head[8:12], webpMarker)
	case AVIF:
		// ISO BMFF: box size, "ftyp", major brand
		if len(head) < 12 || !bytes.Equal(head[4:8], ftypMarker) {
			return false
		}
		brand := string(head[8:12])
		return brand == "avif" || brand == "avis"
	}
	return false
}

// Sniff returns the allowed content type whose signature head carries, if any.
func Sniff(head []byte) (ContentType, bool) {
	for _, ct := range Types() {
		if MatchesSignature(string(ct), head) {
			return ct, true
		}
	}
	return "", false
}
