package uploads

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fallbackBaseName is used when a filename slugifies to nothing.
const fallbackBaseName = "archivo"

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases s, strips diacritics and collapses every other run of
// characters to a single '-'.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	return strings.Trim(nonSlug.ReplaceAllString(folded, "-"), "-")
}

// SanitizeFilename splits name at its last dot and returns the slugified base
// and the lower-cased extension. The base is never empty.
func SanitizeFilename(name string) (base, ext string) {
	name = strings.TrimSpace(name)
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		ext = strings.ToLower(name[idx+1:])
		name = name[:idx]
	}
	base = Slugify(name)
	if base == "" {
		base = fallbackBaseName
	}
	return base, ext
}
