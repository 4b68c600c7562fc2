// Package urlstrategy computes the URL a catalog stores for an accepted upload.
//
// Three strategies exist: a public CDN base, the storage endpoint itself
// (path-style, for buckets with public reads) and presigned GET URLs for
// private buckets.
package urlstrategy

import (
	"fmt"
	"net/url"
	"strings"
)

// joinKey appends objectKey to base, escaping each key segment.
func joinKey(base, objectKey string) string {
	segments := strings.Split(strings.TrimPrefix(objectKey, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.Join(segments, "/")
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSuffix(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", raw)
	}
	return u, nil
}
