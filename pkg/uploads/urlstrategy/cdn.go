package urlstrategy

import (
	"context"
	"fmt"
	"strings"
)

// CDNStrategy generates URLs that point directly at a public base such as a CDN
// or an R2 public bucket domain.
type CDNStrategy struct {
	BaseURL string // e.g., "https://cdn.example.com"
}

// NewCDNStrategy creates a new CDN URL strategy
func NewCDNStrategy(baseURL string) *CDNStrategy {
	return &CDNStrategy{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

// PublicURL returns <base>/<key>
func (s *CDNStrategy) PublicURL(_ context.Context, objectKey string) (string, error) {
	if s.BaseURL == "" {
		return "", fmt.Errorf("CDN base URL not configured")
	}
	return joinKey(s.BaseURL, objectKey), nil
}
