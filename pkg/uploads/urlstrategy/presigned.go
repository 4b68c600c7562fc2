package urlstrategy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tendant/catalog-uploads/pkg/uploads"
)

// PresignedStrategy returns a time-boxed GET URL for private buckets.
// The URL expires, so callers that persist it must refresh it through a read grant.
type PresignedStrategy struct {
	Signer   uploads.URLSigner
	Endpoint string
	Bucket   string
	TTL      time.Duration
}

func NewPresignedStrategy(signer uploads.URLSigner, endpoint, bucket string, ttl time.Duration) *PresignedStrategy {
	if ttl <= 0 {
		ttl = uploads.DefaultReadTTL
	}
	return &PresignedStrategy{
		Signer:   signer,
		Endpoint: endpoint,
		Bucket:   bucket,
		TTL:      min(ttl, uploads.MaxReadTTL),
	}
}

func (s *PresignedStrategy) PublicURL(_ context.Context, objectKey string) (string, error) {
	if s.Signer == nil {
		return "", fmt.Errorf("%w: missing signer", uploads.ErrNotConfigured)
	}
	raw, err := NewStorageStrategy(s.Endpoint, s.Bucket).PublicURL(context.Background(), objectKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", uploads.ErrNotConfigured, err)
	}
	u, err := parseBase(raw)
	if err != nil {
		return "", err
	}

	p, err := s.Signer.Presign(http.MethodGet, u, nil, s.TTL)
	if err != nil {
		return "", err
	}
	return p.URL, nil
}
