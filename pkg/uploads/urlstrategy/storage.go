package urlstrategy

import (
	"context"
	"fmt"
	"strings"
)

// StorageStrategy addresses objects path-style on the storage endpoint:
// <endpoint>/<bucket>/<key>. It only yields readable URLs when the bucket allows
// anonymous reads.
type StorageStrategy struct {
	Endpoint string
	Bucket   string
}

func NewStorageStrategy(endpoint, bucket string) *StorageStrategy {
	return &StorageStrategy{
		Endpoint: strings.TrimSuffix(endpoint, "/"),
		Bucket:   strings.Trim(bucket, "/"),
	}
}

func (s *StorageStrategy) PublicURL(_ context.Context, objectKey string) (string, error) {
	if s.Endpoint == "" || s.Bucket == "" {
		return "", fmt.Errorf("storage endpoint not configured")
	}
	return joinKey(s.Endpoint+"/"+s.Bucket, objectKey), nil
}
