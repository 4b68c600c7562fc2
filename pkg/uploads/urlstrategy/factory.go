package urlstrategy

import (
	"fmt"
	"time"

	"github.com/tendant/catalog-uploads/pkg/uploads"
)

// URLStrategyType represents the type of URL strategy
type URLStrategyType string

const (
	// CDN strategy for public buckets fronted by a custom domain
	StrategyTypeCDN URLStrategyType = "cdn"

	// Storage strategy for buckets readable on the storage endpoint
	StrategyTypeStorage URLStrategyType = "storage"

	// Presigned strategy for private buckets
	StrategyTypePresigned URLStrategyType = "presigned"
)

// Config holds configuration for URL strategy creation
type Config struct {
	Type       URLStrategyType
	CDNBaseURL string // For CDN strategy
	Endpoint   string // For storage and presigned strategies
	Bucket     string
	Signer     uploads.URLSigner // For presigned strategy
	ReadTTL    time.Duration
}

// NewURLStrategy creates a URL strategy based on the configuration
func NewURLStrategy(config Config) (uploads.URLStrategy, error) {
	switch config.Type {
	case StrategyTypeCDN:
		if config.CDNBaseURL == "" {
			return nil, fmt.Errorf("CDN base URL is required for CDN strategy")
		}
		if _, err := parseBase(config.CDNBaseURL); err != nil {
			return nil, err
		}
		return NewCDNStrategy(config.CDNBaseURL), nil

	case StrategyTypeStorage:
		if config.Endpoint == "" || config.Bucket == "" {
			return nil, fmt.Errorf("endpoint and bucket are required for storage strategy")
		}
		return NewStorageStrategy(config.Endpoint, config.Bucket), nil

	case StrategyTypePresigned:
		if config.Signer == nil {
			return nil, fmt.Errorf("signer is required for presigned strategy")
		}
		return NewPresignedStrategy(config.Signer, config.Endpoint, config.Bucket, config.ReadTTL), nil

	default:
		return nil, fmt.Errorf("unknown URL strategy type: %s", config.Type)
	}
}

// NewRecommendedStrategy picks presigned reads for private buckets, the public
// base when one is set and the storage endpoint otherwise.
func NewRecommendedStrategy(privateReads bool, publicBaseURL string, config Config) (uploads.URLStrategy, error) {
	switch {
	case privateReads:
		config.Type = StrategyTypePresigned
	case publicBaseURL != "":
		config.Type = StrategyTypeCDN
		config.CDNBaseURL = publicBaseURL
	default:
		config.Type = StrategyTypeStorage
	}
	return NewURLStrategy(config)
}
