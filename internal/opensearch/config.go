package opensearch

import (
	"fmt"
	"strings"
	"time"

	"github.com/ca-srg/photosearch/internal/types"
)

func NewConfigFromTypes(cfg *types.Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &Config{
		Endpoint:        NormalizeEndpoint(cfg.OpenSearchEndpoint),
		Region:          cfg.OpenSearchRegion,
		Username:        cfg.OpenSearchUsername,
		Password:        cfg.OpenSearchPassword,
		InsecureSkipTLS: cfg.OpenSearchInsecureSkipTLS,
		RateLimit:       cfg.OpenSearchRateLimit,
		RateBurst:       cfg.OpenSearchRateBurst,
		RequestTimeout:  cfg.OpenSearchRequestTimeout,
		MaxRetries:      cfg.OpenSearchMaxRetries,
		RetryDelay:      cfg.OpenSearchRetryDelay,
		MaxConnections:  cfg.OpenSearchMaxConnections,
		MaxIdleConns:    cfg.OpenSearchMaxIdleConns,
	}, nil
}

// NormalizeEndpoint turns a bare domain host into an HTTPS URL on port 443.
// Values that already carry a scheme are returned unchanged apart from a trailing slash.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if strings.Contains(endpoint, "://") {
		return strings.TrimRight(endpoint, "/")
	}
	host := strings.TrimRight(endpoint, "/")
	if !strings.Contains(host, ":") {
		host += ":443"
	}
	return "https://" + host
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}

	if c.Username == "" && c.Region == "" {
		return fmt.Errorf("region is required when signing requests")
	}

	if c.RateLimit <= 0 {
		c.RateLimit = 50.0
	}
	if c.RateLimit > 1000 {
		c.RateLimit = 1000.0
	}

	if c.RateBurst <= 0 {
		c.RateBurst = 100
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RequestTimeout > 600*time.Second {
		c.RequestTimeout = 600 * time.Second
	}

	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 1 * time.Second
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 20
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 10
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = 90 * time.Second
	}

	return nil
}
