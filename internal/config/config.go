package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ca-srg/photosearch/internal/types"
	"github.com/joho/godotenv"
	env "github.com/netflix/go-env"
)

// Type alias for Config
type Config = types.Config

// Handler names accepted by Validate.
const (
	HandlerIngest = "ingest"
	HandlerQuery  = "query"
)

const (
	minSearchHits = 1
	maxSearchHits = 10000
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var config Config

	_, err := env.UnmarshalFromEnviron(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	normalizeConfig(&config)
	return &config, nil
}

// LoadDotEnv reads a .env file into the process environment for local CLI runs.
// A missing file is not an error; variables already set win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// normalizeConfig adjusts values to safe ranges
func normalizeConfig(config *Config) {
	config.OpenSearchEndpoint = strings.TrimSpace(config.OpenSearchEndpoint)
	config.OpenSearchIndex = strings.TrimSpace(config.OpenSearchIndex)
	config.CustomLabelsMetadataKey = strings.ToLower(strings.TrimSpace(config.CustomLabelsMetadataKey))

	if config.SearchMaxHits < minSearchHits {
		config.SearchMaxHits = 100
	}
	if config.SearchMaxHits > maxSearchHits {
		config.SearchMaxHits = maxSearchHits
	}

	if config.OpenSearchMaxRetries < 0 {
		config.OpenSearchMaxRetries = 0
	}
	if config.OpenSearchMaxRetries > 10 {
		config.OpenSearchMaxRetries = 10
	}

	if config.RekognitionMaxLabels < 0 {
		config.RekognitionMaxLabels = 0
	}
	if config.RekognitionMinConfidence < 0 {
		config.RekognitionMinConfidence = 0
	}
	if config.RekognitionMinConfidence > 100 {
		config.RekognitionMinConfidence = 100
	}
}

// Validate checks the settings the named handler needs before any client is built.
func Validate(config *Config, handler string) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateOpenSearchConfig(config); err != nil {
		return fmt.Errorf("OpenSearch configuration validation failed: %w", err)
	}

	switch handler {
	case HandlerIngest:
		if config.CustomLabelsMetadataKey == "" {
			return fmt.Errorf("CUSTOM_LABELS_METADATA_KEY cannot be empty")
		}
	case HandlerQuery:
		if err := validateLexConfig(config); err != nil {
			return fmt.Errorf("Lex configuration validation failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown handler %q", handler)
	}

	return nil
}

// validateOpenSearchConfig validates OpenSearch-specific configuration
func validateOpenSearchConfig(config *Config) error {
	if config.OpenSearchEndpoint == "" {
		return fmt.Errorf("OPENSEARCH_ENDPOINT is required")
	}

	// A bare host name is accepted and completed later.
	if strings.Contains(config.OpenSearchEndpoint, "://") {
		parsedURL, err := url.Parse(config.OpenSearchEndpoint)
		if err != nil {
			return fmt.Errorf("invalid OPENSEARCH_ENDPOINT URL format: %w", err)
		}
		if !strings.HasPrefix(parsedURL.Scheme, "http") {
			return fmt.Errorf("OPENSEARCH_ENDPOINT scheme must be http or https")
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("OPENSEARCH_ENDPOINT must include a valid host")
		}
	}

	if config.OpenSearchIndex == "" {
		return fmt.Errorf("OPENSEARCH_INDEX cannot be empty")
	}

	if config.OpenSearchUsername == "" && (config.OpenSearchPassword != "" || config.OpenSearchPasswordSecret != "") {
		return fmt.Errorf("MASTER_USERNAME is required when a master password is configured")
	}

	if config.OpenSearchUsername == "" && config.OpenSearchRegion == "" {
		return fmt.Errorf("OPENSEARCH_REGION is required for SigV4 signing")
	}

	if config.OpenSearchRateLimit <= 0 {
		return fmt.Errorf("OPENSEARCH_RATE_LIMIT must be greater than 0")
	}
	if config.OpenSearchRateLimit > 1000 {
		return fmt.Errorf("OPENSEARCH_RATE_LIMIT cannot exceed 1000 requests/second")
	}
	if config.OpenSearchRateBurst <= 0 {
		return fmt.Errorf("OPENSEARCH_RATE_BURST must be greater than 0")
	}

	if config.OpenSearchRequestTimeout <= 0 {
		return fmt.Errorf("OPENSEARCH_REQUEST_TIMEOUT must be greater than 0")
	}
	if config.OpenSearchRetryDelay <= 0 {
		return fmt.Errorf("OPENSEARCH_RETRY_DELAY must be greater than 0")
	}

	if config.OpenSearchMaxConnections <= 0 {
		return fmt.Errorf("OPENSEARCH_MAX_CONNECTIONS must be greater than 0")
	}
	if config.OpenSearchMaxIdleConns <= 0 {
		return fmt.Errorf("OPENSEARCH_MAX_IDLE_CONNS must be greater than 0")
	}
	if config.OpenSearchMaxIdleConns > config.OpenSearchMaxConnections {
		return fmt.Errorf("OPENSEARCH_MAX_IDLE_CONNS cannot exceed OPENSEARCH_MAX_CONNECTIONS")
	}

	return nil
}

func validateLexConfig(config *Config) error {
	if strings.TrimSpace(config.LexBotID) == "" {
		return fmt.Errorf("BOT_ID is required")
	}
	if strings.TrimSpace(config.LexBotAliasID) == "" {
		return fmt.Errorf("BOT_ALIAS_ID is required")
	}
	if strings.TrimSpace(config.LexLocaleID) == "" {
		return fmt.Errorf("LEX_LOCALE_ID cannot be empty")
	}
	if strings.TrimSpace(config.LexSlotName) == "" {
		return fmt.Errorf("LEX_SLOT_NAME cannot be empty")
	}
	return nil
}
