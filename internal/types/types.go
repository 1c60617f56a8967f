package types

import (
	"fmt"
	"time"
)

// SearchDocumentTimeLayout is the layout S3 uses for eventTime in notifications.
const SearchDocumentTimeLayout = "2006-01-02T15:04:05.000Z"

// SearchDocument is the document stored in the search index for one uploaded object.
// ObjectKey doubles as the document ID.
type SearchDocument struct {
	ObjectKey        string   `json:"objectKey"`
	Bucket           string   `json:"bucket"`
	CreatedTimestamp string   `json:"createdTimestamp"`
	Labels           []string `json:"labels"`
}

// NewSearchDocument builds a document for an object, rendering the event time in UTC.
func NewSearchDocument(bucket, key string, eventTime time.Time, labels []string) *SearchDocument {
	if labels == nil {
		labels = []string{}
	}
	return &SearchDocument{
		ObjectKey:        key,
		Bucket:           bucket,
		CreatedTimestamp: eventTime.UTC().Format(SearchDocumentTimeLayout),
		Labels:           labels,
	}
}

// Validate checks the fields the index relies on.
func (d *SearchDocument) Validate() error {
	if d.ObjectKey == "" {
		return fmt.Errorf("objectKey is required")
	}
	if d.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	return nil
}

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	ErrorTypeNetworkTimeout ErrorType = "network_timeout"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeResponse       ErrorType = "response"
	ErrorTypeUnknown        ErrorType = "unknown"
	// OpenSearch specific error types
	ErrorTypeOpenSearchConnection ErrorType = "opensearch_connection"
	ErrorTypeOpenSearchMapping    ErrorType = "opensearch_mapping"
	ErrorTypeOpenSearchIndexing   ErrorType = "opensearch_indexing"
	ErrorTypeOpenSearchQuery      ErrorType = "opensearch_query"
	ErrorTypeOpenSearchIndex      ErrorType = "opensearch_index"
)

// Config holds the settings shared by both functions and the CLI.
type Config struct {
	// OpenSearch configuration
	OpenSearchEndpoint        string        `json:"opensearch_endpoint" env:"OPENSEARCH_ENDPOINT"`
	OpenSearchIndex           string        `json:"opensearch_index" env:"OPENSEARCH_INDEX,default=data"`
	OpenSearchRegion          string        `json:"opensearch_region" env:"OPENSEARCH_REGION,default=us-east-1"`
	OpenSearchUsername        string        `json:"opensearch_username" env:"MASTER_USERNAME"`
	OpenSearchPassword        string        `json:"-" env:"MASTER_PASSWORD"`
	OpenSearchPasswordSecret  string        `json:"opensearch_password_secret" env:"MASTER_PASSWORD_SECRET_ID"`
	OpenSearchInsecureSkipTLS bool          `json:"opensearch_insecure_skip_tls" env:"OPENSEARCH_INSECURE_SKIP_TLS,default=false"`
	OpenSearchRateLimit       float64       `json:"opensearch_rate_limit" env:"OPENSEARCH_RATE_LIMIT,default=50.0"`
	OpenSearchRateBurst       int           `json:"opensearch_rate_burst" env:"OPENSEARCH_RATE_BURST,default=100"`
	OpenSearchRequestTimeout  time.Duration `json:"opensearch_request_timeout" env:"OPENSEARCH_REQUEST_TIMEOUT,default=30s"`
	OpenSearchMaxRetries      int           `json:"opensearch_max_retries" env:"OPENSEARCH_MAX_RETRIES,default=0"`
	OpenSearchRetryDelay      time.Duration `json:"opensearch_retry_delay" env:"OPENSEARCH_RETRY_DELAY,default=1s"`
	OpenSearchMaxConnections  int           `json:"opensearch_max_connections" env:"OPENSEARCH_MAX_CONNECTIONS,default=20"`
	OpenSearchMaxIdleConns    int           `json:"opensearch_max_idle_conns" env:"OPENSEARCH_MAX_IDLE_CONNS,default=10"`
	SearchMaxHits             int           `json:"search_max_hits" env:"SEARCH_MAX_HITS,default=100"`

	// Lex V2 configuration
	LexBotID      string `json:"lex_bot_id" env:"BOT_ID"`
	LexBotAliasID string `json:"lex_bot_alias_id" env:"BOT_ALIAS_ID"`
	LexLocaleID   string `json:"lex_locale_id" env:"LEX_LOCALE_ID,default=en_US"`
	LexSlotName   string `json:"lex_slot_name" env:"LEX_SLOT_NAME,default=SearchKeyword"`

	// Label sources
	CustomLabelsMetadataKey  string  `json:"custom_labels_metadata_key" env:"CUSTOM_LABELS_METADATA_KEY,default=customlabels"`
	RekognitionMaxLabels     int     `json:"rekognition_max_labels" env:"REKOGNITION_MAX_LABELS,default=0"`
	RekognitionMinConfidence float64 `json:"rekognition_min_confidence" env:"REKOGNITION_MIN_CONFIDENCE,default=0"`

	// AWS
	AWSRegion string `json:"aws_region" env:"AWS_REGION"`

	// Logging
	LogLevel  string `json:"log_level" env:"LOG_LEVEL,default=info"`
	LogFormat string `json:"log_format" env:"LOG_FORMAT,default=json"`

	// OpenTelemetry export. OTEL_TRACES_SAMPLER(_ARG) and OTEL_RESOURCE_ATTRIBUTES are read
	// by the SDK directly.
	OTelEnabled              bool   `json:"otel_enabled" env:"OTEL_ENABLED,default=false"`
	OTelServiceName          string `json:"otel_service_name" env:"OTEL_SERVICE_NAME,default=photosearch"`
	OTelExporterOTLPEndpoint string `json:"otel_exporter_otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelExporterOTLPProtocol string `json:"otel_exporter_otlp_protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL,default=http/protobuf"`
}
