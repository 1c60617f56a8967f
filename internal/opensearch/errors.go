package opensearch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	opensearch "github.com/opensearch-project/opensearch-go/v4"

	"github.com/ca-srg/photosearch/internal/types"
)

type SearchError struct {
	Type       types.ErrorType `json:"type"`
	Message    string          `json:"message"`
	StatusCode int             `json:"status_code,omitempty"`
	Retryable  bool            `json:"retryable"`
	RetryAfter time.Duration   `json:"retry_after,omitempty"`
	Operation  string          `json:"operation,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	cause      error
}

func (e *SearchError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Type)
	if e.Operation != "" {
		prefix = fmt.Sprintf("[%s %s]", e.Type, e.Operation)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s (HTTP %d)", prefix, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

func (e *SearchError) Unwrap() error {
	return e.cause
}

func (e *SearchError) IsRetryable() bool {
	return e.Retryable
}

func NewSearchError(errType types.ErrorType, message string) *SearchError {
	return &SearchError{
		Type:      errType,
		Message:   message,
		Retryable: false,
		Timestamp: time.Now(),
	}
}

// ClassifyError converts an opensearch-go error into a SearchError, using the HTTP status
// when the client exposes one and falling back to connection error heuristics.
func ClassifyError(err error, operation string) *SearchError {
	if err == nil {
		return nil
	}

	var searchErr *SearchError
	if errors.As(err, &searchErr) {
		return searchErr
	}

	var classified *SearchError
	var structErr *opensearch.StructError
	if errors.As(err, &structErr) && structErr.Status > 0 {
		classified = ClassifyHTTPError(structErr.Status, err.Error())
	} else {
		classified = ClassifyConnectionError(err)
	}
	if classified.Type == types.ErrorTypeUnknown {
		if opType, ok := operationErrorTypes[operation]; ok {
			classified.Type = opType
		}
	}
	classified.Operation = operation
	classified.cause = err
	return classified
}

// operationErrorTypes narrows otherwise unclassified failures to the operation that hit them.
var operationErrorTypes = map[string]types.ErrorType{
	"index":  types.ErrorTypeOpenSearchIndexing,
	"search": types.ErrorTypeOpenSearchQuery,
}

func ClassifyHTTPError(statusCode int, body string) *SearchError {
	switch statusCode {
	case http.StatusUnauthorized:
		return &SearchError{
			Type:       types.ErrorTypeAuthentication,
			Message:    "authentication failed, check the OpenSearch master user credentials",
			StatusCode: statusCode,
			Retryable:  false,
			Timestamp:  time.Now(),
		}
	case http.StatusForbidden:
		return &SearchError{
			Type:       types.ErrorTypeAuthentication,
			Message:    "access denied, check the domain access policy",
			StatusCode: statusCode,
			Retryable:  false,
			Timestamp:  time.Now(),
		}
	case http.StatusNotFound:
		return &SearchError{
			Type:       types.ErrorTypeOpenSearchIndex,
			Message:    "index or endpoint not found",
			StatusCode: statusCode,
			Retryable:  false,
			Timestamp:  time.Now(),
		}
	case http.StatusBadRequest:
		return &SearchError{
			Type:       types.ErrorTypeOpenSearchMapping,
			Message:    fmt.Sprintf("request rejected: %s", body),
			StatusCode: statusCode,
			Retryable:  false,
			Timestamp:  time.Now(),
		}
	case http.StatusRequestTimeout:
		return &SearchError{
			Type:       types.ErrorTypeNetworkTimeout,
			Message:    "request timed out",
			StatusCode: statusCode,
			Retryable:  true,
			RetryAfter: 5 * time.Second,
			Timestamp:  time.Now(),
		}
	case http.StatusTooManyRequests:
		return &SearchError{
			Type:       types.ErrorTypeRateLimit,
			Message:    "rate limited by the cluster",
			StatusCode: statusCode,
			Retryable:  true,
			RetryAfter: 10 * time.Second,
			Timestamp:  time.Now(),
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &SearchError{
			Type:       types.ErrorTypeOpenSearchConnection,
			Message:    "OpenSearch server error",
			StatusCode: statusCode,
			Retryable:  true,
			RetryAfter: 10 * time.Second,
			Timestamp:  time.Now(),
		}
	default:
		return &SearchError{
			Type:       types.ErrorTypeUnknown,
			Message:    fmt.Sprintf("unexpected HTTP error: %s", body),
			StatusCode: statusCode,
			Retryable:  statusCode >= 500,
			RetryAfter: 5 * time.Second,
			Timestamp:  time.Now(),
		}
	}
}

func ClassifyConnectionError(err error) *SearchError {
	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return &SearchError{
			Type:       types.ErrorTypeNetworkTimeout,
			Message:    "connection to OpenSearch timed out",
			Retryable:  true,
			RetryAfter: 5 * time.Second,
			Timestamp:  time.Now(),
		}
	case strings.Contains(errMsg, "connection refused"):
		return &SearchError{
			Type:      types.ErrorTypeOpenSearchConnection,
			Message:   "connection to OpenSearch refused",
			Retryable: false,
			Timestamp: time.Now(),
		}
	case strings.Contains(errMsg, "no such host"):
		return &SearchError{
			Type:      types.ErrorTypeOpenSearchConnection,
			Message:   "OpenSearch host not found",
			Retryable: false,
			Timestamp: time.Now(),
		}
	default:
		return &SearchError{
			Type:       types.ErrorTypeUnknown,
			Message:    fmt.Sprintf("request failed: %v", err),
			Retryable:  true,
			RetryAfter: 10 * time.Second,
			Timestamp:  time.Now(),
		}
	}
}
