package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ca-srg/photosearch/internal/logger"
	"github.com/ca-srg/photosearch/internal/metrics"
)

// QueryParam is the query string parameter carrying the search text.
const QueryParam = "q"

const defaultMaxHits = 100

// ErrMissingQuery is returned when the request has no usable q parameter. The handler
// answers it with a 500, the same as any other unexpected failure.
var ErrMissingQuery = errors.New("query parameter q is required")

var tracer = otel.Tracer("photosearch/query")

// KeywordResolver turns free text into the interpreted keyword slot value.
type KeywordResolver interface {
	ResolveKeyword(ctx context.Context, text string) (string, error)
}

// Searcher returns the object keys matching text, in hit order.
type Searcher interface {
	SearchObjectKeys(ctx context.Context, indexName, text string, size int) ([]string, error)
}

// Config contains the collaborators for creating a Handler.
type Config struct {
	Resolver  KeywordResolver
	Searcher  Searcher
	IndexName string
	MaxHits   int
	Logger    *zap.Logger
}

// Handler answers search requests from API Gateway.
type Handler struct {
	resolver  KeywordResolver
	searcher  Searcher
	indexName string
	maxHits   int
	logger    *zap.Logger
}

func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("keyword resolver is required")
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if cfg.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if cfg.MaxHits <= 0 {
		cfg.MaxHits = defaultMaxHits
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Handler{
		resolver:  cfg.Resolver,
		searcher:  cfg.Searcher,
		indexName: cfg.IndexName,
		maxHits:   cfg.MaxHits,
		logger:    cfg.Logger,
	}, nil
}

type keysBody struct {
	Keys []string `json:"keys"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Handle is the Lambda entry point. It always produces a JSON response and never returns
// an error; unexpected failures, panics included, become a 500.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	ctx, span := tracer.Start(ctx, "query.request")
	defer span.End()

	log := logger.FromContext(ctx, h.logger)
	keywordCount, resultCount := 0, 0

	defer func() {
		if r := recover(); r != nil {
			log.Error("query handler panicked", zap.Any("panic", r), zap.Stack("stack"))
			span.SetStatus(codes.Error, "panic")
			resp, err = internalError(), nil
		}
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		metrics.RecordQuery(ctx, resp.StatusCode, keywordCount, resultCount)
	}()

	text := QueryText(req)
	span.SetAttributes(attribute.String("query.text", text))

	result, searchErr := h.Search(ctx, text)
	if searchErr != nil {
		log.Error("search request failed", zap.Error(searchErr))
		span.RecordError(searchErr)
		span.SetStatus(codes.Error, searchErr.Error())
		return internalError(), nil
	}

	keywordCount, resultCount = len(result.Keywords), len(result.Keys)
	return jsonResponse(http.StatusOK, keysBody{Keys: result.Keys}), nil
}

// QueryText returns the trimmed q parameter of req.
func QueryText(req events.APIGatewayProxyRequest) string {
	if q, ok := req.QueryStringParameters[QueryParam]; ok {
		return strings.TrimSpace(q)
	}
	if values := req.MultiValueQueryStringParameters[QueryParam]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

// Result is the outcome of one search.
type Result struct {
	Keywords []string
	Keys     []string
}

// Search resolves text to keywords and concatenates the hits of each keyword in order.
// Resolver and per-keyword search failures are logged and contribute nothing; only an
// empty text is an error.
func (h *Handler) Search(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrMissingQuery
	}

	keywords := h.Keywords(ctx, text)
	keys := make([]string, 0)
	for _, keyword := range keywords {
		keys = append(keys, h.searchKeyword(ctx, keyword)...)
	}

	logger.FromContext(ctx, h.logger).Info("search completed",
		zap.String("query", text),
		zap.Strings("keywords", keywords),
		zap.Int("keys", len(keys)))
	return &Result{Keywords: keywords, Keys: keys}, nil
}

// Keywords resolves text through the keyword resolver and tokenises the result. A resolver
// failure yields no keywords.
func (h *Handler) Keywords(ctx context.Context, text string) []string {
	ctx, span := tracer.Start(ctx, "query.resolve_keyword")
	defer span.End()

	value, err := h.resolver.ResolveKeyword(ctx, text)
	if err != nil {
		metrics.RecordUpstreamFailure(ctx, metrics.ServiceLex, "RecognizeText")
		span.RecordError(err)
		logger.FromContext(ctx, h.logger).Warn("keyword resolution failed",
			zap.String("query", text),
			zap.Error(err))
		return []string{}
	}

	keywords := Tokenize(value)
	span.SetAttributes(attribute.StringSlice("query.keywords", keywords))
	return keywords
}

func (h *Handler) searchKeyword(ctx context.Context, keyword string) []string {
	ctx, span := tracer.Start(ctx, "query.search_keyword",
		trace.WithAttributes(attribute.String("query.keyword", keyword)))
	defer span.End()

	keys, err := h.searcher.SearchObjectKeys(ctx, h.indexName, keyword, h.maxHits)
	if err != nil {
		metrics.RecordUpstreamFailure(ctx, metrics.ServiceOpenSearch, "SearchObjectKeys")
		span.RecordError(err)
		logger.FromContext(ctx, h.logger).Warn("keyword search failed",
			zap.String("keyword", keyword),
			zap.Error(err))
		return nil
	}
	span.SetAttributes(attribute.Int("query.hits", len(keys)))
	return keys
}

// CORSHeaders are sent with every response.
func CORSHeaders() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "*",
		"Access-Control-Allow-Headers": "*",
		"Content-Type":                 "application/json",
	}
}

func internalError() events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusInternalServerError, errorBody{Error: http.StatusText(http.StatusInternalServerError)})
}

func jsonResponse(status int, body interface{}) events.APIGatewayProxyResponse {
	payload, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		payload = []byte(`{"error":"Internal Server Error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    CORSHeaders(),
		Body:       string(payload),
	}
}
