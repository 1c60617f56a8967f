package opensearch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	opensearch "github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	requestsigner "github.com/opensearch-project/opensearch-go/v4/signer/awsv2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ca-srg/photosearch/internal/metrics"
)

var tracer = otel.Tracer("photosearch/opensearch")

type Client struct {
	client      *opensearchapi.Client
	rateLimiter *rate.Limiter
	config      *Config
	logger      *zap.Logger
}

type Config struct {
	Endpoint        string
	Region          string
	Username        string
	Password        string
	InsecureSkipTLS bool
	RateLimit       float64
	RateBurst       int
	RequestTimeout  time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	MaxConnections  int
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// NewClient builds a client that authenticates with the master user when a username is
// configured and signs requests with SigV4 otherwise. awsConfig is only used for signing.
func NewClient(cfg *Config, awsConfig aws.Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipTLS,
		},
		MaxConnsPerHost:       cfg.MaxConnections,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
	}

	osConfig := opensearch.Config{
		Addresses: []string{cfg.Endpoint},
		Transport: transport,
	}

	if cfg.Username != "" {
		osConfig.Username = cfg.Username
		osConfig.Password = cfg.Password
	} else {
		if awsConfig.Region == "" {
			awsConfig.Region = cfg.Region
		}
		signer, err := requestsigner.NewSignerWithService(awsConfig, "es")
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS signer: %w", err)
		}
		osConfig.Signer = signer
	}

	osClient, err := opensearchapi.NewClient(opensearchapi.Config{Client: osConfig})
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenSearch client: %w", err)
	}

	return &Client{
		client:      osClient,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		config:      cfg,
		logger:      logger,
	}, nil
}

func (c *Client) WaitForRateLimit(ctx context.Context) error {
	return c.rateLimiter.Wait(ctx)
}

// HealthCheck pings the cluster health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.WaitForRateLimit(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	if _, err := c.client.Cluster.Health(ctx, &opensearchapi.ClusterHealthReq{}); err != nil {
		c.logger.Warn("OpenSearch health check failed", zap.Error(err))
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// RetryableOperation defines a function that can be retried
type RetryableOperation func() error

// ExecuteWithRetry runs operation once plus up to MaxRetries retries with exponential
// backoff. Only retryable SearchErrors are retried.
func (c *Client) ExecuteWithRetry(ctx context.Context, operation RetryableOperation, operationName string) error {
	ctx, span := tracer.Start(ctx, "opensearch."+operationName)
	defer span.End()

	startTime := time.Now()
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.RetryDelay
			c.logger.Info("retrying OpenSearch operation",
				zap.String("operation", operationName),
				zap.Duration("delay", delay),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", c.config.MaxRetries))

			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				c.finish(ctx, span, operationName, startTime, lastErr)
				return lastErr
			case <-time.After(delay):
			}
		}

		err := operation()
		if err == nil {
			c.finish(ctx, span, operationName, startTime, nil)
			return nil
		}
		lastErr = err

		var searchErr *SearchError
		if !errors.As(err, &searchErr) || !searchErr.IsRetryable() {
			c.finish(ctx, span, operationName, startTime, err)
			return err
		}
	}

	err := lastErr
	if c.config.MaxRetries > 0 {
		err = fmt.Errorf("%s operation failed after %d attempts, last error: %w",
			operationName, c.config.MaxRetries+1, lastErr)
	}
	c.finish(ctx, span, operationName, startTime, err)
	return err
}

func (c *Client) finish(ctx context.Context, span trace.Span, operationName string, startTime time.Time, err error) {
	duration := time.Since(startTime)
	metrics.RecordOpenSearchRequest(ctx, operationName, duration, err)

	span.SetAttributes(attribute.Int64("opensearch.duration_ms", duration.Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
