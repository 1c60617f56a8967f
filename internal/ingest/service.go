package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ca-srg/photosearch/internal/logger"
	"github.com/ca-srg/photosearch/internal/metrics"
	"github.com/ca-srg/photosearch/internal/types"
)

var tracer = otel.Tracer("photosearch/ingest")

// Handler turns storage events into search documents.
type Handler struct {
	detector  LabelDetector
	metadata  MetadataReader
	indexer   DocumentIndexer
	indexName string
	logger    *zap.Logger
	now       func() time.Time
}

// ServiceConfig contains the collaborators for creating a Handler
type ServiceConfig struct {
	Detector  LabelDetector
	Metadata  MetadataReader
	Indexer   DocumentIndexer
	IndexName string
	Logger    *zap.Logger
}

// NewHandler creates a Handler from cfg.
func NewHandler(cfg ServiceConfig) (*Handler, error) {
	if cfg.Detector == nil {
		return nil, fmt.Errorf("label detector is required")
	}
	if cfg.Metadata == nil {
		return nil, fmt.Errorf("metadata reader is required")
	}
	if cfg.Indexer == nil {
		return nil, fmt.Errorf("document indexer is required")
	}
	if cfg.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Handler{
		detector:  cfg.Detector,
		metadata:  cfg.Metadata,
		indexer:   cfg.Indexer,
		indexName: cfg.IndexName,
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

// RecordResult is the outcome of one processed record.
type RecordResult struct {
	Bucket          string
	Key             string
	Labels          []string
	DetectionFailed bool
	MetadataFailed  bool
	IndexError      error
}

// Indexed reports whether the document was written.
func (r RecordResult) Indexed() bool {
	return r.IndexError == nil
}

// Result summarises one batch of records.
type Result struct {
	Records           []RecordResult
	Indexed           int
	DetectionFailures int
	MetadataFailures  int
	IndexFailures     int
}

func (r *Result) add(rec RecordResult) {
	r.Records = append(r.Records, rec)
	if rec.DetectionFailed {
		r.DetectionFailures++
	}
	if rec.MetadataFailed {
		r.MetadataFailures++
	}
	if rec.Indexed() {
		r.Indexed++
	} else {
		r.IndexFailures++
	}
}

// Handle is the Lambda entry point. Failures are logged per record and never returned,
// so the event source does not redeliver the batch.
func (h *Handler) Handle(ctx context.Context, event events.S3Event) error {
	result := h.Process(ctx, event)
	logger.FromContext(ctx, h.logger).Info("processed storage event",
		zap.Int("records", len(result.Records)),
		zap.Int("indexed", result.Indexed),
		zap.Int("index_failures", result.IndexFailures),
		zap.Int("detection_failures", result.DetectionFailures),
		zap.Int("metadata_failures", result.MetadataFailures))
	return nil
}

// Process runs every record of event through the pipeline in order, one index attempt per record.
func (h *Handler) Process(ctx context.Context, event events.S3Event) *Result {
	result := &Result{Records: make([]RecordResult, 0, len(event.Records))}
	for _, record := range event.Records {
		key := record.S3.Object.URLDecodedKey
		if key == "" {
			key = record.S3.Object.Key
		}
		result.add(h.ProcessObject(ctx, record.S3.Bucket.Name, key, record.EventTime))
	}
	return result
}

// ProcessObject detects and reads labels for bucket/key and upserts its search document.
// A zero eventTime is replaced with the current time.
func (h *Handler) ProcessObject(ctx context.Context, bucket, key string, eventTime time.Time) RecordResult {
	ctx, span := tracer.Start(ctx, "ingest.record", trace.WithAttributes(
		attribute.String("s3.bucket", bucket),
		attribute.String("s3.key", key),
	))
	defer span.End()

	log := logger.FromContext(ctx, h.logger).With(zap.String("bucket", bucket), zap.String("key", key))
	rec := RecordResult{Bucket: bucket, Key: key}

	detected, err := h.detectLabels(ctx, bucket, key)
	if err != nil {
		rec.DetectionFailed = true
		log.Warn("label detection failed", zap.Error(err))
	}

	custom, err := h.customLabels(ctx, bucket, key)
	if err != nil {
		rec.MetadataFailed = true
		log.Warn("reading custom labels failed", zap.Error(err))
	}

	rec.Labels = mergeLabels(detected, custom)

	if eventTime.IsZero() {
		eventTime = h.now()
	}
	doc := types.NewSearchDocument(bucket, key, eventTime, rec.Labels)

	if err := h.indexer.IndexDocument(ctx, h.indexName, doc); err != nil {
		rec.IndexError = err
		metrics.RecordUpstreamFailure(ctx, metrics.ServiceOpenSearch, "IndexDocument")
		span.RecordError(err)
		span.SetStatus(codes.Error, "index failed")
		log.Error("indexing search document failed", zap.Error(err))
	} else {
		log.Info("indexed search document", zap.Strings("labels", rec.Labels))
	}

	span.SetAttributes(
		attribute.Int("labels.count", len(rec.Labels)),
		attribute.Bool("indexed", rec.Indexed()),
	)
	metrics.RecordIngestedRecord(ctx, rec.Indexed(), len(rec.Labels))
	return rec
}

func (h *Handler) detectLabels(ctx context.Context, bucket, key string) ([]string, error) {
	labels, err := h.detector.DetectLabels(ctx, bucket, key)
	if err != nil {
		metrics.RecordUpstreamFailure(ctx, metrics.ServiceRekognition, "DetectLabels")
		return nil, err
	}
	return labels, nil
}

func (h *Handler) customLabels(ctx context.Context, bucket, key string) ([]string, error) {
	labels, err := h.metadata.CustomLabels(ctx, bucket, key)
	if err != nil {
		metrics.RecordUpstreamFailure(ctx, metrics.ServiceS3, "HeadObject")
		return nil, err
	}
	return labels, nil
}

// mergeLabels appends custom after detected, keeping order and duplicates.
func mergeLabels(detected, custom []string) []string {
	labels := make([]string, 0, len(detected)+len(custom))
	labels = append(labels, detected...)
	return append(labels, custom...)
}
