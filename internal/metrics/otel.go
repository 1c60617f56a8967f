package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Upstream services a handler talks to.
const (
	ServiceRekognition = "rekognition"
	ServiceS3          = "s3"
	ServiceLex         = "lex"
	ServiceOpenSearch  = "opensearch"
)

type instruments struct {
	records          metric.Int64Counter
	labels           metric.Int64Histogram
	queries          metric.Int64Counter
	keywords         metric.Int64Histogram
	resultKeys       metric.Int64Histogram
	upstreamFailures metric.Int64Counter
	osDuration       metric.Float64Histogram
}

var (
	instrumentsOnce sync.Once
	inst            *instruments
	instErr         error
)

// Init registers the instruments against the global meter provider.
// It should be called after observability.Init(); calling it more than once is a no-op.
func Init() error {
	instrumentsOnce.Do(func() {
		inst, instErr = newInstruments(otel.Meter("photosearch/metrics"))
	})
	return instErr
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	var errs []error
	i := &instruments{}
	var err error

	i.records, err = meter.Int64Counter("photosearch.ingest.records",
		metric.WithDescription("Storage event records processed by the ingestion handler"),
		metric.WithUnit("{record}"))
	errs = append(errs, err)

	i.labels, err = meter.Int64Histogram("photosearch.ingest.labels",
		metric.WithDescription("Labels written per search document"),
		metric.WithUnit("{label}"))
	errs = append(errs, err)

	i.queries, err = meter.Int64Counter("photosearch.query.requests",
		metric.WithDescription("Search requests handled by the query handler"),
		metric.WithUnit("{request}"))
	errs = append(errs, err)

	i.keywords, err = meter.Int64Histogram("photosearch.query.keywords",
		metric.WithDescription("Keywords resolved per search request"),
		metric.WithUnit("{keyword}"))
	errs = append(errs, err)

	i.resultKeys, err = meter.Int64Histogram("photosearch.query.results",
		metric.WithDescription("Object keys returned per search request"),
		metric.WithUnit("{key}"))
	errs = append(errs, err)

	i.upstreamFailures, err = meter.Int64Counter("photosearch.upstream.failures",
		metric.WithDescription("Failed calls to upstream services that were degraded to empty results"),
		metric.WithUnit("{call}"))
	errs = append(errs, err)

	i.osDuration, err = meter.Float64Histogram("photosearch.opensearch.duration",
		metric.WithDescription("OpenSearch operation latency"),
		metric.WithUnit("s"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return i, nil
}

func current() *instruments {
	if err := Init(); err != nil {
		return nil
	}
	return inst
}

// RecordIngestedRecord counts one processed record. indexed is false when the index write failed.
func RecordIngestedRecord(ctx context.Context, indexed bool, labelCount int) {
	i := current()
	if i == nil {
		return
	}
	i.records.Add(ctx, 1, metric.WithAttributes(attribute.Bool("indexed", indexed)))
	i.labels.Record(ctx, int64(labelCount))
}

// RecordQuery counts one search request with its response status.
func RecordQuery(ctx context.Context, statusCode, keywordCount, resultCount int) {
	i := current()
	if i == nil {
		return
	}
	i.queries.Add(ctx, 1, metric.WithAttributes(attribute.Int("status_code", statusCode)))
	i.keywords.Record(ctx, int64(keywordCount))
	i.resultKeys.Record(ctx, int64(resultCount))
}

// RecordUpstreamFailure counts a swallowed failure of service/operation.
func RecordUpstreamFailure(ctx context.Context, service, operation string) {
	i := current()
	if i == nil {
		return
	}
	i.upstreamFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("operation", operation),
	))
}

// RecordOpenSearchRequest records the latency and outcome of one OpenSearch operation.
func RecordOpenSearchRequest(ctx context.Context, operation string, duration time.Duration, err error) {
	i := current()
	if i == nil {
		return
	}
	i.osDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	))
}

// ResetForTesting drops the registered instruments so the next call re-registers them
// against the current global meter provider. Tests only.
func ResetForTesting() {
	instrumentsOnce = sync.Once{}
	inst = nil
	instErr = nil
}
