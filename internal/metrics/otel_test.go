package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	ResetForTesting()

	t.Cleanup(func() {
		ResetForTesting()
		_ = provider.Shutdown(context.Background())
	})
	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum for %s", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecorders(t *testing.T) {
	reader := setupReader(t)
	ctx := context.Background()

	require.NoError(t, Init())

	RecordIngestedRecord(ctx, true, 3)
	RecordIngestedRecord(ctx, false, 0)
	RecordQuery(ctx, 200, 2, 5)
	RecordUpstreamFailure(ctx, ServiceLex, "RecognizeText")
	RecordOpenSearchRequest(ctx, "SearchObjectKeys", 25*time.Millisecond, errors.New("boom"))

	got := collect(t, reader)

	require.Contains(t, got, "photosearch.ingest.records")
	assert.Equal(t, int64(2), sumValue(t, got["photosearch.ingest.records"]))

	require.Contains(t, got, "photosearch.query.requests")
	assert.Equal(t, int64(1), sumValue(t, got["photosearch.query.requests"]))

	require.Contains(t, got, "photosearch.upstream.failures")
	assert.Equal(t, int64(1), sumValue(t, got["photosearch.upstream.failures"]))

	assert.Contains(t, got, "photosearch.opensearch.duration")
	assert.Contains(t, got, "photosearch.ingest.labels")
}

func TestInitIsIdempotent(t *testing.T) {
	setupReader(t)
	require.NoError(t, Init())
	first := inst
	require.NoError(t, Init())
	assert.Same(t, first, inst)
}
