package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/ca-srg/photosearch/internal/types"
)

// collector records OTLP/HTTP exports.
type collector struct {
	mu      sync.Mutex
	traces  []*collectortrace.ExportTraceServiceRequest
	metrics int
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch r.URL.Path {
	case "/v1/traces":
		req := &collectortrace.ExportTraceServiceRequest{}
		if err := proto.Unmarshal(body, req); err == nil {
			c.traces = append(c.traces, req)
		}
	case "/v1/metrics":
		c.metrics++
	}
	w.WriteHeader(http.StatusOK)
}

func attrValue(attrs []*commonpb.KeyValue, key string) string {
	for _, kv := range attrs {
		if kv.GetKey() == key {
			return kv.GetValue().GetStringValue()
		}
	}
	return ""
}

func resetGlobals(t *testing.T) {
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(noop.NewMeterProvider())
	})
}

func TestInvocationExportsOnReturn(t *testing.T) {
	resetGlobals(t)
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "photosearch-query")
	t.Setenv("AWS_LAMBDA_FUNCTION_VERSION", "7")

	c := &collector{}
	server := httptest.NewServer(c)
	t.Cleanup(server.Close)

	telemetry, err := Init(context.Background(), Options{
		Enabled:  true,
		Handler:  "query",
		Endpoint: server.URL,
		Protocol: ProtocolHTTP,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = telemetry.Shutdown(context.Background()) })

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-42"})
	ctx, done := telemetry.StartInvocation(ctx)
	_, child := otel.Tracer("photosearch/test").Start(ctx, "opensearch.SearchObjectKeys")
	child.End()

	counter, err := otel.Meter("photosearch/test").Int64Counter("photosearch.test.calls")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	done()

	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.traces, "spans should be exported before the invocation returns")
	assert.GreaterOrEqual(t, c.metrics, 1, "metrics should be exported before the invocation returns")

	rs := c.traces[0].GetResourceSpans()[0]
	resAttrs := rs.GetResource().GetAttributes()
	assert.Equal(t, "photosearch", attrValue(resAttrs, "service.name"))
	assert.Equal(t, "photosearch-query", attrValue(resAttrs, "faas.name"))
	assert.Equal(t, "7", attrValue(resAttrs, "faas.version"))
	assert.Equal(t, "aws_lambda", attrValue(resAttrs, "cloud.platform"))
	assert.Equal(t, "query", attrValue(resAttrs, string(HandlerKey)))

	spans := map[string]string{}
	for _, ss := range rs.GetScopeSpans() {
		for _, span := range ss.GetSpans() {
			spans[span.GetName()] = attrValue(span.GetAttributes(), "faas.invocation_id")
		}
	}
	require.Contains(t, spans, "query invocation")
	assert.Equal(t, "req-42", spans["query invocation"])
	assert.Contains(t, spans, "opensearch.SearchObjectKeys")
}

func TestInitValidation(t *testing.T) {
	resetGlobals(t)

	cases := map[string]Options{
		"missing endpoint":  {Enabled: true},
		"unknown protocol":  {Enabled: true, Endpoint: "http://collector:4318", Protocol: "zipkin"},
		"http without host": {Enabled: true, Endpoint: "collector:4318", Protocol: ProtocolHTTP},
		"grpc without port": {Enabled: true, Endpoint: "collector", Protocol: ProtocolGRPC},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			telemetry, err := Init(context.Background(), opts, nil)
			require.Error(t, err)
			require.NotNil(t, telemetry, "a usable no-op Telemetry is returned with the error")

			_, done := telemetry.StartInvocation(context.Background())
			done()
		})
	}
}

func TestInitDisabled(t *testing.T) {
	telemetry, err := Init(context.Background(), OptionsFromConfig(&types.Config{}, "ingest"), nil)
	require.NoError(t, err)
	assert.Nil(t, telemetry.tp)
	assert.Nil(t, telemetry.mp)
	assert.NoError(t, telemetry.Flush(context.Background()))
	assert.NoError(t, telemetry.Shutdown(context.Background()))
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var telemetry *Telemetry
	ctx := context.Background()
	got, done := telemetry.StartInvocation(ctx)
	done()
	assert.Equal(t, ctx, got)
	assert.NoError(t, telemetry.Flush(ctx))
	assert.NoError(t, telemetry.Shutdown(ctx))
}

func TestNewResource(t *testing.T) {
	t.Run("outside lambda", func(t *testing.T) {
		t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
		t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "")

		res, err := newResource(context.Background(), Options{ServiceName: "photosearch", Handler: "ingest"})
		require.NoError(t, err)
		set := res.Set()

		v, ok := set.Value("faas.trigger")
		require.True(t, ok)
		assert.Equal(t, "datasource", v.AsString())
		_, ok = set.Value("faas.name")
		assert.False(t, ok)
		assert.Equal(t, localExportInterval, exportInterval())
	})

	t.Run("inside lambda", func(t *testing.T) {
		t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "photosearch-ingest")
		t.Setenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE", "512")
		t.Setenv("AWS_LAMBDA_LOG_STREAM_NAME", "2024/03/01/[$LATEST]abc")
		t.Setenv("AWS_REGION", "ap-northeast-1")
		t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment=staging,photosearch.handler=override")

		res, err := newResource(context.Background(), Options{ServiceName: "photosearch", Handler: "ingest"})
		require.NoError(t, err)
		set := res.Set()

		want := map[attribute.Key]string{
			"faas.name":              "photosearch-ingest",
			"faas.instance":          "2024/03/01/[$LATEST]abc",
			"cloud.region":           "ap-northeast-1",
			"cloud.provider":         "aws",
			"deployment.environment": "staging",
			HandlerKey:               "override",
		}
		for key, value := range want {
			got, ok := set.Value(key)
			require.True(t, ok, "missing %s", key)
			assert.Equal(t, value, got.AsString(), key)
		}

		mem, ok := set.Value("faas.max_memory")
		require.True(t, ok)
		assert.Equal(t, int64(512<<20), mem.AsInt64())
		assert.Equal(t, lambdaExportInterval, exportInterval())
	})
}

func TestSignalURL(t *testing.T) {
	cases := map[string]struct{ endpoint, want string }{
		"bare host":        {"https://collector:4318", "https://collector:4318/v1/traces"},
		"trailing slash":   {"https://collector:4318/", "https://collector:4318/v1/traces"},
		"prefix path":      {"https://example.com/otlp/", "https://example.com/otlp/v1/traces"},
		"already suffixed": {"https://example.com/otlp/v1/traces", "https://example.com/otlp/v1/traces"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := signalURL(tc.endpoint, "v1/traces")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGRPCTarget(t *testing.T) {
	target, insecure, err := grpcTarget("collector:4317")
	require.NoError(t, err)
	assert.Equal(t, "collector:4317", target)
	assert.True(t, insecure)

	target, insecure, err = grpcTarget("https://collector.example.com:4317")
	require.NoError(t, err)
	assert.Equal(t, "collector.example.com:4317", target)
	assert.False(t, insecure)

	_, _, err = grpcTarget("ftp://collector:4317")
	assert.Error(t, err)
}
