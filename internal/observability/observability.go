package observability

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlpmetricgrpc "go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otlpmetrichttp "go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otlptracegrpc "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/ca-srg/photosearch/internal/config"
	"github.com/ca-srg/photosearch/internal/types"
)

// OTLP protocols accepted in OTEL_EXPORTER_OTLP_PROTOCOL.
const (
	ProtocolHTTP = "http/protobuf"
	ProtocolGRPC = "grpc"
)

// HandlerKey tags the resource and every invocation span with the handler that ran.
const HandlerKey = attribute.Key("photosearch.handler")

const (
	// Lambda invocations flush on return; the periodic reader is for long-lived processes.
	lambdaExportInterval = time.Hour
	localExportInterval  = 30 * time.Second
)

// Options selects what Init installs. Sampling and extra resource attributes are read by
// the SDK itself from OTEL_TRACES_SAMPLER(_ARG) and OTEL_RESOURCE_ATTRIBUTES.
type Options struct {
	Enabled     bool
	ServiceName string
	Handler     string
	Endpoint    string
	Protocol    string
}

// OptionsFromConfig maps the process configuration onto Options for handler.
func OptionsFromConfig(cfg *types.Config, handler string) Options {
	return Options{
		Enabled:     cfg.OTelEnabled,
		ServiceName: strings.TrimSpace(cfg.OTelServiceName),
		Handler:     handler,
		Endpoint:    strings.TrimSpace(cfg.OTelExporterOTLPEndpoint),
		Protocol:    strings.ToLower(strings.TrimSpace(cfg.OTelExporterOTLPProtocol)),
	}
}

func (o *Options) validate() error {
	if o.ServiceName == "" {
		o.ServiceName = "photosearch"
	}
	if o.Protocol == "" {
		o.Protocol = ProtocolHTTP
	}
	if !o.Enabled {
		return nil
	}
	if o.Endpoint == "" {
		return fmt.Errorf("observability: OTEL_EXPORTER_OTLP_ENDPOINT is required when OTEL_ENABLED is set")
	}
	switch o.Protocol {
	case ProtocolHTTP:
		u, err := url.Parse(o.Endpoint)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("observability: %q is not an http(s) OTLP endpoint", o.Endpoint)
		}
	case ProtocolGRPC:
		if _, _, err := grpcTarget(o.Endpoint); err != nil {
			return fmt.Errorf("observability: invalid OTLP gRPC endpoint: %w", err)
		}
	default:
		return fmt.Errorf("observability: unsupported OTLP protocol %q", o.Protocol)
	}
	return nil
}

// Init installs the global tracer and meter providers. When telemetry is disabled the
// global no-op providers stay in place and the returned Telemetry only opens no-op spans.
func Init(ctx context.Context, opts Options, logger *zap.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	disabled := newTelemetry(opts.Handler, nil, nil, logger)

	if err := opts.validate(); err != nil {
		return disabled, err
	}
	if !opts.Enabled {
		return disabled, nil
	}

	res, err := newResource(ctx, opts)
	if err != nil {
		return disabled, fmt.Errorf("observability: failed to build resource: %w", err)
	}
	spanExporter, metricExporter, err := newExporters(ctx, opts)
	if err != nil {
		return disabled, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spanExporter),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(exportInterval()))),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Debug("observability initialized",
		zap.String("service", opts.ServiceName),
		zap.String("handler", opts.Handler),
		zap.String("protocol", opts.Protocol))

	return newTelemetry(opts.Handler, tp, mp, logger), nil
}

func inLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

func exportInterval() time.Duration {
	if inLambda() {
		return lambdaExportInterval
	}
	return localExportInterval
}

// newResource describes the process. Attributes from OTEL_RESOURCE_ATTRIBUTES and
// OTEL_SERVICE_NAME are applied last and win.
func newResource(ctx context.Context, opts Options) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(opts.ServiceName),
		HandlerKey.String(opts.Handler),
	}
	if trigger, ok := faasTrigger(opts.Handler); ok {
		attrs = append(attrs, trigger)
	}

	if inLambda() {
		attrs = append(attrs,
			semconv.CloudProviderAWS,
			semconv.CloudPlatformAWSLambda,
			semconv.FaaSName(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")),
		)
		if v := os.Getenv("AWS_LAMBDA_FUNCTION_VERSION"); v != "" {
			attrs = append(attrs, semconv.FaaSVersion(v))
		}
		if v := os.Getenv("AWS_LAMBDA_LOG_STREAM_NAME"); v != "" {
			attrs = append(attrs, semconv.FaaSInstance(v))
		}
		if mb, err := strconv.Atoi(os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE")); err == nil {
			attrs = append(attrs, semconv.FaaSMaxMemory(mb<<20))
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			attrs = append(attrs, semconv.CloudRegion(v))
		}
	}

	return resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
		resource.WithFromEnv(),
	)
}

func faasTrigger(handler string) (attribute.KeyValue, bool) {
	switch handler {
	case config.HandlerIngest:
		return semconv.FaaSTriggerDatasource, true
	case config.HandlerQuery:
		return semconv.FaaSTriggerHTTP, true
	}
	return attribute.KeyValue{}, false
}

func newExporters(ctx context.Context, opts Options) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	switch opts.Protocol {
	case ProtocolGRPC:
		target, insecure, err := grpcTarget(opts.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
		if insecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}
		spans, err := otlptracegrpc.New(ctx, traceOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("observability: OTLP gRPC trace exporter: %w", err)
		}
		metrics, err := otlpmetricgrpc.New(ctx, metricOpts...)
		if err != nil {
			_ = spans.Shutdown(ctx)
			return nil, nil, fmt.Errorf("observability: OTLP gRPC metric exporter: %w", err)
		}
		return spans, metrics, nil

	default:
		traceURL, err := signalURL(opts.Endpoint, "v1/traces")
		if err != nil {
			return nil, nil, err
		}
		metricURL, err := signalURL(opts.Endpoint, "v1/metrics")
		if err != nil {
			return nil, nil, err
		}
		spans, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(traceURL))
		if err != nil {
			return nil, nil, fmt.Errorf("observability: OTLP HTTP trace exporter: %w", err)
		}
		metrics, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(metricURL))
		if err != nil {
			_ = spans.Shutdown(ctx)
			return nil, nil, fmt.Errorf("observability: OTLP HTTP metric exporter: %w", err)
		}
		return spans, metrics, nil
	}
}

// signalURL appends the OTLP signal path to a collector base URL unless it is already there.
func signalURL(endpoint, signal string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("observability: invalid OTLP endpoint: %w", err)
	}
	if !strings.HasSuffix(strings.TrimSuffix(u.Path, "/"), "/"+signal) {
		u.Path = path.Join("/", u.Path, signal)
	}
	return u.String(), nil
}

// grpcTarget returns host:port for a gRPC collector. A bare host:port, or an http:// or
// grpc:// URL, means plaintext.
func grpcTarget(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		if !strings.Contains(endpoint, ":") {
			return "", false, fmt.Errorf("%q needs host:port", endpoint)
		}
		return endpoint, true, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, err
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("%q has no host", endpoint)
	}
	switch u.Scheme {
	case "http", "grpc":
		return u.Host, true, nil
	case "https", "grpcs":
		return u.Host, false, nil
	}
	return "", false, fmt.Errorf("unsupported scheme %q", u.Scheme)
}
