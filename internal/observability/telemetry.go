package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FlushTimeout bounds the export at the end of an invocation.
const FlushTimeout = 5 * time.Second

// Telemetry owns the providers installed by Init. A nil *Telemetry is valid and does nothing.
type Telemetry struct {
	handler string
	tracer  trace.Tracer
	tp      *sdktrace.TracerProvider
	mp      *sdkmetric.MeterProvider
	logger  *zap.Logger
}

func newTelemetry(handler string, tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider, logger *zap.Logger) *Telemetry {
	return &Telemetry{
		handler: handler,
		tracer:  otel.Tracer("photosearch/lambda"),
		tp:      tp,
		mp:      mp,
		logger:  logger,
	}
}

// StartInvocation opens the root span of one invocation. The returned func ends the span
// and exports everything buffered, since Lambda may freeze the sandbox right after the
// handler returns. It runs even when ctx is already cancelled.
func (t *Telemetry) StartInvocation(ctx context.Context) (context.Context, func()) {
	if t == nil {
		return ctx, func() {}
	}

	attrs := []attribute.KeyValue{HandlerKey.String(t.handler)}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		attrs = append(attrs, semconv.FaaSInvocationID(lc.AwsRequestID))
	}
	ctx, span := t.tracer.Start(ctx, t.handler+" invocation",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...))

	return ctx, func() {
		span.End()

		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FlushTimeout)
		defer cancel()
		if err := t.Flush(flushCtx); err != nil {
			t.logger.Warn("telemetry flush failed", zap.Error(err))
		}
	}
}

// Flush exports buffered spans and metrics and keeps the providers running.
func (t *Telemetry) Flush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tp != nil {
		if err := t.tp.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush spans: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops the providers. Call it once when the process exits.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop tracer provider: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
