package tracing

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies every span this module emits. All packages
// share one tracer; spans are distinguished by name and attributes.
const instrumentationName = "github.com/probelab/scout"

var (
	setupOnce sync.Once
	setupErr  error

	activeMu sync.Mutex
	active   *sdktrace.TracerProvider
)

// InitOpenTelemetry installs the global tracer provider for the process.
// Spans recorded before initialization are no-ops. Calling it again is a
// no-op returning the first result.
func InitOpenTelemetry(serviceName string) error {
	setupOnce.Do(func() {
		res, err := resource.Merge(
			resource.Default(),
			resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(serviceName),
			),
		)
		if err != nil {
			setupErr = fmt.Errorf("failed to build tracing resource: %w", err)
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)

		activeMu.Lock()
		active = tp
		activeMu.Unlock()
	})
	return setupErr
}

// ShutdownOpenTelemetry flushes pending spans and releases the provider.
// Subsequent calls are no-ops.
func ShutdownOpenTelemetry(ctx context.Context) error {
	activeMu.Lock()
	tp := active
	active = nil
	activeMu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan opens a span under the module tracer and mirrors the span's trace
// id into the plain context key, so log lines and API responses can carry it
// without touching the OTel API.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}
