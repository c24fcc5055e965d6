// Package tracing installs the OpenTelemetry tracer provider of the alarm
// binaries.
//
// Spans are exported over OTLP/HTTP when OTEL_EXPORTER_OTLP_ENDPOINT is set;
// the exporter reads the rest of the standard OTEL_EXPORTER_OTLP_* variables
// itself. Without an endpoint the global no-op provider stays in place.
package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/LeoXDXp/ACS/internal/logger"
	"github.com/LeoXDXp/ACS/internal/version"
)

// EnvOTLPEndpoint enables span export.
const EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

// Setup installs a global tracer provider for service when an OTLP endpoint
// is configured. The returned function is never nil.
func Setup(ctx context.Context, service string) (ShutdownFunc, error) {
	if os.Getenv(EnvOTLPEndpoint) == "" {
		logger.Debug(ctx, "Tracing not configured")

		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient())
	if err != nil {
		return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
	}

	res, err := newResource(service)
	if err != nil {
		return nil, err
	}

	tp := NewProvider(res, sdktrace.WithBatcher(exporter))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.InfoKV(ctx, "Tracing enabled", "service", service, "endpoint", os.Getenv(EnvOTLPEndpoint))

	return tp.Shutdown, nil
}

// NewProvider returns an always-sampling provider for res. Tests pass a
// span processor such as a tracetest.SpanRecorder.
func NewProvider(res *resource.Resource, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	}, opts...)

	return sdktrace.NewTracerProvider(opts...)
}

// newResource describes the binary.
func newResource(service string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", service),
			attribute.String("service.version", version.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("merge trace resource: %w", err)
	}

	return res, nil
}
