package factory

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/LeoXDXp/ACS/internal/backend/native"
	"github.com/LeoXDXp/ACS/internal/metrics"
	"github.com/LeoXDXp/ACS/internal/pluginloader"
)

// Option configures a Factory.
type Option func(*Factory)

// WithLoader sets the loader used for the external backend library.
func WithLoader(l pluginloader.Loader) Option {
	return func(f *Factory) {
		if l != nil {
			f.loader = l
		}
	}
}

// WithLibraryPath overrides backend.ExternalLibraryPath.
func WithLibraryPath(path string) Option {
	return func(f *Factory) {
		if path != "" {
			f.libraryPath = path
		}
	}
}

// WithEntrySymbol overrides backend.EntrySymbol.
func WithEntrySymbol(symbol string) Option {
	return func(f *Factory) {
		if symbol != "" {
			f.entrySymbol = symbol
		}
	}
}

// WithNativeBackend replaces the native backend, for example to route its
// log lines elsewhere.
func WithNativeBackend(b *native.Backend) Option {
	return func(f *Factory) {
		if b != nil {
			f.native = b
		}
	}
}

// WithClock sets the time source used to stamp fault states.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) {
		if now != nil {
			f.now = now
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Factory) {
		f.metrics = m
	}
}

// WithTracer replaces the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(f *Factory) {
		if t != nil {
			f.tracer = t
		}
	}
}
