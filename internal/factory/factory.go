// Package factory decides once per lifecycle which alarm backend is used and
// hands out sources and fault states from it.
//
// The choice depends on the "Implementation" property of the configuration
// service: exactly "CERN" selects the external backend, loaded through a
// pluginloader.Loader; anything else, including a failed lookup or no
// configuration service at all, selects the native backend. A Factory also
// owns a lazily created shared source used by CreateAndSendAlarm, and tears
// everything down in a fixed order in Done.
//
// All methods are safe for concurrent use. A single non re-entrant mutex
// guards public entry points; helpers suffixed Locked expect the caller to
// hold it.
package factory

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/LeoXDXp/ACS/internal/backend"
	"github.com/LeoXDXp/ACS/internal/backend/native"
	"github.com/LeoXDXp/ACS/internal/configservice"
	"github.com/LeoXDXp/ACS/internal/domain/alarm"
	"github.com/LeoXDXp/ACS/internal/logger"
	"github.com/LeoXDXp/ACS/internal/metrics"
	"github.com/LeoXDXp/ACS/internal/pluginloader"
)

const tracerName = "github.com/LeoXDXp/ACS/internal/factory"

var (
	// ErrUninitializedFactory is returned by every operation except Init and
	// Done while the factory is not initialized.
	ErrUninitializedFactory = errors.New("alarm source factory is not initialized")
	// ErrAlreadyInitialized is returned by a second Init in one lifecycle.
	ErrAlreadyInitialized = errors.New("alarm source factory is already initialized")
	// ErrBackendUnavailable is returned when the external backend was
	// selected but its library could not be loaded.
	ErrBackendUnavailable = errors.New("external alarm backend is not loaded")
)

// Factory is an alarm-source factory. The zero value is not usable; call New.
type Factory struct {
	mu sync.Mutex

	// useNative is nil until Init records the backend choice.
	useNative    *bool
	configHandle configservice.Handle
	library      pluginloader.Library
	instance     backend.Backend
	shared       backend.Source

	native      *native.Backend
	loader      pluginloader.Loader
	libraryPath string
	entrySymbol string
	now         func() time.Time
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

// New returns an uninitialized factory.
func New(opts ...Option) *Factory {
	f := &Factory{
		native:      native.New(),
		loader:      pluginloader.DefaultRegistry,
		libraryPath: backend.ExternalLibraryPath,
		entrySymbol: backend.EntrySymbol,
		now:         time.Now,
		tracer:      otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Init selects the backend using handle, which may be nil, and initializes
// it. It reports the backend's initialization result. A *pluginloader.PluginLoadError
// is returned when the external library cannot be loaded; the choice stays
// recorded either way until Done.
func (f *Factory) Init(ctx context.Context, handle configservice.Handle) (bool, error) {
	ctx = logger.WithName(ctx, "alarm-factory")

	ctx, span := f.tracer.Start(ctx, "factory.Init")
	defer span.End()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.useNative != nil {
		span.SetStatus(codes.Error, ErrAlreadyInitialized.Error())

		return false, ErrAlreadyInitialized
	}

	useNative := f.selectNative(ctx, handle)
	f.useNative = &useNative
	f.configHandle = handle

	label := backendLabel(useNative)
	span.SetAttributes(attribute.String("alarm.backend", label))
	logger.DebugKV(ctx, "Alarm implementation selected", "backend", label)

	if f.metrics != nil {
		f.metrics.BackendSelections.WithLabelValues(label).Inc()
	}

	if useNative {
		return true, nil
	}

	ok, err := f.loadExternalBackendLocked(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plugin load failed")
	}

	span.SetAttributes(attribute.Bool("alarm.backend_initialized", ok))

	return ok, err
}

// selectNative reports whether the native backend must be used for handle.
func (f *Factory) selectNative(ctx context.Context, handle configservice.Handle) bool {
	if handle == nil {
		logger.Debug(ctx, "No configuration service, using native alarm backend")

		return true
	}

	res := configservice.Lookup(ctx, handle, backend.ImplementationProperty)
	if !res.OK() {
		logger.WarnKV(ctx, "Alarm implementation lookup failed, using native alarm backend", "error", res.Err)

		if f.metrics != nil {
			f.metrics.ConfigLookupFailures.Inc()
		}

		return true
	}

	if res.Value != backend.ExternalImplementation {
		logger.DebugKV(ctx, "Alarm implementation is not external", "implementation", res.Value)

		return true
	}

	return false
}

// loadExternalBackendLocked loads and initializes the external backend.
// The caller must hold f.mu.
func (f *Factory) loadExternalBackendLocked(ctx context.Context) (bool, error) {
	b, lib, err := pluginloader.Load(f.loader, f.libraryPath, f.entrySymbol)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to load external alarm backend",
			"library_path", f.libraryPath,
			"entry_symbol", f.entrySymbol,
			"error", err,
		)

		if f.metrics != nil {
			f.metrics.PluginLoadFailures.Inc()
		}

		return false, err
	}

	f.library = lib
	f.instance = b

	ok := b.Initialize(ctx)
	if !ok {
		logger.WarnKV(ctx, "External alarm backend failed to initialize", "library_path", f.libraryPath)
	}

	return ok, nil
}

// Done tears the factory down: it shuts the external backend down, releases
// the shared source, closes the plugin library, forgets the backend choice
// and drops the configuration handle. Every step tolerates a missing
// resource, so Done may be called repeatedly or before Init.
func (f *Factory) Done(ctx context.Context) {
	ctx = logger.WithName(ctx, "alarm-factory")

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.useNative != nil && !*f.useNative && f.instance != nil {
		f.instance.Shutdown(ctx)
	}

	f.instance = nil

	if f.shared != nil {
		if err := f.shared.Close(); err != nil {
			logger.WarnKV(ctx, "Failed to close shared alarm source", "error", err)
		}

		f.shared = nil
	}

	if f.library != nil {
		if err := f.library.Close(); err != nil {
			logger.WarnKV(ctx, "Failed to close alarm backend library", "library_path", f.libraryPath, "error", err)
		}

		f.library = nil
	}

	f.useNative = nil

	if c, ok := f.configHandle.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.WarnKV(ctx, "Failed to close configuration handle", "error", err)
		}
	}

	f.configHandle = nil
}

// Initialized reports whether a backend choice is recorded.
func (f *Factory) Initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.useNative != nil
}

// ConfigHandle returns the configuration handle passed to Init, or nil.
func (f *Factory) ConfigHandle() configservice.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.configHandle
}

// UsingNativeBackend reports whether the native backend was selected.
func (f *Factory) UsingNativeBackend() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.useNative == nil {
		return false, ErrUninitializedFactory
	}

	return *f.useNative, nil
}

// currentBackend returns the active backend. Calls on it happen outside the lock.
func (f *Factory) currentBackend() (backend.Backend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.currentBackendLocked()
}

// currentBackendLocked is currentBackend for callers holding f.mu.
func (f *Factory) currentBackendLocked() (backend.Backend, error) {
	switch {
	case f.useNative == nil:
		return nil, ErrUninitializedFactory
	case *f.useNative:
		return f.native, nil
	case f.instance == nil:
		return nil, ErrBackendUnavailable
	default:
		return f.instance, nil
	}
}

// CreateSource returns a source with the backend's default name.
func (f *Factory) CreateSource() (backend.Source, error) {
	b, err := f.currentBackend()
	if err != nil {
		return nil, err
	}

	return b.CreateSource()
}

// CreateNamedSource returns a source bound to name.
func (f *Factory) CreateNamedSource(name string) (backend.Source, error) {
	b, err := f.currentBackend()
	if err != nil {
		return nil, err
	}

	return b.CreateNamedSource(name)
}

// CreateFaultState returns a fault state for the triplet.
func (f *Factory) CreateFaultState(family, member string, code int) (*alarm.FaultState, error) {
	b, err := f.currentBackend()
	if err != nil {
		return nil, err
	}

	return b.CreateFaultState(family, member, code), nil
}

// NewFaultState returns an empty fault state.
func (f *Factory) NewFaultState() (*alarm.FaultState, error) {
	b, err := f.currentBackend()
	if err != nil {
		return nil, err
	}

	return b.NewFaultState(), nil
}

func backendLabel(useNative bool) string {
	if useNative {
		return metrics.BackendNative
	}

	return metrics.BackendExternal
}
