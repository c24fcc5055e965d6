package raiser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"go.uber.org/ratelimit"

	"github.com/LeoXDXp/ACS/internal/backend/external"
	"github.com/LeoXDXp/ACS/internal/config"
	"github.com/LeoXDXp/ACS/internal/configservice"
	"github.com/LeoXDXp/ACS/internal/domain/alarm"
	"github.com/LeoXDXp/ACS/internal/factory"
	"github.com/LeoXDXp/ACS/internal/logger"
	"github.com/LeoXDXp/ACS/internal/metrics"
	"github.com/LeoXDXp/ACS/internal/pluginloader"
	"github.com/LeoXDXp/ACS/internal/tracing"
)

// Options describes the alarm to raise.
type Options struct {
	// ConfigPath to YAML settings file.
	ConfigPath string
	// Family, Member and Code identify the fault.
	Family string
	Member string
	Code   int
	// Active raises the fault when true and clears it otherwise.
	Active bool
	// Properties are attached to every pushed fault state.
	Properties map[string]string
	// SourceName is passed through to the factory, which pushes through the shared source regardless.
	SourceName string
	// Repeat is how many times the alarm is pushed; values below one mean once.
	Repeat int
	// Rate paces repeated pushes per second; zero means unpaced.
	Rate int
	// Metrics receives the factory counters. A fresh set is used when nil.
	Metrics *metrics.Metrics
}

var (
	// ErrFamilyRequired is returned when no fault family is given.
	ErrFamilyRequired = errors.New("fault family must be provided")
	// ErrMemberRequired is returned when no fault member is given.
	ErrMemberRequired = errors.New("fault member must be provided")
	// ErrBackendNotInitialized is returned when the selected backend reports a failed start.
	ErrBackendNotInitialized = errors.New("alarm backend failed to initialize")
)

// Run bootstraps the factory, pushes the alarm and tears the factory down.
//
//nolint:funlen // Linear bootstrap sequence.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "alarm-raise")

	if opts.Family == "" {
		return ErrFamilyRequired
	}

	if opts.Member == "" {
		return ErrMemberRequired
	}

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if level, ok := logger.ParseLogLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	}

	shutdownTracing, err := tracing.Setup(ctx, "alarm-raise")
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}

	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.WarnKV(ctx, "Failed to flush traces", "error", err)
		}
	}()

	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	if settings.Metrics.ListenAddress != "" {
		stopMetrics, err := serveMetrics(ctx, m, settings.Metrics.ListenAddress)
		if err != nil {
			return err
		}

		defer stopMetrics()
	}

	exportCollectorSettings(ctx, settings.Collector)

	handle, err := configservice.Open(settings.ConfigService)
	if err != nil {
		return fmt.Errorf("open configuration service: %w", err)
	}

	f := factory.New(
		factory.WithLoader(loaderFor(settings.Factory.Loader)),
		factory.WithLibraryPath(settings.Factory.LibraryPath),
		factory.WithEntrySymbol(settings.Factory.EntrySymbol),
		factory.WithMetrics(m),
	)
	factory.SetDefault(f)

	defer f.Done(ctx)

	initCtx, cancel := context.WithTimeout(ctx, settings.ConfigService.Timeout)
	ok, err := f.Init(initCtx, handle)

	cancel()

	if err != nil {
		return fmt.Errorf("initialise alarm factory: %w", err)
	}

	isNative, err := f.UsingNativeBackend()
	if err != nil {
		return err
	}

	if !ok {
		return ErrBackendNotInitialized
	}

	logger.InfoKV(ctx, "Alarm factory initialized", "native", isNative, "config_service", settings.ConfigService.Kind)

	limiter := ratelimit.NewUnlimited()
	if opts.Rate > 0 {
		limiter = ratelimit.New(opts.Rate)
	}

	repeat := max(opts.Repeat, 1)
	props := alarm.Properties(opts.Properties)

	for i := range repeat {
		if err := ctx.Err(); err != nil {
			return err
		}

		limiter.Take()

		err := f.CreateAndSendAlarm(ctx, opts.Family, opts.Member, opts.Code, opts.Active, props, opts.SourceName)
		if err != nil {
			return fmt.Errorf("send alarm %d of %d: %w", i+1, repeat, err)
		}
	}

	logger.InfoKV(ctx, "Alarm sent",
		"family", opts.Family,
		"member", opts.Member,
		"code", opts.Code,
		"descriptor", string(alarm.DescriptorFor(opts.Active)),
		"count", repeat,
	)

	return nil
}

// serveMetrics exposes m on address while alarms are sent. The returned
// function stops the server and waits for it.
func serveMetrics(ctx context.Context, m *metrics.Metrics, address string) (func(), error) {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := m.Serve(ctx, lis); err != nil {
			logger.WarnKV(ctx, "Metrics server failed", "address", address, "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// loaderFor maps the settings loader kind to a plugin loader.
func loaderFor(kind string) pluginloader.Loader {
	if kind == config.LoaderSharedObject {
		return pluginloader.SharedObjectLoader{}
	}

	return pluginloader.DefaultRegistry
}

// exportCollectorSettings publishes the collector section for the external
// backend entry point. Variables already set in the environment win.
func exportCollectorSettings(ctx context.Context, c config.Collector) {
	for key, value := range external.SettingsFromCollector(c).Environ() {
		if _, set := os.LookupEnv(key); set {
			continue
		}

		if err := os.Setenv(key, value); err != nil {
			logger.WarnKV(ctx, "Failed to export collector setting", "key", key, "error", err)
		}
	}
}
