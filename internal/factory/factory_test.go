package factory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/LeoXDXp/ACS/internal/backend"
	"github.com/LeoXDXp/ACS/internal/backend/native"
	"github.com/LeoXDXp/ACS/internal/configservice"
	"github.com/LeoXDXp/ACS/internal/domain/alarm"
	"github.com/LeoXDXp/ACS/internal/metrics"
	"github.com/LeoXDXp/ACS/internal/pluginloader"
	"github.com/LeoXDXp/ACS/internal/tracing"
)

var errLookup = errors.New("configuration service unreachable")

type handleFunc func(ctx context.Context, name string) (string, error)

func (f handleFunc) GetProperty(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

func quietNative() *native.Backend {
	return native.New(native.WithLogger(zap.NewNop().Sugar()))
}

// newExternal returns a factory wired to a fake external backend.
func newExternal(t *testing.T, b *fakeBackend, opts ...Option) (*Factory, *countingLoader) {
	t.Helper()

	loader := newExternalLoader(b)

	opts = append([]Option{
		WithLoader(loader),
		WithLibraryPath(testLibrary),
		WithNativeBackend(quietNative()),
	}, opts...)

	f := New(opts...)
	t.Cleanup(func() { f.Done(context.Background()) })

	return f, loader
}

func TestInit_NilHandleSelectsNative(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{initOK: true}
	f, loader := newExternal(t, b)

	ok, err := f.Init(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)

	isNative, err := f.UsingNativeBackend()
	require.NoError(t, err)
	require.True(t, isNative)
	require.Nil(t, f.ConfigHandle())
	require.Zero(t, loader.opens.Load())
}

func TestInit_FallbackToNative(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		handle configservice.Handle
	}{
		{name: "ACS", handle: configservice.NewStaticHandle(map[string]string{"Implementation": "ACS"})},
		{name: "empty", handle: configservice.NewStaticHandle(map[string]string{"Implementation": ""})},
		{name: "lower case", handle: configservice.NewStaticHandle(map[string]string{"Implementation": "cern"})},
		{name: "padded", handle: configservice.NewStaticHandle(map[string]string{"Implementation": " CERN"})},
		{name: "missing property", handle: configservice.NewStaticHandle(nil)},
		{
			name: "lookup error",
			handle: handleFunc(func(context.Context, string) (string, error) {
				return "", errLookup
			}),
		},
		{
			name: "lookup panics",
			handle: handleFunc(func(context.Context, string) (string, error) {
				panic("broken handle")
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := &fakeBackend{initOK: true}
			m := metrics.New()
			f, loader := newExternal(t, b, WithMetrics(m))

			ok, err := f.Init(context.Background(), tt.handle)
			require.NoError(t, err)
			require.True(t, ok)

			isNative, err := f.UsingNativeBackend()
			require.NoError(t, err)
			require.True(t, isNative)

			require.Zero(t, loader.opens.Load())
			require.Zero(t, b.initCalls.Load())
			require.NotNil(t, f.ConfigHandle())
			require.InDelta(t, 1, testutil.ToFloat64(m.BackendSelections.WithLabelValues(metrics.BackendNative)), 0)
		})
	}
}

func TestInit_CERNSelectsExternal(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{initOK: true}
	m := metrics.New()
	f, loader := newExternal(t, b, WithMetrics(m))

	ok, err := f.Init(context.Background(), cernHandle())
	require.NoError(t, err)
	require.True(t, ok)

	isNative, err := f.UsingNativeBackend()
	require.NoError(t, err)
	require.False(t, isNative)

	require.Equal(t, int32(1), loader.opens.Load())
	require.Equal(t, int32(1), b.initCalls.Load())
	require.InDelta(t, 1, testutil.ToFloat64(m.BackendSelections.WithLabelValues(metrics.BackendExternal)), 0)
}

func TestInit_ExternalInitializeFails(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{initOK: false}
	f, _ := newExternal(t, b)

	ok, err := f.Init(context.Background(), cernHandle())
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, f.Initialized())

	isNative, err := f.UsingNativeBackend()
	require.NoError(t, err)
	require.False(t, isNative)
}

func TestInit_PluginLoadError(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	loader := &countingLoader{inner: pluginloader.NewRegistry()}
	f := New(WithLoader(loader), WithLibraryPath("libmissing.so"), WithMetrics(m))

	ok, err := f.Init(context.Background(), cernHandle())
	require.False(t, ok)

	var loadErr *pluginloader.PluginLoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "libmissing.so", loadErr.Path)
	require.Equal(t, backend.EntrySymbol, loadErr.Symbol)
	require.ErrorIs(t, err, pluginloader.ErrLibraryNotFound)
	require.Equal(t, int32(1), loader.opens.Load())
	require.InDelta(t, 1, testutil.ToFloat64(m.PluginLoadFailures), 0)

	// The choice stays recorded but nothing can be created.
	isNative, err := f.UsingNativeBackend()
	require.NoError(t, err)
	require.False(t, isNative)

	_, err = f.CreateSource()
	require.ErrorIs(t, err, ErrBackendUnavailable)

	err = f.CreateAndSendAlarm(context.Background(), "F", "M", 1, true, nil, "")
	require.ErrorIs(t, err, ErrBackendUnavailable)

	f.Done(context.Background())
	require.False(t, f.Initialized())
}

// recordingTracer returns a factory option that records every ended span.
func recordingTracer() (Option, *tracetest.SpanRecorder) {
	spans := tracetest.NewSpanRecorder()
	tp := tracing.NewProvider(resource.Empty(), sdktrace.WithSpanProcessor(spans))

	return WithTracer(tp.Tracer("factory-test")), spans
}

func TestInit_Spans(t *testing.T) {
	t.Parallel()

	withTracer, spans := recordingTracer()
	f := New(withTracer)

	ok, err := f.Init(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.Init(context.Background(), nil)
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	ended := spans.Ended()
	require.Len(t, ended, 2)
	require.Equal(t, "factory.Init", ended[0].Name())
	require.Contains(t, ended[0].Attributes(), attribute.String("alarm.backend", metrics.BackendNative))
	require.Equal(t, codes.Unset, ended[0].Status().Code)
	require.Equal(t, codes.Error, ended[1].Status().Code)
}

func TestInit_PluginLoadErrorSpan(t *testing.T) {
	t.Parallel()

	withTracer, spans := recordingTracer()
	f := New(withTracer, WithLoader(pluginloader.NewRegistry()), WithLibraryPath("libmissing.so"))

	_, err := f.Init(context.Background(), cernHandle())
	require.Error(t, err)

	ended := spans.Ended()
	require.Len(t, ended, 1)
	require.Contains(t, ended[0].Attributes(), attribute.String("alarm.backend", metrics.BackendExternal))
	require.Contains(t, ended[0].Attributes(), attribute.Bool("alarm.backend_initialized", false))
	require.Equal(t, codes.Error, ended[0].Status().Code)
	require.NotEmpty(t, ended[0].Events(), "the load error is recorded as a span event")
}

func TestCreateAndSendAlarm_Span(t *testing.T) {
	t.Parallel()

	withTracer, spans := recordingTracer()
	b := &fakeBackend{initOK: true, pushErr: errTransport}
	f := New(withTracer, WithLoader(newExternalLoader(b)), WithLibraryPath(testLibrary))

	ok, err := f.Init(context.Background(), cernHandle())
	require.NoError(t, err)
	require.True(t, ok)

	err = f.CreateAndSendAlarm(context.Background(), "PowerSystem", "Breaker7", 42, true, nil, "")
	require.ErrorIs(t, err, errTransport)

	ended := spans.Ended()
	require.Len(t, ended, 2)

	push := ended[1]
	require.Equal(t, "factory.CreateAndSendAlarm", push.Name())
	require.Contains(t, push.Attributes(), attribute.String("alarm.triplet", "PowerSystem:Breaker7:42"))
	require.Contains(t, push.Attributes(), attribute.String("alarm.descriptor", string(alarm.DescriptorActive)))
	require.Equal(t, codes.Error, push.Status().Code)
}

func TestInit_SecondCallKeepsChoice(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{initOK: true}
	f, loader := newExternal(t, b)

	ok, err := f.Init(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.Init(context.Background(), cernHandle())
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.False(t, ok)

	isNative, err := f.UsingNativeBackend()
	require.NoError(t, err)
	require.True(t, isNative)
	require.Nil(t, f.ConfigHandle())
	require.Zero(t, loader.opens.Load())
}

func TestInit_LookupHonorsContext(t *testing.T) {
	t.Parallel()

	f := New(WithNativeBackend(quietNative()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A canceled lookup is a failed lookup.
	ok, err := f.Init(ctx, cernHandle())
	require.NoError(t, err)
	require.True(t, ok)

	isNative, err := f.UsingNativeBackend()
	require.NoError(t, err)
	require.True(t, isNative)
}

func TestUninitializedGuard(t *testing.T) {
	t.Parallel()

	f := New()
	ctx := context.Background()

	_, err := f.UsingNativeBackend()
	require.ErrorIs(t, err, ErrUninitializedFactory)

	_, err = f.CreateSource()
	require.ErrorIs(t, err, ErrUninitializedFactory)

	_, err = f.CreateNamedSource("x")
	require.ErrorIs(t, err, ErrUninitializedFactory)

	_, err = f.CreateFaultState("F", "M", 1)
	require.ErrorIs(t, err, ErrUninitializedFactory)

	_, err = f.NewFaultState()
	require.ErrorIs(t, err, ErrUninitializedFactory)

	require.ErrorIs(t, f.CreateAndSendAlarm(ctx, "F", "M", 1, true, nil, ""), ErrUninitializedFactory)
	require.ErrorIs(t, f.CreateAndSendAlarmNoProperties(ctx, "F", "M", 1, false, ""), ErrUninitializedFactory)

	require.False(t, f.Initialized())
	f.Done(ctx)
	require.False(t, f.Initialized())
}

func TestUninitializedGuard_AfterInit(t *testing.T) {
	t.Parallel()

	for _, handle := range []configservice.Handle{nil, cernHandle()} {
		b := &fakeBackend{initOK: true}
		f, _ := newExternal(t, b)

		_, err := f.Init(context.Background(), handle)
		require.NoError(t, err)

		_, err = f.CreateSource()
		require.NoError(t, err)

		_, err = f.CreateNamedSource("x")
		require.NoError(t, err)

		_, err = f.CreateFaultState("F", "M", 1)
		require.NoError(t, err)

		_, err = f.NewFaultState()
		require.NoError(t, err)

		require.NoError(t, f.CreateAndSendAlarm(context.Background(), "F", "M", 1, true, nil, ""))
	}
}

func TestNativeRouting(t *testing.T) {
	t.Parallel()

	f := New(WithNativeBackend(quietNative()))
	_, err := f.Init(context.Background(), nil)
	require.NoError(t, err)

	src, err := f.CreateSource()
	require.NoError(t, err)
	require.Equal(t, backend.UndefinedSourceName, src.Name())

	src, err = f.CreateNamedSource("Antenna")
	require.NoError(t, err)
	require.Equal(t, "Antenna", src.Name())

	fs, err := f.CreateFaultState("PowerSystem", "Breaker7", 42)
	require.NoError(t, err)
	require.Equal(t, "PowerSystem:Breaker7:42", fs.Triplet())

	empty, err := f.NewFaultState()
	require.NoError(t, err)
	require.Equal(t, &alarm.FaultState{}, empty)
}

func TestExternalRouting(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{initOK: true}
	f, _ := newExternal(t, b)

	_, err := f.Init(context.Background(), cernHandle())
	require.NoError(t, err)

	src, err := f.CreateSource()
	require.NoError(t, err)
	require.Equal(t, "FAKE_DEFAULT", src.Name())

	src, err = f.CreateNamedSource("Antenna")
	require.NoError(t, err)
	require.Equal(t, "Antenna", src.Name())
	require.Len(t, b.created(), 2)
}

func TestCreateAndSendAlarm_ExampleScenario(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := &fakeBackend{initOK: true}
	f, _ := newExternal(t, b, WithClock(func() time.Time { return now }))

	ok, err := f.Init(context.Background(), cernHandle())
	require.NoError(t, err)
	require.True(t, ok)

	isNative, err := f.UsingNativeBackend()
	require.NoError(t, err)
	require.False(t, isNative)

	err = f.CreateAndSendAlarm(
		context.Background(),
		"PowerSystem", "Breaker7", 42, true,
		alarm.Properties{"unit": "kW"},
		"ignoredName",
	)
	require.NoError(t, err)

	sources := b.created()
	require.Len(t, sources, 1)
	require.Equal(t, backend.AlarmSourceName, sources[0].Name())

	pushed := sources[0].received()
	require.Len(t, pushed, 1)
	require.Equal(t, "PowerSystem", pushed[0].Family)
	require.Equal(t, "Breaker7", pushed[0].Member)
	require.Equal(t, 42, pushed[0].Code)
	require.Equal(t, alarm.DescriptorActive, pushed[0].Descriptor)
	require.Equal(t, alarm.Properties{"unit": "kW"}, pushed[0].UserProperties)
	require.Equal(t, now, pushed[0].UserTimestamp)
}

func TestCreateAndSendAlarm_DescriptorMapping(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{initOK: true}
	f, _ := newExternal(t, b)

	_, err := f.Init(context.Background(), cernHandle())
	require.NoError(t, err)

	require.NoError(t, f.CreateAndSendAlarm(context.Background(), "F", "M", 1, true, nil, ""))
	require.NoError(t, f.CreateAndSendAlarmNoProperties(context.Background(), "F", "M", 1, false, ""))

	pushed := b.created()[0].received()
	require.Len(t, pushed, 2)
	require.Equal(t, alarm.DescriptorActive, pushed[0].Descriptor)
	require.Equal(t, alarm.DescriptorTerminate, pushed[1].Descriptor)
	require.Empty(t, pushed[1].UserProperties)
}

func TestCreateAndSendAlarm_PropertiesAreCopied(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{initOK: true}
	f, _ := newExternal(t, b)

	_, err := f.Init(context.Background(), cernHandle())
	require.NoError(t, err)

	props := alarm.Properties{"unit": "kW"}
	require.NoError(t, f.CreateAndSendAlarm(context.Background(), "F", "M", 1, true, props, ""))

	props["unit"] = "MW"
	props["extra"] = "x"
	delete(props, "unit")

	pushed := b.created()[0].received()
	require.Equal(t, alarm.Properties{"unit": "kW"}, pushed[0].UserProperties)
}

func TestCreateAndSendAlarm_PushErrorUnchanged(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	b := &fakeBackend{initOK: true, pushErr: errTransport}
	f, _ := newExternal(t, b, WithMetrics(m))

	_, err := f.Init(context.Background(), cernHandle())
	require.NoError(t, err)

	err = f.CreateAndSendAlarm(context.Background(), "F", "M", 1, true, nil, "")
	require.Equal(t, errTransport, err)

	failed := m.AlarmsSent.WithLabelValues(metrics.BackendExternal, string(alarm.DescriptorActive), metrics.ResultError)
	require.InDelta(t, 1, testutil.ToFloat64(failed), 0)
}

func TestCreateAndSendAlarm_SharedSourceSingleton(t *testing.T) {
	t.Parallel()

	const pushers = 32

	m := metrics.New()
	b := &fakeBackend{initOK: true}
	f, _ := newExternal(t, b, WithMetrics(m))

	_, err := f.Init(context.Background(), cernHandle())
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, pushers)
	)

	for i := range pushers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			<-start

			errs <- f.CreateAndSendAlarm(context.Background(), "F", "M", i, i%2 == 0, nil, "")
		}()
	}

	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	sources := b.created()
	require.Len(t, sources, 1)
	require.Len(t, sources[0].received(), pushers)
	require.InDelta(t, 1, testutil.ToFloat64(m.SharedSourceCreations), 0)
}

func TestCreateAndSendAlarm_NativeLogs(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	f := New(WithNativeBackend(native.New(native.WithLogger(zap.New(core).Sugar()))))

	_, err := f.Init(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, f.CreateAndSendAlarm(context.Background(), "PowerSystem", "Breaker7", 42, true, alarm.Properties{"unit": "kW"}, ""))
	require.NoError(t, f.CreateAndSendAlarm(context.Background(), "PowerSystem", "Breaker7", 42, false, nil, ""))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, backend.AlarmSourceName, entries[0].ContextMap()["source"])
	require.Equal(t, "kW", entries[0].ContextMap()["property.unit"])
	require.Equal(t, zapcore.InfoLevel, entries[1].Level)
}

func TestDone_OrderAndIdempotence(t *testing.T) {
	t.Parallel()

	ev := new(events)
	b := &fakeBackend{initOK: true, events: ev}
	f, _ := newExternal(t, b)

	handle := &closingHandle{StaticHandle: configservice.NewStaticHandle(map[string]string{"Implementation": "CERN"}), events: ev}

	_, err := f.Init(context.Background(), handle)
	require.NoError(t, err)
	require.NoError(t, f.CreateAndSendAlarm(context.Background(), "F", "M", 1, true, nil, ""))

	f.Done(context.Background())
	require.False(t, f.Initialized())
	require.Nil(t, f.ConfigHandle())
	require.Equal(t, []string{"backend.Shutdown", "source.Close", "library.Close", "handle.Close"}, ev.all())

	f.Done(context.Background())
	require.False(t, f.Initialized())
	require.Equal(t, int32(1), b.shutdownCalls.Load())
	require.Len(t, ev.all(), 4)

	_, err = f.UsingNativeBackend()
	require.ErrorIs(t, err, ErrUninitializedFactory)
}

func TestDone_AllowsNewLifecycle(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{initOK: true}
	f, loader := newExternal(t, b)

	_, err := f.Init(context.Background(), cernHandle())
	require.NoError(t, err)
	require.NoError(t, f.CreateAndSendAlarm(context.Background(), "F", "M", 1, true, nil, ""))

	f.Done(context.Background())

	ok, err := f.Init(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)

	isNative, err := f.UsingNativeBackend()
	require.NoError(t, err)
	require.True(t, isNative)
	require.Equal(t, int32(1), loader.opens.Load())

	// The shared source of the previous lifecycle is gone.
	src, _, err := f.sharedSource(context.Background())
	require.NoError(t, err)
	require.IsType(t, &native.Source{}, src)
}

func TestDefault(t *testing.T) {
	f := New()
	prev := SetDefault(f)

	t.Cleanup(func() { SetDefault(prev) })

	require.Same(t, f, Default())

	SetDefault(nil)

	d := Default()
	require.NotNil(t, d)
	require.Same(t, d, Default())
	require.NotSame(t, f, d)
}
