package factory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/LeoXDXp/ACS/internal/backend"
	"github.com/LeoXDXp/ACS/internal/configservice"
	"github.com/LeoXDXp/ACS/internal/domain/alarm"
	"github.com/LeoXDXp/ACS/internal/pluginloader"
)

const testLibrary = "libtest-alarm.so"

var errTransport = errors.New("transport down")

// events records teardown calls in order across fakes.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(event string) {
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.log = append(e.log, event)
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.log...)
}

// fakeSource records pushed fault states.
type fakeSource struct {
	name    string
	pushErr error
	events  *events

	mu     sync.Mutex
	pushed []*alarm.FaultState
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Push(_ context.Context, state *alarm.FaultState) error {
	if s.pushErr != nil {
		return s.pushErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pushed = append(s.pushed, state)

	return nil
}

func (s *fakeSource) Close() error {
	s.events.add("source.Close")

	return nil
}

func (s *fakeSource) received() []*alarm.FaultState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*alarm.FaultState(nil), s.pushed...)
}

// fakeBackend counts calls and hands out fakeSources.
type fakeBackend struct {
	initOK  bool
	pushErr error
	events  *events

	initCalls     atomic.Int32
	shutdownCalls atomic.Int32

	mu      sync.Mutex
	sources []*fakeSource
}

func (b *fakeBackend) CreateSource() (backend.Source, error) {
	return b.CreateNamedSource("FAKE_DEFAULT")
}

func (b *fakeBackend) CreateNamedSource(name string) (backend.Source, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	src := &fakeSource{name: name, pushErr: b.pushErr, events: b.events}
	b.sources = append(b.sources, src)

	return src, nil
}

func (b *fakeBackend) CreateFaultState(family, member string, code int) *alarm.FaultState {
	return alarm.NewFaultState(family, member, code)
}

func (b *fakeBackend) NewFaultState() *alarm.FaultState {
	return new(alarm.FaultState)
}

func (b *fakeBackend) Initialize(context.Context) bool {
	b.initCalls.Add(1)

	return b.initOK
}

func (b *fakeBackend) Shutdown(context.Context) {
	b.shutdownCalls.Add(1)
	b.events.add("backend.Shutdown")
}

func (b *fakeBackend) created() []*fakeSource {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]*fakeSource(nil), b.sources...)
}

// countingLoader wraps a registry, counting opens and recording library closes.
type countingLoader struct {
	inner  *pluginloader.Registry
	events *events
	opens  atomic.Int32
}

func (l *countingLoader) Open(path string) (pluginloader.Library, error) {
	l.opens.Add(1)

	lib, err := l.inner.Open(path)
	if err != nil {
		return nil, err
	}

	return &recordingLibrary{Library: lib, events: l.events}, nil
}

type recordingLibrary struct {
	pluginloader.Library
	events *events
}

func (l *recordingLibrary) Close() error {
	l.events.add("library.Close")

	return l.Library.Close()
}

// newExternalLoader registers b as the entry point of testLibrary.
func newExternalLoader(b *fakeBackend) *countingLoader {
	r := pluginloader.NewRegistry()
	r.Register(testLibrary, backend.EntrySymbol, backend.EntryPoint(func() backend.Backend { return b }))

	return &countingLoader{inner: r, events: b.events}
}

// closingHandle is a configuration handle that records Close.
type closingHandle struct {
	*configservice.StaticHandle
	events *events
}

func (h *closingHandle) Close() error {
	h.events.add("handle.Close")

	return nil
}

func cernHandle() configservice.Handle {
	return configservice.NewStaticHandle(map[string]string{backend.ImplementationProperty: backend.ExternalImplementation})
}
