// Package native implements the in-process alarm backend.
//
// Native sources do not talk to any alarm service: every pushed fault state
// becomes a structured log line. The backend holds no state and needs no
// initialization, which is why it is the fallback whenever configuration is
// missing or unreachable.
package native

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/LeoXDXp/ACS/internal/backend"
	"github.com/LeoXDXp/ACS/internal/domain/alarm"
	"github.com/LeoXDXp/ACS/internal/logger"
)

// Backend is the stateless native implementation of backend.Backend.
type Backend struct {
	// log overrides the context logger when set.
	log *zap.SugaredLogger
}

// Option configures the native backend.
type Option func(*Backend)

// WithLogger routes alarm lines to l instead of the context logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(b *Backend) {
		b.log = l
	}
}

// New returns a native backend.
func New(opts ...Option) *Backend {
	b := new(Backend)
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// CreateSource returns a source named backend.UndefinedSourceName.
func (b *Backend) CreateSource() (backend.Source, error) {
	return b.CreateNamedSource(backend.UndefinedSourceName)
}

// CreateNamedSource returns a logging source bound to name.
func (b *Backend) CreateNamedSource(name string) (backend.Source, error) {
	return &Source{
		name: name,
		log:  b.log,
	}, nil
}

// CreateFaultState returns a plain fault state for the triplet.
func (b *Backend) CreateFaultState(family, member string, code int) *alarm.FaultState {
	return alarm.NewFaultState(family, member, code)
}

// NewFaultState returns an empty fault state.
func (b *Backend) NewFaultState() *alarm.FaultState {
	return new(alarm.FaultState)
}

// Initialize always succeeds.
func (b *Backend) Initialize(context.Context) bool {
	return true
}

// Shutdown does nothing.
func (b *Backend) Shutdown(context.Context) {}

// Source writes fault states to the log. It is safe for concurrent use.
type Source struct {
	name string
	log  *zap.SugaredLogger
}

// Name returns the source name.
func (s *Source) Name() string {
	return s.name
}

// Push logs the fault state. Active faults are logged at warn level,
// everything else at info level.
func (s *Source) Push(ctx context.Context, state *alarm.FaultState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.log
	if l == nil {
		l = logger.FromContext(ctx)
	}

	kvs := []any{
		"source", s.name,
		"family", state.Family,
		"member", state.Member,
		"code", state.Code,
		"descriptor", string(state.Descriptor),
		"user_timestamp", state.UserTimestamp.Format(time.RFC3339Nano),
	}

	keys := make([]string, 0, len(state.UserProperties))
	for k := range state.UserProperties {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		kvs = append(kvs, "property."+k, state.UserProperties[k])
	}

	if state.IsActive() {
		l.Warnw("Alarm raised", kvs...)
	} else {
		l.Infow("Alarm cleared", kvs...)
	}

	return nil
}

// Close does nothing; native sources hold no resources.
func (s *Source) Close() error {
	return nil
}
