// Package external implements the alarm backend that forwards fault states
// to a remote collector over gRPC.
//
// The package registers NewBackend in pluginloader.DefaultRegistry under
// backend.ExternalLibraryPath, and plugins/external exports the same entry
// point from a shared object. Either way the factory sees only the
// backend.Backend contract.
package external

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeoXDXp/ACS/internal/backend"
	"github.com/LeoXDXp/ACS/internal/config"
	"github.com/LeoXDXp/ACS/internal/domain/alarm"
	"github.com/LeoXDXp/ACS/internal/logger"
	pb "github.com/LeoXDXp/ACS/internal/pb/v1"
	"github.com/LeoXDXp/ACS/internal/pluginloader"
	"github.com/LeoXDXp/ACS/internal/version"
)

//nolint:gochecknoinits // Compile-time plugin registration.
func init() {
	pluginloader.DefaultRegistry.Register(backend.ExternalLibraryPath, backend.EntrySymbol, backend.EntryPoint(NewBackend))
}

var (
	// ErrNotInitialized is returned when sources are requested before a
	// successful Initialize or after Shutdown.
	ErrNotInitialized = errors.New("external backend is not initialized")
	// ErrSourceClosed is returned by Push on a closed source.
	ErrSourceClosed = errors.New("source is closed")
	// errNotServing is returned by the health probe while the collector is not ready.
	errNotServing = errors.New("collector is not serving")
)

const defaultProbeTries = 5

// Backend is the gRPC implementation of backend.Backend. It is safe for
// concurrent use.
type Backend struct {
	settings    Settings
	settingsErr error
	dialOptions []grpc.DialOption
	probeTries  uint
	probeBase   time.Duration

	mu     sync.Mutex
	conn   *grpc.ClientConn
	client *pb.FaultStateServiceClient
}

// Option configures the backend.
type Option func(*Backend)

// WithSettings replaces the collector settings.
func WithSettings(s Settings) Option {
	return func(b *Backend) {
		b.settings = s
	}
}

// WithProbe sets how many health probes Initialize makes and the initial
// interval between them.
func WithProbe(tries uint, interval time.Duration) Option {
	return func(b *Backend) {
		if tries > 0 {
			b.probeTries = tries
		}

		if interval > 0 {
			b.probeBase = interval
		}
	}
}

// New returns an uninitialized backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		settings: DefaultSettings(),
		dialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithUserAgent(version.UserAgent()),
		},
		probeTries: defaultProbeTries,
		probeBase:  100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.settings.Timeout <= 0 {
		b.settings.Timeout = config.DefaultTimeout
	}

	return b
}

// NewBackend is the plugin entry point. It reads the collector settings from
// the environment; a malformed variable makes Initialize fail.
func NewBackend() backend.Backend {
	settings, err := SettingsFromEnv()

	b := New(WithSettings(settings))
	b.settingsErr = err

	return b
}

// Settings returns the collector settings in use.
func (b *Backend) Settings() Settings {
	return b.settings
}

// Initialize connects to the collector and waits until its health service
// reports the fault-state service as serving.
func (b *Backend) Initialize(ctx context.Context) bool {
	ctx = logger.WithName(ctx, "external-backend")

	if b.settingsErr != nil {
		logger.ErrorKV(ctx, "Invalid collector settings", "error", b.settingsErr)

		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return true
	}

	conn, err := grpc.NewClient(b.settings.Address, b.dialOptions...)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to create collector client", "address", b.settings.Address, "error", err)

		return false
	}

	if err := b.probe(ctx, conn); err != nil {
		logger.ErrorKV(ctx, "Collector is not reachable", "address", b.settings.Address, "error", err)

		//nolint:errcheck // Initialization already failed.
		_ = conn.Close()

		return false
	}

	b.conn = conn
	b.client = pb.NewFaultStateServiceClient(conn)

	logger.InfoKV(ctx, "Connected to fault collector", "address", b.settings.Address, "push_rate", b.settings.PushRate)

	return true
}

// probe retries the health check with exponential backoff. Each check waits
// for the connection to become ready, so a collector that starts late is
// reached once gRPC reconnects, within the per-call timeout.
func (b *Backend) probe(ctx context.Context, conn *grpc.ClientConn) error {
	health := healthpb.NewHealthClient(conn)

	expback := backoff.NewExponentialBackOff()
	expback.InitialInterval = b.probeBase
	expback.MaxInterval = b.settings.Timeout

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, b.settings.Timeout)
		defer cancel()

		resp, err := health.Check(
			callCtx,
			&healthpb.HealthCheckRequest{Service: pb.FaultStateServiceName},
			grpc.WaitForReady(true),
		)
		if err != nil {
			return struct{}{}, fmt.Errorf("health check: %w", err)
		}

		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return struct{}{}, fmt.Errorf("%w: %s", errNotServing, resp.GetStatus())
		}

		return struct{}{}, nil
	},
		backoff.WithBackOff(expback),
		backoff.WithMaxTries(b.probeTries),
	)

	return err
}

// Shutdown closes the collector connection. Sources created earlier fail
// their next Push.
func (b *Backend) Shutdown(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return
	}

	if err := b.conn.Close(); err != nil {
		logger.WarnKV(ctx, "Failed to close collector connection", "error", err)
	}

	b.conn = nil
	b.client = nil
}

// CreateSource returns a source named backend.AlarmSourceName.
func (b *Backend) CreateSource() (backend.Source, error) {
	return b.CreateNamedSource(backend.AlarmSourceName)
}

// CreateNamedSource returns a source that pushes to the collector under name.
func (b *Backend) CreateNamedSource(name string) (backend.Source, error) {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	if client == nil {
		return nil, ErrNotInitialized
	}

	return newSource(name, client, b.settings), nil
}

// CreateFaultState returns a fault state for the triplet.
func (b *Backend) CreateFaultState(family, member string, code int) *alarm.FaultState {
	return alarm.NewFaultState(family, member, code)
}

// NewFaultState returns an empty fault state.
func (b *Backend) NewFaultState() *alarm.FaultState {
	return new(alarm.FaultState)
}
