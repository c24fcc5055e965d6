package collector

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/LeoXDXp/ACS/internal/api/grpc/faultstate"
	"github.com/LeoXDXp/ACS/internal/config"
	"github.com/LeoXDXp/ACS/internal/logger"
	"github.com/LeoXDXp/ACS/internal/metrics"
	pb "github.com/LeoXDXp/ACS/internal/pb/v1"
	repository "github.com/LeoXDXp/ACS/internal/repository/faults"
	"github.com/LeoXDXp/ACS/internal/tracing"
)

// Options controls the alarm-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress overrides the listen address derived from the collector address.
	ListenAddress string
	// StateFile overrides the file where fault states are persisted.
	StateFile string
	// MetricsAddress overrides the Prometheus listen address.
	MetricsAddress string
}

// ErrNoCollectorAddress indicates missing collector configuration.
var ErrNoCollectorAddress = errors.New("no collector address configured")

// Run starts the collector and blocks until ctx is canceled or a server fails.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "alarm-server")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if level, ok := logger.ParseLogLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	}

	shutdownTracing, err := tracing.Setup(ctx, "alarm-server")
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}

	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.WarnKV(ctx, "Failed to flush traces", "error", err)
		}
	}()

	stateFile := settings.Collector.StateFile
	if opts.StateFile != "" {
		stateFile = opts.StateFile
	}

	metricsAddress := settings.Metrics.ListenAddress
	if opts.MetricsAddress != "" {
		metricsAddress = opts.MetricsAddress
	}

	listenAddress, err := resolveListenAddress(settings.Collector.Address, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	m := metrics.New()

	svc, err := newService(ctx, repository.NewFileRepository(stateFile), m)
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	var metricsLis net.Listener
	if metricsAddress != "" {
		metricsLis, err = lc.Listen(ctx, "tcp", metricsAddress)
		if err != nil {
			_ = lis.Close()

			return fmt.Errorf("listen on %s: %w", metricsAddress, err)
		}
	}

	logger.InfoKV(ctx, "Fault collector listening",
		"listen_address", lis.Addr().String(),
		"metrics_address", metricsAddress,
		"state_file", stateFile,
	)

	return serve(ctx, svc, m, lis, metricsLis)
}

// serve runs the gRPC server, and the metrics server when metricsLis is not
// nil, until ctx is canceled. Both listeners are closed on return.
func serve(ctx context.Context, svc *service, m *metrics.Metrics, lis, metricsLis net.Listener) error {
	healthServer := health.NewServer()
	healthServer.SetServingStatus(pb.FaultStateServiceName, healthpb.HealthCheckResponse_SERVING)

	grpcServer := grpc.NewServer()
	pb.RegisterFaultStateServiceServer(grpcServer, api.NewServer(svc))
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	if metricsLis != nil {
		g.Go(func() error {
			return m.Serve(ctx, metricsLis)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down fault collector")

		healthServer.Shutdown()
		grpcServer.GracefulStop()

		return nil
	})

	err := g.Wait()

	logger.Info(ctx, "Fault collector stopped")

	return err
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoCollectorAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid collector address format %q: %w", configAddr, err)
	}

	return ":" + port, nil
}
