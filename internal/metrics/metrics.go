// Package metrics holds the Prometheus instruments of the alarm binaries.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/LeoXDXp/ACS/internal/logger"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Backend label values.
const (
	BackendNative   = "native"
	BackendExternal = "external"
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics groups the counters of one process on a private registry.
type Metrics struct {
	r *prometheus.Registry

	// BackendSelections counts factory initializations by chosen backend.
	BackendSelections *prometheus.CounterVec
	// ConfigLookupFailures counts failed "Implementation" lookups.
	ConfigLookupFailures prometheus.Counter
	// PluginLoadFailures counts failed attempts to load the external library.
	PluginLoadFailures prometheus.Counter
	// SharedSourceCreations counts creations of the shared alarm source.
	SharedSourceCreations prometheus.Counter
	// AlarmsSent counts convenience pushes by backend, descriptor and result.
	AlarmsSent *prometheus.CounterVec
	// FaultStatesReceived counts fault states accepted by the collector.
	FaultStatesReceived *prometheus.CounterVec
	// ActiveFaults is the number of triplets the collector holds as active.
	ActiveFaults prometheus.Gauge
}

// New builds the instruments and registers them on a fresh registry.
func New() *Metrics {
	r := prometheus.NewRegistry()

	m := &Metrics{
		r: r,
		BackendSelections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acsalarm_backend_selections_total",
				Help: "Factory initializations by selected backend",
			},
			[]string{"backend"},
		),
		ConfigLookupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "acsalarm_config_lookup_failures_total",
			Help: "Failed lookups of the Implementation property",
		}),
		PluginLoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "acsalarm_plugin_load_failures_total",
			Help: "Failed loads of the external backend library",
		}),
		SharedSourceCreations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "acsalarm_shared_source_creations_total",
			Help: "Creations of the shared alarm source",
		}),
		AlarmsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acsalarm_alarms_sent_total",
				Help: "Alarms pushed through the shared source",
			},
			[]string{"backend", "descriptor", "result"},
		),
		FaultStatesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acsalarm_collector_fault_states_received_total",
				Help: "Fault states accepted by the collector",
			},
			[]string{"descriptor"},
		),
		ActiveFaults: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "acsalarm_collector_active_faults",
			Help: "Triplets currently active in the collector",
		}),
	}

	r.MustRegister(
		m.BackendSelections,
		m.ConfigLookupFailures,
		m.PluginLoadFailures,
		m.SharedSourceCreations,
		m.AlarmsSent,
		m.FaultStatesReceived,
		m.ActiveFaults,
	)

	return m
}

// Registry exposes the registerer so callers can add their own collectors.
func (m *Metrics) Registry() prometheus.Registerer {
	return m.r
}

// Gatherer exposes the registry for scraping in tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.r
}

// Handler serves the registry in the OpenMetrics format.
func (m *Metrics) Handler() http.Handler {
	errorLog, _ := zap.NewStdLogAt(logger.Logger().Desugar().Named("prom http"), zap.ErrorLevel)

	return promhttp.HandlerFor(m.r, promhttp.HandlerOpts{
		ErrorLog:          errorLog,
		Registry:          m.r,
		EnableOpenMetrics: true,
	})
}

// Serve exposes Handler on /metrics over lis until ctx is canceled, then
// shuts the server down. lis is closed on return.
func (m *Metrics) Serve(ctx context.Context, lis net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		//nolint:contextcheck // The parent context is already canceled.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WarnKV(ctx, "Metrics server shutdown failed", "error", err)
		}
	}()

	if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}

	<-stopped

	return nil
}
