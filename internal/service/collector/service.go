package collector

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/LeoXDXp/ACS/internal/domain/alarm"
	"github.com/LeoXDXp/ACS/internal/logger"
	"github.com/LeoXDXp/ACS/internal/metrics"
	repo "github.com/LeoXDXp/ACS/internal/repository/faults"
)

// service holds the latest record per fault.
// It is unexported to keep the transport decoupled from the implementation.
type service struct {
	// repo persists the records after every change.
	repo repo.Repository
	// metrics is optional.
	metrics *metrics.Metrics
	// now stamps received records.
	now func() time.Time
	// tracer spans every Record.
	tracer trace.Tracer

	// mu protects records.
	mu sync.RWMutex
	// records maps a fault to its latest record.
	records map[alarm.Key]*alarm.Record
}

// newService creates a service backed by the provided repository and
// restores previously persisted records.
func newService(ctx context.Context, repository repo.Repository, m *metrics.Metrics) (*service, error) {
	s := &service{
		repo:    repository,
		metrics: m,
		now:     time.Now,
		tracer:  otel.Tracer("github.com/LeoXDXp/ACS/internal/service/collector"),
		records: make(map[alarm.Key]*alarm.Record),
	}

	if repository == nil {
		return s, nil
	}

	records, err := repository.Load(ctx)
	switch {
	case err == nil:
		for _, r := range records {
			if r == nil || r.State == nil {
				continue
			}

			s.records[r.State.Key()] = r
		}
	case errors.Is(err, repo.ErrNotFound):
		// Start empty.
	default:
		return nil, fmt.Errorf("load fault states: %w", err)
	}

	s.updateGaugeLocked()

	return s, nil
}

// Record stores state as the latest record of its fault and persists the
// whole set. A failed save leaves the previous record in place.
func (s *service) Record(ctx context.Context, source string, state *alarm.FaultState) (*alarm.Record, error) {
	ctx, span := s.tracer.Start(ctx, "collector.Record", trace.WithAttributes(
		attribute.String("alarm.source", source),
		attribute.String("alarm.triplet", state.Triplet()),
		attribute.String("alarm.descriptor", string(state.Descriptor)),
	))
	defer span.End()

	record := &alarm.Record{
		Source:     source,
		State:      state.Clone(),
		ReceivedAt: s.now(),
	}

	key := state.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.records[key]
	s.records[key] = record

	if s.repo != nil {
		if err := s.repo.Save(ctx, s.sortedLocked()); err != nil {
			if existed {
				s.records[key] = prev
			} else {
				delete(s.records, key)
			}

			span.RecordError(err)
			span.SetStatus(codes.Error, "persist failed")

			return nil, fmt.Errorf("persist fault states: %w", err)
		}
	}

	if s.metrics != nil {
		s.metrics.FaultStatesReceived.WithLabelValues(string(state.Descriptor)).Inc()
	}

	s.updateGaugeLocked()

	logger.InfoKV(ctx, "Fault state received",
		"source", source,
		"triplet", state.Triplet(),
		"descriptor", string(state.Descriptor),
	)

	return record.Clone(), nil
}

// Snapshot returns copies of all records ordered by fault key.
func (s *service) Snapshot(context.Context) []*alarm.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked()

	result := make([]*alarm.Record, 0, len(sorted))
	for _, r := range sorted {
		result = append(result, r.Clone())
	}

	return result
}

// sortedLocked lists records ordered by fault key. The caller must hold s.mu.
func (s *service) sortedLocked() []*alarm.Record {
	records := make([]*alarm.Record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}

	slices.SortFunc(records, func(a, b *alarm.Record) int {
		return a.State.Key().Compare(b.State.Key())
	})

	return records
}

// updateGaugeLocked refreshes the active-fault gauge. The caller must hold s.mu
// or own s exclusively.
func (s *service) updateGaugeLocked() {
	if s.metrics == nil {
		return
	}

	active := 0

	for _, r := range s.records {
		if r.State.IsActive() {
			active++
		}
	}

	s.metrics.ActiveFaults.Set(float64(active))
}
