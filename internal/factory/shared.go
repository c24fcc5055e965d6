package factory

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/LeoXDXp/ACS/internal/backend"
	"github.com/LeoXDXp/ACS/internal/domain/alarm"
	"github.com/LeoXDXp/ACS/internal/logger"
	"github.com/LeoXDXp/ACS/internal/metrics"
)

// sharedSource returns the shared source, creating it on first use.
func (f *Factory) sharedSource(ctx context.Context) (backend.Source, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := f.currentBackendLocked()
	if err != nil {
		return nil, "", err
	}

	label := backendLabel(*f.useNative)

	if f.shared != nil {
		return f.shared, label, nil
	}

	src, err := b.CreateNamedSource(backend.AlarmSourceName)
	if err != nil {
		return nil, label, err
	}

	f.shared = src

	if f.metrics != nil {
		f.metrics.SharedSourceCreations.Inc()
	}

	logger.DebugKV(ctx, "Shared alarm source created", "source", backend.AlarmSourceName, "backend", label)

	return src, label, nil
}

// CreateAndSendAlarm builds a fault state for the triplet, marks it ACTIVE
// or TERMINATE, stamps it with the current time, attaches a copy of
// properties and pushes it through the shared source.
//
// sourceName is accepted for symmetry with CreateNamedSource but the push
// always goes through the source named backend.AlarmSourceName. Push errors
// are returned unchanged.
func (f *Factory) CreateAndSendAlarm(
	ctx context.Context,
	family, member string,
	code int,
	active bool,
	properties alarm.Properties,
	sourceName string,
) error {
	ctx = logger.WithName(ctx, "alarm-factory")

	ctx, span := f.tracer.Start(ctx, "factory.CreateAndSendAlarm")
	defer span.End()

	state, err := f.CreateFaultState(family, member, code)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	state.Descriptor = alarm.DescriptorFor(active)
	state.UserTimestamp = f.now()
	state.UserProperties = properties.Clone()

	span.SetAttributes(
		attribute.String("alarm.triplet", state.Triplet()),
		attribute.String("alarm.descriptor", string(state.Descriptor)),
	)

	if sourceName != "" && sourceName != backend.AlarmSourceName {
		logger.DebugKV(ctx, "Source name ignored, using shared source",
			"requested", sourceName,
			"source", backend.AlarmSourceName,
		)
	}

	src, label, err := f.sharedSource(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	err = src.Push(ctx, state)

	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError

		span.RecordError(err)
		span.SetStatus(codes.Error, "push failed")
	}

	if f.metrics != nil {
		f.metrics.AlarmsSent.WithLabelValues(label, string(state.Descriptor), result).Inc()
	}

	return err
}

// CreateAndSendAlarmNoProperties is CreateAndSendAlarm without user properties.
func (f *Factory) CreateAndSendAlarmNoProperties(
	ctx context.Context,
	family, member string,
	code int,
	active bool,
	sourceName string,
) error {
	return f.CreateAndSendAlarm(ctx, family, member, code, active, alarm.Properties{}, sourceName)
}
