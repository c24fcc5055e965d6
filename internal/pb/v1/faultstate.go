// Package v1 is the wire format of the fault collector.
//
// Messages are protobuf well-known types: a fault state travels as a
// google.protobuf.Struct, a list of received records as a
// google.protobuf.ListValue. This file converts between them and the
// domain types; service.go holds the gRPC service description.
package v1

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LeoXDXp/ACS/internal/domain/alarm"
)

// Struct field names of an encoded fault state.
const (
	FieldSource             = "source"
	FieldFamily             = "family"
	FieldMember             = "member"
	FieldCode               = "code"
	FieldDescriptor         = "descriptor"
	FieldUserTimestamp      = "user_timestamp"
	FieldUserProperties     = "user_properties"
	FieldActivatedByBackup  = "activated_by_backup"
	FieldTerminatedByBackup = "terminated_by_backup"
	FieldReceivedAt         = "received_at"
)

var (
	// ErrMissingField is returned when a required field is absent or empty.
	ErrMissingField = errors.New("missing field")
	// ErrInvalidField is returned when a field has the wrong type or value.
	ErrInvalidField = errors.New("invalid field")
	// ErrCodeOutOfRange is returned when a fault code does not fit in an int32.
	ErrCodeOutOfRange = errors.New("fault code out of int32 range")
	// errNilState is returned when encoding a nil fault state.
	errNilState = errors.New("fault state is nil")
)

// EncodeFaultState converts a fault state pushed by source into a Struct.
func EncodeFaultState(source string, state *alarm.FaultState) (*structpb.Struct, error) {
	if state == nil {
		return nil, errNilState
	}

	if state.Code > math.MaxInt32 || state.Code < math.MinInt32 {
		return nil, fmt.Errorf("%w: %d", ErrCodeOutOfRange, state.Code)
	}

	props := make(map[string]any, len(state.UserProperties))
	for k, v := range state.UserProperties {
		props[k] = v
	}

	fields := map[string]any{
		FieldSource:             source,
		FieldFamily:             state.Family,
		FieldMember:             state.Member,
		FieldCode:               state.Code,
		FieldDescriptor:         string(state.Descriptor),
		FieldUserProperties:     props,
		FieldActivatedByBackup:  state.ActivatedByBackup,
		FieldTerminatedByBackup: state.TerminatedByBackup,
	}

	if !state.UserTimestamp.IsZero() {
		fields[FieldUserTimestamp] = state.UserTimestamp.UTC().Format(time.RFC3339Nano)
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fault state: %w", err)
	}

	return s, nil
}

// DecodeFaultState converts a Struct back into the source name and fault state.
// Family, member and descriptor are required.
//
//nolint:cyclop // One branch per field keeps the mapping readable.
func DecodeFaultState(s *structpb.Struct) (string, *alarm.FaultState, error) {
	if s == nil {
		return "", nil, fmt.Errorf("%w: struct", ErrMissingField)
	}

	fields := s.GetFields()

	family := fields[FieldFamily].GetStringValue()
	if family == "" {
		return "", nil, fmt.Errorf("%w: %s", ErrMissingField, FieldFamily)
	}

	member := fields[FieldMember].GetStringValue()
	if member == "" {
		return "", nil, fmt.Errorf("%w: %s", ErrMissingField, FieldMember)
	}

	code, err := decodeCode(fields[FieldCode])
	if err != nil {
		return "", nil, err
	}

	descriptor := alarm.Descriptor(fields[FieldDescriptor].GetStringValue())
	switch descriptor {
	case alarm.DescriptorActive, alarm.DescriptorTerminate, alarm.DescriptorChange, alarm.DescriptorInstant:
	case "":
		return "", nil, fmt.Errorf("%w: %s", ErrMissingField, FieldDescriptor)
	default:
		return "", nil, fmt.Errorf("%w: %s %q", ErrInvalidField, FieldDescriptor, descriptor)
	}

	state := &alarm.FaultState{
		Family:             family,
		Member:             member,
		Code:               code,
		Descriptor:         descriptor,
		ActivatedByBackup:  fields[FieldActivatedByBackup].GetBoolValue(),
		TerminatedByBackup: fields[FieldTerminatedByBackup].GetBoolValue(),
	}

	if raw := fields[FieldUserTimestamp].GetStringValue(); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %s: %w", ErrInvalidField, FieldUserTimestamp, err)
		}

		state.UserTimestamp = ts
	}

	if props := fields[FieldUserProperties].GetStructValue(); props != nil && len(props.GetFields()) > 0 {
		state.UserProperties = make(alarm.Properties, len(props.GetFields()))
		for k, v := range props.GetFields() {
			state.UserProperties[k] = v.GetStringValue()
		}
	}

	return fields[FieldSource].GetStringValue(), state, nil
}

// EncodeRecords converts received records into a ListValue.
func EncodeRecords(records []*alarm.Record) (*structpb.ListValue, error) {
	list := &structpb.ListValue{
		Values: make([]*structpb.Value, 0, len(records)),
	}

	for _, r := range records {
		s, err := EncodeFaultState(r.Source, r.State)
		if err != nil {
			return nil, err
		}

		if !r.ReceivedAt.IsZero() {
			s.Fields[FieldReceivedAt] = structpb.NewStringValue(r.ReceivedAt.UTC().Format(time.RFC3339Nano))
		}

		list.Values = append(list.Values, structpb.NewStructValue(s))
	}

	return list, nil
}

// DecodeRecords converts a ListValue back into records.
func DecodeRecords(list *structpb.ListValue) ([]*alarm.Record, error) {
	records := make([]*alarm.Record, 0, len(list.GetValues()))

	for i, v := range list.GetValues() {
		s := v.GetStructValue()

		source, state, err := DecodeFaultState(s)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		record := &alarm.Record{
			Source: source,
			State:  state,
		}

		if raw := s.GetFields()[FieldReceivedAt].GetStringValue(); raw != "" {
			ts, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w: %s: %w", i, ErrInvalidField, FieldReceivedAt, err)
			}

			record.ReceivedAt = ts
		}

		records = append(records, record)
	}

	return records, nil
}

// decodeCode reads the integral fault code from a number value.
func decodeCode(v *structpb.Value) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, FieldCode)
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a number", ErrInvalidField, FieldCode)
	}

	if n.NumberValue != math.Trunc(n.NumberValue) ||
		n.NumberValue > math.MaxInt32 || n.NumberValue < math.MinInt32 {
		return 0, fmt.Errorf("%w: %s %v", ErrInvalidField, FieldCode, n.NumberValue)
	}

	return int(n.NumberValue), nil
}
