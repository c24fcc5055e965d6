package alarm

import (
	"cmp"
	"fmt"
	"maps"
	"time"
)

// Descriptor tells the alarm system what happened to a fault.
type Descriptor string

const (
	// DescriptorActive marks a fault that has just been raised.
	DescriptorActive Descriptor = "ACTIVE"
	// DescriptorTerminate marks a fault that is no longer present.
	DescriptorTerminate Descriptor = "TERMINATE"
	// DescriptorChange marks a change of properties on an active fault.
	DescriptorChange Descriptor = "CHANGE"
	// DescriptorInstant marks a fault that is raised and cleared at once.
	DescriptorInstant Descriptor = "INSTANT"
)

// DescriptorFor maps the active flag of the convenience API to a descriptor.
func DescriptorFor(active bool) Descriptor {
	if active {
		return DescriptorActive
	}

	return DescriptorTerminate
}

// Well-known user property keys understood by alarm consumers.
const (
	PropertyPrefix = "PREFIX"
	PropertySuffix = "SUFFIX"
	PropertyTest   = "TEST"
)

// Properties holds user-defined key/value pairs attached to a fault state.
type Properties map[string]string

// Clone returns an independent copy. A nil receiver yields nil.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}

	return maps.Clone(p)
}

// FaultState describes one alarm occurrence or its termination.
type FaultState struct {
	// Family groups faults of the same kind of device.
	Family string
	// Member identifies the device instance inside the family.
	Member string
	// Code identifies the fault on the member. The wire format carries it as
	// an int32.
	Code int
	// Descriptor is what happened to the fault.
	Descriptor Descriptor
	// UserTimestamp is when the source observed the fault.
	UserTimestamp time.Time
	// UserProperties carries extra information for consumers.
	UserProperties Properties
	// ActivatedByBackup is set when a backup source raised the fault.
	ActivatedByBackup bool
	// TerminatedByBackup is set when a backup source cleared the fault.
	TerminatedByBackup bool
}

// NewFaultState returns a fault state bound to the family/member/code triplet.
func NewFaultState(family, member string, code int) *FaultState {
	return &FaultState{
		Family: family,
		Member: member,
		Code:   code,
	}
}

// Key identifies a fault. Unlike Triplet it stays unique when family or
// member contain ':'.
type Key struct {
	Family string
	Member string
	Code   int
}

// Compare orders keys by family, member, then code.
func (k Key) Compare(other Key) int {
	return cmp.Or(
		cmp.Compare(k.Family, other.Family),
		cmp.Compare(k.Member, other.Member),
		cmp.Compare(k.Code, other.Code),
	)
}

// Key returns the identity of the fault.
func (f *FaultState) Key() Key {
	return Key{Family: f.Family, Member: f.Member, Code: f.Code}
}

// Triplet returns the "family:member:code" form of the fault identity, for
// display.
func (f *FaultState) Triplet() string {
	return fmt.Sprintf("%s:%s:%d", f.Family, f.Member, f.Code)
}

// IsActive reports whether the descriptor marks the fault as present.
func (f *FaultState) IsActive() bool {
	return f.Descriptor == DescriptorActive || f.Descriptor == DescriptorChange
}

// Clone returns a deep copy so callers cannot alter a pushed state.
func (f *FaultState) Clone() *FaultState {
	if f == nil {
		return nil
	}

	cloned := *f
	cloned.UserProperties = f.UserProperties.Clone()

	return &cloned
}

// Record is a fault state as received by a collector.
type Record struct {
	// Source is the name of the source that pushed the state.
	Source string
	// State is the pushed fault state.
	State *FaultState
	// ReceivedAt is when the collector accepted the push.
	ReceivedAt time.Time
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	return &Record{
		Source:     r.Source,
		State:      r.State.Clone(),
		ReceivedAt: r.ReceivedAt,
	}
}
