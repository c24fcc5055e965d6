// Package backend defines the contract every alarm backend implements.
//
// A Backend builds Sources and FaultStates; a Source pushes fault states to
// wherever the backend delivers them. The factory picks one backend per
// process lifetime and talks to it only through these interfaces.
package backend

import (
	"context"

	"github.com/LeoXDXp/ACS/internal/domain/alarm"
)

const (
	// AlarmSourceName is the name of the shared source used by the
	// convenience push path. Consumers match sources against it.
	AlarmSourceName = "ALARM_SYSTEM_SOURCES"

	// UndefinedSourceName names sources created without an explicit name
	// on the native backend.
	UndefinedSourceName = "UNDEFINED"

	// ImplementationProperty is the configuration property that selects the backend.
	ImplementationProperty = "Implementation"

	// ExternalImplementation is the only property value that selects the external backend.
	ExternalImplementation = "CERN"

	// ExternalLibraryPath is the default location of the external backend plugin.
	ExternalLibraryPath = "libacsalarm-cern.so"

	// EntrySymbol is the symbol the plugin loader resolves in the external library.
	EntrySymbol = "NewAlarmSystemBackend"
)

// Source transmits fault states.
type Source interface {
	// Name returns the name the source was created with.
	Name() string

	// Push transmits one fault state. Errors come from the backend transport
	// and are returned unchanged by the factory.
	Push(ctx context.Context, state *alarm.FaultState) error

	// Close releases transport resources held by the source. It is idempotent.
	Close() error
}

// Backend is the capability interface of an alarm implementation.
type Backend interface {
	// CreateSource returns a source bound to the backend's default name.
	CreateSource() (Source, error)

	// CreateNamedSource returns a source bound to name.
	CreateNamedSource(name string) (Source, error)

	// CreateFaultState returns a fault state for the given triplet.
	CreateFaultState(family, member string, code int) *alarm.FaultState

	// NewFaultState returns an empty fault state.
	NewFaultState() *alarm.FaultState

	// Initialize performs backend startup and reports success.
	Initialize(ctx context.Context) bool

	// Shutdown releases backend resources. It must tolerate a failed or
	// partial Initialize.
	Shutdown(ctx context.Context)
}

// EntryPoint is the signature of the symbol exported by a backend plugin.
type EntryPoint func() Backend
