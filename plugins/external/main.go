// Command external is the shared-object build of the external alarm backend.
//
// Build it with
//
//	go build -buildmode=plugin -o libacsalarm-cern.so ./plugins/external
//
// and point the factory at it with the shared-object loader. The host and the
// plugin must be built from the same module version.
package main

import (
	"github.com/LeoXDXp/ACS/internal/backend"
	"github.com/LeoXDXp/ACS/internal/backend/external"
)

// NewAlarmSystemBackend is the entry symbol resolved by the plugin loader.
//
//nolint:gochecknoglobals // Exported plugin symbol.
var NewAlarmSystemBackend backend.EntryPoint = external.NewBackend

func main() {}
