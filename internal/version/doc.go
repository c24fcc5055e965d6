// Package version exposes build metadata of the alarm binaries.
//
// Version, Commit and BuildTime are injected with -ldflags -X at build time.
// The gRPC user agent of the external backend is derived from them so the
// collector logs which build pushed a fault state.
package version
