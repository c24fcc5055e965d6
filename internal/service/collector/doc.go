// Package collector runs the fault collector: the gRPC endpoint the external
// alarm backend pushes to.
//
// The collector keeps the latest fault state per family/member/code triplet,
// persists them to a JSON file, serves them back through List and reports
// its readiness on the standard gRPC health service.
package collector
