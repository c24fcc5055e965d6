// Package faultstate implements the gRPC transport of the fault collector.
//
// It decodes pushed fault states from the wire format and calls into a
// provided business-service interface.
package faultstate
