// Package faults persists the fault states held by the collector.
//
// FileRepository stores the latest record per fault triplet as JSON on disk
// and exposes a Repository interface that the collector service depends on.
package faults
