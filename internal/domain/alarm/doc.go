// Package alarm contains the value objects that travel through an alarm
// source: FaultState (one occurrence or termination of a fault) and
// Properties (user key/value pairs attached to it).
//
// Both types have Clone helpers so that a pushed fault state never shares
// mutable data with its caller.
package alarm
