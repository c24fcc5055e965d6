// Package raiser implements alarm-raise, a host process for the alarm-source
// factory.
//
// It bootstraps the factory from the settings file, pushes one alarm (or a
// paced burst of them) through the shared source and tears the factory down.
package raiser
