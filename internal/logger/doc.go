// Package logger wraps zap for the alarm-source binaries and libraries:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and adjustment,
//   - KV-style convenience functions (InfoKV, WarnKV, ...).
//
// Factories, backends and services take a context and log through the
// logger stored in it, so every line carries the component name.
package logger
