// Package control is the heart of ClimaLink Core: it runs commands
// through their lifecycle and keeps stored device status reconciled
// with reality.
//
// # Command lifecycle
//
// SendCommand validates against the device's model, records a pending
// command, marks it executing, then either dispatches it through the
// protocol adapter or, for simulated devices, applies the requested
// state optimistically after a fixed delay. Failures are reported
// twice on purpose: recorded on the command row for history, and
// returned to the caller for immediate handling.
//
// # Reconciliation
//
// Run ticks at the configured refresh interval and pulls each online
// device's latest adapter snapshot into storage. Every device gets its
// own timeout and error boundary; a hung or broken unit is reported in
// the pass's RefreshReport and the rest of the fleet refreshes anyway.
// Samples that carry a temperature reading are forwarded to the
// telemetry sink.
//
// All collaborators (device registry, command store, adapter provider,
// notifier, telemetry, logger) are injected interfaces.
package control
