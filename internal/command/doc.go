// Package command defines the device command lifecycle for ClimaLink Core.
//
// A command moves strictly forward through its lifecycle:
//
//	pending ──▶ executing ──▶ completed
//	   │            │
//	   └────────────┴───────▶ failed
//
// Completed and failed are terminal. The Transition repository method
// enforces these rules atomically; callers never write a status column
// directly. Command rows are append-only history and survive the device
// they were issued to only until the device row is deleted.
//
// Parameters carry exactly one field, selected by the command type, so
// a stored command can be replayed or rendered without guessing which
// value was meant.
package command
