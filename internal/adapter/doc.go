// Package adapter bridges ClimaLink Core to device protocols.
//
// An Adapter is a per-device transport session translating between the
// domain model (commands, status patches) and a device's wire format.
// The Factory selects the implementation from the model's protocol
// type; the Registry guarantees at most one live adapter per device and
// handles concurrent creation and shutdown.
//
// The MQTT adapter is the reference implementation. It drives devices
// speaking the generic ClimaLink JSON-over-MQTT convention and is
// configurable per model: topic templates (with a {deviceId}
// placeholder), dot-path field mappings for status documents, and
// per-command payload templates (with a {value} placeholder).
//
// HTTP, Modbus and BACnet are declared protocols served by stub
// adapters that fail every operation with ErrNotImplemented.
package adapter
