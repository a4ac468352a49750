// Package influxdb provides InfluxDB connectivity for ClimaLink Core.
//
// It wraps the official influxdb-client-go v2 library with ClimaLink-specific
// patterns for connection management, telemetry writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Air-conditioner telemetry (temperature, humidity, mode, power state)
//   - Energy consumption tracking
//
// Samples are appended by the status reconciliation loop whenever a refresh
// returns a temperature reading.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteClimateSample("dev-42", 22.5, 48.0, 21.0, true, "cool", "auto")
//
// Writes are batched and asynchronous; register SetOnError to observe
// delivery failures.
package influxdb
