package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteClimateSample writes one air-conditioner telemetry sample.
//
// This is the primary method for recording reconciled device telemetry.
// The write is non-blocking; data is batched and sent asynchronously.
// Humidity below zero is treated as "not reported" and omitted.
//
// Example:
//
//	client.WriteClimateSample("dev-42", 22.5, 48.0, 21.0, true, "cool", "auto")
func (c *Client) WriteClimateSample(deviceID string, temperature, humidity, targetTemperature float64, powerState bool, mode, fanSpeed string) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"temperature": temperature,
		"power_state": powerState,
	}
	if humidity >= 0 {
		fields["humidity"] = humidity
	}
	if targetTemperature > 0 {
		fields["target_temperature"] = targetTemperature
	}

	tags := map[string]string{
		"device_id": deviceID,
	}
	if mode != "" {
		tags["mode"] = mode
	}
	if fanSpeed != "" {
		tags["fan_speed"] = fanSpeed
	}

	point := write.NewPoint("ac_telemetry", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteEnergyMetric writes an energy consumption measurement.
//
// Used for tracking power usage per unit. Consumption metering is not
// implemented by the reference adapter; callers pass zero when unknown.
func (c *Client) WriteEnergyMetric(deviceID string, powerWatts float64, energyKWh float64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"power_watts": powerWatts,
	}
	if energyKWh > 0 {
		fields["energy_kwh"] = energyKWh
	}

	point := write.NewPoint(
		"energy",
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
