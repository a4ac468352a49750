package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/climalink/climalink-core/internal/adapter"
	"github.com/climalink/climalink-core/internal/device"
)

func TestRefreshAllMergesAdapterStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())
	h.devices.add(realDevice("dev-1"), mqttModel())

	temp := 21.5
	online := true
	h.adapters.adapters["dev-1"] = &scriptedAdapter{
		deviceID: "dev-1",
		patch:    device.StatusPatch{Temperature: &temp, IsOnline: &online},
	}

	report, err := h.manager.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if report.Total != 1 || report.Refreshed != 1 || report.Failed() != 0 {
		t.Errorf("report = %+v", report)
	}

	status := h.devices.statuses["dev-1"]
	if status.Temperature == nil || *status.Temperature != 21.5 {
		t.Errorf("snapshot temperature = %v", status.Temperature)
	}
	if len(h.notifier.statuses) != 1 || h.notifier.statuses[0] != "dev-1" {
		t.Errorf("status notifications = %v", h.notifier.statuses)
	}
}

func TestRefreshAllIsolatesPerDeviceFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())

	model := mqttModel()
	for _, id := range []string{"dev-ok", "dev-bad", "dev-ok2"} {
		h.devices.add(realDevice(id), model)
	}

	temp := 20.0
	h.adapters.adapters["dev-ok"] = &scriptedAdapter{
		deviceID: "dev-ok", patch: device.StatusPatch{Temperature: &temp},
	}
	h.adapters.adapters["dev-ok2"] = &scriptedAdapter{
		deviceID: "dev-ok2", patch: device.StatusPatch{Temperature: &temp},
	}
	h.adapters.errs["dev-bad"] = adapter.ErrConnectionFailed

	report, err := h.manager.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if report.Refreshed != 2 {
		t.Errorf("refreshed = %d, want 2", report.Refreshed)
	}
	if report.Failed() != 1 {
		t.Fatalf("failed = %d, want 1", report.Failed())
	}
	if !errors.Is(report.Errors["dev-bad"], adapter.ErrConnectionFailed) {
		t.Errorf("dev-bad error = %v", report.Errors["dev-bad"])
	}
	if len(h.notifier.unreachable) != 1 || h.notifier.unreachable[0] != "dev-bad" {
		t.Errorf("unreachable notifications = %v", h.notifier.unreachable)
	}
}

func TestRefreshAllSkipsSimulatedAndSilentDevices(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())

	sim := realDevice("dev-sim")
	sim.Simulated = true
	h.devices.add(sim, mqttModel())

	quiet := realDevice("dev-quiet")
	h.devices.add(quiet, mqttModel())
	h.adapters.adapters["dev-quiet"] = &scriptedAdapter{
		deviceID: "dev-quiet", statusErr: adapter.ErrNoStatus,
	}

	report, err := h.manager.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if report.Refreshed != 0 {
		t.Errorf("refreshed = %d, want 0", report.Refreshed)
	}
	if report.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", report.Skipped)
	}
	if report.Failed() != 0 {
		t.Errorf("failed = %d, want 0: %v", report.Failed(), report.Errors)
	}
}

func TestRefreshAllSkipsUnconfiguredProtocol(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())

	model := mqttModel()
	model.ConnectionConfig = nil
	h.devices.add(realDevice("dev-1"), model)

	// An unconfigured model is a provisioning gap, not an outage. It
	// must not be reported unreachable on every pass.
	report, err := h.manager.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if report.Failed() != 0 {
		t.Errorf("failed = %d, want 0: %v", report.Failed(), report.Errors)
	}
	if report.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", report.Skipped)
	}
	if len(h.notifier.unreachable) != 0 {
		t.Errorf("unreachable notifications = %v", h.notifier.unreachable)
	}
}

func TestRefreshAllFansOutConcurrently(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())

	const perDevice = 100 * time.Millisecond
	temp := 22.0
	for _, id := range []string{"dev-1", "dev-2", "dev-3", "dev-4"} {
		h.devices.add(realDevice(id), mqttModel())
		h.adapters.adapters[id] = &scriptedAdapter{
			deviceID:    id,
			statusDelay: perDevice,
			patch:       device.StatusPatch{Temperature: &temp},
		}
	}

	start := time.Now()
	report, err := h.manager.RefreshAll(ctx)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if report.Refreshed != 4 {
		t.Fatalf("refreshed = %d, want 4", report.Refreshed)
	}
	// Four devices polled one after another would take at least 400ms.
	if elapsed >= 3*perDevice {
		t.Errorf("pass took %v, slow devices must refresh in parallel", elapsed)
	}
}

func TestRefreshAllOnlyTouchesOnlineDevices(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())

	offline := realDevice("dev-off")
	offline.Status = device.StatusOffline
	h.devices.add(offline, mqttModel())

	report, err := h.manager.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if report.Total != 0 {
		t.Errorf("total = %d, want 0", report.Total)
	}
}

func TestRefreshDeviceStatusTelemetry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testControlConfig())
	h.devices.add(realDevice("dev-1"), mqttModel())

	var recorded []string
	h.manager.telemetry = telemetryFunc(func(deviceID string, _ *device.Status) {
		recorded = append(recorded, deviceID)
	})

	// A status without a temperature reading records nothing.
	on := true
	h.adapters.adapters["dev-1"] = &scriptedAdapter{
		deviceID: "dev-1", patch: device.StatusPatch{PowerState: &on},
	}
	if err := h.manager.RefreshDeviceStatus(ctx, "dev-1"); err != nil {
		t.Fatalf("RefreshDeviceStatus: %v", err)
	}
	if len(recorded) != 0 {
		t.Errorf("telemetry recorded without temperature: %v", recorded)
	}

	// With a temperature it does.
	temp := 19.0
	h.adapters.adapters["dev-1"] = &scriptedAdapter{
		deviceID: "dev-1", patch: device.StatusPatch{Temperature: &temp},
	}
	if err := h.manager.RefreshDeviceStatus(ctx, "dev-1"); err != nil {
		t.Fatalf("RefreshDeviceStatus: %v", err)
	}
	if len(recorded) != 1 || recorded[0] != "dev-1" {
		t.Errorf("telemetry = %v", recorded)
	}
}

// telemetryFunc adapts a function to the Telemetry interface.
type telemetryFunc func(deviceID string, status *device.Status)

func (f telemetryFunc) RecordClimate(deviceID string, status *device.Status) {
	f(deviceID, status)
}
