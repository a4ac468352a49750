package control

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/climalink/climalink-core/internal/adapter"
	"github.com/climalink/climalink-core/internal/device"
)

// RefreshReport summarizes one bulk reconciliation pass. Failures are
// kept per device so one broken unit never hides the rest of the fleet.
type RefreshReport struct {
	Total     int
	Refreshed int
	Skipped   int
	Errors    map[string]error
}

// Failed reports how many devices errored during the pass.
func (r *RefreshReport) Failed() int {
	return len(r.Errors)
}

// RefreshAll reconciles the stored status of every online device against
// what its adapter reports. Refreshes fan out concurrently, one
// goroutine per device, each with its own timeout; the pass waits for
// all of them, so one slow adapter delays only its own device. Errors
// are recorded per device in the report. A device whose model has no
// protocol configured is skipped with a warning rather than reported
// unreachable every pass.
func (m *Manager) RefreshAll(ctx context.Context) (*RefreshReport, error) {
	devices, err := m.devices.ListOnlineDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing online devices: %w", err)
	}

	report := &RefreshReport{
		Total:  len(devices),
		Errors: make(map[string]error),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := range devices {
		dev := &devices[i]
		wg.Add(1)
		go func() {
			defer wg.Done()

			devCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout())
			defer cancel()
			refreshed, err := m.refreshOne(devCtx, dev.ID)

			if errors.Is(err, device.ErrProtocolNotConfigured) {
				m.logger.Warn("skipping refresh, no protocol configured", "device_id", dev.ID)
				refreshed, err = false, nil
			}
			if err != nil {
				m.notifier.DeviceUnreachable(dev.ID, err)
				m.logger.Warn("device refresh failed", "device_id", dev.ID, "error", err)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Errors[dev.ID] = err
			case refreshed:
				report.Refreshed++
			default:
				report.Skipped++
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	m.logger.Debug("refresh pass finished",
		"total", report.Total, "refreshed", report.Refreshed,
		"skipped", report.Skipped, "failed", report.Failed())
	return report, nil
}

// RefreshDeviceStatus reconciles a single device on demand.
func (m *Manager) RefreshDeviceStatus(ctx context.Context, deviceID string) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout())
	defer cancel()
	_, err := m.refreshOne(ctx, deviceID)
	return err
}

// refreshOne pulls the adapter's latest snapshot into storage. Returns
// false with a nil error when there was legitimately nothing to do:
// simulated devices hold authoritative optimistic state, and a healthy
// adapter may simply not have heard from the device yet.
func (m *Manager) refreshOne(ctx context.Context, deviceID string) (bool, error) {
	dev, model, err := m.devices.GetDeviceModel(ctx, deviceID)
	if err != nil {
		return false, err
	}

	if m.isSimulated(dev) {
		return false, nil
	}
	if !model.HasProtocol() {
		return false, fmt.Errorf("%w: device %s", device.ErrProtocolNotConfigured, dev.ID)
	}

	a, err := m.adapters.GetOrCreate(ctx, dev, model)
	if err != nil {
		return false, err
	}

	patch, err := a.Status(ctx)
	if err != nil {
		if errors.Is(err, adapter.ErrNoStatus) {
			return false, nil
		}
		return false, err
	}

	status, err := m.devices.MergeStatus(ctx, dev.ID, patch)
	if err != nil {
		return false, err
	}
	m.notifier.StatusUpdated(dev.ID, status)

	if status.Temperature != nil {
		m.telemetry.RecordClimate(dev.ID, status)
	}

	if err := m.devices.MarkConnectionStatus(ctx, dev.ID, device.StatusOnline, m.now()); err != nil {
		m.logger.Warn("marking device online failed", "device_id", dev.ID, "error", err)
	}

	return true, nil
}
