package adapter

import (
	"context"
	"fmt"

	"github.com/climalink/climalink-core/internal/command"
	"github.com/climalink/climalink-core/internal/device"
)

// stubAdapter stands in for protocols that are declared in the taxonomy
// but not implemented. Every operation fails with ErrNotImplemented so
// misconfigured fleets surface loudly instead of silently dropping
// commands. Disconnect stays idempotent like any other adapter.
type stubAdapter struct {
	deviceID string
	protocol device.ProtocolType
}

func newStubAdapter(deviceID string, protocol device.ProtocolType) *stubAdapter {
	return &stubAdapter{deviceID: deviceID, protocol: protocol}
}

func (s *stubAdapter) Connect(ctx context.Context) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, s.protocol)
}

func (s *stubAdapter) Disconnect() error {
	return nil
}

func (s *stubAdapter) ExecuteCommand(ctx context.Context, cmd *command.Command) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, s.protocol)
}

func (s *stubAdapter) Status(ctx context.Context) (device.StatusPatch, error) {
	return device.StatusPatch{}, fmt.Errorf("%w: %s", ErrNotImplemented, s.protocol)
}

func (s *stubAdapter) Connected() bool {
	return false
}

func (s *stubAdapter) DeviceID() string {
	return s.deviceID
}
