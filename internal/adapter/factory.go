package adapter

import (
	"fmt"

	"github.com/climalink/climalink-core/internal/device"
	"github.com/climalink/climalink-core/internal/infrastructure/config"
)

// FactoryFunc builds an adapter for a device from its model. The
// registry holds a FactoryFunc so tests can substitute fakes.
type FactoryFunc func(dev *device.Device, model *device.Model) (Adapter, error)

// Factory builds protocol adapters from model configuration. The base
// MQTT settings supply credentials and session tuning shared across all
// per-device broker connections.
type Factory struct {
	baseMQTT config.MQTTConfig
	logger   Logger
}

// NewFactory creates an adapter factory.
func NewFactory(baseMQTT config.MQTTConfig, logger Logger) *Factory {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Factory{baseMQTT: baseMQTT, logger: logger}
}

// New builds the adapter for one device. MQTT gets the reference
// implementation; http, modbus and bacnet are declared protocols served
// by stubs until their adapters land. Anything else is unsupported.
func (f *Factory) New(dev *device.Device, model *device.Model) (Adapter, error) {
	switch model.ProtocolType {
	case device.ProtocolMQTT:
		return NewMQTTAdapter(dev, model, f.baseMQTT, f.logger)
	case device.ProtocolHTTP, device.ProtocolModbus, device.ProtocolBACnet:
		return newStubAdapter(dev.ID, model.ProtocolType), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, model.ProtocolType)
	}
}
