package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/climalink/climalink-core/internal/command"
	"github.com/climalink/climalink-core/internal/device"
	"github.com/climalink/climalink-core/internal/infrastructure/config"
	"github.com/climalink/climalink-core/internal/infrastructure/mqtt"
)

const (
	defaultStatusTopic  = "ac/{deviceId}/status"
	defaultCommandTopic = "ac/{deviceId}/command"

	// Commands and status use QoS 1: a lost setTemperature is worse
	// than a duplicate one.
	commandQoS = 1
	statusQoS  = 1
)

// defaultMappings resolve status payload fields when the model declares
// no explicit mappings.
var defaultMappings = map[string]string{
	"temperature":        "temperature",
	"target_temperature": "targetTemperature",
	"humidity":           "humidity",
	"mode":               "mode",
	"fan_speed":          "fanSpeed",
	"power_state":        "power",
	"error_code":         "errorCode",
}

// mqttTransport is the subset of the infrastructure MQTT client the
// adapter needs. Tests substitute a fake.
type mqttTransport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
	Close() error
}

// dialFunc opens the per-device transport session.
type dialFunc func() (mqttTransport, error)

// MQTTAdapter speaks the generic ClimaLink MQTT convention: the device
// publishes JSON status documents on a status topic and accepts JSON
// command documents on a command topic. Topic templates, payload field
// mappings and per-command payload templates all come from the model's
// connection configuration, with workable defaults for devices flashed
// with the reference firmware.
type MQTTAdapter struct {
	deviceID string
	cfg      device.ConnectionConfig
	dial     dialFunc
	logger   Logger
	now      func() time.Time

	mu        sync.Mutex
	transport mqttTransport
	last      *device.StatusPatch
	lastAt    time.Time
}

// NewMQTTAdapter builds an adapter for one device from its model's
// connection configuration. The base MQTT settings supply auth, QoS and
// reconnect behaviour; the broker URL and client identity are per model
// and device.
func NewMQTTAdapter(dev *device.Device, model *device.Model, base config.MQTTConfig, logger Logger) (*MQTTAdapter, error) {
	cfg := model.ConnectionConfig
	if cfg == nil || cfg.Broker == "" {
		return nil, fmt.Errorf("%w: model %s has no mqtt broker", ErrConnectionFailed, model.ID)
	}

	clientID := "climalink-" + dev.ID
	brokerCfg, err := mqtt.ConfigForBroker(base, cfg.Broker, clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if cfg.Username != "" {
		brokerCfg.Auth.Username = cfg.Username
		brokerCfg.Auth.Password = cfg.Password
	}

	a := &MQTTAdapter{
		deviceID: dev.ID,
		cfg:      *cfg,
		logger:   logger,
		now:      time.Now,
	}
	if a.logger == nil {
		a.logger = noopLogger{}
	}
	a.dial = func() (mqttTransport, error) {
		return mqtt.Connect(brokerCfg)
	}
	return a, nil
}

// newMQTTAdapterForTest wires a fake transport in place of a broker.
func newMQTTAdapterForTest(deviceID string, cfg device.ConnectionConfig, dial dialFunc) *MQTTAdapter {
	return &MQTTAdapter{
		deviceID: deviceID,
		cfg:      cfg,
		dial:     dial,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// DeviceID returns the device this adapter serves.
func (a *MQTTAdapter) DeviceID() string {
	return a.deviceID
}

// Connect opens the broker session and subscribes to the device's status
// topic. Status documents arriving from then on refresh the cached
// snapshot returned by Status.
func (a *MQTTAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.transport != nil && a.transport.IsConnected() {
		return nil
	}

	transport, err := a.dial()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	topic := a.statusTopic()
	if err := transport.Subscribe(topic, statusQoS, a.handleStatus); err != nil {
		transport.Close() //nolint:errcheck // already failing, surface the subscribe error
		return fmt.Errorf("%w: subscribing %s: %v", ErrConnectionFailed, topic, err)
	}

	a.transport = transport
	a.logger.Info("adapter connected", "device_id", a.deviceID, "status_topic", topic)
	return nil
}

// Disconnect closes the broker session. Idempotent.
func (a *MQTTAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.transport == nil {
		return nil
	}
	err := a.transport.Close()
	a.transport = nil
	if err != nil {
		return fmt.Errorf("adapter: closing transport: %w", err)
	}
	a.logger.Info("adapter disconnected", "device_id", a.deviceID)
	return nil
}

// Connected reports whether the broker session is up.
func (a *MQTTAdapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transport != nil && a.transport.IsConnected()
}

// ExecuteCommand publishes one command to the device. Models may declare
// a per-command topic and payload template; without one the command goes
// to the default command topic as {"command": ..., "value": ...}.
func (a *MQTTAdapter) ExecuteCommand(ctx context.Context, cmd *command.Command) error {
	if !cmd.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	value, err := cmd.Params.Value(cmd.Type)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownCommand, err)
	}

	topic := expandTopic(a.commandTopic(), a.deviceID)
	var payload []byte

	if tmpl, ok := a.cfg.Commands[string(cmd.Type)]; ok {
		if tmpl.Topic != "" {
			topic = expandTopic(tmpl.Topic, a.deviceID)
		}
		if len(tmpl.Payload) > 0 {
			payload, err = renderPayload(tmpl.Payload, value)
			if err != nil {
				return err
			}
		}
	}
	if payload == nil {
		payload, err = json.Marshal(map[string]any{
			"command": string(cmd.Type),
			"value":   value,
		})
		if err != nil {
			return fmt.Errorf("adapter: encoding command: %w", err)
		}
	}

	a.mu.Lock()
	transport := a.transport
	a.mu.Unlock()

	if transport == nil || !transport.IsConnected() {
		return ErrNotConnected
	}
	if err := transport.Publish(topic, payload, commandQoS, false); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			return ErrNotConnected
		}
		return fmt.Errorf("adapter: publishing command: %w", err)
	}

	a.logger.Debug("command published",
		"device_id", a.deviceID, "type", cmd.Type, "topic", topic)
	return nil
}

// Status returns the most recent snapshot received on the status topic.
func (a *MQTTAdapter) Status(ctx context.Context) (device.StatusPatch, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.transport == nil {
		return device.StatusPatch{}, ErrNotConnected
	}
	if a.last == nil {
		return device.StatusPatch{}, ErrNoStatus
	}
	return *a.last, nil
}

// LastStatusAt returns when the device last reported, or the zero time.
func (a *MQTTAdapter) LastStatusAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastAt
}

// handleStatus decodes one status document. Malformed payloads are
// logged and dropped; a broken device must not take the subscriber down.
func (a *MQTTAdapter) handleStatus(topic string, payload []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		a.logger.Warn("dropping malformed status payload",
			"device_id", a.deviceID, "topic", topic, "error", err)
		return nil
	}

	patch := a.decodeStatus(doc)
	if patch.IsZero() {
		a.logger.Warn("status payload matched no mapped fields",
			"device_id", a.deviceID, "topic", topic)
		return nil
	}

	// Hearing from the device at all means it is online.
	online := true
	patch.IsOnline = &online

	a.mu.Lock()
	a.last = &patch
	a.lastAt = a.now()
	a.mu.Unlock()

	a.logger.Debug("status received", "device_id", a.deviceID, "topic", topic)
	return nil
}

// decodeStatus maps a raw status document onto a StatusPatch using the
// model's field mappings, falling back to the reference firmware names.
func (a *MQTTAdapter) decodeStatus(doc map[string]any) device.StatusPatch {
	var patch device.StatusPatch

	if v, ok := a.field(doc, "temperature"); ok {
		if f, ok := asFloat(v); ok {
			patch.Temperature = &f
		}
	}
	if v, ok := a.field(doc, "target_temperature"); ok {
		if f, ok := asFloat(v); ok {
			patch.TargetTemperature = &f
		}
	}
	if v, ok := a.field(doc, "humidity"); ok {
		if f, ok := asFloat(v); ok {
			patch.Humidity = &f
		}
	}
	if v, ok := a.field(doc, "mode"); ok {
		if s, ok := asString(v); ok {
			m := device.Mode(s)
			if m.Valid() {
				patch.Mode = &m
			}
		}
	}
	if v, ok := a.field(doc, "fan_speed"); ok {
		if s, ok := asString(v); ok {
			f := device.FanSpeed(s)
			if f.Valid() {
				patch.FanSpeed = &f
			}
		}
	}
	if v, ok := a.field(doc, "power_state"); ok {
		if b, ok := asBool(v); ok {
			patch.PowerState = &b
		}
	}
	if v, ok := a.field(doc, "error_code"); ok {
		if s, ok := asString(v); ok {
			patch.ErrorCode = &s
		}
	}

	return patch
}

// field resolves one logical status field through the configured mapping.
func (a *MQTTAdapter) field(doc map[string]any, name string) (any, bool) {
	path, ok := a.cfg.Mappings[name]
	if !ok {
		path = defaultMappings[name]
	}
	if path == "" {
		return nil, false
	}
	return lookupPath(doc, path)
}

func (a *MQTTAdapter) statusTopic() string {
	topic := defaultStatusTopic
	if a.cfg.Topics != nil && a.cfg.Topics.Status != "" {
		topic = a.cfg.Topics.Status
	}
	return expandTopic(topic, a.deviceID)
}

func (a *MQTTAdapter) commandTopic() string {
	if a.cfg.Topics != nil && a.cfg.Topics.Command != "" {
		return a.cfg.Topics.Command
	}
	return defaultCommandTopic
}
