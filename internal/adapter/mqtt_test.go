package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/climalink/climalink-core/internal/command"
	"github.com/climalink/climalink-core/internal/device"
	"github.com/climalink/climalink-core/internal/infrastructure/mqtt"
)

// fakeTransport is an in-memory mqttTransport.
type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	subs       map[string]mqtt.MessageHandler
	published  []publishedMessage
	publishErr error
	subErr     error
	closeErr   error
	closed     int
}

type publishedMessage struct {
	topic   string
	payload []byte
	qos     byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connected: true,
		subs:      make(map[string]mqtt.MessageHandler),
	}
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMessage{topic, payload, qos})
	return nil
}

func (f *fakeTransport) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.subs[topic] = handler
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	f.connected = false
	return f.closeErr
}

// deliver simulates a broker delivering a message on a subscribed topic.
func (f *fakeTransport) deliver(t *testing.T, topic string, payload string) {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.subs[topic]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription on %s", topic)
	}
	if err := handler(topic, []byte(payload)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

func (f *fakeTransport) lastPublished(t *testing.T) publishedMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		t.Fatal("nothing published")
	}
	return f.published[len(f.published)-1]
}

func connectedAdapter(t *testing.T, cfg device.ConnectionConfig) (*MQTTAdapter, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	a := newMQTTAdapterForTest("dev-1", cfg, func() (mqttTransport, error) {
		return transport, nil
	})
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return a, transport
}

func TestMQTTAdapterConnectSubscribesDefaultTopic(t *testing.T) {
	_, transport := connectedAdapter(t, device.ConnectionConfig{})
	if _, ok := transport.subs["ac/dev-1/status"]; !ok {
		t.Errorf("expected subscription on default status topic, got %v", transport.subs)
	}
}

func TestMQTTAdapterConnectCustomTopics(t *testing.T) {
	cfg := device.ConnectionConfig{
		Topics: &device.TopicConfig{Status: "site/{deviceId}/state"},
	}
	_, transport := connectedAdapter(t, cfg)
	if _, ok := transport.subs["site/dev-1/state"]; !ok {
		t.Errorf("expected custom status topic, got %v", transport.subs)
	}
}

func TestMQTTAdapterConnectFailure(t *testing.T) {
	a := newMQTTAdapterForTest("dev-1", device.ConnectionConfig{}, func() (mqttTransport, error) {
		return nil, errors.New("dial refused")
	})
	err := a.Connect(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("expected ErrConnectionFailed, got %v", err)
	}
}

func TestMQTTAdapterSubscribeFailureClosesTransport(t *testing.T) {
	transport := newFakeTransport()
	transport.subErr = errors.New("denied")
	a := newMQTTAdapterForTest("dev-1", device.ConnectionConfig{}, func() (mqttTransport, error) {
		return transport, nil
	})
	if err := a.Connect(context.Background()); !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}
	if transport.closed != 1 {
		t.Errorf("transport not closed after failed subscribe")
	}
}

func TestMQTTAdapterStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	a, transport := connectedAdapter(t, device.ConnectionConfig{})

	// No report yet.
	if _, err := a.Status(ctx); !errors.Is(err, ErrNoStatus) {
		t.Fatalf("expected ErrNoStatus, got %v", err)
	}

	transport.deliver(t, "ac/dev-1/status",
		`{"temperature": 23.5, "power": "on", "mode": "cool", "fanSpeed": "high"}`)

	patch, err := a.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if patch.Temperature == nil || *patch.Temperature != 23.5 {
		t.Errorf("temperature = %v", patch.Temperature)
	}
	if patch.PowerState == nil || !*patch.PowerState {
		t.Errorf("power state = %v", patch.PowerState)
	}
	if patch.Mode == nil || *patch.Mode != device.ModeCool {
		t.Errorf("mode = %v", patch.Mode)
	}
	if patch.FanSpeed == nil || *patch.FanSpeed != device.FanHigh {
		t.Errorf("fan speed = %v", patch.FanSpeed)
	}
	if patch.IsOnline == nil || !*patch.IsOnline {
		t.Error("a reporting device must be marked online")
	}
	if a.LastStatusAt().IsZero() {
		t.Error("last status time not recorded")
	}
}

func TestMQTTAdapterStatusMappings(t *testing.T) {
	ctx := context.Background()
	cfg := device.ConnectionConfig{
		Mappings: map[string]string{
			"temperature": "readings.ambient",
			"power_state": "state.power",
		},
	}
	a, transport := connectedAdapter(t, cfg)

	transport.deliver(t, "ac/dev-1/status",
		`{"readings": {"ambient": 19.2}, "state": {"power": 1}}`)

	patch, err := a.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if patch.Temperature == nil || *patch.Temperature != 19.2 {
		t.Errorf("mapped temperature = %v", patch.Temperature)
	}
	if patch.PowerState == nil || !*patch.PowerState {
		t.Errorf("mapped power = %v", patch.PowerState)
	}
}

func TestMQTTAdapterMalformedStatusDropped(t *testing.T) {
	ctx := context.Background()
	a, transport := connectedAdapter(t, device.ConnectionConfig{})

	transport.deliver(t, "ac/dev-1/status", `{broken`)

	// The malformed document must not surface as a status.
	if _, err := a.Status(ctx); !errors.Is(err, ErrNoStatus) {
		t.Errorf("expected ErrNoStatus after malformed payload, got %v", err)
	}

	// And a later good document still gets through.
	transport.deliver(t, "ac/dev-1/status", `{"temperature": 21}`)
	patch, err := a.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if patch.Temperature == nil || *patch.Temperature != 21 {
		t.Errorf("temperature = %v", patch.Temperature)
	}
}

func TestMQTTAdapterExecuteCommandDefaultPayload(t *testing.T) {
	ctx := context.Background()
	a, transport := connectedAdapter(t, device.ConnectionConfig{})

	temp := 22.0
	cmd := &command.Command{
		ID:       "cmd-1",
		DeviceID: "dev-1",
		Type:     command.TypeSetTemperature,
		Params:   command.Parameters{Temperature: &temp},
	}
	if err := a.ExecuteCommand(ctx, cmd); err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}

	msg := transport.lastPublished(t)
	if msg.topic != "ac/dev-1/command" {
		t.Errorf("topic = %q", msg.topic)
	}
	if msg.qos != 1 {
		t.Errorf("qos = %d, want 1", msg.qos)
	}

	var doc map[string]any
	if err := json.Unmarshal(msg.payload, &doc); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if doc["command"] != "setTemperature" || doc["value"] != 22.0 {
		t.Errorf("payload = %v", doc)
	}
}

func TestMQTTAdapterExecuteCommandTemplate(t *testing.T) {
	ctx := context.Background()
	cfg := device.ConnectionConfig{
		Commands: map[string]device.CommandTemplate{
			"setPower": {
				Topic:   "site/{deviceId}/power",
				Payload: json.RawMessage(`{"on": "{value}", "src": "climalink"}`),
			},
		},
	}
	a, transport := connectedAdapter(t, cfg)

	on := true
	cmd := &command.Command{
		ID:       "cmd-1",
		DeviceID: "dev-1",
		Type:     command.TypeSetPower,
		Params:   command.Parameters{Power: &on},
	}
	if err := a.ExecuteCommand(ctx, cmd); err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}

	msg := transport.lastPublished(t)
	if msg.topic != "site/dev-1/power" {
		t.Errorf("topic = %q", msg.topic)
	}
	var doc map[string]any
	if err := json.Unmarshal(msg.payload, &doc); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	// The placeholder stood alone, so it keeps the typed value.
	if doc["on"] != true || doc["src"] != "climalink" {
		t.Errorf("payload = %v", doc)
	}
}

func TestMQTTAdapterExecuteCommandNotConnected(t *testing.T) {
	ctx := context.Background()
	a, transport := connectedAdapter(t, device.ConnectionConfig{})
	transport.connected = false

	on := true
	cmd := &command.Command{
		Type:   command.TypeSetPower,
		Params: command.Parameters{Power: &on},
	}
	if err := a.ExecuteCommand(ctx, cmd); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestMQTTAdapterExecuteUnknownCommand(t *testing.T) {
	ctx := context.Background()
	a, _ := connectedAdapter(t, device.ConnectionConfig{})

	cmd := &command.Command{Type: command.Type("selfDestruct")}
	if err := a.ExecuteCommand(ctx, cmd); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestMQTTAdapterDisconnectIdempotent(t *testing.T) {
	a, transport := connectedAdapter(t, device.ConnectionConfig{})

	if err := a.Disconnect(); err != nil {
		t.Fatalf("first Disconnect: %v", err)
	}
	if err := a.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	if transport.closed != 1 {
		t.Errorf("transport closed %d times, want 1", transport.closed)
	}
	if a.Connected() {
		t.Error("adapter still reports connected")
	}
}
