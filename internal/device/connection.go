package device

import (
	"encoding/json"
	"fmt"
)

// ConnectionConfig is the protocol-specific connection definition stored on
// a model and handed verbatim to the adapter layer. Only the fields relevant
// to the model's protocol type are populated.
type ConnectionConfig struct {
	// MQTT
	Broker      string                     `json:"broker,omitempty"`
	TopicPrefix string                     `json:"topic_prefix,omitempty"`
	Topics      *TopicConfig               `json:"topics,omitempty"`
	Mappings    map[string]string          `json:"mappings,omitempty"`
	Commands    map[string]CommandTemplate `json:"commands,omitempty"`
	Username    string                     `json:"username,omitempty"`
	Password    string                     `json:"password,omitempty"`

	// HTTP
	Endpoint string `json:"endpoint,omitempty"`
	APIKey   string `json:"api_key,omitempty"`

	// Modbus / BACnet
	UnitID uint8 `json:"unit_id,omitempty"`
	Port   int   `json:"port,omitempty"`
}

// TopicConfig overrides the default MQTT topic templates. Templates may
// contain the {deviceId} placeholder, substituted per device at subscribe
// and publish time.
type TopicConfig struct {
	Status    string `json:"status,omitempty"`
	Command   string `json:"command,omitempty"`
	Telemetry string `json:"telemetry,omitempty"`
}

// CommandTemplate maps one command type to an outbound MQTT message. The
// payload is a JSON template whose string values may contain the {value}
// placeholder, substituted with the command's parameter value.
type CommandTemplate struct {
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseConnectionConfig decodes a stored JSON connection configuration.
// An empty or null document yields a nil config, matching models that
// declare a protocol but have not been configured yet.
func ParseConnectionConfig(raw []byte) (*ConnectionConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var cfg ConnectionConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("device: parse connection config: %w", err)
	}
	return &cfg, nil
}

// Encode serializes the configuration for storage. A nil receiver encodes
// to nil so the column stores NULL rather than an empty object.
func (c *ConnectionConfig) Encode() ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("device: encode connection config: %w", err)
	}
	return raw, nil
}
