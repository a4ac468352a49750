package device

import (
	"strings"
	"time"
)

// Device represents a physical air-conditioning unit under management.
// The model (via ModelID) defines its protocol and connection configuration;
// the device row carries only unit-specific identity and liveness.
type Device struct {
	// Identity
	ID           string `json:"id"`
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number"`

	// Classification
	ModelID    string  `json:"model_id"`
	LocationID *string `json:"location_id,omitempty"`

	// Network identity (optional; some protocols address by topic only)
	IPAddress *string `json:"ip_address,omitempty"`

	// Simulated marks demo units that receive instant optimistic status
	// updates instead of real adapter round-trips.
	Simulated bool `json:"simulated"`

	// Liveness
	Status   ConnectionStatus `json:"status"`
	LastSeen *time.Time       `json:"last_seen,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConnectionStatus is the coarse device liveness state.
type ConnectionStatus string

const (
	StatusOnline  ConnectionStatus = "online"
	StatusOffline ConnectionStatus = "offline"
	StatusError   ConnectionStatus = "error"
)

// Valid reports whether the connection status is a known value.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusError:
		return true
	}
	return false
}

// ProtocolType identifies the adapter family a model speaks.
type ProtocolType string

const (
	ProtocolMQTT   ProtocolType = "mqtt"
	ProtocolHTTP   ProtocolType = "http"
	ProtocolModbus ProtocolType = "modbus"
	ProtocolBACnet ProtocolType = "bacnet"
)

// Valid reports whether the protocol type is a known value.
// Known does not imply implemented: modbus and bacnet are declared
// protocols whose adapters are intentionally unimplemented stubs.
func (p ProtocolType) Valid() bool {
	switch p {
	case ProtocolMQTT, ProtocolHTTP, ProtocolModbus, ProtocolBACnet:
		return true
	}
	return false
}

// Mode is an air-conditioner operating mode.
type Mode string

const (
	ModeCool Mode = "cool"
	ModeHeat Mode = "heat"
	ModeFan  Mode = "fan"
	ModeDry  Mode = "dry"
	ModeAuto Mode = "auto"
)

// Valid reports whether the mode is a known value.
func (m Mode) Valid() bool {
	switch m {
	case ModeCool, ModeHeat, ModeFan, ModeDry, ModeAuto:
		return true
	}
	return false
}

// FanSpeed is an air-conditioner fan speed setting.
type FanSpeed string

const (
	FanLow    FanSpeed = "low"
	FanMedium FanSpeed = "medium"
	FanHigh   FanSpeed = "high"
	FanAuto   FanSpeed = "auto"
)

// Valid reports whether the fan speed is a known value.
func (f FanSpeed) Valid() bool {
	switch f {
	case FanLow, FanMedium, FanHigh, FanAuto:
		return true
	}
	return false
}

// Status is the last known telemetry snapshot for a device (1:1 with Device,
// created atomically with it, deleted with it). It is mutated only by the
// reconciliation loop and the command manager's optimistic-update path.
type Status struct {
	DeviceID          string    `json:"device_id"`
	Temperature       *float64  `json:"temperature,omitempty"`
	TargetTemperature *float64  `json:"target_temperature,omitempty"`
	Humidity          *float64  `json:"humidity,omitempty"`
	Mode              *Mode     `json:"mode,omitempty"`
	FanSpeed          *FanSpeed `json:"fan_speed,omitempty"`
	PowerState        bool      `json:"power_state"`
	IsOnline          bool      `json:"is_online"`
	ErrorCode         *string   `json:"error_code,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// StatusPatch is a partial status update. Nil fields are left untouched
// by the merge; set fields overwrite. The repository stamps Timestamp and
// never rolls an existing Timestamp backwards.
type StatusPatch struct {
	Temperature       *float64  `json:"temperature,omitempty"`
	TargetTemperature *float64  `json:"target_temperature,omitempty"`
	Humidity          *float64  `json:"humidity,omitempty"`
	Mode              *Mode     `json:"mode,omitempty"`
	FanSpeed          *FanSpeed `json:"fan_speed,omitempty"`
	PowerState        *bool     `json:"power_state,omitempty"`
	IsOnline          *bool     `json:"is_online,omitempty"`
	ErrorCode         *string   `json:"error_code,omitempty"`
}

// IsZero reports whether the patch carries no fields at all.
func (p StatusPatch) IsZero() bool {
	return p.Temperature == nil && p.TargetTemperature == nil && p.Humidity == nil &&
		p.Mode == nil && p.FanSpeed == nil && p.PowerState == nil &&
		p.IsOnline == nil && p.ErrorCode == nil
}

// Model describes an air-conditioner product line: which protocol it
// speaks, how to connect to units of this model, and its capabilities.
type Model struct {
	ID               string            `json:"id"`
	BrandID          string            `json:"brand_id"`
	Name             string            `json:"name"`
	ProtocolType     ProtocolType      `json:"protocol_type"`
	ConnectionConfig *ConnectionConfig `json:"connection_config,omitempty"`
	Capabilities     *Capabilities     `json:"capabilities,omitempty"`
	MinTemperature   float64           `json:"min_temperature"`
	MaxTemperature   float64           `json:"max_temperature"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// HasProtocol reports whether the model carries enough configuration to
// drive a real adapter.
func (m *Model) HasProtocol() bool {
	return m.ProtocolType != "" && m.ConnectionConfig != nil
}

// Capabilities are optional feature flags for a model.
type Capabilities struct {
	HasHumidity        bool       `json:"has_humidity,omitempty"`
	HasTimer           bool       `json:"has_timer,omitempty"`
	HasFanSpeed        bool       `json:"has_fan_speed,omitempty"`
	HasSwing           bool       `json:"has_swing,omitempty"`
	SupportedModes     []Mode     `json:"supported_modes,omitempty"`
	SupportedFanSpeeds []FanSpeed `json:"supported_fan_speeds,omitempty"`
}

// Brand is an air-conditioner manufacturer.
type Brand struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	LogoURL   *string   `json:"logo_url,omitempty"`
	Website   *string   `json:"website,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location is a node in the building hierarchy devices are assigned to.
type Location struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ParentID    *string   `json:"parent_id,omitempty"`
	Type        string    `json:"type"` // building, floor, room, zone
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LegacyDemoDevice reports whether the device matches the historical demo
// heuristic: a serial number containing "2024" or an IP in 192.168.0.0/16.
// This predates the Simulated flag and exists only so fleets provisioned
// before the flag keep their demo behaviour. New
// deployments should set Simulated explicitly.
func (d *Device) LegacyDemoDevice() bool {
	if strings.Contains(d.SerialNumber, "2024") {
		return true
	}
	if d.IPAddress != nil && strings.HasPrefix(*d.IPAddress, "192.168.") {
		return true
	}
	return false
}
