package device

import (
	"fmt"
	"time"
)

// Status is the connection state of a device session.
type Status string

// Session lifecycle states. Transitions follow a fixed machine:
// Disconnected → Connecting → Connected → {Disconnected | Error};
// Error → Connecting (scheduled reconnect) or Disconnected (explicit).
const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Config describes one device. It is immutable after registration; the
// session holds a copy and never mutates it.
type Config struct {
	// ID uniquely identifies the device within the registry.
	ID string

	// Name is the human-readable device name.
	Name string

	// Family selects the protocol implementation ("caspar", ...).
	Family string

	// Host and Port locate the device on the network.
	Host string
	Port int

	// Enabled controls whether the registry connects the device
	// immediately after registration.
	Enabled bool

	// ConnectTimeout bounds transport establishment. Default: 10s.
	ConnectTimeout time.Duration

	// CommandTimeout is the default per-command timeout. A shorter
	// context deadline on Execute overrides it per call. Default: 5s.
	CommandTimeout time.Duration

	// ReconnectInterval is the delay between automatic reconnection
	// attempts after a connection failure or unsolicited close.
	ReconnectInterval time.Duration

	// MaxReconnectAttempts caps consecutive automatic reconnection
	// attempts. Once exhausted the session stays in StatusError until
	// Connect is called explicitly. 0 disables automatic reconnection.
	MaxReconnectAttempts int

	// Options holds family-specific settings (e.g., channel list).
	Options map[string]any
}

// Validate checks required configuration fields. Violations are reported
// synchronously at registration time since they indicate a configuration
// error, not a runtime condition.
func (c *Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidConfig)
	}
	if c.Family == "" {
		return fmt.Errorf("%w: family is required", ErrInvalidConfig)
	}
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	return nil
}

// withDefaults returns a copy of the config with default timeouts applied.
func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = defaultCommandTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = defaultReconnectInterval
	}
	return c
}

// StateSnapshot is a plain-data copy of a session's observable state.
// Snapshots carry no references into the session; callers may retain and
// mutate them freely.
type StateSnapshot struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Family          string     `json:"family"`
	Status          Status     `json:"status"`
	LastError       string     `json:"lastError,omitempty"`
	LastConnectedAt *time.Time `json:"lastConnectedAt,omitempty"`
	PendingCommands int        `json:"pendingCommands"`

	// State is the device-reported state accumulated from unsolicited
	// protocol messages (e.g., video channel formats).
	State map[string]any `json:"state,omitempty"`
}

// OperationResult is the outcome of a single device command. The JSON
// shape is part of the client contract and must not change.
type OperationResult struct {
	Success     bool         `json:"success"`
	DeviceID    string       `json:"deviceId"`
	OperationID string       `json:"operationId"`
	Timestamp   time.Time    `json:"timestamp"`
	Data        any          `json:"data,omitempty"`
	Error       *ResultError `json:"error,omitempty"`
}

// ResultError is the wire form of a failed operation.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventKind names the notifications emitted by sessions and the registry.
// These are the only channel through which external components learn of
// device status.
type EventKind string

// Event kinds. The names are stable wire values used as WebSocket
// broadcast channels.
const (
	EventRegistered   EventKind = "deviceRegistered"
	EventConnected    EventKind = "deviceConnected"
	EventDisconnected EventKind = "deviceDisconnected"
	EventError        EventKind = "deviceError"
	EventStateChanged EventKind = "deviceStateChanged"
)

// Event is a tagged notification. Which fields are set depends on Kind:
// Err for EventError, State for EventStateChanged; Snapshot is always set.
type Event struct {
	Kind      EventKind      `json:"kind"`
	DeviceID  string         `json:"deviceId"`
	Snapshot  StateSnapshot  `json:"snapshot"`
	Err       *Error         `json:"-"`
	State     map[string]any `json:"state,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Logger is the optional structured logging interface used throughout the
// package. A nil logger disables logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Metrics receives operational telemetry from sessions. Implementations
// must be safe for concurrent use and must not block. A nil Metrics
// disables telemetry.
type Metrics interface {
	// CommandCompleted records one finished command round trip.
	CommandCompleted(deviceID, command string, duration time.Duration, success bool)

	// StatusChanged records a session status transition.
	StatusChanged(deviceID string, status Status)

	// ProtocolAnomaly records an unmatched or unparseable device message.
	ProtocolAnomaly(deviceID string)
}
