package device

import (
	"errors"
	"fmt"
)

// Sentinel errors for the device package.
var (
	// ErrNotConnected is returned when a command is submitted while the
	// session is not in the connected state.
	ErrNotConnected = errors.New("device: not connected")

	// ErrInvalidConfig is returned when a device configuration is missing
	// required fields.
	ErrInvalidConfig = errors.New("device: invalid configuration")

	// ErrUnsupportedFamily is returned when no session factory is
	// registered for a device family.
	ErrUnsupportedFamily = errors.New("device: unsupported device family")

	// ErrDeviceExists is returned when registering a device id that is
	// already registered.
	ErrDeviceExists = errors.New("device: device already registered")

	// ErrRegistryClosed is returned for operations on a registry after
	// Shutdown.
	ErrRegistryClosed = errors.New("device: registry is shut down")
)

// Code identifies the failure kind carried by a structured device error.
// Codes are stable wire values: they appear verbatim in OperationResult
// payloads consumed by clients.
type Code string

// Failure kinds.
const (
	CodeConnectionFailed  Code = "ConnectionFailed"
	CodeConnectionClosed  Code = "ConnectionClosed"
	CodeNotConnected      Code = "NotConnected"
	CodeCommandFailed     Code = "CommandFailed"
	CodeTimeout           Code = "Timeout"
	CodeCancelled         Code = "Cancelled"
	CodeUnsupportedFamily Code = "UnsupportedFamily"
	CodeProtocolAnomaly   Code = "ProtocolAnomaly"
)

// Error is a structured device failure. It crosses the session boundary as
// a value (inside events and operation results), never as a panic: callers
// decide whether to retry, surface, or ignore it.
type Error struct {
	Code     Code
	DeviceID string
	Family   string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("device %s [%s]: %s: %v", e.DeviceID, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("device %s [%s]: %s", e.DeviceID, e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// newError builds a structured error for a session.
func newError(code Code, deviceID, family, message string, cause error) *Error {
	return &Error{
		Code:     code,
		DeviceID: deviceID,
		Family:   family,
		Message:  message,
		Cause:    cause,
	}
}
