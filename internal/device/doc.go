// Package device manages connections to external broadcast devices.
//
// The package is protocol-agnostic. A Session owns the lifecycle of one
// device connection (connect, reconnect with a bounded retry budget,
// disconnect) and pairs commands with responses through a commandChannel
// that supports FIFO and keyed correlation. Protocol families plug in
// through two small interfaces:
//
//   - Transport moves raw bytes (TCP, serial, test fakes)
//   - Codec frames, classifies, and encodes protocol messages
//
// The Registry maps device families to session factories, owns every
// registered session, and fans session events out to subscribers. All
// device status flows through those events; nothing polls.
//
// Command outcomes are returned as OperationResult values with a fixed
// JSON shape. Failures are data, not errors: Execute never returns a Go
// error, so callers forward results to clients without translation.
package device
