package device

import (
	"context"
	"time"
)

// Default timing values applied by Config.withDefaults.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultCommandTimeout    = 5 * time.Second
	defaultReconnectInterval = 5 * time.Second
)

// Transport moves raw bytes between a session and a device. Implementations
// own the underlying connection and its read loop; received bytes are
// delivered through the OnData callback, connection loss through OnClose.
//
// Callbacks must be installed before Open. The transport guarantees OnData
// invocations are sequential (never concurrent with each other) and that
// OnClose fires at most once per Open, and never for a close the session
// itself requested.
type Transport interface {
	// Open establishes the connection. Blocks until connected, the context
	// is done, or the dial fails.
	Open(ctx context.Context) error

	// Close tears down the connection. Safe to call multiple times and
	// when not connected. Does not trigger OnClose.
	Close() error

	// IsOpen reports whether the connection is currently established.
	IsOpen() bool

	// Send writes raw protocol bytes. Returns an error if the connection
	// is down or the write fails.
	Send(data []byte) error

	// SetOnData installs the receive callback.
	SetOnData(fn func(data []byte))

	// SetOnClose installs the unsolicited-close callback. The error
	// describes why the connection dropped.
	SetOnClose(fn func(err error))
}
