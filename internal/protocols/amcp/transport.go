package amcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	readBufferSize = 4096
	writeTimeout   = 5 * time.Second
)

// tcpTransport is the AMCP byte pipe. It dials the device, runs a receive
// loop per connection, and reports unsolicited drops through the OnClose
// callback. A transport is reusable: Open after Close dials again.
type tcpTransport struct {
	addr string

	mu      sync.Mutex
	conn    net.Conn
	closing bool

	onData  func([]byte)
	onClose func(error)
}

func newTCPTransport(host string, port int) *tcpTransport {
	return &tcpTransport{addr: net.JoinHostPort(host, fmt.Sprintf("%d", port))}
}

// Open dials the device. The receive loop starts on success and runs
// until the connection drops or Close is called.
func (t *tcpTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.closing = false
	t.mu.Unlock()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", t.addr, err)
	}

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		conn.Close()
		return errors.New("transport closed during dial")
	}
	t.conn = conn
	t.mu.Unlock()

	go t.receiveLoop(conn)
	return nil
}

// Close tears the connection down. The receive loop sees the closing flag
// and exits without firing OnClose.
func (t *tcpTransport) Close() error {
	t.mu.Lock()
	t.closing = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsOpen reports whether a connection is established.
func (t *tcpTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Send writes raw bytes with a bounded write deadline.
func (t *tcpTransport) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errors.New("transport is not open")
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("writing to %s: %w", t.addr, err)
	}
	return nil
}

// SetOnData installs the receive callback. Must precede Open.
func (t *tcpTransport) SetOnData(fn func([]byte)) {
	t.onData = fn
}

// SetOnClose installs the unsolicited-close callback. Must precede Open.
func (t *tcpTransport) SetOnClose(fn func(error)) {
	t.onClose = fn
}

// receiveLoop reads from one connection until it fails. The loop decides
// whether the failure was requested (Close replaced or nilled the conn)
// before reporting it upward.
func (t *tcpTransport) receiveLoop(conn net.Conn) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 && t.onData != nil {
			t.onData(buf[:n])
		}
		if err != nil {
			t.mu.Lock()
			requested := t.closing || t.conn != conn
			if t.conn == conn {
				t.conn = nil
			}
			t.mu.Unlock()

			conn.Close()
			if !requested && t.onClose != nil {
				t.onClose(err)
			}
			return
		}
	}
}
