package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeTransport is an in-memory Transport. Tests inject inbound data with
// deliver and simulate connection loss with dropConnection. A non-nil
// openGate stalls Open until the test sends the dial outcome; a non-nil
// closeGate stalls Close until the channel is closed.
type fakeTransport struct {
	mu        sync.Mutex
	open      bool
	failures  int
	opens     int
	sent      [][]byte
	sendErr   error
	openGate  chan error
	closeGate chan struct{}
	onData    func([]byte)
	onClose   func(error)
}

func (t *fakeTransport) Open(_ context.Context) error {
	t.mu.Lock()
	t.opens++
	if t.failures > 0 {
		t.failures--
		t.mu.Unlock()
		return errors.New("dial refused")
	}
	gate := t.openGate
	t.mu.Unlock()

	if gate != nil {
		if err := <-gate; err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.open = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	gate := t.closeGate
	t.mu.Unlock()
	if gate != nil {
		<-gate
	}

	t.mu.Lock()
	t.open = false
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) SetOnData(fn func([]byte)) {
	t.mu.Lock()
	t.onData = fn
	t.mu.Unlock()
}

func (t *fakeTransport) SetOnClose(fn func(error)) {
	t.mu.Lock()
	t.onClose = fn
	t.mu.Unlock()
}

func (t *fakeTransport) deliver(data string) {
	t.mu.Lock()
	fn := t.onData
	t.mu.Unlock()
	if fn != nil {
		fn([]byte(data))
	}
}

func (t *fakeTransport) dropConnection(err error) {
	t.mu.Lock()
	t.open = false
	fn := t.onClose
	t.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (t *fakeTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

// fakeCodec is a line-oriented FIFO codec:
//
//	"OK <data>"      response, success
//	"ERR <message>"  response, failure
//	"STATE <k> <v>"  unsolicited state update
//	anything else    unknown
//
// Encode knows "play" and "stop".
type fakeCodec struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	resets int
}

func (c *fakeCodec) Feed(data []byte) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Write(data)

	var msgs []Message
	for {
		raw := c.buf.String()
		idx := strings.IndexByte(raw, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(raw[:idx], "\r")
		c.buf.Next(idx + 1)
		if line == "" {
			continue
		}
		msgs = append(msgs, c.classify(line))
	}
	return msgs
}

func (c *fakeCodec) classify(line string) Message {
	fields := strings.Fields(line)
	switch fields[0] {
	case "OK":
		m := Message{Class: ClassResponse, Success: true, Raw: line}
		if len(fields) > 1 {
			m.Data = strings.Join(fields[1:], " ")
		}
		return m
	case "ERR":
		return Message{Class: ClassResponse, Data: strings.Join(fields[1:], " "), Raw: line}
	case "STATE":
		if len(fields) == 3 {
			return Message{Class: ClassStateUpdate, State: map[string]any{fields[1]: fields[2]}, Raw: line}
		}
	}
	return Message{Class: ClassUnknown, Raw: line}
}

func (c *fakeCodec) Encode(cmd Command) ([]byte, string, error) {
	switch cmd.Name {
	case "play", "stop":
		return []byte(strings.ToUpper(cmd.Name) + "\r\n"), "", nil
	default:
		return nil, "", fmt.Errorf("unknown command %q", cmd.Name)
	}
}

func (c *fakeCodec) Correlation() CorrelationMode { return CorrelateFIFO }

func (c *fakeCodec) Reset() {
	c.mu.Lock()
	c.buf.Reset()
	c.resets++
	c.mu.Unlock()
}

func (c *fakeCodec) Commands() []string { return []string{"play", "stop"} }

// recordingMetrics counts telemetry calls.
type recordingMetrics struct {
	mu        sync.Mutex
	commands  []string
	statuses  []Status
	anomalies int
}

func (m *recordingMetrics) CommandCompleted(_, command string, _ time.Duration, _ bool) {
	m.mu.Lock()
	m.commands = append(m.commands, command)
	m.mu.Unlock()
}

func (m *recordingMetrics) StatusChanged(_ string, status Status) {
	m.mu.Lock()
	m.statuses = append(m.statuses, status)
	m.mu.Unlock()
}

func (m *recordingMetrics) ProtocolAnomaly(_ string) {
	m.mu.Lock()
	m.anomalies++
	m.mu.Unlock()
}

func (m *recordingMetrics) anomalyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.anomalies
}

// eventCollector buffers session events for inspection.
type eventCollector struct {
	ch chan Event
}

func newEventCollector() *eventCollector {
	return &eventCollector{ch: make(chan Event, 32)}
}

func (c *eventCollector) callback(ev Event) {
	c.ch <- ev
}

// next waits for the next event of the given kind, skipping others.
func (c *eventCollector) next(t *testing.T, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
