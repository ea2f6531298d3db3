package device

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		ID:                   "caspar-main",
		Name:                 "CasparCG Main",
		Family:               "caspar",
		Host:                 "127.0.0.1",
		Port:                 5250,
		CommandTimeout:       200 * time.Millisecond,
		ReconnectInterval:    20 * time.Millisecond,
		MaxReconnectAttempts: 2,
	}
}

func newTestSession(cfg Config) (*Session, *fakeTransport, *recordingMetrics, *eventCollector) {
	tr := &fakeTransport{}
	metrics := &recordingMetrics{}
	events := newEventCollector()
	s := NewSession(cfg, tr, &fakeCodec{}, SessionOptions{Metrics: metrics})
	s.SetOnEvent(events.callback)
	return s, tr, metrics, events
}

func TestSession_ConnectAndDisconnect(t *testing.T) {
	s, tr, _, events := newTestSession(testConfig())

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if s.Status() != StatusConnected {
		t.Errorf("Status() = %s, want %s", s.Status(), StatusConnected)
	}
	ev := events.next(t, EventConnected)
	if ev.Snapshot.Status != StatusConnected {
		t.Errorf("event snapshot status = %s, want %s", ev.Snapshot.Status, StatusConnected)
	}

	// Connect is idempotent while connected.
	if err := s.Connect(context.Background()); err != nil {
		t.Errorf("second Connect() error = %v", err)
	}
	if tr.openCount() != 1 {
		t.Errorf("openCount = %d, want 1", tr.openCount())
	}

	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if s.Status() != StatusDisconnected {
		t.Errorf("Status() = %s, want %s", s.Status(), StatusDisconnected)
	}
	events.next(t, EventDisconnected)
}

func TestSession_ConnectFailureReconnects(t *testing.T) {
	s, tr, _, events := newTestSession(testConfig())
	tr.failures = 1

	err := s.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect() expected error, got nil")
	}
	var derr *Error
	if !errors.As(err, &derr) || derr.Code != CodeConnectionFailed {
		t.Errorf("Connect() error = %v, want ConnectionFailed", err)
	}
	events.next(t, EventError)

	// The retry fires after the reconnect interval and succeeds.
	events.next(t, EventConnected)
	if s.Status() != StatusConnected {
		t.Errorf("Status() = %s, want %s after reconnect", s.Status(), StatusConnected)
	}
	if tr.openCount() != 2 {
		t.Errorf("openCount = %d, want 2", tr.openCount())
	}
}

func TestSession_ReconnectBudgetExhausted(t *testing.T) {
	s, tr, _, _ := newTestSession(testConfig())
	tr.failures = 100

	_ = s.Connect(context.Background())

	// Initial attempt plus two retries, then terminal.
	waitFor(t, "retries to run", func() bool { return tr.openCount() == 3 })
	time.Sleep(60 * time.Millisecond)
	if tr.openCount() != 3 {
		t.Errorf("openCount = %d, want 3 (no attempts past the budget)", tr.openCount())
	}
	if s.Status() != StatusError {
		t.Errorf("Status() = %s, want %s", s.Status(), StatusError)
	}

	snap := s.Snapshot()
	if snap.LastError == "" {
		t.Error("Snapshot().LastError empty, want failure message")
	}
}

func TestSession_DisconnectCancelsReconnect(t *testing.T) {
	s, tr, _, _ := newTestSession(testConfig())
	tr.failures = 100

	_ = s.Connect(context.Background())
	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	if tr.openCount() != 1 {
		t.Errorf("openCount = %d, want 1 (reconnect cancelled)", tr.openCount())
	}
	if s.Status() != StatusDisconnected {
		t.Errorf("Status() = %s, want %s", s.Status(), StatusDisconnected)
	}
}

func TestSession_DisconnectDuringDialWins(t *testing.T) {
	s, tr, _, _ := newTestSession(testConfig())
	tr.openGate = make(chan error)

	done := make(chan error, 1)
	go func() { done <- s.Connect(context.Background()) }()
	waitFor(t, "dial to start", func() bool { return tr.openCount() == 1 })

	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if s.Status() != StatusDisconnected {
		t.Fatalf("Status() = %s, want %s after disconnect", s.Status(), StatusDisconnected)
	}

	// Now let the in-flight dial fail. The explicit disconnect must win:
	// no Error state, no reconnect.
	tr.openGate <- errors.New("dial refused")
	if err := <-done; err == nil {
		t.Fatal("Connect() error = nil, want connection failure")
	}

	if s.Status() != StatusDisconnected {
		t.Errorf("Status() = %s, want %s", s.Status(), StatusDisconnected)
	}
	time.Sleep(80 * time.Millisecond)
	if tr.openCount() != 1 {
		t.Errorf("openCount = %d, want 1 (no reconnect after explicit disconnect)", tr.openCount())
	}
}

func TestSession_ConnectionLossFailsPendingAndReconnects(t *testing.T) {
	s, tr, _, events := newTestSession(testConfig())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	events.next(t, EventConnected)

	resCh := make(chan OperationResult, 1)
	go func() {
		resCh <- s.Execute(context.Background(), Command{Name: "play"})
	}()
	waitFor(t, "command to be sent", func() bool { return tr.sentCount() == 1 })

	tr.dropConnection(io.ErrUnexpectedEOF)

	res := <-resCh
	if res.Success {
		t.Error("command on dropped connection reported success")
	}
	if res.Error == nil || res.Error.Code != string(CodeConnectionClosed) {
		t.Errorf("Error = %+v, want code %s", res.Error, CodeConnectionClosed)
	}

	events.next(t, EventError)
	events.next(t, EventConnected)
	if tr.openCount() != 2 {
		t.Errorf("openCount = %d, want 2 after automatic reconnect", tr.openCount())
	}
}

func TestSession_Execute(t *testing.T) {
	s, tr, metrics, _ := newTestSession(testConfig())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	resCh := make(chan OperationResult, 1)
	go func() {
		resCh <- s.Execute(context.Background(), Command{Name: "play"})
	}()
	waitFor(t, "command to be sent", func() bool { return tr.sentCount() == 1 })
	tr.deliver("OK 202\n")

	res := <-resCh
	if !res.Success {
		t.Fatalf("Execute() failed: %+v", res.Error)
	}
	if res.DeviceID != "caspar-main" {
		t.Errorf("DeviceID = %q, want caspar-main", res.DeviceID)
	}
	if res.OperationID == "" {
		t.Error("OperationID empty")
	}
	if res.Data != "202" {
		t.Errorf("Data = %v, want 202", res.Data)
	}
	if res.Timestamp.IsZero() {
		t.Error("Timestamp zero")
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.commands) != 1 || metrics.commands[0] != "play" {
		t.Errorf("metrics commands = %v, want [play]", metrics.commands)
	}
}

func TestSession_ExecuteFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(s *Session, tr *fakeTransport)
		cmd      Command
		deliver  string
		wantCode Code
	}{
		{
			name:     "not connected",
			setup:    func(s *Session, tr *fakeTransport) {},
			cmd:      Command{Name: "play"},
			wantCode: CodeNotConnected,
		},
		{
			name: "unknown command",
			setup: func(s *Session, tr *fakeTransport) {
				_ = s.Connect(context.Background())
			},
			cmd:      Command{Name: "teleport"},
			wantCode: CodeCommandFailed,
		},
		{
			name: "device rejection",
			setup: func(s *Session, tr *fakeTransport) {
				_ = s.Connect(context.Background())
			},
			cmd:      Command{Name: "play"},
			deliver:  "ERR cannot play\n",
			wantCode: CodeCommandFailed,
		},
		{
			name: "send failure",
			setup: func(s *Session, tr *fakeTransport) {
				_ = s.Connect(context.Background())
				tr.sendErr = errors.New("broken pipe")
			},
			cmd:      Command{Name: "play"},
			wantCode: CodeConnectionClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, tr, _, _ := newTestSession(testConfig())
			tt.setup(s, tr)

			resCh := make(chan OperationResult, 1)
			go func() {
				resCh <- s.Execute(context.Background(), tt.cmd)
			}()
			if tt.deliver != "" {
				waitFor(t, "command to be sent", func() bool { return tr.sentCount() == 1 })
				tr.deliver(tt.deliver)
			}

			res := <-resCh
			if res.Success {
				t.Fatal("Execute() reported success, want failure")
			}
			if res.Error == nil || res.Error.Code != string(tt.wantCode) {
				t.Errorf("Error = %+v, want code %s", res.Error, tt.wantCode)
			}
			if res.OperationID == "" {
				t.Error("OperationID empty on failure result")
			}
		})
	}
}

func TestSession_ExecuteTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.CommandTimeout = 30 * time.Millisecond
	s, _, _, _ := newTestSession(cfg)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	res := s.Execute(context.Background(), Command{Name: "play"})
	if res.Success {
		t.Error("timed-out command reported success")
	}
	if res.Error == nil || res.Error.Code != string(CodeTimeout) {
		t.Errorf("Error = %+v, want code %s", res.Error, CodeTimeout)
	}
}

func TestSession_ExecuteContextCancelled(t *testing.T) {
	s, _, _, _ := newTestSession(testConfig())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	resCh := make(chan OperationResult, 1)
	go func() {
		resCh <- s.Execute(ctx, Command{Name: "play"})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	res := <-resCh
	if res.Error == nil || res.Error.Code != string(CodeCancelled) {
		t.Errorf("Error = %+v, want code %s", res.Error, CodeCancelled)
	}
}

func TestSession_StateUpdates(t *testing.T) {
	s, tr, _, events := newTestSession(testConfig())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tr.deliver("STATE channel1 1080i5000\n")

	ev := events.next(t, EventStateChanged)
	if ev.State["channel1"] != "1080i5000" {
		t.Errorf("event state = %v, want channel1=1080i5000", ev.State)
	}

	snap := s.Snapshot()
	if snap.State["channel1"] != "1080i5000" {
		t.Errorf("snapshot state = %v, want channel1=1080i5000", snap.State)
	}
}

func TestSession_ProtocolAnomalies(t *testing.T) {
	s, tr, metrics, _ := newTestSession(testConfig())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Unparseable line, then a response with no pending command.
	tr.deliver("%%garbage%%\n")
	tr.deliver("OK 200\n")

	if got := metrics.anomalyCount(); got != 2 {
		t.Errorf("anomaly count = %d, want 2", got)
	}
	if s.Status() != StatusConnected {
		t.Errorf("Status() = %s, anomalies must not drop the connection", s.Status())
	}
}

func TestSession_SnapshotIsDetached(t *testing.T) {
	s, tr, _, _ := newTestSession(testConfig())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	tr.deliver("STATE channel1 720p50\n")
	waitFor(t, "state to land", func() bool { return s.Snapshot().State != nil })

	snap := s.Snapshot()
	snap.State["channel1"] = "mutated"
	if s.Snapshot().State["channel1"] != "720p50" {
		t.Error("mutating a snapshot changed session state")
	}
}
