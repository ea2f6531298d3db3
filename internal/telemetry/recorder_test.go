package telemetry

import (
	"testing"
	"time"

	"github.com/miras-broadcast/miras-core/internal/device"
)

type fakeSink struct {
	commands  []commandWrite
	statuses  []string
	anomalies int
}

type commandWrite struct {
	deviceID   string
	command    string
	durationMs float64
	success    bool
}

func (s *fakeSink) WriteCommandMetric(deviceID, command string, durationMs float64, success bool) {
	s.commands = append(s.commands, commandWrite{deviceID, command, durationMs, success})
}

func (s *fakeSink) WriteStatusMetric(_, status string) {
	s.statuses = append(s.statuses, status)
}

func (s *fakeSink) WriteAnomalyMetric(_ string) {
	s.anomalies++
}

func TestRecorder_CommandCompleted(t *testing.T) {
	sink := &fakeSink{}
	rec := NewRecorder(sink)

	rec.CommandCompleted("caspar-main", "play", 12500*time.Microsecond, true)

	if len(sink.commands) != 1 {
		t.Fatalf("commands = %d, want 1", len(sink.commands))
	}
	got := sink.commands[0]
	if got.deviceID != "caspar-main" || got.command != "play" {
		t.Errorf("wrote %q/%q, want caspar-main/play", got.deviceID, got.command)
	}
	if got.durationMs != 12.5 {
		t.Errorf("durationMs = %v, want 12.5", got.durationMs)
	}
	if !got.success {
		t.Error("success = false, want true")
	}
}

func TestRecorder_StatusChanged(t *testing.T) {
	sink := &fakeSink{}
	rec := NewRecorder(sink)

	rec.StatusChanged("caspar-main", device.StatusConnected)
	rec.StatusChanged("caspar-main", device.StatusError)

	want := []string{"connected", "error"}
	if len(sink.statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", sink.statuses, want)
	}
	for i, s := range want {
		if sink.statuses[i] != s {
			t.Errorf("statuses[%d] = %q, want %q", i, sink.statuses[i], s)
		}
	}
}

func TestRecorder_ProtocolAnomaly(t *testing.T) {
	sink := &fakeSink{}
	rec := NewRecorder(sink)

	rec.ProtocolAnomaly("caspar-main")
	rec.ProtocolAnomaly("caspar-main")

	if sink.anomalies != 2 {
		t.Errorf("anomalies = %d, want 2", sink.anomalies)
	}
}

// Recorder must satisfy the session metrics contract.
var _ device.Metrics = (*Recorder)(nil)
