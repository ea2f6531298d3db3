// Package telemetry adapts device session metrics onto time-series storage.
//
// Sessions emit command round trips, status transitions and protocol
// anomalies through a narrow interface. The recorder translates those
// callbacks into InfluxDB points. Writes are non-blocking downstream,
// so the adapter never stalls device work.
package telemetry

import (
	"time"

	"github.com/miras-broadcast/miras-core/internal/device"
)

// Sink is the slice of the InfluxDB client the recorder writes through.
type Sink interface {
	WriteCommandMetric(deviceID, command string, durationMs float64, success bool)
	WriteStatusMetric(deviceID, status string)
	WriteAnomalyMetric(deviceID string)
}

// Recorder implements device.Metrics over a Sink.
type Recorder struct {
	sink Sink
}

// NewRecorder builds a recorder over the given sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// CommandCompleted records one finished command round trip.
func (r *Recorder) CommandCompleted(deviceID, command string, duration time.Duration, success bool) {
	r.sink.WriteCommandMetric(deviceID, command, float64(duration.Microseconds())/1000, success)
}

// StatusChanged records a device lifecycle transition.
func (r *Recorder) StatusChanged(deviceID string, status device.Status) {
	r.sink.WriteStatusMetric(deviceID, string(status))
}

// ProtocolAnomaly counts one unmatched or unparseable device reply.
func (r *Recorder) ProtocolAnomaly(deviceID string) {
	r.sink.WriteAnomalyMetric(deviceID)
}
