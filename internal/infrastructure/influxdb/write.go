package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteCommandMetric records one finished command round trip.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "caspar-main")
//   - command: The dispatched command name (e.g., "play", "loadClip")
//   - durationMs: Round-trip time in milliseconds
//   - success: Whether the device acknowledged the command
//
// Example:
//
//	client.WriteCommandMetric("caspar-main", "play", 12.5, true)
func (c *Client) WriteCommandMetric(deviceID, command string, durationMs float64, success bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_commands",
		map[string]string{
			"device_id": deviceID,
			"command":   command,
		},
		map[string]interface{}{
			"duration_ms": durationMs,
			"success":     success,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteStatusMetric records a device connection status transition.
//
// Status values follow the device lifecycle: "disconnected", "connecting",
// "connected", "error". The connected field makes uptime queries cheap
// without string matching.
func (c *Client) WriteStatusMetric(deviceID, status string) {
	if !c.IsConnected() {
		return
	}

	connected := 0
	if status == "connected" {
		connected = 1
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"status":    status,
			"connected": connected,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAnomalyMetric counts one protocol anomaly for a device.
//
// Anomalies are unmatched or unparseable replies from device hardware.
// A rising count usually means firmware drift or a flaky link.
func (c *Client) WriteAnomalyMetric(deviceID string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"protocol_anomalies",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
