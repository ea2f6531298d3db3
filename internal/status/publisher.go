// Package status publishes device and system state to the MQTT bus.
//
// Facility monitoring attaches to retained topics and sees the current
// picture immediately, without polling the HTTP API. Publishing is
// best effort: a broker outage never blocks device work.
package status

import (
	"encoding/json"
	"time"

	"github.com/miras-broadcast/miras-core/internal/device"
	"github.com/miras-broadcast/miras-core/internal/infrastructure/mqtt"
	"github.com/miras-broadcast/miras-core/internal/state"
)

// Bus is the outbound slice of the MQTT client the publisher uses.
type Bus interface {
	PublishRetained(topic string, payload []byte) error
}

// Logger is the optional structured logging interface for this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Publisher mirrors device and system status onto retained MQTT topics.
//
// Attach it with Attach, which subscribes to the registry and the
// aggregator and returns a detach function.
type Publisher struct {
	bus    Bus
	logger Logger
	topics mqtt.Topics
}

// NewPublisher builds a publisher over the given bus.
func NewPublisher(bus Bus, logger Logger) *Publisher {
	return &Publisher{bus: bus, logger: logger}
}

// Attach subscribes to registry and aggregator changes. The returned
// function removes both subscriptions.
func (p *Publisher) Attach(registry *device.Registry, aggregator *state.Aggregator) func() {
	unsubDevices := registry.Subscribe(p.handleDeviceEvent)
	unsubState := aggregator.Subscribe(p.handleSystemState)
	return func() {
		unsubDevices()
		unsubState()
	}
}

// deviceStatus is the wire form of one device status message.
type deviceStatus struct {
	DeviceID  string               `json:"deviceId"`
	Snapshot  device.StateSnapshot `json:"snapshot"`
	Event     string               `json:"event"`
	Error     *statusError         `json:"error,omitempty"`
	Timestamp string               `json:"timestamp"`
}

type statusError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p *Publisher) handleDeviceEvent(ev device.Event) {
	msg := deviceStatus{
		DeviceID:  ev.DeviceID,
		Snapshot:  ev.Snapshot,
		Event:     string(ev.Kind),
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
	}
	if ev.Err != nil {
		msg.Error = &statusError{Code: string(ev.Err.Code), Message: ev.Err.Message}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		p.logWarn("marshalling device status failed", "device_id", ev.DeviceID, "error", err)
		return
	}
	p.publish(p.topics.DeviceStatus(ev.DeviceID), payload)
}

func (p *Publisher) handleSystemState(st state.SystemState) {
	payload, err := json.Marshal(st)
	if err != nil {
		p.logWarn("marshalling system state failed", "error", err)
		return
	}
	p.publish(p.topics.SystemState(), payload)
}

// publish pushes one retained message, logging failures instead of
// propagating them.
func (p *Publisher) publish(topic string, payload []byte) {
	if err := p.bus.PublishRetained(topic, payload); err != nil {
		p.logWarn("status publish failed", "topic", topic, "error", err)
		return
	}
	p.logDebug("status published", "topic", topic)
}

func (p *Publisher) logDebug(msg string, kv ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, kv...)
	}
}

func (p *Publisher) logWarn(msg string, kv ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, kv...)
	}
}
