// Package mqtt provides the optional status-publishing client for Miras Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Miras Core publishes device and system status to MQTT so facility
// monitoring systems can observe the production stack without holding a
// WebSocket connection. The bus is outbound only: commands never arrive
// via MQTT.
//
//	Miras Core → MQTT Broker → Monitoring / NMS
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceStatus("caspar-main")
//	client.PublishRetained(topic, payload)
package mqtt
