package mqtt

import "fmt"

// Topic prefixes for the Miras status hierarchy.
//
// All status topics use the scheme: miras/status/{subject}[/{id}]
const (
	// TopicPrefix is the base for all Miras topics.
	TopicPrefix = "miras"

	// TopicPrefixStatus is the base for all status topics.
	TopicPrefixStatus = "miras/status"
)

// Topics provides builders for Miras MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.DeviceStatus("caspar-main")
//	// Returns: "miras/status/device/caspar-main"
type Topics struct{}

// SystemStatus returns the topic carrying core online/offline status.
// The LWT is configured on this topic.
//
// Example: miras/status/core
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/core", TopicPrefixStatus)
}

// DeviceStatus returns the topic carrying one device's status snapshot.
//
// Example: miras/status/device/caspar-main
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/device/%s", TopicPrefixStatus, deviceID)
}

// SystemState returns the topic carrying the aggregated system state.
//
// Example: miras/status/system
func (Topics) SystemState() string {
	return fmt.Sprintf("%s/system", TopicPrefixStatus)
}

// AllDeviceStatuses returns a pattern matching every device status topic.
//
// Pattern: miras/status/device/+
func (Topics) AllDeviceStatuses() string {
	return fmt.Sprintf("%s/device/+", TopicPrefixStatus)
}

// AllTopics returns a pattern matching all Miras topics.
//
// Pattern: miras/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
