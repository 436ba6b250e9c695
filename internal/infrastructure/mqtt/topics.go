package mqtt

import "fmt"

// Topic prefixes for the monitord MQTT surface.
//
// All topics live under a single flat scheme: monitord/{category}/...
// Retained state topics let late subscribers see the current fleet
// without a request/response exchange.
const (
	// TopicPrefix is the base for all monitord topics.
	TopicPrefix = "monitord"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "monitord/system"
)

// Topics provides builders for monitord MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState(32)
//	// Returns: "monitord/device/32/state"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceState returns the retained state topic for a device.
//
// Example: monitord/device/32/state
func (Topics) DeviceState(deviceID uint32) string {
	return fmt.Sprintf("%s/device/%d/state", TopicPrefix, deviceID)
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: monitord/device/+/state
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/device/+/state", TopicPrefix)
}

// =============================================================================
// Command Topics
// =============================================================================

// Command returns the topic for a fleet command.
//
// Example: monitord/command/adjust_brightness
func (Topics) Command(action string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, action)
}

// AllCommands returns a pattern matching every command topic.
//
// Pattern: monitord/command/#
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/#", TopicPrefix)
}

// Ack returns the topic for a command acknowledgement.
//
// Example: monitord/ack/9f3b2c10-7c4e-4e0f-b6a1-1f2d3c4b5a69
func (Topics) Ack(commandID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, commandID)
}

// =============================================================================
// Fleet Topics
// =============================================================================

// FleetAverages returns the retained topic for fleet-wide averages.
//
// Example: monitord/fleet/averages
func (Topics) FleetAverages() string {
	return fmt.Sprintf("%s/fleet/averages", TopicPrefix)
}

// Health returns the topic for periodic health reports.
//
// Example: monitord/health
func (Topics) Health() string {
	return fmt.Sprintf("%s/health", TopicPrefix)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
// The Last Will and Testament is published here on unexpected disconnect.
//
// Example: monitord/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllTopics returns a pattern matching all monitord topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: monitord/#
func (Topics) AllTopics() string {
	return "monitord/#"
}
