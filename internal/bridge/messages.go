package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/displaybus/monitord/internal/ddc"
	"github.com/displaybus/monitord/internal/fleet"
)

// MQTT message types for the monitord command and state surface.
// External automation (keyboard daemons, dashboards, hubs) drives the
// fleet through these payloads.

// CommandMessage is a fleet command received on monitord/command/{action}.
// The action comes from the topic; the payload carries targeting and
// parameters.
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with
	// acknowledgements. Assigned by the bridge when the sender omits it.
	ID string `json:"id,omitempty"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp,omitzero"`

	// DeviceID targets a single device. Zero means fleet-wide where the
	// action supports it.
	DeviceID uint32 `json:"device_id,omitempty"`

	// Parameters contains action-specific values.
	// Examples:
	//   {"delta": 10} for adjust_brightness
	//   {"value": 70} for set_brightness
	//   {"muted": true} for set_muted
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated (e.g., "keyboard", "hub").
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was applied to the fleet.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: monitord/ack/{command_id}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgement was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Action is the command action that was acknowledged.
	Action string `json:"action"`

	// Status indicates the acknowledgement status.
	Status AckStatus `json:"status"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g., "DEVICE_NOT_FOUND", "INVALID_COMMAND").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeDeviceNotFound    = "DEVICE_NOT_FOUND"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage carries a device state snapshot.
// Topic: monitord/device/{id}/state
// QoS: 1, Retained: Yes
type StateMessage struct {
	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Device is the full device snapshot.
	Device fleet.Snapshot `json:"device"`
}

// AveragesMessage carries fleet-wide average values.
// Topic: monitord/fleet/averages
// QoS: 1, Retained: Yes
type AveragesMessage struct {
	// Timestamp is when the averages were computed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Brightness is the average stored brightness (0 when no devices).
	Brightness int `json:"brightness"`

	// Volume is the average stored volume (0 when no devices).
	Volume int `json:"volume"`

	// DeviceCount is the number of devices in the current set.
	DeviceCount int `json:"device_count"`
}

// HealthStatus represents the operational status of the service.
type HealthStatus string

const (
	// HealthHealthy indicates monitord is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates monitord is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates monitord is not connected (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates monitord is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates monitord is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports operational status.
// Topic: monitord/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Service is the service identifier ("monitord").
	Service string `json:"service"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the service version.
	Version string `json:"version,omitempty"`

	// UptimeSeconds is how long the service has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// DevicesManaged is the number of devices in the current set.
	DevicesManaged int `json:"devices_managed"`

	// Statistics contains cumulative bus transaction counters.
	Statistics *BusStatistics `json:"statistics,omitempty"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// BusStatistics contains aggregate bus transaction counters.
type BusStatistics struct {
	// Writes is the total number of physical frame writes.
	Writes uint64 `json:"writes"`

	// WriteFailures is the total number of exhausted write transactions.
	WriteFailures uint64 `json:"write_failures"`

	// Reads is the total number of successful value reads.
	Reads uint64 `json:"reads"`

	// ReadFailures is the total number of exhausted read transactions.
	ReadFailures uint64 `json:"read_failures"`

	// Retries is the total number of retried attempts.
	Retries uint64 `json:"retries"`
}

// JSON marshalling helpers

// UnmarshalJSON unmarshals a CommandMessage, tolerating a missing or
// malformed timestamp (senders are often shell scripts).
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err == nil {
			m.Timestamp = t
		}
	}
	return nil
}

// NewAckMessage creates an acknowledgement for a command.
func NewAckMessage(cmd CommandMessage, action string, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Action:    action,
		Status:    status,
	}
}

// NewAckError creates a failed acknowledgement with error details.
func NewAckError(cmd CommandMessage, action, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Action:    action,
		Status:    AckFailed,
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// NewStateMessage creates a state message for a device snapshot.
func NewStateMessage(snap fleet.Snapshot) StateMessage {
	return StateMessage{
		Timestamp: time.Now().UTC(),
		Device:    snap,
	}
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(version string, status HealthStatus, stats ddc.Stats, deviceCount int, startTime time.Time) HealthMessage {
	return HealthMessage{
		Service:        "monitord",
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        version,
		UptimeSeconds:  int64(time.Since(startTime).Seconds()),
		DevicesManaged: deviceCount,
		Statistics: &BusStatistics{
			Writes:        stats.Writes,
			WriteFailures: stats.WriteFailures,
			Reads:         stats.Reads,
			ReadFailures:  stats.ReadFailures,
			Retries:       stats.Retries,
		},
	}
}

// NewLWTMessage creates a Last Will and Testament message for MQTT.
// This message is published by the broker if monitord disconnects
// unexpectedly.
func NewLWTMessage() HealthMessage {
	return HealthMessage{
		Service:   "monitord",
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}
