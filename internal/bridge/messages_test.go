package bridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/displaybus/monitord/internal/ddc"
	"github.com/displaybus/monitord/internal/fleet"
)

func TestCommandMessageUnmarshal(t *testing.T) {
	data := []byte(`{
		"id": "cmd-42",
		"timestamp": "2026-08-20T10:30:00Z",
		"device_id": 32,
		"parameters": {"delta": 10},
		"source": "keyboard"
	}`)

	var cmd CommandMessage
	if err := json.Unmarshal(data, &cmd); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if cmd.ID != "cmd-42" || cmd.DeviceID != 32 || cmd.Source != "keyboard" {
		t.Errorf("cmd = %+v", cmd)
	}
	if cmd.Timestamp.IsZero() {
		t.Error("timestamp not parsed")
	}
	if delta, ok := cmd.Parameters["delta"].(float64); !ok || delta != 10 {
		t.Errorf("delta = %v", cmd.Parameters["delta"])
	}
}

func TestCommandMessageToleratesBadTimestamp(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing", `{"id": "a"}`},
		{"empty", `{"id": "a", "timestamp": ""}`},
		{"malformed", `{"id": "a", "timestamp": "yesterday"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd CommandMessage
			if err := json.Unmarshal([]byte(tt.data), &cmd); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if cmd.ID != "a" {
				t.Errorf("id = %q", cmd.ID)
			}
			if !cmd.Timestamp.IsZero() {
				t.Errorf("timestamp = %v, want zero", cmd.Timestamp)
			}
		})
	}
}

func TestNewAckMessage(t *testing.T) {
	cmd := CommandMessage{ID: "cmd-1"}

	ack := NewAckMessage(cmd, "adjust_brightness", AckAccepted)

	if ack.CommandID != "cmd-1" || ack.Action != "adjust_brightness" || ack.Status != AckAccepted {
		t.Errorf("ack = %+v", ack)
	}
	if ack.Error != nil {
		t.Error("accepted ack should have no error")
	}
}

func TestNewAckError(t *testing.T) {
	cmd := CommandMessage{ID: "cmd-2"}

	ack := NewAckError(cmd, "set_brightness", ErrCodeDeviceNotFound, "no such device")

	if ack.Status != AckFailed {
		t.Errorf("status = %s, want failed", ack.Status)
	}
	if ack.Error == nil || ack.Error.Code != ErrCodeDeviceNotFound || ack.Error.Message != "no such device" {
		t.Errorf("error = %+v", ack.Error)
	}
}

func TestNewStateMessage(t *testing.T) {
	snap := fleet.Snapshot{ID: 32, Name: "P2415Q", Brightness: 70, Volume: 25, Muted: true}

	msg := NewStateMessage(snap)

	if msg.Device.ID != 32 || msg.Device.Brightness != 70 || !msg.Device.Muted {
		t.Errorf("device = %+v", msg.Device)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestNewHealthMessage(t *testing.T) {
	stats := ddc.Stats{Writes: 100, WriteFailures: 2, Reads: 40, ReadFailures: 1, Retries: 5}
	start := time.Now().Add(-90 * time.Second)

	msg := NewHealthMessage("1.2.3", HealthHealthy, stats, 2, start)

	if msg.Service != "monitord" || msg.Status != HealthHealthy || msg.Version != "1.2.3" {
		t.Errorf("msg = %+v", msg)
	}
	if msg.UptimeSeconds < 89 || msg.UptimeSeconds > 92 {
		t.Errorf("uptime = %d, want ~90", msg.UptimeSeconds)
	}
	if msg.DevicesManaged != 2 {
		t.Errorf("devices = %d", msg.DevicesManaged)
	}
	if msg.Statistics == nil || msg.Statistics.Writes != 100 || msg.Statistics.Retries != 5 {
		t.Errorf("statistics = %+v", msg.Statistics)
	}
}

func TestNewLWTMessage(t *testing.T) {
	msg := NewLWTMessage()

	if msg.Status != HealthOffline {
		t.Errorf("status = %s, want offline", msg.Status)
	}
	if msg.Reason != "unexpected_disconnect" {
		t.Errorf("reason = %q", msg.Reason)
	}
}
