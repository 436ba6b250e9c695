// Package bridge connects the device fleet to MQTT.
//
// The bridge subscribes to monitord/command/# and applies fleet commands
// (brightness/volume steps, mute toggles, per-device sets, re-discovery)
// to the device manager. Every command is acknowledged on
// monitord/ack/{command_id}.
//
// In the other direction it publishes retained per-device state on
// monitord/device/{id}/state whenever stored values change, retained
// fleet averages on monitord/fleet/averages, and periodic retained
// health reports on monitord/health.
//
// # Commands
//
//   - adjust_brightness: {"parameters": {"delta": 10}}
//   - adjust_volume:     {"parameters": {"delta": -5}}
//   - toggle_mute:       fleet-wide, or {"device_id": 32} for one device
//   - set_brightness:    {"device_id": 32, "parameters": {"value": 70}}
//   - set_volume:        {"device_id": 32, "parameters": {"value": 25}}
//   - set_muted:         {"device_id": 32, "parameters": {"muted": true}}
//   - discover:          re-enumerate displays and buses
//
// # Usage
//
//	br, err := bridge.New(bridge.Options{
//	    MQTTClient: mqttClient,
//	    Fleet:      manager,
//	    Version:    version,
//	    Logger:     log,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := br.Start(ctx); err != nil {
//	    return err
//	}
//	defer br.Stop()
package bridge
