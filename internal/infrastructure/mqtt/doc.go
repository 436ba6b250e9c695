// Package mqtt provides MQTT client connectivity for monitord.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// monitord uses MQTT as its optional integration surface: external
// automation (keyboard daemons, home-automation hubs, dashboards) sends
// fleet commands and receives retained device state without touching
// the HTTP API.
//
//	keyboard daemon ↔ MQTT Broker ↔ monitord
//
// # Topic Layout
//
//   - monitord/device/{id}/state — retained per-device state
//   - monitord/command/{action}  — inbound fleet commands
//   - monitord/ack/{command_id}  — command acknowledgements
//   - monitord/fleet/averages    — retained fleet-wide averages
//   - monitord/health            — periodic health reports
//   - monitord/system/status     — online/offline status (LWT)
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all fleet commands
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish retained device state
//	topic := mqtt.Topics{}.DeviceState(32)
//	client.PublishRetained(topic, snapshotJSON)
package mqtt
