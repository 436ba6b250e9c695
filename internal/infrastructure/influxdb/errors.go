package influxdb

import "errors"

// Sentinel errors for telemetry operations, matchable with errors.Is.
// Write failures are not among them: device-state and bus-counter
// points go through the non-blocking write API, which reports errors
// via the callback registered with SetOnError.
var (
	// ErrNotConnected indicates the client has no usable connection.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial ping or health probe
	// failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled indicates telemetry is switched off in config; the
	// daemon runs without it.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
