package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceState records a device state sample.
//
// Called whenever a device's stored values change, so the bucket holds
// a full history of brightness and volume movements per monitor.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: The device handle identifier (DRM connector id)
//   - name: Human-readable monitor name from the EDID
//   - brightness: Stored brightness percentage (0-100)
//   - volume: Stored volume percentage (0-100)
//   - muted: Stored mute state
//
// Example:
//
//	client.WriteDeviceState(32, "DELL P2415Q", 70, 25, false)
func (c *Client) WriteDeviceState(deviceID uint32, name string, brightness, volume int, muted bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_state",
		map[string]string{
			"device_id": strconv.FormatUint(uint64(deviceID), 10),
			"name":      name,
		},
		map[string]interface{}{
			"brightness": brightness,
			"volume":     volume,
			"muted":      muted,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBusStats records cumulative bus transaction counters.
//
// Used to watch retry and failure rates per monitor connection, which
// surface flaky cables and slow DDC implementations.
//
// Parameters:
//   - bus: The bus device path (e.g., "/dev/i2c-4")
//   - writes, reads, retries, failures: Cumulative counters
func (c *Client) WriteBusStats(bus string, writes, reads, retries, failures uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bus_stats",
		map[string]string{
			"bus": bus,
		},
		map[string]interface{}{
			"writes":   writes,
			"reads":    reads,
			"retries":  retries,
			"failures": failures,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteFleetAverages records fleet-wide average values.
//
// Parameters:
//   - brightness: Average brightness across all devices (0 when none)
//   - volume: Average volume across all devices (0 when none)
//   - deviceCount: Number of devices in the current set
func (c *Client) WriteFleetAverages(brightness, volume, deviceCount int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fleet",
		map[string]string{},
		map[string]interface{}{
			"avg_brightness": brightness,
			"avg_volume":     volume,
			"device_count":   deviceCount,
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
//	    map[string]string{"host": "desk-01"},
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
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
