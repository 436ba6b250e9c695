package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Bus           BusMetrics     `json:"bus"`
	Devices       DeviceMetrics  `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// BusMetrics contains aggregate DDC/CI bus counters across every
// managed device's controller.
type BusMetrics struct {
	Writes        uint64 `json:"writes"`
	WriteFailures uint64 `json:"write_failures"`
	Reads         uint64 `json:"reads"`
	ReadFailures  uint64 `json:"read_failures"`
	Retries       uint64 `json:"retries"`
}

// DeviceMetrics contains device fleet statistics.
type DeviceMetrics struct {
	Total     int `json:"total"`
	WriteOnly int `json:"write_only"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// Build metrics response
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	// Hub is nil until Start; metrics may be scraped before then
	if s.hub != nil {
		metrics.WebSocket = WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		}
	}

	// Bus counters aggregated across all device controllers. Devices
	// sharing a bus handle share a controller, so its counters appear
	// once per sharing device.
	stats := s.fleet.Stats()
	metrics.Bus = BusMetrics{
		Writes:        stats.Writes,
		WriteFailures: stats.WriteFailures,
		Reads:         stats.Reads,
		ReadFailures:  stats.ReadFailures,
		Retries:       stats.Retries,
	}

	writeOnly := 0
	for _, snap := range s.fleet.Snapshots() {
		if snap.WriteOnly {
			writeOnly++
		}
	}
	metrics.Devices = DeviceMetrics{
		Total:     s.fleet.Count(),
		WriteOnly: writeOnly,
	}

	writeJSON(w, http.StatusOK, metrics)
}
