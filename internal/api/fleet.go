package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// discoverTimeout bounds a discovery pass triggered over HTTP. Probing
// every candidate bus with retries can take several seconds per display.
const discoverTimeout = 30 * time.Second

// adjustRequest is the request body for the fleet adjustment endpoints.
type adjustRequest struct {
	Delta *int `json:"delta"`
}

// averagesResponse is the response body for GET /fleet/averages.
type averagesResponse struct {
	Brightness  int `json:"brightness"`
	Volume      int `json:"volume"`
	DeviceCount int `json:"device_count"`
}

// handleAdjustBrightness applies a signed brightness step to every
// device. This is the endpoint a media-key daemon hits on each press.
func (s *Server) handleAdjustBrightness(w http.ResponseWriter, r *http.Request) {
	delta, ok := parseAdjust(w, r)
	if !ok {
		return
	}

	s.fleet.AdjustAllBrightness(delta)
	s.broadcastAverages()
	s.writeAverages(w)
}

// handleAdjustVolume applies a signed volume step to every device.
func (s *Server) handleAdjustVolume(w http.ResponseWriter, r *http.Request) {
	delta, ok := parseAdjust(w, r)
	if !ok {
		return
	}

	s.fleet.AdjustAllVolume(delta)
	s.broadcastAverages()
	s.writeAverages(w)
}

// handleToggleAllMute flips every device's mute state independently.
func (s *Server) handleToggleAllMute(w http.ResponseWriter, _ *http.Request) {
	s.fleet.ToggleAllMute()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.fleet.Snapshots(),
	})
}

// handleAverages returns the mean stored brightness and volume across
// the fleet. Both are 0 when no devices are managed.
func (s *Server) handleAverages(w http.ResponseWriter, _ *http.Request) {
	s.writeAverages(w)
}

// handleDiscover re-enumerates displays and buses, replacing the
// device set wholesale. Runs synchronously; the response carries the
// new set.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), discoverTimeout)
	defer cancel()

	start := time.Now()
	count := s.fleet.Discover(ctx)
	s.logger.Info("discovery triggered via API",
		"devices", count,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.broadcastAverages()

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   count,
		"devices": s.fleet.Snapshots(),
	})
}

// parseAdjust decodes and validates an adjustment body. On failure it
// writes a 400 response and returns ok=false.
func parseAdjust(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return 0, false
	}
	if req.Delta == nil {
		writeBadRequest(w, "delta is required")
		return 0, false
	}
	return *req.Delta, true
}

// writeAverages writes the current fleet averages response.
func (s *Server) writeAverages(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, averagesResponse{
		Brightness:  s.fleet.AverageBrightness(),
		Volume:      s.fleet.AverageVolume(),
		DeviceCount: s.fleet.Count(),
	})
}

// broadcastAverages pushes the current averages to WebSocket clients
// subscribed to the fleet.averages channel.
func (s *Server) broadcastAverages() {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(ChannelFleetAverages, averagesResponse{
		Brightness:  s.fleet.AverageBrightness(),
		Volume:      s.fleet.AverageVolume(),
		DeviceCount: s.fleet.Count(),
	})
}
