package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/displaybus/monitord/internal/display"
	"github.com/displaybus/monitord/internal/fleet"
	"github.com/displaybus/monitord/internal/infrastructure/database"
)

// History query limits.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// setStateRequest is the request body for PUT /devices/{id}/state.
// Absent fields are left unchanged.
type setStateRequest struct {
	Brightness *int  `json:"brightness"`
	Volume     *int  `json:"volume"`
	Muted      *bool `json:"muted"`
}

// handleListDevices returns every managed display with its stored state.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	snaps := s.fleet.Snapshots()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": snaps,
		"count":   len(snaps),
	})
}

// handleGetDevice returns one display's stored state.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDeviceID(w, r)
	if !ok {
		return
	}

	snap, found := s.findSnapshot(id)
	if !found {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// handleSetDeviceState applies absolute values to one display.
// Values outside 0-100 are clamped by the fleet; the hardware write
// happens asynchronously on the device's bus lane.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDeviceID(w, r)
	if !ok {
		return
	}

	var req setStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Brightness == nil && req.Volume == nil && req.Muted == nil {
		writeBadRequest(w, "at least one of brightness, volume, muted is required")
		return
	}

	if req.Brightness != nil {
		if err := s.fleet.SetBrightness(id, *req.Brightness); err != nil {
			s.writeFleetError(w, err)
			return
		}
	}
	if req.Volume != nil {
		if err := s.fleet.SetVolume(id, *req.Volume); err != nil {
			s.writeFleetError(w, err)
			return
		}
	}
	if req.Muted != nil {
		if err := s.fleet.SetMuted(id, *req.Muted); err != nil {
			s.writeFleetError(w, err)
			return
		}
	}

	// Stored values update optimistically, so the snapshot already
	// reflects the request.
	snap, found := s.findSnapshot(id)
	if !found {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleToggleDeviceMute flips one display's mute state.
func (s *Server) handleToggleDeviceMute(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDeviceID(w, r)
	if !ok {
		return
	}

	if err := s.fleet.ToggleMute(id); err != nil {
		s.writeFleetError(w, err)
		return
	}

	snap, found := s.findSnapshot(id)
	if !found {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleDeviceHistory returns persisted value changes for one display,
// newest first. Query parameter: limit (default 50, max 500).
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDeviceID(w, r)
	if !ok {
		return
	}

	snap, found := s.findSnapshot(id)
	if !found {
		writeNotFound(w, "device not found")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries := []database.HistoryEntry{}
	if s.store != nil {
		key := database.DisplayKey(display.Identity{
			VendorID:  snap.VendorID,
			ProductID: snap.ProductID,
			Serial:    snap.Serial,
			Connector: snap.Connector,
		})

		var err error
		entries, err = s.store.History(r.Context(), key, limit)
		if err != nil {
			s.logger.Error("history query failed", "device_id", id, "error", err)
			writeInternalError(w, "failed to query history")
			return
		}
		if entries == nil {
			entries = []database.HistoryEntry{}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"history":   entries,
		"count":     len(entries),
	})
}

// parseDeviceID extracts and parses the {id} URL parameter. On failure
// it writes a 400 response and returns ok=false.
func parseDeviceID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeBadRequest(w, "device id must be an unsigned integer")
		return 0, false
	}
	return uint32(id), true
}

// findSnapshot returns the snapshot for a device id.
func (s *Server) findSnapshot(id uint32) (fleet.Snapshot, bool) {
	for _, snap := range s.fleet.Snapshots() {
		if snap.ID == id {
			return snap, true
		}
	}
	return fleet.Snapshot{}, false
}

// writeFleetError maps fleet errors to HTTP responses.
func (s *Server) writeFleetError(w http.ResponseWriter, err error) {
	if errors.Is(err, fleet.ErrDeviceNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	writeInternalError(w, err.Error())
}
