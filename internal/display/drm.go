package display

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const defaultSysRoot = "/sys"

// internalConnectorPrefixes name the connector types that carry a
// built-in panel. These are excluded from enumeration; monitord only
// drives external displays.
var internalConnectorPrefixes = []string{"eDP", "LVDS", "DSI"}

// Enumerator lists the connected external displays by walking the
// DRM connector directories in sysfs.
type Enumerator struct {
	// SysRoot is the sysfs mount point. Empty means /sys.
	SysRoot string
}

// Displays returns the connected external displays in connector name
// order. Connectors with unreadable or malformed EDID blobs are still
// returned, labelled by their connector name; a display we cannot
// fully identify is still a display we can drive.
func (e *Enumerator) Displays() []Identity {
	sysRoot := e.SysRoot
	if sysRoot == "" {
		sysRoot = defaultSysRoot
	}

	dirs, err := filepath.Glob(filepath.Join(sysRoot, "class", "drm", "card*-*"))
	if err != nil {
		return nil
	}
	sort.Strings(dirs)

	var displays []Identity
	for _, dir := range dirs {
		connector := filepath.Base(dir)
		if isInternalConnector(connector) {
			continue
		}
		if !isConnected(dir) {
			continue
		}

		identity := Identity{
			Name:      connector,
			Connector: connector,
			ID:        connectorID(dir, len(displays)),
		}

		if blob, err := os.ReadFile(filepath.Join(dir, "edid")); err == nil {
			if edid, err := ParseEDID(blob); err == nil {
				identity.VendorID = edid.VendorID
				identity.ProductID = edid.ProductID
				identity.Serial = edid.Serial
				if edid.Name != "" {
					identity.Name = edid.Name
				}
			}
		}

		displays = append(displays, identity)
	}
	return displays
}

// isInternalConnector reports whether the connector carries a
// built-in panel (e.g. "card0-eDP-1").
func isInternalConnector(connector string) bool {
	name := connector
	if idx := strings.Index(name, "-"); idx >= 0 {
		name = name[idx+1:]
	}
	for _, prefix := range internalConnectorPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// isConnected reads the connector's status attribute.
func isConnected(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "status"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "connected"
}

// connectorID reads the DRM connector id, falling back to the
// enumeration index when the attribute is missing.
func connectorID(dir string, index int) uint32 {
	data, err := os.ReadFile(filepath.Join(dir, "connector_id"))
	if err != nil {
		return uint32(index + 1)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return uint32(index + 1)
	}
	return uint32(id)
}
