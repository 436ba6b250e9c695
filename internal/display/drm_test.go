package display

import (
	"os"
	"path/filepath"
	"testing"
)

// writeConnector lays out a fake DRM connector directory.
func writeConnector(t *testing.T, sysRoot, name, status string, connectorID string, edid []byte) {
	t.Helper()
	dir := filepath.Join(sysRoot, "class", "drm", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "status"), []byte(status+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if connectorID != "" {
		if err := os.WriteFile(filepath.Join(dir, "connector_id"), []byte(connectorID+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if edid != nil {
		if err := os.WriteFile(filepath.Join(dir, "edid"), edid, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestEnumeratorDisplays(t *testing.T) {
	sysRoot := t.TempDir()

	writeConnector(t, sysRoot, "card0-HDMI-A-1", "connected", "32",
		buildEDID(0x10AC, 0xA0C5, 42, "P2415Q"))
	writeConnector(t, sysRoot, "card0-DP-1", "disconnected", "30", nil)
	writeConnector(t, sysRoot, "card0-DP-2", "connected", "31", nil)
	writeConnector(t, sysRoot, "card0-eDP-1", "connected", "29",
		buildEDID(0x10AC, 0x0001, 1, "BUILTIN"))

	e := &Enumerator{SysRoot: sysRoot}
	displays := e.Displays()

	if len(displays) != 2 {
		t.Fatalf("Displays() returned %d, want 2", len(displays))
	}

	// Connector name order: DP-2 before HDMI-A-1.
	if displays[0].Connector != "card0-DP-2" {
		t.Errorf("displays[0].Connector = %q, want card0-DP-2", displays[0].Connector)
	}
	if displays[0].Name != "card0-DP-2" {
		t.Errorf("displays[0].Name = %q, want connector fallback", displays[0].Name)
	}
	if displays[0].ID != 31 {
		t.Errorf("displays[0].ID = %d, want 31", displays[0].ID)
	}

	if displays[1].Name != "P2415Q" {
		t.Errorf("displays[1].Name = %q, want P2415Q", displays[1].Name)
	}
	if displays[1].VendorID != "DEL" {
		t.Errorf("displays[1].VendorID = %q, want DEL", displays[1].VendorID)
	}
	if displays[1].ID != 32 {
		t.Errorf("displays[1].ID = %d, want 32", displays[1].ID)
	}
}

func TestEnumeratorEmptySysfs(t *testing.T) {
	e := &Enumerator{SysRoot: t.TempDir()}
	if displays := e.Displays(); len(displays) != 0 {
		t.Errorf("Displays() returned %d, want 0", len(displays))
	}
}

func TestIsInternalConnector(t *testing.T) {
	tests := []struct {
		connector string
		want      bool
	}{
		{"card0-eDP-1", true},
		{"card1-LVDS-1", true},
		{"card0-DSI-1", true},
		{"card0-HDMI-A-1", false},
		{"card0-DP-3", false},
	}

	for _, tt := range tests {
		if got := isInternalConnector(tt.connector); got != tt.want {
			t.Errorf("isInternalConnector(%q) = %v, want %v", tt.connector, got, tt.want)
		}
	}
}
