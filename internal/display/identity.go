// Package display enumerates the external displays attached to the
// host and the identity metadata used to label them: connector state
// from the DRM subsystem and vendor/product/serial details parsed out
// of each display's EDID blob.
package display

import "fmt"

// Identity describes one external display. Immutable once read;
// re-discovery produces fresh values.
type Identity struct {
	// ID is a stable numeric identifier for logging and UI binding,
	// taken from the DRM connector id.
	ID uint32 `json:"id"`

	// Name is the human-readable model name from the EDID display
	// descriptor, falling back to the connector name.
	Name string `json:"name"`

	// Connector is the DRM connector this display is attached to,
	// e.g. "card0-HDMI-A-1".
	Connector string `json:"connector"`

	// VendorID is the three-letter PNP manufacturer code, e.g. "DEL".
	VendorID string `json:"vendor_id"`

	// ProductID is the manufacturer's product code.
	ProductID uint16 `json:"product_id"`

	// Serial is the numeric serial from the EDID base block. Zero
	// when the manufacturer does not populate it.
	Serial uint32 `json:"serial"`
}

// String returns a compact label for logs.
func (id Identity) String() string {
	return fmt.Sprintf("%s (%s, %s %04X)", id.Name, id.Connector, id.VendorID, id.ProductID)
}
