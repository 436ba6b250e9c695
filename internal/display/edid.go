package display

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// EDID base block layout.
const (
	edidBlockSize = 128

	edidVendorOffset  = 8
	edidProductOffset = 10
	edidSerialOffset  = 12

	// Four 18-byte descriptor blocks live at fixed offsets.
	edidDescriptorStart = 54
	edidDescriptorSize  = 18
	edidDescriptorCount = 4

	// Display descriptor tag for the monitor name string.
	edidTagDisplayName = 0xFC
)

// edidHeader is the fixed 8-byte EDID signature.
var edidHeader = []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// EDID holds the identity fields parsed from a display's EDID base
// block. Timing and colourimetry data is ignored; only what names
// the panel matters here.
type EDID struct {
	VendorID  string
	ProductID uint16
	Serial    uint32
	Name      string
}

// ParseEDID parses the base block of an EDID blob.
//
// Validation is limited to the 8-byte signature and the block
// checksum (all 128 bytes sum to zero mod 256). Extension blocks are
// ignored. The monitor name comes from the 0xFC display descriptor
// when present.
func ParseEDID(data []byte) (EDID, error) {
	if len(data) < edidBlockSize {
		return EDID{}, fmt.Errorf("%w: %d bytes, need %d", ErrInvalidEDID, len(data), edidBlockSize)
	}

	for i, b := range edidHeader {
		if data[i] != b {
			return EDID{}, fmt.Errorf("%w: bad signature at byte %d", ErrInvalidEDID, i)
		}
	}

	var sum byte
	for _, b := range data[:edidBlockSize] {
		sum += b
	}
	if sum != 0 {
		return EDID{}, fmt.Errorf("%w: checksum residue 0x%02X", ErrInvalidEDID, sum)
	}

	return EDID{
		VendorID:  decodePNPID(binary.BigEndian.Uint16(data[edidVendorOffset : edidVendorOffset+2])),
		ProductID: binary.LittleEndian.Uint16(data[edidProductOffset : edidProductOffset+2]),
		Serial:    binary.LittleEndian.Uint32(data[edidSerialOffset : edidSerialOffset+4]),
		Name:      descriptorName(data),
	}, nil
}

// decodePNPID unpacks the three 5-bit letters of a PNP manufacturer
// id ('A' encoded as 1).
func decodePNPID(raw uint16) string {
	letters := [3]byte{
		byte(raw>>10) & 0x1F,
		byte(raw>>5) & 0x1F,
		byte(raw) & 0x1F,
	}
	out := make([]byte, 0, 3)
	for _, l := range letters {
		if l < 1 || l > 26 {
			return ""
		}
		out = append(out, 'A'+l-1)
	}
	return string(out)
}

// descriptorName scans the four descriptor blocks for the monitor
// name display descriptor. Returns "" when absent.
func descriptorName(data []byte) string {
	for i := 0; i < edidDescriptorCount; i++ {
		desc := data[edidDescriptorStart+i*edidDescriptorSize:]
		desc = desc[:edidDescriptorSize]

		// Display descriptors start 00 00 00 <tag> 00; detailed
		// timing descriptors have a non-zero pixel clock instead.
		if desc[0] != 0 || desc[1] != 0 || desc[2] != 0 || desc[4] != 0 {
			continue
		}
		if desc[3] != edidTagDisplayName {
			continue
		}

		name := string(desc[5:])
		if idx := strings.IndexByte(name, '\n'); idx >= 0 {
			name = name[:idx]
		}
		return strings.TrimSpace(name)
	}
	return ""
}
