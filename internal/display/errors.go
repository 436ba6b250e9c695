package display

import "errors"

// Domain errors for the display package.
var (
	// ErrInvalidEDID is returned when an EDID blob fails header or
	// checksum validation.
	ErrInvalidEDID = errors.New("display: invalid EDID block")
)
