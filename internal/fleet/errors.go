package fleet

import "errors"

// Domain errors for the fleet package.
var (
	// ErrDeviceNotFound is returned when a lookup names a device id
	// not present in the current device set.
	ErrDeviceNotFound = errors.New("fleet: device not found")
)
