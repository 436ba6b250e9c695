package i2c

import "errors"

// Domain errors for the I2C transport package.
var (
	// ErrOpenFailed is returned when a bus character device cannot be
	// opened or bound to the display address.
	ErrOpenFailed = errors.New("i2c: open failed")

	// ErrShortWrite is returned when the kernel accepts fewer bytes
	// than the frame contains.
	ErrShortWrite = errors.New("i2c: short write")

	// ErrClosed is returned when an operation is attempted on a
	// closed handle.
	ErrClosed = errors.New("i2c: handle closed")
)
