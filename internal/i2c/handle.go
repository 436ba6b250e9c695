// Package i2c provides the bus transport the DDC/CI layer drives:
// an opaque Handle over one I2C character device, plus enumeration of
// candidate bus nodes from the DRM subsystem and /dev.
package i2c

// DDC/CI bus addressing constants, fixed by the standard.
const (
	// DisplayAddress is the 7-bit I2C address every DDC/CI-capable
	// display listens on.
	DisplayAddress byte = 0x37

	// WriteDataAddress is the sub-address prefixed to every outgoing
	// command frame.
	WriteDataAddress byte = 0x51

	// ReadDataAddress is the sub-address for reads. The reply is
	// length-framed, so by convention this is zero and ignored by
	// the kernel transport.
	ReadDataAddress byte = 0x00
)

// Handle is one open conversation with a display's control bus.
//
// A handle is exclusively owned by one device once paired; callers
// must not issue overlapping operations on the same handle.
type Handle interface {
	// Write sends data to the display, prefixed with the given
	// sub-address.
	Write(dataAddress byte, data []byte) error

	// Read reads up to len(buf) bytes of reply from the display and
	// returns the count read. The data address is accepted for
	// signature symmetry; the kernel transport ignores it.
	Read(dataAddress byte, buf []byte) (int, error)

	// Name identifies the underlying bus node for logging.
	Name() string

	// Close releases the bus node.
	Close() error
}
