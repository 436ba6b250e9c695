package i2c

import (
	"fmt"
	"os"
	"sync"
	"syscall"
)

// i2cSlave is the I2C_SLAVE ioctl request: bind the fd to a 7-bit
// peripheral address so plain read/write syscalls target it.
const i2cSlave = 0x0703

// Device is a Handle over a Linux i2c-dev character device
// (/dev/i2c-N), bound to the display address at open time.
type Device struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Compile-time check that Device satisfies Handle.
var _ Handle = (*Device)(nil)

// Open opens the given i2c-dev node and binds it to the DDC/CI
// display address.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpenFailed, path, err)
	}

	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), i2cSlave, uintptr(DisplayAddress)); errno != 0 {
		//nolint:errcheck // Best-effort close on the failure path
		f.Close()
		return nil, fmt.Errorf("%w: %s: binding address 0x%02X: %v", ErrOpenFailed, path, DisplayAddress, errno)
	}

	return &Device{f: f, path: path}, nil
}

// Write sends the sub-address followed by the frame in a single bus
// transaction.
func (d *Device) Write(dataAddress byte, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return ErrClosed
	}

	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, dataAddress)
	buf = append(buf, data...)

	n, err := d.f.Write(buf)
	if err != nil {
		return fmt.Errorf("i2c: write %s: %w", d.path, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: %s: wrote %d of %d bytes", ErrShortWrite, d.path, n, len(buf))
	}
	return nil
}

// Read reads up to len(buf) bytes of reply. The data address is
// ignored; replies are length-framed.
func (d *Device) Read(_ byte, buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return 0, ErrClosed
	}

	n, err := d.f.Read(buf)
	if err != nil {
		return n, fmt.Errorf("i2c: read %s: %w", d.path, err)
	}
	return n, nil
}

// Name returns the device node path.
func (d *Device) Name() string {
	return d.path
}

// Close releases the device node. Safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	if err != nil {
		return fmt.Errorf("i2c: close %s: %w", d.path, err)
	}
	return nil
}
