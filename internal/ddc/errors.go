package ddc

import "errors"

// Domain errors for the DDC/CI package.
var (
	// ErrInvalidReply is returned when a received VCP reply frame is
	// malformed: short, bad checksum, wrong opcode or wrong control.
	ErrInvalidReply = errors.New("ddc: invalid reply frame")

	// ErrWriteFailed is returned when a set request exhausts all
	// retry attempts without a single successful bus write.
	ErrWriteFailed = errors.New("ddc: write failed after retries")

	// ErrNoReply is returned when a get request exhausts all retry
	// attempts without a parseable reply from the display.
	ErrNoReply = errors.New("ddc: no valid reply after retries")

	// ErrClosed is returned when an operation is attempted on a
	// controller whose handle has been closed.
	ErrClosed = errors.New("ddc: controller closed")
)
