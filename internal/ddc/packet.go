package ddc

import (
	"encoding/binary"
	"fmt"
)

// DDC/CI addressing. The display listens on 7-bit I2C address 0x37;
// the protocol's checksum convention uses the 8-bit write form of that
// address (0x6E) and the host's sub-address (0x51).
const (
	// destinationAddress is the display's 8-bit write address
	// (0x37 << 1), folded into every outgoing checksum.
	destinationAddress byte = 0x6E

	// sourceAddress is the host sub-address that prefixes every
	// outgoing frame on the wire. The transport layer sends it; the
	// codec folds it into the checksum.
	sourceAddress byte = 0x51

	// replyChecksumSeed is the fixed seed for verifying reply
	// checksums (the display's convention for frames it originates).
	replyChecksumSeed byte = 0x50
)

// Frame layout.
const (
	// lengthFlag is OR-ed into the length byte of every DDC/CI frame.
	lengthFlag byte = 0x80

	opcodeSetVCP      byte = 0x03
	opcodeGetVCP      byte = 0x01
	opcodeGetVCPReply byte = 0x02

	setPacketSize = 6
	getPacketSize = 4

	// ReplyLength is the fixed size of a VCP feature reply. Monitors
	// pad short replies; reads always request exactly this many bytes.
	ReplyLength = 11
)

// Reply byte offsets within a VCP feature reply.
const (
	replyOpcodeOffset  = 2
	replyResultOffset  = 3
	replyControlOffset = 4
	replyMaxOffset     = 6
	replyCurrentOffset = 8
)

// Value is the pair a monitor reports for one control: the current
// setting and the maximum the panel supports.
type Value struct {
	Current uint16
	Max     uint16
}

// BuildSetPacket encodes a VCP set request.
//
// Wire format (the transport prepends the 0x51 source sub-address):
//
//	Byte 0: 0x84           — length flag | 4 payload bytes
//	Byte 1: 0x03           — Set VCP Feature opcode
//	Byte 2: control code
//	Byte 3: value high byte
//	Byte 4: value low byte
//	Byte 5: checksum
//
// The checksum is the XOR of the destination and source addresses
// with every preceding byte of the frame.
func BuildSetPacket(code ControlCode, value uint16) []byte {
	buf := make([]byte, setPacketSize)
	buf[0] = lengthFlag | 0x04
	buf[1] = opcodeSetVCP
	buf[2] = byte(code)
	binary.BigEndian.PutUint16(buf[3:5], value)
	buf[5] = checksum(destinationAddress^sourceAddress, buf[:5])
	return buf
}

// BuildGetPacket encodes a VCP get request for one control.
//
// Wire format:
//
//	Byte 0: 0x82           — length flag | 2 payload bytes
//	Byte 1: 0x01           — Get VCP Feature opcode
//	Byte 2: control code
//	Byte 3: checksum
func BuildGetPacket(code ControlCode) []byte {
	buf := make([]byte, getPacketSize)
	buf[0] = lengthFlag | 0x02
	buf[1] = opcodeGetVCP
	buf[2] = byte(code)
	buf[3] = checksum(destinationAddress^sourceAddress, buf[:3])
	return buf
}

// ParseReply decodes a VCP feature reply and validates it against the
// control code the request asked for.
//
// Reply format:
//
//	Byte 0:   source address (display)
//	Byte 1:   length | 0x80
//	Byte 2:   0x02 — Get VCP Feature reply opcode
//	Byte 3:   result code (0x00 = no error)
//	Byte 4:   control code echoed back
//	Byte 5:   VCP type
//	Byte 6-7: maximum value (big-endian)
//	Byte 8-9: current value (big-endian)
//	Byte 10:  checksum (seed 0x50)
//
// Monitors under load return truncated, zeroed or stale frames;
// every failure mode here maps to ErrInvalidReply so the controller
// can retry rather than surface garbage.
func ParseReply(data []byte, code ControlCode) (Value, error) {
	if len(data) < ReplyLength {
		return Value{}, fmt.Errorf("%w: short frame (%d bytes, need %d)", ErrInvalidReply, len(data), ReplyLength)
	}

	if got, want := checksum(replyChecksumSeed, data[:ReplyLength-1]), data[ReplyLength-1]; got != want {
		return Value{}, fmt.Errorf("%w: checksum mismatch (computed 0x%02X, frame has 0x%02X)", ErrInvalidReply, got, want)
	}

	if data[replyOpcodeOffset] != opcodeGetVCPReply {
		return Value{}, fmt.Errorf("%w: unexpected opcode 0x%02X", ErrInvalidReply, data[replyOpcodeOffset])
	}

	if data[replyResultOffset] != 0x00 {
		return Value{}, fmt.Errorf("%w: result code 0x%02X", ErrInvalidReply, data[replyResultOffset])
	}

	if got := data[replyControlOffset]; got != byte(code) {
		return Value{}, fmt.Errorf("%w: reply for control 0x%02X, asked for 0x%02X", ErrInvalidReply, got, byte(code))
	}

	return Value{
		Max:     binary.BigEndian.Uint16(data[replyMaxOffset : replyMaxOffset+2]),
		Current: binary.BigEndian.Uint16(data[replyCurrentOffset : replyCurrentOffset+2]),
	}, nil
}

// checksum XORs the seed with every byte of data.
func checksum(seed byte, data []byte) byte {
	acc := seed
	for _, b := range data {
		acc ^= b
	}
	return acc
}
