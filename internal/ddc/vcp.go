// Package ddc implements the DDC/CI control protocol spoken over a
// monitor's I2C bus: building and parsing VCP (Virtual Control Panel)
// frames, and a Controller that drives one bus handle with the timing
// and retry discipline flaky monitor firmware requires.
package ddc

import "fmt"

// ControlCode identifies a VCP control on the monitor.
//
// The wire ids are fixed by the MCCS standard; the ones here are the
// controls monitord drives. Each code has a nominal value domain —
// see MaxValue.
type ControlCode byte

const (
	// Brightness is the backlight luminance control (0-100).
	Brightness ControlCode = 0x10

	// Contrast is the contrast control (0-100).
	Contrast ControlCode = 0x12

	// Volume is the speaker/headphone audio volume control (0-100).
	Volume ControlCode = 0x62

	// Mute is the audio mute control. Unlike the continuous controls
	// it is an enumeration: see MuteOn / MuteOff.
	Mute ControlCode = 0x8D

	// InputSource selects the active video input.
	InputSource ControlCode = 0x60

	// PowerMode is the DPM power state control.
	PowerMode ControlCode = 0xD6
)

// Mute enumeration values. Monitors mute on 1 and unmute on 2;
// 0 is reserved and writing it is undefined behaviour on some panels.
const (
	MuteOn  uint16 = 1
	MuteOff uint16 = 2
)

// MaxValue returns the nominal upper bound of the control's value
// domain. Monitors report their own maximum in get replies; this is
// the fallback used for clamping before a device has been read.
func (c ControlCode) MaxValue() uint16 {
	switch c {
	case Brightness, Contrast, Volume:
		return 100
	case Mute:
		return 2
	case InputSource:
		return 0xFF
	case PowerMode:
		return 0x05
	default:
		return 0xFFFF
	}
}

// String returns the control's name, or its hex id if unknown.
func (c ControlCode) String() string {
	switch c {
	case Brightness:
		return "brightness"
	case Contrast:
		return "contrast"
	case Volume:
		return "volume"
	case Mute:
		return "mute"
	case InputSource:
		return "input_source"
	case PowerMode:
		return "power_mode"
	default:
		return fmt.Sprintf("vcp_0x%02X", byte(c))
	}
}
