// Package protocol implements the fixed-length command frames understood by
// the light's vendor GATT characteristic.
//
// Every frame is 20 bytes on the wire:
//
//	byte 0      command identifier
//	bytes 1..18 payload, zero padded
//	byte 19     XOR checksum of the identifier and payload
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// FrameLen is the size of every frame written to the characteristic.
	FrameLen = 20
	// MaxPayloadLen is the largest payload Encode accepts.
	MaxPayloadLen = 17
)

// ErrPayloadTooLarge is returned by Encode when the payload does not fit
// in a frame.
var ErrPayloadTooLarge = errors.New("protocol: payload too large")

// Command is the identifier byte that leads every frame.
type Command byte

const (
	CommandControl   Command = 0x33 // state changes: color, power, brightness
	CommandKeepAlive Command = 0xAA
)

func (c Command) String() string {
	switch c {
	case CommandControl:
		return "control"
	case CommandKeepAlive:
		return "keepalive"
	default:
		return fmt.Sprintf("%#02x", byte(c))
	}
}

// Control sub-commands carried in the first payload byte of a
// CommandControl frame.
const (
	controlPower      = 0x01
	controlBrightness = 0x04
	controlColor      = 0x05
)

// Frame is a complete, checksummed command.
type Frame [FrameLen]byte

// Command returns the identifier byte of the frame.
func (f Frame) Command() Command { return Command(f[0]) }

// Payload returns the padded payload bytes.
func (f Frame) Payload() []byte { return f[1 : FrameLen-1] }

// Checksum returns the trailing checksum byte.
func (f Frame) Checksum() byte { return f[FrameLen-1] }

// Bytes returns a copy of the frame suitable for writing.
func (f Frame) Bytes() []byte {
	b := make([]byte, FrameLen)
	copy(b, f[:])
	return b
}

// Valid reports whether the checksum matches the rest of the frame.
func (f Frame) Valid() bool {
	return checksum(f[0], f[1:FrameLen-1]) == f.Checksum()
}

// String formats the frame as upper-case hex bytes, e.g. [AA 33 00 ... 99].
func (f Frame) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range f {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	b.WriteByte(']')
	return b.String()
}

// Encode builds a frame from a command identifier and payload. The
// checksum is the XOR fold of id followed by every payload byte.
func Encode(id Command, payload []byte) (Frame, error) {
	var f Frame
	if len(payload) > MaxPayloadLen {
		return f, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(payload), MaxPayloadLen)
	}
	f[0] = byte(id)
	copy(f[1:], payload)
	f[FrameLen-1] = checksum(byte(id), payload)
	return f, nil
}

// mustEncode is for the canned builders whose payloads are known to fit.
func mustEncode(id Command, payload []byte) Frame {
	f, err := Encode(id, payload)
	if err != nil {
		panic(err)
	}
	return f
}

func checksum(id byte, payload []byte) byte {
	sum := id
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// KeepAlive returns the liveness frame the light expects every few seconds.
func KeepAlive() Frame {
	return mustEncode(CommandKeepAlive, []byte{0x33})
}

// SetColor returns a frame that sets every segment of the light to r, g, b.
func SetColor(r, g, b uint8) Frame {
	return mustEncode(CommandControl, []byte{
		controlColor, 0x15, 0x01, // manual color mode
		r, g, b,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0xFF, 0x0F, // all segments
	})
}

// SetPower returns a frame that switches the light on or off.
func SetPower(on bool) Frame {
	var state byte
	if on {
		state = 0x01
	}
	return mustEncode(CommandControl, []byte{controlPower, state})
}

// SetBrightness returns a frame that sets the light's brightness.
func SetBrightness(level uint8) Frame {
	return mustEncode(CommandControl, []byte{controlBrightness, level})
}
