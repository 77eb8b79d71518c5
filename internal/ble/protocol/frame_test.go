package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLength(t *testing.T) {
	for n := 0; n <= MaxPayloadLen; n++ {
		payload := bytes.Repeat([]byte{0x5a}, n)
		f, err := Encode(0x10, payload)
		require.NoError(t, err, "payload len %d", n)
		assert.Len(t, f.Bytes(), FrameLen, "payload len %d", n)
	}
}

func TestEncodeChecksumFold(t *testing.T) {
	tests := []struct {
		name    string
		id      Command
		payload []byte
	}{
		{"empty", 0x42, nil},
		{"single", 0xAA, []byte{0x33}},
		{"mixed", 0x33, []byte{0x01, 0x80, 0xFF, 0x7E, 0x00, 0x11}},
		{"max", 0x01, bytes.Repeat([]byte{0xC3}, MaxPayloadLen)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Encode(tt.id, tt.payload)
			require.NoError(t, err)

			want := byte(tt.id)
			for _, b := range tt.payload {
				want ^= b
			}
			assert.Equal(t, want, f.Checksum())

			// Padding is zero, so folding the first 19 bytes gives the same result.
			var fold byte
			for _, b := range f[:FrameLen-1] {
				fold ^= b
			}
			assert.Equal(t, f.Checksum(), fold)
			assert.True(t, f.Valid())
		})
	}
}

func TestEncodePadsPayload(t *testing.T) {
	f, err := Encode(0x01, []byte{0x02, 0x03})
	require.NoError(t, err)

	assert.Equal(t, Command(0x01), f.Command())
	assert.Equal(t, []byte{0x02, 0x03}, f.Payload()[:2])
	for i, b := range f.Payload()[2:] {
		assert.Zero(t, b, "padding byte %d", i+2)
	}
}

func TestEncodePayloadTooLarge(t *testing.T) {
	_, err := Encode(0x33, make([]byte, MaxPayloadLen+1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPayloadTooLarge))
}

func TestKeepAlive(t *testing.T) {
	f := KeepAlive()
	want := Frame{0xAA, 0x33}
	want[FrameLen-1] = 0xAA ^ 0x33
	assert.Equal(t, want, f)
	assert.Equal(t, CommandKeepAlive, f.Command())
}

func TestSetColorRed(t *testing.T) {
	f := SetColor(0xFF, 0x00, 0x00)

	payload := []byte{0x05, 0x15, 0x01, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x0F}
	var want Frame
	want[0] = 0x33
	copy(want[1:], payload)
	sum := byte(0x33)
	for _, b := range payload {
		sum ^= b
	}
	want[FrameLen-1] = sum

	assert.Equal(t, want, f)
	assert.True(t, f.Valid())
}

func TestSetColorChannels(t *testing.T) {
	// Sample the channel space rather than all 16M combinations.
	for r := 0; r < 256; r += 15 {
		for g := 0; g < 256; g += 17 {
			for b := 0; b < 256; b += 51 {
				f := SetColor(uint8(r), uint8(g), uint8(b))
				if f.Command() != CommandControl {
					t.Fatalf("SetColor(%d,%d,%d) id = %#x", r, g, b, f[0])
				}
				p := f.Payload()
				if p[3] != uint8(r) || p[4] != uint8(g) || p[5] != uint8(b) {
					t.Fatalf("SetColor(%d,%d,%d) payload rgb = %v", r, g, b, p[3:6])
				}
				if !f.Valid() {
					t.Fatalf("SetColor(%d,%d,%d) checksum invalid", r, g, b)
				}
			}
		}
	}
}

func TestSetPower(t *testing.T) {
	on := SetPower(true)
	off := SetPower(false)

	assert.Equal(t, []byte{0x01, 0x01}, on.Payload()[:2])
	assert.Equal(t, []byte{0x01, 0x00}, off.Payload()[:2])
	assert.Equal(t, byte(0x33^0x01^0x01), on.Checksum())
	assert.Equal(t, byte(0x33^0x01), off.Checksum())
}

func TestSetBrightness(t *testing.T) {
	f := SetBrightness(0x64)
	assert.Equal(t, CommandControl, f.Command())
	assert.Equal(t, []byte{0x04, 0x64}, f.Payload()[:2])
	assert.True(t, f.Valid())
}

func TestFrameValidDetectsCorruption(t *testing.T) {
	f := SetColor(1, 2, 3)
	f[5] ^= 0x40
	assert.False(t, f.Valid())
}

func TestFrameString(t *testing.T) {
	s := KeepAlive().String()
	assert.Equal(t, "[AA 33 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 99]", s)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "control", CommandControl.String())
	assert.Equal(t, "keepalive", CommandKeepAlive.String())
	assert.Equal(t, "0x10", Command(0x10).String())
}
