// Package color parses the hex color strings accepted by the HTTP surface.
package color

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrInvalidFormat is returned for strings that are not rrggbb or rgb hex.
var ErrInvalidFormat = errors.New("color: invalid hex format")

// RGB is a color with 8-bit channels.
type RGB struct {
	R, G, B uint8
}

// Parse decodes "rrggbb" or the "rgb" shorthand, with or without a leading
// '#'. Hex digits are case-insensitive.
func Parse(s string) (RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if (len(h) != 6 && len(h) != 3) || !isHex(h) {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	c, err := colorful.Hex("#" + strings.ToLower(h))
	if err != nil {
		return RGB{}, fmt.Errorf("%w: %q: %w", ErrInvalidFormat, s, err)
	}
	r, g, b := c.RGB255()
	return RGB{R: r, G: g, B: b}, nil
}

// Hex returns the color as lowercase "rrggbb".
func (c RGB) Hex() string {
	return strings.TrimPrefix(c.colorful().Hex(), "#")
}

func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

func (c RGB) colorful() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
