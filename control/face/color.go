package face

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// RGB is an 8-bit-per-channel color, the format the strip takes.
type RGB struct {
	R, G, B uint8
}

// Black is an unlit pixel.
var Black = RGB{}

// RGBA implements color.Color.
func (c RGB) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R)
	r |= r << 8
	g = uint32(c.G)
	g |= g << 8
	b = uint32(c.B)
	b |= b << 8
	return r, g, b, 0xffff
}

// IsBlack reports whether the pixel is off.
func (c RGB) IsBlack() bool { return c == Black }

// Scale multiplies every channel by f, which must be in [0, 1].
func (c RGB) Scale(f float64) RGB {
	return RGB{R: scale8(c.R, f), G: scale8(c.G, f), B: scale8(c.B, f)}
}

func scale8(v uint8, f float64) uint8 {
	if f <= 0 {
		return 0
	}
	if f >= 1 {
		return v
	}
	return uint8(float64(v)*f + 0.5)
}

// String returns the color as #rrggbb.
func (c RGB) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseRGB parses #rrggbb.
func ParseRGB(s string) (RGB, error) {
	var c RGB
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return RGB{}, fmt.Errorf("parse color %q: %w", s, err)
	}
	return c, nil
}

// MarshalJSON encodes the color as "#rrggbb".
func (c RGB) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes "#rrggbb".
func (c *RGB) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	x, err := ParseRGB(s)
	if err != nil {
		return err
	}
	*c = x
	return nil
}

// MarshalYAML encodes the color as "#rrggbb".
func (c RGB) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// UnmarshalYAML decodes "#rrggbb".
func (c *RGB) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	x, err := ParseRGB(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*c = x
	return nil
}
