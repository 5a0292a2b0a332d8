package face

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Scheme is a color palette for all three faces.
type Scheme struct {
	Name          string `json:"name" yaml:"name"`
	Hour          RGB    `json:"hour" yaml:"hour"`
	Minute        RGB    `json:"minute" yaml:"minute"`
	Second        RGB    `json:"second" yaml:"second"`
	Tick          RGB    `json:"tick" yaml:"tick"`
	QuarterTick   RGB    `json:"quarter_tick" yaml:"quarter_tick"`
	MinuteArc     RGB    `json:"minute_arc" yaml:"minute_arc"`         // MinuteArc face.
	HourArc       RGB    `json:"hour_arc" yaml:"hour_arc"`             // FullArc face.
	MinuteArcFull RGB    `json:"minute_arc_full" yaml:"minute_arc_full"` // FullArc face.
}

// ErrUnknownScheme is returned for a scheme name that isn't built in.
var ErrUnknownScheme = errors.New("unknown color scheme")

// DefaultScheme uses pure red, green and blue.
var DefaultScheme = Scheme{
	Name:          "default",
	Hour:          RGB{R: 255},
	Minute:        RGB{G: 255},
	Second:        RGB{B: 255},
	Tick:          RGB{R: 12, G: 12, B: 12},
	QuarterTick:   RGB{R: 40, G: 40, B: 40},
	MinuteArc:     RGB{G: 96, B: 24},
	HourArc:       RGB{R: 255},
	MinuteArcFull: RGB{G: 255},
}

var schemes = map[string]Scheme{
	"default": DefaultScheme,
	"warm": {
		Name:          "warm",
		Hour:          RGB{R: 255, G: 60},
		Minute:        RGB{R: 255, G: 160, B: 20},
		Second:        RGB{R: 120, B: 40},
		Tick:          RGB{R: 14, G: 6},
		QuarterTick:   RGB{R: 48, G: 20},
		MinuteArc:     RGB{R: 96, G: 48},
		HourArc:       RGB{R: 200, G: 20},
		MinuteArcFull: RGB{G: 120, B: 10},
	},
	"ice": {
		Name:          "ice",
		Hour:          RGB{B: 255},
		Minute:        RGB{G: 160, B: 255},
		Second:        RGB{R: 200, G: 200, B: 255},
		Tick:          RGB{G: 6, B: 14},
		QuarterTick:   RGB{G: 20, B: 48},
		MinuteArc:     RGB{G: 40, B: 96},
		HourArc:       RGB{B: 220},
		MinuteArcFull: RGB{G: 180},
	},
	"mono": {
		Name:          "mono",
		Hour:          RGB{R: 255, G: 255, B: 255},
		Minute:        RGB{R: 140, G: 140, B: 140},
		Second:        RGB{R: 60, G: 60, B: 60},
		Tick:          RGB{R: 8, G: 8, B: 8},
		QuarterTick:   RGB{R: 24, G: 24, B: 24},
		MinuteArc:     RGB{R: 60, G: 60, B: 60},
		HourArc:       RGB{R: 110, G: 110, B: 110},
		MinuteArcFull: RGB{R: 60, G: 60, B: 60},
	},
}

// SchemeByName looks up a built-in scheme.
func SchemeByName(name string) (Scheme, error) {
	s, ok := schemes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Scheme{}, fmt.Errorf("%q: %w", name, ErrUnknownScheme)
	}
	return s, nil
}

// SchemeNames returns the names of the built-in schemes, sorted.
func SchemeNames() []string {
	var names []string
	for n := range schemes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
