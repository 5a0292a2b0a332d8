// Package face draws the time onto the 60-pixel ring.
//
// Every face is an ordered draw list: a list of Layers, each with the positions it lights and the
// BlendFunc used to put them into the frame.  Compose runs the list into a fresh buffer, so
// nothing from a previous frame can leak into the next one.
package face

import (
	"errors"
	"fmt"
	"strings"
)

// TimeOfDay is the wall-clock time to render.  Hour may be 0-24; only hour%12 matters.
type TimeOfDay struct {
	Hour, Minute, Second int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// HourPosition is the ring position of the hour hand.  It moves one position every 12 minutes,
// so it sits between the hour marks like a real hour hand.
func (t TimeOfDay) HourPosition() int {
	return Wrap((t.Hour%12)*5 + t.Minute/12)
}

// Mode selects one of the faces.
type Mode int

const (
	Classic   Mode = iota // Three hands.
	MinuteArc             // Hour and second hands, minutes as an arc.
	FullArc               // Hour and minute arcs blended together, second hand.
)

// Modes lists every Mode in display order.
var Modes = []Mode{Classic, MinuteArc, FullArc}

// ErrInvalidMode is returned when a mode name is not recognized.
var ErrInvalidMode = errors.New("invalid render mode")

func (m Mode) String() string {
	switch m {
	case Classic:
		return "classic"
	case MinuteArc:
		return "minarc"
	case FullArc:
		return "arc"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses a mode name.  The short names ("classic", "minarc",
// "arc") are accepted, as are "minutearc" and "fullarc".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classic":
		return Classic, nil
	case "minarc", "minutearc", "minute-arc":
		return MinuteArc, nil
	case "arc", "fullarc", "full-arc":
		return FullArc, nil
	default:
		return Classic, fmt.Errorf("%q: %w", s, ErrInvalidMode)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m < Classic || m > FullArc {
		return nil, fmt.Errorf("%d: %w", int(m), ErrInvalidMode)
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	x, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = x
	return nil
}

// Renderer builds the draw list for one face.
type Renderer interface {
	Mode() Mode
	Layers(t TimeOfDay, s Scheme) []Layer
}

// ForMode returns the renderer for m.
func ForMode(m Mode) (Renderer, error) {
	switch m {
	case Classic:
		return classic{}, nil
	case MinuteArc:
		return minuteArc{}, nil
	case FullArc:
		return fullArc{}, nil
	}
	return nil, fmt.Errorf("%v: %w", m, ErrInvalidMode)
}

// Render draws t with r.
func Render(r Renderer, t TimeOfDay, s Scheme) PixelBuffer {
	return Compose(r.Layers(t, s)...)
}

// Clockface is the background layer of dim marks every five minutes.
func Clockface(s Scheme) Layer {
	l := Layer{Name: "ticks", Blend: Over}
	for i := 0; i < Pixels; i += 5 {
		c := s.Tick
		if i%15 == 0 {
			c = s.QuarterTick
		}
		l.Spots = append(l.Spots, Spot{Pos: i, Color: c})
	}
	return l
}

// HourHand is a bright center pixel with a half-brightness pixel on each side.
func HourHand(t TimeOfDay, s Scheme) Layer {
	p := t.HourPosition()
	half := s.Hour.Scale(0.5)
	return Layer{Name: "hour", Blend: Over, Spots: []Spot{
		{Pos: p - 1, Color: half},
		{Pos: p + 1, Color: half},
		{Pos: p, Color: s.Hour},
	}}
}

// MinuteHand is split between the current minute and the next one in proportion to the
// seconds, so the hand creeps forward instead of jumping.
func MinuteHand(t TimeOfDay, s Scheme) Layer {
	frac := float64(t.Second) / 60
	return Layer{Name: "minute", Blend: Over, Spots: []Spot{
		{Pos: t.Minute + 1, Color: s.Minute.Scale(frac)},
		{Pos: t.Minute, Color: s.Minute.Scale(1 - frac)},
	}}
}

// SecondHand is one pixel that jumps once a second.
func SecondHand(t TimeOfDay, s Scheme) Layer {
	return Layer{Name: "second", Blend: Over, Spots: []Spot{{Pos: t.Second, Color: s.Second}}}
}

type classic struct{}

func (classic) Mode() Mode { return Classic }

func (classic) Layers(t TimeOfDay, s Scheme) []Layer {
	return []Layer{Clockface(s), HourHand(t, s), MinuteHand(t, s), SecondHand(t, s)}
}

type minuteArc struct{}

func (minuteArc) Mode() Mode { return MinuteArc }

func (minuteArc) Layers(t TimeOfDay, s Scheme) []Layer {
	return []Layer{
		Clockface(s),
		{Name: "minute-arc", Blend: Over, Spots: arc(t.Minute, s.MinuteArc)},
		HourHand(t, s),
		SecondHand(t, s),
	}
}

type fullArc struct{}

func (fullArc) Mode() Mode { return FullArc }

// Layers draws both arcs additively.  Where they overlap the two hues mix into a third color, so
// both are still readable.
func (fullArc) Layers(t TimeOfDay, s Scheme) []Layer {
	return []Layer{
		Clockface(s),
		{Name: "hour-arc", Blend: Add, Spots: arc(t.HourPosition(), s.HourArc)},
		{Name: "minute-arc", Blend: Add, Spots: arc(t.Minute, s.MinuteArcFull)},
		SecondHand(t, s),
	}
}
