package clock

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jrockway/ring-clock/control/brightness"
	"github.com/jrockway/ring-clock/control/face"
	"github.com/jrockway/ring-clock/control/idle"
	"github.com/jrockway/ring-clock/control/timesource"
)

// Override is the manual on/off switch.
type Override int

const (
	Auto     Override = iota // The idle timer decides.
	ForceOn                  // Always lit.
	ForceOff                 // Dark immediately and until switched back.
)

// ErrInvalidOverride is returned for an override name that isn't on, off or auto.
var ErrInvalidOverride = errors.New("invalid override")

func (o Override) String() string {
	switch o {
	case Auto:
		return "auto"
	case ForceOn:
		return "on"
	case ForceOff:
		return "off"
	}
	return fmt.Sprintf("Override(%d)", int(o))
}

// ParseOverride parses "auto", "on" or "off".
func ParseOverride(s string) (Override, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto":
		return Auto, nil
	case "on":
		return ForceOn, nil
	case "off", "instantoff":
		return ForceOff, nil
	}
	return Auto, fmt.Errorf("%q: %w", s, ErrInvalidOverride)
}

func (o Override) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Override) UnmarshalText(text []byte) error {
	x, err := ParseOverride(string(text))
	if err != nil {
		return err
	}
	*o = x
	return nil
}

// DisplayState is whether the ring is lit.  PendingOff is the one cycle in which the ring goes
// dark: a black frame is committed, and the next cycle is Off.
type DisplayState int

const (
	On DisplayState = iota
	Off
	PendingOff
)

func (s DisplayState) String() string {
	switch s {
	case On:
		return "on"
	case Off:
		return "off"
	case PendingOff:
		return "pending-off"
	}
	return fmt.Sprintf("DisplayState(%d)", int(s))
}

func (s DisplayState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Inputs is everything one render cycle reads from the outside world.
type Inputs struct {
	Local      timesource.Local
	Ambient    uint16
	AmbientErr error
	Motion     bool
	MotionErr  error
}

// Frame is the result of one render cycle.
type Frame struct {
	Pixels face.PixelBuffer
	Level  brightness.Level
	State  DisplayState
	Commit bool // False when the ring is already dark and nothing needs sending.
}

// Context is the render state carried from one cycle to the next.  It is owned by one goroutine.
type Context struct {
	Mode       face.Mode
	Scheme     face.Scheme
	Override   Override
	Idle       *idle.Machine
	Brightness *brightness.Controller

	lastMinute int
	lit        bool
	state      DisplayState
	renderer   face.Renderer
}

// NewContext returns a Context showing the Classic face in the default scheme.
func NewContext(idleThreshold int, b brightness.Config) *Context {
	return &Context{
		Mode:       face.Classic,
		Scheme:     face.DefaultScheme,
		Idle:       idle.New(idleThreshold),
		Brightness: brightness.New(b),
		lastMinute: -1,
		lit:        true,
	}
}

// State returns the display state produced by the last Step.
func (c *Context) State() DisplayState { return c.state }

func (c *Context) wantLit() bool {
	switch c.Override {
	case ForceOn:
		return true
	case ForceOff:
		return false
	}
	return c.Idle.State() == idle.On
}

// Step runs one render cycle.  It touches no hardware and reads no clocks; the same Context and
// Inputs always give the same Frame.
func (c *Context) Step(in Inputs) Frame {
	if in.MotionErr == nil && in.Motion {
		c.Idle.Handle(idle.MotionDetected)
	}
	if m := in.Local.Time.Minute; m != c.lastMinute {
		if c.lastMinute >= 0 {
			c.Idle.Handle(idle.MinuteTick)
		}
		c.lastMinute = m
	}
	level := c.Brightness.Adjust(in.Ambient, in.AmbientErr)

	f := Frame{Level: level}
	switch {
	case c.wantLit():
		if c.renderer == nil || c.renderer.Mode() != c.Mode {
			r, err := face.ForMode(c.Mode)
			if err != nil {
				// Modes are validated before they get here.
				c.Mode = face.Classic
				r, _ = face.ForMode(face.Classic)
			}
			c.renderer = r
		}
		f.Pixels = face.Render(c.renderer, in.Local.Time, c.Scheme)
		f.State = On
		f.Commit = true
		c.lit = true
	case c.lit:
		f.State = PendingOff
		f.Commit = true
		c.lit = false
	default:
		f.State = Off
	}
	c.state = f.State
	return f
}
