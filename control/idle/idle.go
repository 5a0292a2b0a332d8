// Package idle turns the ring off when nobody has been around for a while.
package idle

import "fmt"

// DefaultThreshold is the number of minutes without motion before the ring turns off.
const DefaultThreshold = 15

// State is whether the ring should be lit.
type State int

const (
	On State = iota
	Off
)

func (s State) String() string {
	switch s {
	case On:
		return "on"
	case Off:
		return "off"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Event is an input to the machine.
type Event int

const (
	MotionDetected Event = iota
	MinuteTick
)

func (e Event) String() string {
	switch e {
	case MotionDetected:
		return "motion"
	case MinuteTick:
		return "minute"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Machine counts down minutes without motion.  The zero value is not useful; use New.
type Machine struct {
	threshold int
	remaining int
	state     State
}

// New returns a machine that is On with a full countdown.  A threshold below 1 uses
// DefaultThreshold.
func New(threshold int) *Machine {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Machine{threshold: threshold, remaining: threshold, state: On}
}

// Handle applies one event.  It returns true only when this event switched the machine from On
// to Off, so the caller can blank the ring exactly once.
func (m *Machine) Handle(e Event) (turnedOff bool) {
	switch e {
	case MotionDetected:
		m.remaining = m.threshold
		m.state = On
	case MinuteTick:
		if m.state == Off {
			return false
		}
		m.remaining--
		if m.remaining <= 0 {
			m.remaining = 0
			m.state = Off
			return true
		}
	}
	return false
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Remaining returns the minutes left before the ring turns off.
func (m *Machine) Remaining() int { return m.remaining }

// Threshold returns the configured countdown length.
func (m *Machine) Threshold() int { return m.threshold }
