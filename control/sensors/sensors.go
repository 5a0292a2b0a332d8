// Package sensors reads the ambient light and motion sensors.
package sensors

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Ambient is a light sensor.  Readings are scaled to 0-RawMax, brighter is higher.
type Ambient interface {
	Read() (uint16, error)
}

// Motion is a presence detector.
type Motion interface {
	Poll() (bool, error)
}

// RawMax is the full-scale ambient reading, the range of a 10-bit ADC on a photoresistor.
const RawMax = 1023

// PIR is a passive infrared motion sensor whose output pin goes high while it sees movement.
type PIR struct {
	pin gpio.PinIn
}

// NewPIR configures p as a floating input; PIR modules drive the line themselves.
func NewPIR(p gpio.PinIn) (*PIR, error) {
	if p == nil {
		return nil, fmt.Errorf("no pin")
	}
	if err := p.In(gpio.Float, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure %s as input: %w", p, err)
	}
	return &PIR{pin: p}, nil
}

// Poll reports whether the sensor currently sees motion.
func (p *PIR) Poll() (bool, error) {
	return p.pin.Read() == gpio.High, nil
}

// Fixed is a sensor pair with settable values, for running without hardware.
type Fixed struct {
	mu     sync.Mutex
	level  uint16
	motion bool
	err    error
}

// NewFixed returns a Fixed reporting level and no motion.
func NewFixed(level uint16) *Fixed {
	return &Fixed{level: level}
}

// Set changes what the sensors report.  A non-nil err is returned by the next Read.
func (f *Fixed) Set(level uint16, motion bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.level, f.motion, f.err = level, motion, err
}

func (f *Fixed) Read() (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.level, nil
}

// Poll reports motion once per Set.
func (f *Fixed) Poll() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.motion
	f.motion = false
	return m, nil
}
