// Package brightness turns ambient light readings into a brightness level for the ring.
package brightness

import "math"

// Level is the global brightness applied to a frame when it is committed to the strip.
type Level uint8

// Config describes the brightness curve.
type Config struct {
	Min    Level   // Dimmest level that is still readable in a dark room.
	Max    Level   // Level used in full daylight.
	RawMax uint16  // Sensor reading that maps to Max.
	Alpha  float64 // Smoothing factor; 1 disables smoothing.
}

// DefaultConfig suits an LDR on a 10-bit ADC, capped at 192.
var DefaultConfig = Config{Min: 16, Max: 192, RawMax: 1023, Alpha: 0.25}

// Controller smooths ambient readings so that the ring doesn't flicker when someone walks past
// the sensor.  It is not safe for concurrent use; the render loop owns it.
type Controller struct {
	cfg      Config
	smoothed float64
	seeded   bool
}

// New returns a Controller.  Out-of-range fields in cfg are replaced with defaults.
func New(cfg Config) *Controller {
	if cfg.Max == 0 {
		cfg.Max = DefaultConfig.Max
	}
	if cfg.Min > cfg.Max {
		cfg.Min = cfg.Max
	}
	if cfg.RawMax == 0 {
		cfg.RawMax = DefaultConfig.RawMax
	}
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = DefaultConfig.Alpha
	}
	return &Controller{cfg: cfg, smoothed: float64(cfg.Max)}
}

// Target returns the unsmoothed level for a raw reading.  Brighter rooms give a brighter ring.
func (c *Controller) Target(raw uint16) float64 {
	if raw > c.cfg.RawMax {
		raw = c.cfg.RawMax
	}
	span := float64(c.cfg.Max) - float64(c.cfg.Min)
	return float64(c.cfg.Min) + span*float64(raw)/float64(c.cfg.RawMax)
}

// Adjust folds one sensor reading into the smoothed level and returns the new level.  If err is
// non-nil the reading is ignored and the previous level is returned.  The first good reading
// seeds the filter directly.
func (c *Controller) Adjust(raw uint16, err error) Level {
	if err != nil {
		return c.Level()
	}
	target := c.Target(raw)
	if !c.seeded {
		c.smoothed = target
		c.seeded = true
	} else {
		c.smoothed = c.cfg.Alpha*target + (1-c.cfg.Alpha)*c.smoothed
	}
	return c.Level()
}

// Level returns the current smoothed level.
func (c *Controller) Level() Level {
	v := math.Round(c.smoothed)
	if v < float64(c.cfg.Min) {
		v = float64(c.cfg.Min)
	}
	if v > float64(c.cfg.Max) {
		v = float64(c.cfg.Max)
	}
	return Level(v)
}

// Scale applies the level to one 8-bit channel value.
func (l Level) Scale(v uint8) uint8 {
	return uint8((uint16(v)*uint16(l) + 127) / 255)
}
