package strip

import (
	"errors"
	"fmt"

	"github.com/goiot/devices/dotstar"
	"golang.org/x/exp/io/spi"
)

// maxDotstarBrightness is the APA102's 5-bit global brightness.  Brightness is applied to the
// colors instead, so this stays at full.
const maxDotstarBrightness = 31

type dotstarLEDs interface {
	SetRGBA(i int, v dotstar.RGBA)
	Draw() error
	Close() error
}

// Dotstar is an APA102 strip on a spidev device.
type Dotstar struct {
	leds   dotstarLEDs
	pixels int
}

func NewDotstar(dev string, pixels int) (*Dotstar, error) {
	d, err := dotstar.Open(&spi.Devfs{Dev: dev, Mode: spi.Mode3}, pixels)
	if err != nil {
		return nil, fmt.Errorf("open dotstar: %w", err)
	}
	return &Dotstar{leds: d, pixels: pixels}, nil
}

func (d *Dotstar) Write(rgb []byte) error {
	if err := checkLen(rgb, d.pixels); err != nil {
		return err
	}
	for i := 0; i < d.pixels; i++ {
		d.leds.SetRGBA(i, dotstar.RGBA{R: rgb[3*i], G: rgb[3*i+1], B: rgb[3*i+2], A: maxDotstarBrightness})
	}
	if err := d.leds.Draw(); err != nil {
		return fmt.Errorf("draw: %w", err)
	}
	return nil
}

// Close blanks the strip and closes the device.
func (d *Dotstar) Close() error {
	for i := 0; i < d.pixels; i++ {
		d.leds.SetRGBA(i, dotstar.RGBA{})
	}
	var drawErr error
	if err := d.leds.Draw(); err != nil {
		drawErr = fmt.Errorf("blank: %w", err)
	}
	return errors.Join(drawErr, d.leds.Close())
}
