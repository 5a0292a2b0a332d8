package strip

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/apa102"
)

// APA102 is an APA102 strip driven by periph's apa102 driver.  Brightness is applied to the
// colors before they get here, so the driver runs at full intensity.
type APA102 struct {
	port   spi.PortCloser
	leds   *apa102.Dev
	pixels int
}

func NewAPA102(p spi.PortCloser, pixels int) (*APA102, error) {
	opts := &apa102.Opts{
		NumPixels:        pixels,
		Intensity:        255,
		Temperature:      apa102.NeutralTemp,
		DisableGlobalPWM: true,
	}
	leds, err := apa102.New(p, opts)
	if err != nil {
		return nil, fmt.Errorf("init apa102: %w", err)
	}
	return &APA102{port: p, leds: leds, pixels: pixels}, nil
}

func (a *APA102) String() string {
	return a.leds.String()
}

func (a *APA102) Write(rgb []byte) error {
	if err := checkLen(rgb, a.pixels); err != nil {
		return err
	}
	if _, err := a.leds.Write(rgb); err != nil {
		return fmt.Errorf("write to apa102 strand: %w", err)
	}
	return nil
}

// Close turns off every LED and releases the SPI port.
func (a *APA102) Close() error {
	var haltErr error
	if err := a.leds.Halt(); err != nil {
		haltErr = fmt.Errorf("halt: %w", err)
	}
	return errors.Join(haltErr, a.port.Close())
}
