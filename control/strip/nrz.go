package strip

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/nrzled"
)

// DefaultNRZFreq is the bit rate nrzled is asked for; WS2812 wants 800kHz per data bit.
const DefaultNRZFreq = 2500 * physic.KiloHertz

// NRZ is a WS2812-style strip driven from an SPI port.
type NRZ struct {
	port   spi.PortCloser
	dev    *nrzled.Dev
	pixels int
}

// NewNRZ takes ownership of p.
func NewNRZ(p spi.PortCloser, pixels int, freq physic.Frequency) (*NRZ, error) {
	if freq == 0 {
		freq = DefaultNRZFreq
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{NumPixels: pixels, Channels: 3, Freq: freq})
	if err != nil {
		return nil, fmt.Errorf("init nrzled: %w", err)
	}
	return &NRZ{port: p, dev: d, pixels: pixels}, nil
}

func (n *NRZ) String() string { return n.dev.String() }

func (n *NRZ) Write(rgb []byte) error {
	if err := checkLen(rgb, n.pixels); err != nil {
		return err
	}
	if _, err := n.dev.Write(rgb); err != nil {
		return fmt.Errorf("write to nrzled strand: %w", err)
	}
	return nil
}

// Close blanks the strip and releases the port.
func (n *NRZ) Close() error {
	if err := n.dev.Halt(); err != nil {
		n.port.Close()
		return fmt.Errorf("halt: %w", err)
	}
	return n.port.Close()
}
