// Package strip sends frames to a physical LED strip.
package strip

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
)

// Strip is an LED output.  Write takes packed R, G, B bytes, 3 per pixel, in strip order.
type Strip interface {
	Write(rgb []byte) error
	Close() error
}

// Backend names.
const (
	BackendNRZ     = "ws2812"  // WS2812 on an SPI port, via periph's nrzled.
	BackendDotstar = "apa102"  // APA102, via goiot's dotstar driver.
	BackendSpidev  = "spidev"  // APA102 on an SPI port, via periph's apa102.
	BackendSim     = "sim"     // No hardware; remembers the last frame.
)

// Backends lists the names Open accepts.
var Backends = []string{BackendNRZ, BackendDotstar, BackendSpidev, BackendSim}

// ErrUnknownBackend is returned by Open for a backend name it doesn't know.
var ErrUnknownBackend = errors.New("unknown strip backend")

// Config selects and configures a backend.
type Config struct {
	Backend string
	Device  string // SPI port name or /dev path; empty picks the first SPI port.
	Pixels  int
	Freq    physic.Frequency // WS2812 only.
}

// Open opens the configured strip.  The periph host must already be initialized for the
// ws2812 backend.
func Open(cfg Config) (Strip, error) {
	if cfg.Pixels <= 0 {
		return nil, fmt.Errorf("invalid pixel count %d", cfg.Pixels)
	}
	switch strings.ToLower(cfg.Backend) {
	case BackendNRZ:
		p, err := spireg.Open(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("open spi port %q: %w", cfg.Device, err)
		}
		s, err := NewNRZ(p, cfg.Pixels, cfg.Freq)
		if err != nil {
			p.Close()
			return nil, err
		}
		return s, nil
	case BackendDotstar:
		return NewDotstar(devPath(cfg.Device), cfg.Pixels)
	case BackendSpidev:
		p, err := spireg.Open(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("open spi port %q: %w", cfg.Device, err)
		}
		s, err := NewAPA102(p, cfg.Pixels)
		if err != nil {
			p.Close()
			return nil, err
		}
		return s, nil
	case BackendSim, "":
		return NewSim(cfg.Pixels), nil
	}
	return nil, fmt.Errorf("%q: %w", cfg.Backend, ErrUnknownBackend)
}

func devPath(d string) string {
	if d == "" {
		return "/dev/spidev0.0"
	}
	return d
}

func checkLen(rgb []byte, pixels int) error {
	if got, want := len(rgb), 3*pixels; got != want {
		return fmt.Errorf("frame is %d bytes, strip needs %d", got, want)
	}
	return nil
}

// Sim is a strip that only remembers what was written.
type Sim struct {
	mu     sync.Mutex
	pixels int
	last   []byte
	writes int
	closed bool
}

func NewSim(pixels int) *Sim {
	return &Sim{pixels: pixels}
}

func (s *Sim) Write(rgb []byte) error {
	if err := checkLen(rgb, s.pixels); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("write to closed strip")
	}
	s.last = append(s.last[:0], rgb...)
	s.writes++
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Last returns a copy of the last frame written and the number of writes so far.
func (s *Sim) Last() ([]byte, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.last...), s.writes
}
