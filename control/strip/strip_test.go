package strip

import (
	"bytes"
	"errors"
	"testing"

	"github.com/goiot/devices/dotstar"
	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/spi/spitest"
)

func TestNRZ(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewNRZ(spitest.NewRecordRaw(&buf), 60, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := s.String(), "nrzled{recordraw}"; got != want {
		t.Errorf("name:\n  got: %v\n want: %v", got, want)
	}
	frame := make([]byte, 3*60)
	frame[0] = 0xff
	if err := s.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Every data bit is stretched to 3 bits on the wire.
	if got, min := buf.Len(), 3*len(frame); got < min {
		t.Errorf("encoded frame is %d bytes, want at least %d", got, min)
	}
	if err := s.Write(frame[:3]); err == nil {
		t.Error("expected error for a short frame")
	}
	if err := s.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestAPA102(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewAPA102(spitest.NewRecordRaw(&buf), 60)
	if err != nil {
		t.Fatal(err)
	}
	frame := make([]byte, 3*60)
	frame[0] = 0xff
	if err := s.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Start frame, 4 bytes per pixel, then half a clock per pixel to push the data through.
	frameLen := 4*(60+1) + 60/2/8 + 1
	if got, want := buf.Len(), frameLen; got != want {
		t.Fatalf("frame length:\n  got: %v\n want: %v", got, want)
	}
	raw := buf.Bytes()
	if diff := cmp.Diff(raw[:4], []byte{0, 0, 0, 0}); diff != "" {
		t.Errorf("start frame:\n%s", diff)
	}
	// Each pixel is brightness, blue, green, red.
	if raw[4]&0xe0 != 0xe0 || raw[5] != 0 || raw[6] != 0 || raw[7] == 0 {
		t.Errorf("red pixel: %x", raw[4:8])
	}
	if diff := cmp.Diff(raw[9:12], []byte{0, 0, 0}); diff != "" {
		t.Errorf("dark pixel:\n%s", diff)
	}
	if got, want := raw[frameLen-1], byte(0xff); got != want {
		t.Errorf("end frame:\n  got: %x\n want: %x", got, want)
	}
	if err := s.Write(frame[:3]); err == nil {
		t.Error("expected error for a short frame")
	}

	if err := s.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if got, want := buf.Len(), 2*frameLen; got != want {
		t.Fatalf("bytes after close:\n  got: %v\n want: %v", got, want)
	}
	if got := buf.Bytes()[frameLen+7]; got != 0 {
		t.Errorf("red pixel after close: %x", got)
	}
}

type fakeDotstar struct {
	set     int
	drawErr error
	closed  bool
}

func (f *fakeDotstar) SetRGBA(i int, v dotstar.RGBA) { f.set++ }
func (f *fakeDotstar) Draw() error                   { return f.drawErr }
func (f *fakeDotstar) Close() error                  { f.closed = true; return nil }

func TestDotstarClose(t *testing.T) {
	drawErr := errors.New("spi went away")
	leds := &fakeDotstar{drawErr: drawErr}
	d := &Dotstar{leds: leds, pixels: 60}
	if err := d.Close(); !errors.Is(err, drawErr) {
		t.Errorf("close error:\n  got: %v\n want: %v", err, drawErr)
	}
	if !leds.closed {
		t.Error("device not closed after a failed blank")
	}
	if got, want := leds.set, 60; got != want {
		t.Errorf("pixels blanked:\n  got: %v\n want: %v", got, want)
	}

	leds = &fakeDotstar{}
	if err := (&Dotstar{leds: leds, pixels: 60}).Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestSim(t *testing.T) {
	s := NewSim(2)
	if err := s.Write([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatal(err)
	}
	last, n := s.Last()
	if diff := cmp.Diff(last, []byte{1, 2, 3, 4, 5, 6}); diff != "" {
		t.Errorf("last frame:\n%s", diff)
	}
	if n != 1 {
		t.Errorf("writes:\n  got: %v\n want: %v", n, 1)
	}
	if err := s.Write([]byte{1}); err == nil {
		t.Error("expected length error")
	}
	s.Close()
	if err := s.Write(make([]byte, 6)); err == nil {
		t.Error("expected error after close")
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{Backend: "sim", Pixels: 60})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Sim); !ok {
		t.Errorf("sim backend returned %T", s)
	}
	if _, err := Open(Config{Backend: "neopixel-over-carrier-pigeon", Pixels: 60}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
	if _, err := Open(Config{Backend: "sim"}); err == nil {
		t.Error("expected error for zero pixels")
	}
}
