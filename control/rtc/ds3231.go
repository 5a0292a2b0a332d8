// Package rtc talks to a DS3231 real-time clock over I2C.  The chip keeps UTC.
package rtc

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddr is the DS3231's fixed I2C address.
const DefaultAddr = 0x68

type Register uint8

const (
	RegisterSeconds     Register = 0x00
	RegisterControl     Register = 0x0e
	RegisterStatus      Register = 0x0f
	RegisterTemperature Register = 0x11
)

const (
	hour12        = 0x40
	centuryBit    = 0x80
	statusOSF     = 0x80 // Oscillator stopped; the time is not trustworthy.
	timeRegisters = 7
)

// ErrOscillatorStopped means the chip lost power at some point and the time it reports is
// meaningless until it is set again.
var ErrOscillatorStopped = errors.New("rtc oscillator stopped; time not set")

// DS3231 is a DS3231 on an I2C bus.
type DS3231 struct {
	dev i2c.Dev
}

// New returns a DS3231 at addr on bus.
func New(bus i2c.Bus, addr uint16) *DS3231 {
	return &DS3231{dev: i2c.Dev{Bus: bus, Addr: addr}}
}

// Open returns the DS3231 at addr if it answers with a valid time.  A chip whose oscillator
// stopped is still returned, along with ErrOscillatorStopped, so that it can be set once the
// time is known.  Any other error returns a nil device.
func Open(bus i2c.Bus, addr uint16) (*DS3231, time.Time, error) {
	d := New(bus, addr)
	t, err := d.Now()
	switch {
	case err == nil:
		return d, t, nil
	case errors.Is(err, ErrOscillatorStopped):
		return d, time.Time{}, err
	default:
		return nil, time.Time{}, err
	}
}

func (d *DS3231) String() string {
	return fmt.Sprintf("ds3231(%s)", d.dev.String())
}

func (d *DS3231) read(r Register, buf []byte) error {
	if err := d.dev.Tx([]byte{byte(r)}, buf); err != nil {
		return fmt.Errorf("tx: %w", err)
	}
	return nil
}

func (d *DS3231) write(r Register, data ...byte) error {
	w := make([]byte, 1, len(data)+1)
	w[0] = byte(r)
	w = append(w, data...)
	if err := d.dev.Tx(w, nil); err != nil {
		return fmt.Errorf("tx: %w", err)
	}
	return nil
}

// Now reads the current time.  If the oscillator-stop flag is set it returns
// ErrOscillatorStopped along with whatever the chip had.
func (d *DS3231) Now() (time.Time, error) {
	var buf [timeRegisters]byte
	if err := d.read(RegisterSeconds, buf[:]); err != nil {
		return time.Time{}, fmt.Errorf("read time registers: %w", err)
	}
	t, err := decodeTime(buf)
	if err != nil {
		return time.Time{}, err
	}
	var status [1]byte
	if err := d.read(RegisterStatus, status[:]); err != nil {
		return time.Time{}, fmt.Errorf("read status register: %w", err)
	}
	if status[0]&statusOSF != 0 {
		return t, ErrOscillatorStopped
	}
	return t, nil
}

// Set writes t (converted to UTC) and clears the oscillator-stop flag.
func (d *DS3231) Set(t time.Time) error {
	buf, err := encodeTime(t)
	if err != nil {
		return err
	}
	if err := d.write(RegisterSeconds, buf[:]...); err != nil {
		return fmt.Errorf("write time registers: %w", err)
	}
	var status [1]byte
	if err := d.read(RegisterStatus, status[:]); err != nil {
		return fmt.Errorf("read status register: %w", err)
	}
	if status[0]&statusOSF != 0 {
		if err := d.write(RegisterStatus, status[0]&^statusOSF); err != nil {
			return fmt.Errorf("clear oscillator stop flag: %w", err)
		}
	}
	return nil
}

// Temperature reads the chip's die temperature, which it uses for crystal compensation.  The
// resolution is 0.25°C.
func (d *DS3231) Temperature() (physic.Temperature, error) {
	var buf [2]byte
	if err := d.read(RegisterTemperature, buf[:]); err != nil {
		return 0, fmt.Errorf("read temperature: %w", err)
	}
	whole := int8(buf[0])
	quarters := buf[1] >> 6
	return physic.ZeroCelsius + physic.Temperature(whole)*physic.Celsius + physic.Temperature(quarters)*250*physic.MilliCelsius, nil
}

func bcd(b byte) int {
	return int(b>>4)*10 + int(b&0x0f)
}

func toBCD(v int) byte {
	return byte(v/10)<<4 | byte(v%10)
}

func decodeTime(buf [timeRegisters]byte) (time.Time, error) {
	sec := bcd(buf[0] & 0x7f)
	min := bcd(buf[1] & 0x7f)
	var hour int
	if buf[2]&hour12 != 0 {
		hour = bcd(buf[2]&0x1f) % 12
		if buf[2]&0x20 != 0 {
			hour += 12
		}
	} else {
		hour = bcd(buf[2] & 0x3f)
	}
	day := bcd(buf[4] & 0x3f)
	month := bcd(buf[5] & 0x1f)
	year := 2000 + bcd(buf[6])
	if buf[5]&centuryBit != 0 {
		year += 100
	}
	if sec > 59 || min > 59 || hour > 23 || day < 1 || day > 31 || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid time registers %x", buf)
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC), nil
}

func encodeTime(t time.Time) ([timeRegisters]byte, error) {
	var buf [timeRegisters]byte
	t = t.UTC()
	if t.Year() < 2000 || t.Year() > 2199 {
		return buf, fmt.Errorf("year %d out of range for ds3231", t.Year())
	}
	buf[0] = toBCD(t.Second())
	buf[1] = toBCD(t.Minute())
	buf[2] = toBCD(t.Hour())
	buf[3] = byte(t.Weekday()) + 1
	buf[4] = toBCD(t.Day())
	buf[5] = toBCD(int(t.Month()))
	y := t.Year() - 2000
	if y >= 100 {
		buf[5] |= centuryBit
		y -= 100
	}
	buf[6] = toBCD(y)
	return buf, nil
}
