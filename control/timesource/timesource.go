// Package timesource provides the current time, corrected by the last network calibration,
// and splits it into the local wall-clock time the ring shows.
package timesource

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jrockway/ring-clock/control/dst"
	"github.com/jrockway/ring-clock/control/face"
)

// DefaultZoneOffset is Central European standard time.
const DefaultZoneOffset = time.Hour

// Clock is something that knows what time it is in UTC.  The DS3231 driver implements it, as
// does SystemClock.
type Clock interface {
	Now() (time.Time, error)
}

// Setter is a Clock that can be set, like an RTC.
type Setter interface {
	Set(time.Time) error
}

// SystemClock is the operating system's clock.
type SystemClock struct{}

func (SystemClock) Now() (time.Time, error) { return time.Now(), nil }

// Calibration is the result of one successful network sync.
type Calibration struct {
	Offset time.Duration `json:"offset"` // Added to the Clock's reading.
	Source string        `json:"source"`
	At     time.Time     `json:"at"`
}

// Source is a Clock plus the most recent Calibration.  Calibrate may be called from any
// goroutine; the last value wins.
type Source struct {
	clock Clock
	zone  time.Duration
	cal   atomic.Pointer[Calibration]
}

// New returns a Source reading c, reporting local time zone hours east of UTC (before DST).
func New(c Clock, zone time.Duration) *Source {
	if c == nil {
		c = SystemClock{}
	}
	return &Source{clock: c, zone: zone}
}

// Clock returns the underlying clock.
func (s *Source) Clock() Clock { return s.clock }

// ZoneOffset returns the standard-time offset from UTC.
func (s *Source) ZoneOffset() time.Duration { return s.zone }

// Calibrate replaces the current calibration.
func (s *Source) Calibrate(c Calibration) {
	s.cal.Store(&c)
}

// Calibration returns the current calibration, if there is one.
func (s *Source) Calibration() (Calibration, bool) {
	c := s.cal.Load()
	if c == nil {
		return Calibration{}, false
	}
	return *c, true
}

// Now returns the calibrated UTC time.
func (s *Source) Now() (time.Time, error) {
	t, err := s.clock.Now()
	if err != nil {
		return time.Time{}, fmt.Errorf("read clock: %w", err)
	}
	if c := s.cal.Load(); c != nil {
		t = t.Add(c.Offset)
	}
	return t, nil
}

// Local is a UTC instant broken down into what the ring shows.
type Local struct {
	Time face.TimeOfDay
	Date CalendarDate
	DST  bool
}

// CalendarDate is a day of the year.  Weekday 0 is Sunday.
type CalendarDate struct {
	Day, Month, Weekday int
}

func (l Local) String() string {
	return fmt.Sprintf("%s, %d. %s %s", WeekdayName(l.Date.Weekday), l.Date.Day, MonthName(l.Date.Month), l.Time)
}

// Split converts utc to local time: the standard zone offset is applied, then one more hour if
// summer time is in effect on that (standard-time) date.
func Split(utc time.Time, zone time.Duration) Local {
	std := utc.UTC().Add(zone)
	summer := dst.AppliesDST(std.Day(), int(std.Month()), int(std.Weekday()))
	t := std
	if summer {
		t = t.Add(time.Hour)
	}
	return Local{
		Time: face.TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()},
		Date: CalendarDate{Day: t.Day(), Month: int(t.Month()), Weekday: int(t.Weekday())},
		DST:  summer,
	}
}

// Local returns the calibrated current time, split into local time.
func (s *Source) Local() (Local, error) {
	t, err := s.Now()
	if err != nil {
		return Local{}, err
	}
	return Split(t, s.zone), nil
}

var weekdays = [...]string{"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag"}

var months = [...]string{"Januar", "Februar", "März", "April", "Mai", "Juni", "Juli", "August", "September", "Oktober", "November", "Dezember"}

// WeekdayName returns the German name of weekday (0 = Sonntag).
func WeekdayName(weekday int) string {
	if weekday < 0 || weekday >= len(weekdays) {
		return fmt.Sprintf("Tag %d", weekday)
	}
	return weekdays[weekday]
}

// MonthName returns the German name of month (1 = Januar).
func MonthName(month int) string {
	if month < 1 || month > len(months) {
		return fmt.Sprintf("Monat %d", month)
	}
	return months[month-1]
}
