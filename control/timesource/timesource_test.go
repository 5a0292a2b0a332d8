package timesource

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrockway/ring-clock/control/face"
)

type fakeClock struct {
	t   time.Time
	err error
}

func (f *fakeClock) Now() (time.Time, error) { return f.t, f.err }

func TestSplit(t *testing.T) {
	testData := []struct {
		name string
		utc  time.Time
		want Local
	}{
		{
			name: "winter",
			utc:  time.Date(2021, 1, 15, 11, 20, 30, 0, time.UTC),
			want: Local{Time: face.TimeOfDay{Hour: 12, Minute: 20, Second: 30}, Date: CalendarDate{Day: 15, Month: 1, Weekday: 5}},
		},
		{
			name: "summer",
			utc:  time.Date(2021, 7, 1, 10, 0, 0, 0, time.UTC),
			want: Local{Time: face.TimeOfDay{Hour: 12}, Date: CalendarDate{Day: 1, Month: 7, Weekday: 4}, DST: true},
		},
		{
			name: "last sunday of march is summer time all day",
			utc:  time.Date(2021, 3, 28, 0, 30, 0, 0, time.UTC),
			want: Local{Time: face.TimeOfDay{Hour: 2, Minute: 30}, Date: CalendarDate{Day: 28, Month: 3, Weekday: 0}, DST: true},
		},
		{
			name: "saturday before the october change",
			utc:  time.Date(2021, 10, 30, 12, 0, 0, 0, time.UTC),
			want: Local{Time: face.TimeOfDay{Hour: 14}, Date: CalendarDate{Day: 30, Month: 10, Weekday: 6}, DST: true},
		},
		{
			name: "last sunday of october is standard time all day",
			utc:  time.Date(2021, 10, 31, 0, 30, 0, 0, time.UTC),
			want: Local{Time: face.TimeOfDay{Hour: 1, Minute: 30}, Date: CalendarDate{Day: 31, Month: 10, Weekday: 0}},
		},
		{
			name: "summer hour rolls the date over",
			utc:  time.Date(2021, 6, 30, 22, 30, 0, 0, time.UTC),
			want: Local{Time: face.TimeOfDay{Minute: 30}, Date: CalendarDate{Day: 1, Month: 7, Weekday: 4}, DST: true},
		},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			got := Split(test.utc, DefaultZoneOffset)
			if diff := cmp.Diff(got, test.want); diff != "" {
				t.Errorf("split %v:\n%s", test.utc, diff)
			}
		})
	}
}

func TestCalibration(t *testing.T) {
	base := time.Date(2021, 1, 15, 11, 0, 0, 0, time.UTC)
	c := &fakeClock{t: base}
	s := New(c, DefaultZoneOffset)
	if _, ok := s.Calibration(); ok {
		t.Error("new source should not be calibrated")
	}
	got, err := s.Now()
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(base) {
		t.Errorf("uncalibrated:\n  got: %v\n want: %v", got, base)
	}

	s.Calibrate(Calibration{Offset: 2 * time.Second, Source: "ntp"})
	s.Calibrate(Calibration{Offset: -3 * time.Second, Source: "ntp"})
	got, err = s.Now()
	if err != nil {
		t.Fatal(err)
	}
	if want := base.Add(-3 * time.Second); !got.Equal(want) {
		t.Errorf("calibrated:\n  got: %v\n want: %v", got, want)
	}
	l, err := s.Local()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := l.Time, (face.TimeOfDay{Hour: 11, Minute: 59, Second: 57}); got != want {
		t.Errorf("local:\n  got: %v\n want: %v", got, want)
	}

	c.err = errors.New("bus stuck")
	if _, err := s.Local(); err == nil {
		t.Error("expected clock error to propagate")
	}
}

func TestNames(t *testing.T) {
	l := Split(time.Date(2020, 10, 25, 12, 0, 0, 0, time.UTC), DefaultZoneOffset)
	if got, want := l.String(), "Sonntag, 25. Oktober 13:00:00"; got != want {
		t.Errorf("string:\n  got: %v\n want: %v", got, want)
	}
	if got, want := MonthName(3), "März"; got != want {
		t.Errorf("march:\n  got: %v\n want: %v", got, want)
	}
	if got, want := WeekdayName(7), "Tag 7"; got != want {
		t.Errorf("out of range:\n  got: %v\n want: %v", got, want)
	}
}
