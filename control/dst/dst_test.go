package dst

import (
	"fmt"
	"testing"
	"time"
)

func TestSummerAndWinterMonths(t *testing.T) {
	for day := 1; day <= 31; day++ {
		for weekday := 0; weekday < 7; weekday++ {
			for month := 4; month <= 9; month++ {
				if !AppliesDST(day, month, weekday) {
					t.Errorf("AppliesDST(%d, %d, %d):\n  got: false\n want: true", day, month, weekday)
				}
			}
			for _, month := range []int{11, 12, 1, 2} {
				if AppliesDST(day, month, weekday) {
					t.Errorf("AppliesDST(%d, %d, %d):\n  got: true\n want: false", day, month, weekday)
				}
			}
		}
	}
}

func TestTransitionDays(t *testing.T) {
	testData := []struct {
		day, month, weekday int
		want                bool
	}{
		{25, 10, 0, false}, // last Sunday of October 2020
		{24, 10, 6, true},
		{31, 10, 6, false}, // 2020-10-31 was a Saturday after the switch
		{29, 3, 0, true},   // last Sunday of March 2020
		{28, 3, 6, false},
		{31, 3, 2, true},
		{1, 3, 0, false},
		{1, 10, 4, true},
		{25, 3, 0, true},  // earliest possible last Sunday
		{31, 10, 0, false}, // latest possible last Sunday
		{30, 10, 6, true},
	}
	for _, test := range testData {
		t.Run(fmt.Sprintf("%d.%d/%d", test.day, test.month, test.weekday), func(t *testing.T) {
			if got, want := AppliesDST(test.day, test.month, test.weekday), test.want; got != want {
				t.Errorf("AppliesDST:\n  got: %v\n want: %v", got, want)
			}
		})
	}
}

// TestAgainstTimezoneDatabase checks every day of a few years against the Europe/Berlin rules,
// treating the switch day the way AppliesDST does.
func TestAgainstTimezoneDatabase(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("no timezone database: %v", err)
	}
	for year := 2017; year <= 2030; year++ {
		for d := time.Date(year, 1, 1, 12, 0, 0, 0, berlin); d.Year() == year; d = d.AddDate(0, 0, 1) {
			_, offset := d.Zone()
			want := offset == 2*3600
			got := AppliesDST(d.Day(), int(d.Month()), int(d.Weekday()))
			if got != want {
				t.Errorf("%s: AppliesDST:\n  got: %v\n want: %v", d.Format("2006-01-02 Mon"), got, want)
			}
		}
	}
}
