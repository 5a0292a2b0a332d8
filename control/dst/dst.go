// Package dst decides whether central european summer time is in effect.
//
// The real-time clock only gives us day, month and day of week, so the rule is expressed in terms
// of those three fields.  No year, no calendar tables.
package dst

// lastSundayFrom is the earliest date that the last Sunday of a 31-day month can fall on.  March
// and October both have 31 days.
const lastSundayFrom = 25

// sundayOnOrBefore returns the date of the most recent Sunday on or before day.  It can be zero or
// negative when that Sunday belongs to the previous month, which is fine for our comparisons.
func sundayOnOrBefore(day, weekday int) int {
	return day - ((weekday%7)+7)%7
}

// AppliesDST reports whether the one hour summer time offset applies on the given date.  weekday is
// 0 for Sunday through 6 for Saturday.
//
// Summer time runs from the last Sunday of March (inclusive) to the last Sunday of October
// (exclusive).  The actual switch happens at 02:00 / 03:00, but at day granularity the whole
// last Sunday of March counts as summer time and the whole last Sunday of October counts as
// standard time.
func AppliesDST(day, month, weekday int) bool {
	switch {
	case month >= 4 && month <= 9:
		return true
	case month == 3:
		return sundayOnOrBefore(day, weekday) >= lastSundayFrom
	case month == 10:
		return sundayOnOrBefore(day, weekday) < lastSundayFrom
	default:
		return false
	}
}
