package money

import "time"

// AddMonths advances t by the given number of calendar months, keeping the
// same day-of-month and clamping to the last valid day when the target month
// is shorter (Jan 31 -> Feb 28/29). This deliberately differs from
// time.Time.AddDate, which normalizes Jan 31 + 1 month into March.
func AddMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	first := time.Date(year, month+time.Month(months), 1, hour, min, sec, t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in the given month. Day 0 of the next
// month is the last day of this one.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
