package core

import "time"

var NowFunc = time.Now // mockable

// Today returns the current local date, at midnight UTC.
func Today() time.Time {
	return DateOf(NowFunc())
}

// DateOf drops the time-of-day of t, keeping its calendar date.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Now returns NowFunc() in UTC.
func Now() time.Time {
	return NowFunc().UTC()
}
