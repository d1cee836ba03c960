package util

import "time"

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseDateDefault parses a date or returns default if empty/invalid.
func ParseDateDefault(s string, def time.Time) time.Time {
	if t, ok := ParseDate(s); ok {
		return t
	}
	return def
}

// Today returns the current UTC calendar date at midnight.
func Today() time.Time {
	return Midnight(time.Now().UTC())
}

// Midnight truncates t to its UTC calendar date.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// PrevTradingDay returns the last weekday strictly before t. Exchange
// holidays are not modeled; a holiday simply yields an empty snapshot
// upstream.
func PrevTradingDay(t time.Time) time.Time {
	d := Midnight(t).AddDate(0, 0, -1)
	for IsWeekend(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LastTradingDay returns t's date if it is a weekday, otherwise the last
// weekday before it.
func LastTradingDay(t time.Time) time.Time {
	d := Midnight(t)
	for IsWeekend(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
