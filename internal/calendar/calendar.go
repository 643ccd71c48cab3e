// Package calendar provides the civil-date type used to key daily renders.
package calendar

import (
	"fmt"
	"time"
)

// Date is a civil calendar date with no time zone attached. Renders are keyed
// by date only, so the same date must behave identically regardless of where
// or when the process runs.
type Date struct {
	Year  int
	Month int
	Day   int
}

// Parse parses a date in ISO form (2006-01-02).
func Parse(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}, nil
}

// DateOf extracts the civil date from a time.Time in its own location.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// String returns the ISO form (2006-01-02).
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Compact returns the 8-digit form (20060102) used in artifact names.
func (d Date) Compact() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, d.Month, d.Day)
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool {
	return JulianDayNumber(d) < JulianDayNumber(other)
}

// Range returns every date from 'from' through 'to', inclusive.
func Range(from, to Date) []Date {
	var out []Date
	for t := from.Time(); !t.After(to.Time()); t = t.AddDate(0, 0, 1) {
		out = append(out, DateOf(t))
	}
	return out
}

// JulianDayNumber returns the astronomical Julian Day Number for a Gregorian
// civil date at the noon convention. The value is a continuous integer day
// count, so it is stable across time zones, invocation times, and years, and
// day differences can be computed by plain subtraction.
func JulianDayNumber(d Date) int {
	a := (14 - d.Month) / 12
	y := d.Year + 4800 - a
	m := d.Month + 12*a - 3
	return d.Day + (153*m+2)/5 + 365*y + y/4 - y/100 + y/400 - 32045
}

// DaysBetween returns the signed number of days from a to b.
func DaysBetween(a, b Date) int {
	return JulianDayNumber(b) - JulianDayNumber(a)
}
