// Package facts resolves the externally supplied numeric facts that seed a
// day's render: the interpolated view count and the keyword. The core treats
// these as given; once resolved for an (image, date) pair they must remain
// stable or the artifact stops being reproducible after the fact.
package facts

import (
	"context"
	"errors"
	"math"

	"github.com/daymark/mandalagen/internal/calendar"
)

// ErrNoObservations is returned when no history exists for an image.
var ErrNoObservations = errors.New("no recorded observations for image")

// Daily are the per-(image, date) facts that seed the hash oracle.
type Daily struct {
	ViewCount int64
	Keyword   string
}

// Provider resolves daily facts for an (image, date) pair.
type Provider interface {
	FactsFor(ctx context.Context, image string, date calendar.Date) (Daily, error)
	Close() error
}

// Observation is one recorded history point for an image.
type Observation struct {
	Image     string  `db:"image_name"`
	Date      calendar.Date
	ViewCount int64  `db:"view_count"`
	Keyword   string `db:"keyword"`
}

// interpolate derives the view count for a date bracketed by two observations
// by linear interpolation on whole days, rounded to the nearest integer.
// Either bracket may equal the target date.
func interpolate(earlier, later Observation, date calendar.Date) int64 {
	span := calendar.DaysBetween(earlier.Date, later.Date)
	if span == 0 {
		return earlier.ViewCount
	}
	elapsed := calendar.DaysBetween(earlier.Date, date)
	delta := float64(later.ViewCount-earlier.ViewCount) * float64(elapsed) / float64(span)
	return earlier.ViewCount + int64(math.Round(delta))
}

// resolve combines the bracketing observations around a date into the day's
// facts. Missing brackets fall back to the one that exists; the keyword is
// taken from the most recent observation at or before the date when present.
func resolve(earlier, later *Observation, date calendar.Date) (Daily, error) {
	switch {
	case earlier == nil && later == nil:
		return Daily{}, ErrNoObservations
	case earlier == nil:
		return Daily{ViewCount: later.ViewCount, Keyword: later.Keyword}, nil
	case later == nil:
		return Daily{ViewCount: earlier.ViewCount, Keyword: earlier.Keyword}, nil
	}

	keyword := earlier.Keyword
	if keyword == "" {
		keyword = later.Keyword
	}
	return Daily{
		ViewCount: interpolate(*earlier, *later, date),
		Keyword:   keyword,
	}, nil
}
