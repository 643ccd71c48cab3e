// Package permute selects the day's crop offset from the space of valid
// positions. The calendar date picks a coarse bucket via its Julian Day
// Number; one oracle byte refines it with a 0-7 pixel jitter.
package permute

import (
	"errors"
	"fmt"

	"github.com/daymark/mandalagen/internal/calendar"
	"github.com/daymark/mandalagen/internal/oracle"
)

// DefaultStep is the canonical permutation-step divisor. The older variant of
// the tool made this configurable, so it stays a knob rather than a constant.
const DefaultStep = 8

// ErrDegenerateGeometry is returned when the permutation space collapses to
// zero buckets for the given geometry.
var ErrDegenerateGeometry = errors.New("degenerate geometry: permutation space is empty")

// Selection carries the derived offset together with the intermediate values,
// which are reported as diagnostic facts for audit logging.
type Selection struct {
	LoopX       int
	LoopY       int
	Total       int
	Permutation int
	Offset      int
	OffsetX     int
	OffsetY     int
}

// Selector computes daily crop offsets.
type Selector struct {
	// Step divides the offset space into permutation buckets.
	Step int
	// Jitter controls whether an oracle byte perturbs the bucket offset.
	// Disabled in the legacy compatibility mode.
	Jitter bool
}

// NewSelector returns a selector with the canonical step and jitter enabled.
func NewSelector() Selector {
	return Selector{Step: DefaultStep, Jitter: true}
}

// Select derives the crop offset for a date. Geometry must already satisfy
// the divisibility checks done by the render layer. When jitter is enabled this consumes exactly one
// oracle byte, always the first drawn for the day's run.
func (s Selector) Select(cropWidth, cropHeight, rectangle int, date calendar.Date, o *oracle.Oracle) (Selection, error) {
	step := s.Step
	if step < 1 {
		step = DefaultStep
	}

	loopX := cropWidth - rectangle + 1
	loopY := cropHeight - rectangle + 1

	total := loopX * loopY / step
	if total == 0 {
		return Selection{}, fmt.Errorf("%w: loop %dx%d, step %d", ErrDegenerateGeometry, loopX, loopY, step)
	}

	permutation := calendar.JulianDayNumber(date) % total

	jitter := 0
	if s.Jitter {
		b, err := o.NextByte()
		if err != nil {
			return Selection{}, fmt.Errorf("draw jitter byte: %w", err)
		}
		jitter = int(b & 0x07)
	}

	return locate(loopX, loopY, total, permutation, jitter), nil
}

// locate maps a permutation bucket plus jitter to grid coordinates.
func locate(loopX, loopY, total, permutation, jitter int) Selection {
	offset := (loopX*loopY/total)*permutation + jitter
	// With a step below the jitter range the last bucket can spill past the
	// grid; the offset must stay inside loopX*loopY.
	if max := loopX*loopY - 1; offset > max {
		offset = max
	}
	offsetX := offset % loopX
	offsetY := (offset - offsetX) / loopX

	return Selection{
		LoopX:       loopX,
		LoopY:       loopY,
		Total:       total,
		Permutation: permutation,
		Offset:      offset,
		OffsetX:     offsetX,
		OffsetY:     offsetY,
	}
}
