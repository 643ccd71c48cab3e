// Package render derives daily mandala collages. Each (image, date) pair is
// an independent unit of work: the collage is a pure function of the source
// bitmap, the date, and that day's view count and keyword.
package render

import (
	"errors"
	"fmt"
	"image"

	"github.com/daymark/mandalagen/internal/filter"
)

// ErrInvalidGeometry marks a misconfigured image. No date of that image can
// ever render, so the whole image is rejected up front.
var ErrInvalidGeometry = errors.New("invalid crop geometry")

// ImageSpec is the static configuration of one image: where its source
// bitmap lives, the crop window, and the ordered filter chain.
type ImageSpec struct {
	Name       string
	Source     string
	CropLeft   int
	CropTop    int
	CropWidth  int
	CropHeight int
	Rectangle  int
	OutWidth   int
	Filters    []filter.Spec
}

// Validate checks the crop geometry against the decoded source bounds.
// All three lengths must be positive multiples of 8, the rectangle may not
// exceed either crop dimension, and the crop must lie inside the source.
func (s ImageSpec) Validate(bounds image.Rectangle) error {
	for _, d := range []struct {
		name  string
		value int
	}{
		{"crop_width", s.CropWidth},
		{"crop_height", s.CropHeight},
		{"rectangle", s.Rectangle},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%w: %s %d must be positive", ErrInvalidGeometry, d.name, d.value)
		}
		if d.value%8 != 0 {
			return fmt.Errorf("%w: %s %d not divisible by 8", ErrInvalidGeometry, d.name, d.value)
		}
	}

	if s.Rectangle > s.CropWidth || s.Rectangle > s.CropHeight {
		return fmt.Errorf("%w: rectangle %d exceeds crop %dx%d",
			ErrInvalidGeometry, s.Rectangle, s.CropWidth, s.CropHeight)
	}

	if s.CropLeft < bounds.Min.X || s.CropTop < bounds.Min.Y ||
		s.CropLeft+s.CropWidth > bounds.Max.X || s.CropTop+s.CropHeight > bounds.Max.Y {
		return fmt.Errorf("%w: crop [%d,%d %dx%d] outside source %dx%d",
			ErrInvalidGeometry, s.CropLeft, s.CropTop, s.CropWidth, s.CropHeight,
			bounds.Dx(), bounds.Dy())
	}

	for i, f := range s.Filters {
		if !filter.Supported(f.Type) {
			return fmt.Errorf("filter %d: %w: %q", i, filter.ErrUnsupportedFilter, f.Type)
		}
	}

	return nil
}
