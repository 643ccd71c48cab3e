package render

import (
	"errors"
	"image"
	"testing"

	"github.com/daymark/mandalagen/internal/filter"
)

func baseSpec() ImageSpec {
	return ImageSpec{
		Name:       "lighthouse",
		Source:     "lighthouse.png",
		CropLeft:   10,
		CropTop:    10,
		CropWidth:  64,
		CropHeight: 64,
		Rectangle:  32,
		OutWidth:   128,
	}
}

func TestValidateAccepts(t *testing.T) {
	bounds := image.Rect(0, 0, 128, 128)
	if err := baseSpec().Validate(bounds); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	bounds := image.Rect(0, 0, 128, 128)

	cases := []struct {
		name   string
		mutate func(*ImageSpec)
	}{
		{"crop width not multiple of 8", func(s *ImageSpec) { s.CropWidth = 100 }},
		{"crop height not multiple of 8", func(s *ImageSpec) { s.CropHeight = 60 }},
		{"rectangle not multiple of 8", func(s *ImageSpec) { s.Rectangle = 30 }},
		{"zero rectangle", func(s *ImageSpec) { s.Rectangle = 0 }},
		{"negative crop width", func(s *ImageSpec) { s.CropWidth = -8 }},
		{"rectangle exceeds crop width", func(s *ImageSpec) { s.Rectangle = 96 }},
		{"crop exceeds source right edge", func(s *ImageSpec) { s.CropLeft = 80 }},
		{"crop exceeds source bottom edge", func(s *ImageSpec) { s.CropTop = 80 }},
		{"negative crop origin", func(s *ImageSpec) { s.CropLeft = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := baseSpec()
			tc.mutate(&spec)
			err := spec.Validate(bounds)
			if !errors.Is(err, ErrInvalidGeometry) {
				t.Fatalf("err = %v, want ErrInvalidGeometry", err)
			}
		})
	}
}

func TestValidateRectangleEqualsCrop(t *testing.T) {
	spec := baseSpec()
	spec.Rectangle = 64
	if err := spec.Validate(image.Rect(0, 0, 128, 128)); err != nil {
		t.Fatalf("rectangle equal to crop should validate, got %v", err)
	}
}

func TestValidateUnknownFilter(t *testing.T) {
	spec := baseSpec()
	spec.Filters = []filter.Spec{{Type: "emboss"}}
	err := spec.Validate(image.Rect(0, 0, 128, 128))
	if !errors.Is(err, filter.ErrUnsupportedFilter) {
		t.Fatalf("err = %v, want ErrUnsupportedFilter", err)
	}
}

func TestChecksumFormat(t *testing.T) {
	sum := Checksum([]byte("hello"))
	if len(sum) != len("sha256:")+64 {
		t.Fatalf("checksum length = %d", len(sum))
	}
	if sum[:7] != "sha256:" {
		t.Fatalf("checksum prefix = %q", sum[:7])
	}
	if sum != Checksum([]byte("hello")) {
		t.Fatal("checksum not deterministic")
	}
}
