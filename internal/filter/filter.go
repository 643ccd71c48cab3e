// Package filter applies the configured image filters with hash-perturbed
// parameters. Specs are immutable inputs; every run perturbs a working copy so
// re-running a day against a fresh oracle reproduces the same sequence.
package filter

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/daymark/mandalagen/internal/oracle"
)

var (
	// ErrUnsupportedFilter is returned for an unknown filter type.
	ErrUnsupportedFilter = errors.New("unsupported filter type")

	// ErrPerturbationExhausted is returned when the filter list needs more
	// perturbation bytes than one digest can supply. This aborts the whole
	// day's render; it is not recoverable.
	ErrPerturbationExhausted = errors.New("perturbation bytes exhausted")
)

// Spec describes one filter invocation: the discriminant type plus its numeric
// parameters. The type is never perturbed.
type Spec struct {
	Type   string
	Params map[string]float64
}

// Clone returns a deep copy of the spec.
func (s Spec) Clone() Spec {
	params := make(map[string]float64, len(s.Params))
	for k, v := range s.Params {
		params[k] = v
	}
	return Spec{Type: s.Type, Params: params}
}

// ParamNames returns the parameter names in lexicographic order. Perturbation
// bytes are consumed in this order, so it is part of the output contract.
func (s Spec) ParamNames() []string {
	names := make([]string, 0, len(s.Params))
	for name := range s.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// applyFunc renders one filter kind onto an image.
type applyFunc func(img image.Image, params map[string]float64) *image.NRGBA

// registry maps filter types to their implementations. Parameters absent from
// a spec fall back to the defaults captured in param().
var registry = map[string]applyFunc{
	"blur": func(img image.Image, p map[string]float64) *image.NRGBA {
		return imaging.Blur(img, param(p, "sigma", 1.5))
	},
	"sharpen": func(img image.Image, p map[string]float64) *image.NRGBA {
		return imaging.Sharpen(img, param(p, "sigma", 1.0))
	},
	"brightness": func(img image.Image, p map[string]float64) *image.NRGBA {
		return imaging.AdjustBrightness(img, param(p, "amount", 0))
	},
	"contrast": func(img image.Image, p map[string]float64) *image.NRGBA {
		return imaging.AdjustContrast(img, param(p, "amount", 0))
	},
	"gamma": func(img image.Image, p map[string]float64) *image.NRGBA {
		return imaging.AdjustGamma(img, param(p, "gamma", 1.0))
	},
	"saturation": func(img image.Image, p map[string]float64) *image.NRGBA {
		return imaging.AdjustSaturation(img, param(p, "amount", 0))
	},
	"sigmoid": func(img image.Image, p map[string]float64) *image.NRGBA {
		return imaging.AdjustSigmoid(img, param(p, "midpoint", 0.5), param(p, "factor", 5.0))
	},
	"invert": func(img image.Image, p map[string]float64) *image.NRGBA {
		return imaging.Invert(img)
	},
}

func param(p map[string]float64, name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// Supported reports whether a filter type is known.
func Supported(kind string) bool {
	_, ok := registry[kind]
	return ok
}

// Perturb returns a copy of the spec with each parameter nudged by an
// oracle-derived factor. One byte is drawn per parameter, in lexicographic
// parameter order: the high bit picks the sign, byte mod 11 the magnitude
// percent (0-10).
func Perturb(s Spec, o *oracle.Oracle) (Spec, error) {
	out := s.Clone()
	for _, name := range out.ParamNames() {
		b, err := o.NextByte()
		if err != nil {
			return Spec{}, fmt.Errorf("%w: filter %q parameter %q: %v",
				ErrPerturbationExhausted, s.Type, name, err)
		}

		sign := -1.0
		if b&0x80 != 0 {
			sign = 1.0
		}
		magnitude := float64(b % 11)

		old := out.Params[name]
		out.Params[name] = old + old*sign*magnitude/100
	}
	return out, nil
}

// Apply renders a single filter onto the image.
func Apply(img image.Image, s Spec) (*image.NRGBA, error) {
	fn, ok := registry[s.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFilter, s.Type)
	}
	return fn(img, s.Params), nil
}

// ApplyAll perturbs and applies every filter in declared list order, returning
// the final image along with the perturbed specs for diagnostics. With perturb
// disabled (legacy mode) the specs are applied verbatim and no oracle bytes
// are drawn.
func ApplyAll(img image.Image, specs []Spec, o *oracle.Oracle, perturb bool) (*image.NRGBA, []Spec, error) {
	out := imaging.Clone(img)
	applied := make([]Spec, 0, len(specs))

	for _, s := range specs {
		if !Supported(s.Type) {
			return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFilter, s.Type)
		}

		working := s.Clone()
		if perturb {
			var err error
			working, err = Perturb(s, o)
			if err != nil {
				return nil, nil, err
			}
		}

		var err error
		out, err = Apply(out, working)
		if err != nil {
			return nil, nil, err
		}
		applied = append(applied, working)
	}

	return out, applied, nil
}
