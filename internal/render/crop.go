package render

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// greyscale loads and converts the spec's source bitmap, caching the result
// per source key so sibling dates share it.
func (r *Renderer) greyscale(ctx context.Context, spec ImageSpec) (*image.NRGBA, error) {
	r.mu.Lock()
	if img, ok := r.grey[spec.Source]; ok {
		r.mu.Unlock()
		return img, nil
	}
	r.mu.Unlock()

	src, err := r.src.Load(ctx, spec.Source)
	if err != nil {
		return nil, fmt.Errorf("load source %q: %w", spec.Source, err)
	}
	grey := imaging.Grayscale(src)

	r.mu.Lock()
	r.grey[spec.Source] = grey
	r.mu.Unlock()
	return grey, nil
}
