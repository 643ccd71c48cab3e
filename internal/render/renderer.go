package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/daymark/mandalagen/internal/filter"
	"github.com/daymark/mandalagen/internal/mandala"
	"github.com/daymark/mandalagen/internal/oracle"
	"github.com/daymark/mandalagen/internal/permute"
	"github.com/daymark/mandalagen/internal/source"
)

// Renderer derives collages from source photographs. It is safe for
// concurrent use; the greyscale conversion of each source is done once and
// shared across dates.
type Renderer struct {
	src          source.ImageSource
	selector     permute.Selector
	perturb      bool
	quality      int
	defaultWidth int

	mu   sync.Mutex
	grey map[string]*image.NRGBA
}

// Options tune the renderer.
type Options struct {
	// PermutationStep divides the offset space into buckets. Zero selects
	// the canonical step of 8.
	PermutationStep int

	// Classic reproduces the legacy derivation: no jitter and no filter
	// perturbation, so the collage depends only on the date.
	Classic bool

	// Quality is the JPEG quality, 1 to 100.
	Quality int

	// DefaultWidth is the canvas width for specs that declare none.
	DefaultWidth int
}

// NewRenderer builds a renderer over the given image source.
func NewRenderer(src source.ImageSource, opts Options) *Renderer {
	sel := permute.NewSelector()
	if opts.PermutationStep > 0 {
		sel.Step = opts.PermutationStep
	}
	if opts.Classic {
		sel.Jitter = false
	}
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 92
	}
	width := opts.DefaultWidth
	if width <= 0 {
		width = 1024
	}

	return &Renderer{
		src:          src,
		selector:     sel,
		perturb:      !opts.Classic,
		quality:      quality,
		defaultWidth: width,
		grey:         make(map[string]*image.NRGBA),
	}
}

// ValidateSpec decodes the spec's source once and checks the crop geometry
// against it. The greyscale copy is cached for later renders.
func (r *Renderer) ValidateSpec(ctx context.Context, spec ImageSpec) error {
	grey, err := r.greyscale(ctx, spec)
	if err != nil {
		return err
	}
	return spec.Validate(grey.Bounds())
}

// Render derives the collage for one task. The output depends only on the
// task's spec, date, and daily facts.
func (r *Renderer) Render(ctx context.Context, task Task) (*Artifact, error) {
	spec := task.Spec

	grey, err := r.greyscale(ctx, spec)
	if err != nil {
		return nil, err
	}
	if err := spec.Validate(grey.Bounds()); err != nil {
		return nil, err
	}

	o := oracle.New(task.Facts.ViewCount, task.Facts.Keyword)

	sel, err := r.selector.Select(spec.CropWidth, spec.CropHeight, spec.Rectangle, task.Date, o)
	if err != nil {
		return nil, fmt.Errorf("select crop: %w", err)
	}

	tile := imaging.Crop(grey, image.Rect(
		spec.CropLeft+sel.OffsetX,
		spec.CropTop+sel.OffsetY,
		spec.CropLeft+sel.OffsetX+spec.Rectangle,
		spec.CropTop+sel.OffsetY+spec.Rectangle,
	))

	width := spec.OutWidth
	if width <= 0 {
		width = r.defaultWidth
	}
	tile = imaging.Resize(tile, width/2, width/2, imaging.Lanczos)

	filtered, _, err := filter.ApplyAll(tile, spec.Filters, o, r.perturb)
	if err != nil {
		return nil, fmt.Errorf("apply filters: %w", err)
	}

	canvas, err := mandala.Compose(filtered)
	if err != nil {
		return nil, fmt.Errorf("compose mandala: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(r.quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	data := buf.Bytes()
	return &Artifact{
		Image:      spec.Name,
		Date:       task.Date,
		JPEG:       data,
		Checksum:   Checksum(data),
		Width:      width,
		Selection:  sel,
		ViewCount:  task.Facts.ViewCount,
		Keyword:    task.Facts.Keyword,
		RenderedAt: time.Now().UTC(),
	}, nil
}
