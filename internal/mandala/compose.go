// Package mandala arranges four mirrored copies of a square tile into the
// final collage. Placement order and blend rounding are part of the output
// contract: outputs must match byte-for-byte across runs.
package mandala

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ErrNotSquare is returned when the input tile is not square.
var ErrNotSquare = errors.New("mandala tile must be square")

// Compose builds the mandala canvas from a WxW tile. The tile and its three
// mirrored copies fill the four quadrants of a 2Wx2W canvas as direct pixel
// copies, then a 90°-rotated copy of the whole canvas is alpha-composited
// back over it at 50% opacity.
func Compose(tile image.Image) (*image.NRGBA, error) {
	canvas, err := mirror(tile)
	if err != nil {
		return nil, err
	}

	rotated := imaging.Rotate90(canvas)
	return imaging.Overlay(canvas, rotated, image.Pt(0, 0), 0.5), nil
}

// mirror fills the quadrants: original top-left, horizontal flip top-right,
// vertical flip bottom-left, both flips bottom-right. Quadrants are disjoint,
// so later placements never overlap earlier ones.
func mirror(tile image.Image) (*image.NRGBA, error) {
	w := tile.Bounds().Dx()
	h := tile.Bounds().Dy()
	if w != h {
		return nil, fmt.Errorf("%w: got %dx%d", ErrNotSquare, w, h)
	}

	canvas := imaging.New(2*w, 2*w, color.NRGBA{0, 0, 0, 255})
	canvas = imaging.Paste(canvas, tile, image.Pt(0, 0))
	canvas = imaging.Paste(canvas, imaging.FlipH(tile), image.Pt(w, 0))
	canvas = imaging.Paste(canvas, imaging.FlipV(tile), image.Pt(0, w))
	canvas = imaging.Paste(canvas, imaging.FlipV(imaging.FlipH(tile)), image.Pt(w, w))
	return canvas, nil
}
