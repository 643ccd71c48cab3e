package source

import (
	"context"
	"errors"
	"image"
)

// ImageSource loads source photographs by their configured key. Decoding is a
// boundary concern: callers receive a decoded image and never touch container
// formats.
type ImageSource interface {
	Load(ctx context.Context, key string) (image.Image, error)
	Close() error
}

// Config selects the image source backend.
type Config struct {
	Backend   string // "local" | "blob"
	LocalDir  string
	BucketURL string // gocloud bucket URL: "gs://...", "s3://...", "file://..."
	Prefix    string
}

var ErrInvalidSourceBackend = errors.New("invalid source backend")

// NewImageSource constructs an image source based on the configured backend.
func NewImageSource(cfg Config) (ImageSource, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalSource(cfg.LocalDir)
	case "blob":
		return NewBlobSource(cfg.BucketURL, cfg.Prefix)
	default:
		return nil, ErrInvalidSourceBackend
	}
}
