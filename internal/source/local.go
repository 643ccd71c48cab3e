package source

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// LocalSource loads photographs from a local directory.
type LocalSource struct {
	baseDir string
}

// NewLocalSource creates a new local filesystem source.
func NewLocalSource(baseDir string) (*LocalSource, error) {
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("invalid source dir %s: %w", baseDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path %s is not a directory", baseDir)
	}

	return &LocalSource{baseDir: baseDir}, nil
}

// Load decodes the photograph stored under key.
func (s *LocalSource) Load(ctx context.Context, key string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.baseDir, key)
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source image %s: %w", path, err)
	}
	return img, nil
}

// Close is a no-op for local sources.
func (s *LocalSource) Close() error {
	return nil
}
