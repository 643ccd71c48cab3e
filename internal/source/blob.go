package source

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver
)

// BlobSource loads photographs from an object-store bucket.
type BlobSource struct {
	bucket *blob.Bucket
	prefix string
}

// NewBlobSource opens the bucket behind a gocloud URL.
func NewBlobSource(bucketURL, prefix string) (*BlobSource, error) {
	bucket, err := blob.OpenBucket(context.Background(), bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open source bucket %s: %w", bucketURL, err)
	}

	return &BlobSource{bucket: bucket, prefix: prefix}, nil
}

// Load reads and decodes the photograph stored under key.
func (s *BlobSource) Load(ctx context.Context, key string) (image.Image, error) {
	data, err := s.bucket.ReadAll(ctx, s.prefix+key)
	if err != nil {
		return nil, fmt.Errorf("read source object %s: %w", s.prefix+key, err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode source object %s: %w", s.prefix+key, err)
	}
	return img, nil
}

// Close releases the bucket handle.
func (s *BlobSource) Close() error {
	return s.bucket.Close()
}
