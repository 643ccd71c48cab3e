package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/daymark/mandalagen/internal/calendar"
)

// ArtifactRef describes one day's mandala location. Artifacts are named by
// image identifier and the 8-digit date; that naming is part of the output
// contract.
type ArtifactRef struct {
	Image string
	Date  calendar.Date
}

// Path returns the storage key for this artifact's JPEG.
func (r ArtifactRef) Path(prefix string) string {
	return fmt.Sprintf("%s%s/%s-%s.jpg", prefix, r.Image, r.Image, r.Date.Compact())
}

// ManifestPath returns the storage key for this artifact's manifest.
func (r ArtifactRef) ManifestPath(prefix string) string {
	return fmt.Sprintf("%s%s/%s-%s.manifest.json", prefix, r.Image, r.Image, r.Date.Compact())
}

// DirPath returns the per-image directory key.
func (r ArtifactRef) DirPath(prefix string) string {
	return fmt.Sprintf("%s%s", prefix, r.Image)
}

// Manifest describes a published artifact alongside the diagnostic facts of
// the render that produced it.
type Manifest struct {
	Artifact    ArtifactInfo    `json:"artifact"`
	Permutation PermutationInfo `json:"permutation"`
	Producer    ProducerInfo    `json:"producer"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ArtifactInfo describes the published raster.
type ArtifactInfo struct {
	Image     string `json:"image"`
	Date      string `json:"date"` // 8-digit form
	Width     int    `json:"width"`
	ByteSize  int64  `json:"byte_size"`
	Checksum  string `json:"checksum"`
	ViewCount int64  `json:"view_count"`
	Keyword   string `json:"keyword"`
}

// PermutationInfo carries the crop-selection diagnostics for audit.
type PermutationInfo struct {
	LoopX       int `json:"loop_x"`
	LoopY       int `json:"loop_y"`
	Total       int `json:"permutation_total"`
	Permutation int `json:"permutation"`
	Offset      int `json:"offset"`
	OffsetX     int `json:"offset_x"`
	OffsetY     int `json:"offset_y"`
}

// ProducerInfo describes the software that produced the artifact.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// MarshalJSON returns the manifest as indented JSON bytes.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.MarshalIndent((*Alias)(m), "", "  ")
}

// ArtifactStore abstracts writing rendered mandalas to storage.
type ArtifactStore interface {
	// WriteArtifact writes encoded JPEG bytes to storage.
	WriteArtifact(ctx context.Context, ref ArtifactRef, data []byte) error

	// WriteManifest writes a manifest file to storage.
	WriteManifest(ctx context.Context, ref ArtifactRef, manifest *Manifest) error

	// Exists checks if an artifact was already published.
	Exists(ctx context.Context, ref ArtifactRef) (bool, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// AtomicStore extends ArtifactStore with atomic publish capabilities. The
// core never partially writes an output; preferring this interface keeps
// half-written files invisible even across crashes.
type AtomicStore interface {
	ArtifactStore

	// WriteArtifactTemp writes JPEG bytes to a temporary location and
	// returns the temp key for Finalize.
	WriteArtifactTemp(ctx context.Context, ref ArtifactRef, data []byte) (tempKey string, err error)

	// WriteManifestTemp writes a manifest to a temporary location.
	WriteManifestTemp(ctx context.Context, ref ArtifactRef, manifest *Manifest) (tempKey string, err error)

	// Finalize atomically moves temp files to their canonical locations.
	// For object stores this is copy+delete; for local filesystem a rename.
	Finalize(ctx context.Context, ref ArtifactRef, tempKeys []string) error

	// Abort removes temporary files without publishing.
	Abort(ctx context.Context, tempKeys []string) error

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config configures the storage backend.
type Config struct {
	Backend string // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string

	// GCS
	GCSBucket string

	// S3 (also works for B2, R2, MinIO)
	S3Bucket   string
	S3Endpoint string
	S3Region   string

	// Common
	Prefix string // path prefix within bucket or local dir
}

// NewArtifactStore creates a storage backend based on configuration.
// All supported backends implement AtomicStore.
func NewArtifactStore(cfg Config) (AtomicStore, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCSBucket required for gcs backend")
		}
		return NewGCSStore(cfg.GCSBucket, cfg.Prefix)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3Bucket required for s3 backend")
		}
		return NewS3Store(cfg.S3Bucket, cfg.Prefix, cfg.S3Endpoint, cfg.S3Region)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
