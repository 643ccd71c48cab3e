// Package audit writes a per-run journal of render outcomes, one entry per
// (image, date) pair attempted, including the pairs that failed or were
// skipped. The journal is an append-only file written on Close.
package audit

import (
	"fmt"
	"sync"
	"time"
)

// Entry is one journal row.
type Entry struct {
	Image            string    `json:"image" parquet:"image"`
	RenderDate       string    `json:"render_date" parquet:"render_date"`
	RunID            string    `json:"run_id" parquet:"run_id"`
	Status           string    `json:"status" parquet:"status"`
	Error            string    `json:"error,omitempty" parquet:"error,optional"`
	LoopX            int32     `json:"loop_x" parquet:"loop_x"`
	LoopY            int32     `json:"loop_y" parquet:"loop_y"`
	PermutationTotal int32     `json:"permutation_total" parquet:"permutation_total"`
	Permutation      int32     `json:"permutation" parquet:"permutation"`
	Offset           int32     `json:"offset" parquet:"offset"`
	OffsetX          int32     `json:"offset_x" parquet:"offset_x"`
	OffsetY          int32     `json:"offset_y" parquet:"offset_y"`
	Checksum         string    `json:"checksum,omitempty" parquet:"checksum,optional"`
	StorageURI       string    `json:"storage_uri,omitempty" parquet:"storage_uri,optional"`
	ByteSize         int64     `json:"byte_size" parquet:"byte_size"`
	RenderedAt       time.Time `json:"rendered_at" parquet:"rendered_at,timestamp(millisecond)"`
}

// Entry statuses.
const (
	StatusWritten = "written"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Journal collects entries for one run and flushes them on Close.
type Journal interface {
	Record(e Entry)
	Close() error
}

// Config selects the journal backend.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Format  string `yaml:"format"` // "parquet" or "jsonl"
}

// NewJournal builds the configured journal. Disabled audit yields a no-op.
func NewJournal(cfg Config, runID string) (Journal, error) {
	if !cfg.Enabled {
		return noopJournal{}, nil
	}
	switch cfg.Format {
	case "", "parquet":
		return newParquetJournal(cfg.Dir, runID)
	case "jsonl":
		return newJSONLJournal(cfg.Dir, runID)
	default:
		return nil, fmt.Errorf("unsupported audit format %q", cfg.Format)
	}
}

type noopJournal struct{}

func (noopJournal) Record(Entry) {}
func (noopJournal) Close() error { return nil }

// buffer is the shared accumulation half of both file backends.
type buffer struct {
	mu      sync.Mutex
	entries []Entry
}

func (b *buffer) Record(e Entry) {
	b.mu.Lock()
	b.entries = append(b.entries, e)
	b.mu.Unlock()
}

func (b *buffer) drain() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.entries
	b.entries = nil
	return out
}
