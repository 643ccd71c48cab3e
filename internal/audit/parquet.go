package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/snappy"
)

// ParquetJournal writes the run journal as a single snappy-compressed
// parquet file named audit-<runID>.parquet.
type ParquetJournal struct {
	buffer
	path string
}

func newParquetJournal(dir, runID string) (*ParquetJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &ParquetJournal{
		path: filepath.Join(dir, fmt.Sprintf("audit-%s.parquet", runID)),
	}, nil
}

// Close flushes all recorded entries to disk. An empty run writes no file.
func (j *ParquetJournal) Close() error {
	entries := j.drain()
	if len(entries) == 0 {
		return nil
	}

	tmp := j.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create audit file: %w", err)
	}

	w := parquet.NewGenericWriter[Entry](f,
		parquet.Compression(&snappy.Codec{}),
		parquet.CreatedBy("mandalagen", "1", time.Now().Format(time.RFC3339)),
	)
	if _, err := w.Write(entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write audit rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("finish audit file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, j.path)
}

// Path returns the journal's destination file.
func (j *ParquetJournal) Path() string { return j.path }
