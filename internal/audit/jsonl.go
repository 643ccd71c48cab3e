package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// JSONLJournal writes the run journal as gzip-compressed JSON lines,
// one entry per line, named audit-<runID>.jsonl.gz.
type JSONLJournal struct {
	buffer
	path string
}

func newJSONLJournal(dir, runID string) (*JSONLJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &JSONLJournal{
		path: filepath.Join(dir, fmt.Sprintf("audit-%s.jsonl.gz", runID)),
	}, nil
}

func (j *JSONLJournal) Close() error {
	entries := j.drain()
	if len(entries) == 0 {
		return nil
	}

	tmp := j.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create audit file: %w", err)
	}

	zw := gzip.NewWriter(f)
	enc := json.NewEncoder(zw)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			zw.Close()
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write audit entry: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
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
func (j *JSONLJournal) Path() string { return j.path }
