package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/daymark/mandalagen/internal/logging"
)

// FileEmitter writes events to local files and maintains the hash chain.
// It also serves as the durable backup behind the HTTP emitter.
type FileEmitter struct {
	chain *ChainTracker
	dir   string
}

// NewFileEmitter creates an emitter writing under dir.
func NewFileEmitter(dir string) (*FileEmitter, error) {
	chain, err := NewChainTracker(dir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}
	eventsDir := filepath.Join(dir, "events")
	if err := os.MkdirAll(eventsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}
	return &FileEmitter{chain: chain, dir: eventsDir}, nil
}

// EmitRender seals the event into the image's chain and writes it to a
// JSON file named {image}_{date}.json.
func (e *FileEmitter) EmitRender(_ context.Context, evt *Event) error {
	e.seal(evt)

	filename := fmt.Sprintf("%s_%s.json", evt.Render.Image, evt.Render.Date)
	path := filepath.Join(e.dir, filename)

	data, err := json.MarshalIndent(evt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	if err := e.chain.SetHead(evt.Render.ChainKey(), evt.Chain.EventHash); err != nil {
		logging.Component("notify").Warn("chain head update failed", "error", err)
	}
	return nil
}

// seal fills in the envelope fields and links the event to its chain.
func (e *FileEmitter) seal(evt *Event) {
	prevHash, _ := e.chain.GetHead(evt.Render.ChainKey())
	evt.Chain.PrevEventHash = prevHash
	evt.EventID = GenerateEventID()
	evt.Version = "1.0"
	evt.EventType = "mandala_published"
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Chain.EventHash = ComputeEventHash(evt)
}

// Close releases resources.
func (e *FileEmitter) Close() error { return nil }
