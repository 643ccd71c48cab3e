package notify

import (
	"context"

	"github.com/daymark/mandalagen/internal/logging"
)

// Emitter announces published renders.
type Emitter interface {
	EmitRender(ctx context.Context, evt *Event) error
	Close() error
}

// Config selects the emitter backend.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`  // HTTP receiver, optional
	StateDir string `yaml:"state_dir"` // chain heads and local event copies
}

// NewEmitter builds the configured emitter. With no endpoint, events are
// written to the state directory only.
func NewEmitter(cfg Config) Emitter {
	log := logging.Component("notify")

	if !cfg.Enabled {
		return noopEmitter{}
	}

	stateDir := cfg.StateDir
	if stateDir == "" {
		stateDir = "./notify-state"
	}

	if cfg.Endpoint != "" {
		emitter, err := NewHTTPEmitter(cfg.Endpoint, stateDir)
		if err != nil {
			log.Warn("http emitter unavailable, falling back to file-only", "error", err)
			return fileOnlyOrNoop(stateDir)
		}
		log.Info("using http emitter", "endpoint", cfg.Endpoint)
		return emitter
	}

	return fileOnlyOrNoop(stateDir)
}

func fileOnlyOrNoop(stateDir string) Emitter {
	log := logging.Component("notify")
	emitter, err := NewFileEmitter(stateDir)
	if err != nil {
		log.Warn("file emitter unavailable, announcements disabled", "error", err)
		return noopEmitter{}
	}
	log.Info("using file-only emitter", "dir", stateDir)
	return emitter
}

type noopEmitter struct{}

func (noopEmitter) EmitRender(context.Context, *Event) error { return nil }
func (noopEmitter) Close() error                             { return nil }
