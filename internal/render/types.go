package render

import (
	"time"

	"github.com/daymark/mandalagen/internal/calendar"
	"github.com/daymark/mandalagen/internal/facts"
	"github.com/daymark/mandalagen/internal/permute"
)

// State tracks a render task through its lifecycle. Transitions only move
// forward; any failure jumps to StateFailed and the task never produces
// output.
type State int

const (
	StateIdle State = iota
	StateGeometryValidated
	StateCropSelected
	StateFiltered
	StateComposed
	StateWritten
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGeometryValidated:
		return "geometry_validated"
	case StateCropSelected:
		return "crop_selected"
	case StateFiltered:
		return "filtered"
	case StateComposed:
		return "composed"
	case StateWritten:
		return "written"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task is one (image, date) render request.
type Task struct {
	Spec  ImageSpec
	Date  calendar.Date
	Facts facts.Daily
}

// Artifact is a derived collage ready for publishing.
type Artifact struct {
	Image      string
	Date       calendar.Date
	JPEG       []byte
	Checksum   string
	Width      int
	Selection  permute.Selection
	ViewCount  int64
	Keyword    string
	RenderedAt time.Time
}

// Result is the terminal outcome of one task.
type Result struct {
	Task     Task
	State    State
	Artifact *Artifact
	Skipped  bool
	Err      error
}
