package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/daymark/mandalagen/internal/audit"
	"github.com/daymark/mandalagen/internal/calendar"
	"github.com/daymark/mandalagen/internal/catalog"
	"github.com/daymark/mandalagen/internal/facts"
	"github.com/daymark/mandalagen/internal/filter"
	"github.com/daymark/mandalagen/internal/logging"
	"github.com/daymark/mandalagen/internal/metrics"
	"github.com/daymark/mandalagen/internal/notify"
	"github.com/daymark/mandalagen/internal/oracle"
	"github.com/daymark/mandalagen/internal/permute"
	"github.com/daymark/mandalagen/internal/storage"
)

// Version and GitSHA are set at build time via ldflags.
var (
	Version = "dev"
	GitSHA  = ""
)

// Pipeline runs renders for a set of images across a date range. Pairs are
// rendered in parallel by a worker pool; publishing is serialized by a
// collector so catalog and journal writes stay ordered.
type Pipeline struct {
	renderer *Renderer
	store    storage.AtomicStore
	facts    facts.Provider
	catalog  catalog.Writer
	journal  audit.Journal
	notifier notify.Emitter

	prefix  string
	workers int
	runID   string
	log     *slog.Logger
}

// PipelineConfig wires the pipeline's collaborators.
type PipelineConfig struct {
	Renderer *Renderer
	Store    storage.AtomicStore
	Facts    facts.Provider
	Catalog  catalog.Writer
	Journal  audit.Journal
	Notifier notify.Emitter
	Prefix   string
	Workers  int

	// RunID identifies the run in catalog rows and journal entries.
	// Empty generates a fresh one.
	RunID string
}

// Summary counts the terminal outcomes of one run.
type Summary struct {
	Written int
	Skipped int
	Failed  int
}

// NewPipeline creates a pipeline. Workers below 1 are raised to 1.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	return &Pipeline{
		renderer: cfg.Renderer,
		store:    cfg.Store,
		facts:    cfg.Facts,
		catalog:  cfg.Catalog,
		journal:  cfg.Journal,
		notifier: cfg.Notifier,
		prefix:   cfg.Prefix,
		workers:  workers,
		runID:    runID,
		log:      logging.Component("pipeline"),
	}
}

// RunID returns the run identifier stamped on catalog rows and journal
// entries.
func (p *Pipeline) RunID() string { return p.runID }

type pairKey struct {
	image string
	date  calendar.Date
}

type pairFacts struct {
	daily facts.Daily
	err   error
}

// Run renders every (image, date) pair and returns the outcome counts.
// A failing pair never blocks its siblings; Run only returns an error when
// the run as a whole cannot proceed.
func (p *Pipeline) Run(ctx context.Context, specs []ImageSpec, dates []calendar.Date) (Summary, error) {
	if len(specs) == 0 || len(dates) == 0 {
		return Summary{}, nil
	}

	p.log.Info("starting run",
		"run_id", p.runID,
		"images", len(specs),
		"dates", len(dates),
		"workers", p.workers)

	var summary Summary

	// Geometry is a property of the image, not the day. An invalid spec
	// fails every requested date without touching the renderer.
	valid := make([]ImageSpec, 0, len(specs))
	for _, spec := range specs {
		if err := p.renderer.ValidateSpec(ctx, spec); err != nil {
			p.log.Error("image rejected", "image", spec.Name, "error", err)
			for _, d := range dates {
				p.recordFailure(Task{Spec: spec, Date: d}, err, &summary)
			}
			continue
		}
		valid = append(valid, spec)
	}
	if len(valid) == 0 {
		return summary, nil
	}

	factsByPair, err := p.prefetchFacts(ctx, valid, dates)
	if err != nil {
		return summary, err
	}

	taskCh := make(chan Task, p.workers*2)
	resultCh := make(chan Result, p.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.workerLoop(ctx, workerID, taskCh, resultCh)
		}(i)
	}

	go func() {
		defer close(taskCh)
		for _, spec := range valid {
			for _, d := range dates {
				pf := factsByPair[pairKey{spec.Name, d}]
				if pf.err != nil {
					resultCh <- Result{
						Task:  Task{Spec: spec, Date: d},
						State: StateFailed,
						Err:   fmt.Errorf("daily facts: %w", pf.err),
					}
					continue
				}
				select {
				case <-ctx.Done():
					return
				case taskCh <- Task{Spec: spec, Date: d, Facts: pf.daily}:
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for res := range resultCh {
		p.collect(ctx, res, &summary)
	}

	p.log.Info("run complete",
		"run_id", p.runID,
		"written", summary.Written,
		"skipped", summary.Skipped,
		"failed", summary.Failed)

	return summary, ctx.Err()
}

// prefetchFacts resolves the daily facts for every pair up front. Lookup
// errors are kept per pair so one flaky image does not abort the run.
func (p *Pipeline) prefetchFacts(ctx context.Context, specs []ImageSpec, dates []calendar.Date) (map[pairKey]pairFacts, error) {
	out := make(map[pairKey]pairFacts, len(specs)*len(dates))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers * 2)

	for _, spec := range specs {
		for _, d := range dates {
			spec, d := spec, d
			g.Go(func() error {
				daily, err := p.facts.FactsFor(gctx, spec.Name, d)
				mu.Lock()
				out[pairKey{spec.Name, d}] = pairFacts{daily: daily, err: err}
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}

// workerLoop renders tasks until the queue closes. Pairs whose artifact is
// already published are skipped without rendering.
func (p *Pipeline) workerLoop(ctx context.Context, workerID int, taskCh <-chan Task, resultCh chan<- Result) {
	for task := range taskCh {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ref := storage.ArtifactRef{Image: task.Spec.Name, Date: task.Date}
		if exists, err := p.store.Exists(ctx, ref); err == nil && exists {
			resultCh <- Result{Task: task, State: StateWritten, Skipped: true}
			continue
		}
		if exists, err := p.catalog.RenderExists(ctx, task.Spec.Name, task.Date); err == nil && exists {
			resultCh <- Result{Task: task, State: StateWritten, Skipped: true}
			continue
		}

		correlationID := logging.GenerateCorrelationID()
		log := logging.RenderLogger(correlationID, task.Spec.Name, task.Date.String())
		log.Debug("rendering", "worker", workerID)

		start := time.Now()
		artifact, err := p.renderer.Render(ctx, task)
		if err != nil {
			log.Error("render failed", "error", err)
			resultCh <- Result{Task: task, State: StateFailed, Err: err}
			continue
		}

		if m := metrics.Get(); m != nil {
			m.ObserveRenderDuration(task.Spec.Name, time.Since(start).Seconds())
			m.ObserveArtifactBytes(task.Spec.Name, float64(len(artifact.JPEG)))
		}

		log.Debug("rendered",
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", len(artifact.JPEG),
			"offset_x", artifact.Selection.OffsetX,
			"offset_y", artifact.Selection.OffsetY)

		resultCh <- Result{Task: task, State: StateComposed, Artifact: artifact}
	}
}

// collect publishes one result and folds it into the summary.
func (p *Pipeline) collect(ctx context.Context, res Result, summary *Summary) {
	image := res.Task.Spec.Name
	m := metrics.Get()

	switch {
	case res.Skipped:
		summary.Skipped++
		if m != nil {
			m.IncSkipped(image)
		}
		p.journal.Record(audit.Entry{
			Image:      image,
			RenderDate: res.Task.Date.String(),
			RunID:      p.runID,
			Status:     audit.StatusSkipped,
			RenderedAt: time.Now().UTC(),
		})

	case res.Err != nil:
		p.recordFailure(res.Task, res.Err, summary)

	default:
		if err := p.publish(ctx, res.Artifact); err != nil {
			p.recordFailure(res.Task, err, summary)
			return
		}
		summary.Written++
		if m != nil {
			m.IncWritten(image)
		}
	}
}

// publish commits an artifact: temp writes, atomic finalize, then catalog
// row and journal entry. A failed finalize aborts the temps so no partial
// output is ever visible.
func (p *Pipeline) publish(ctx context.Context, a *Artifact) error {
	ref := storage.ArtifactRef{Image: a.Image, Date: a.Date}
	start := time.Now()

	manifest := &storage.Manifest{
		Artifact: storage.ArtifactInfo{
			Image:     a.Image,
			Date:      a.Date.Compact(),
			Width:     a.Width,
			ByteSize:  int64(len(a.JPEG)),
			Checksum:  a.Checksum,
			ViewCount: a.ViewCount,
			Keyword:   a.Keyword,
		},
		Permutation: storage.PermutationInfo{
			LoopX:       a.Selection.LoopX,
			LoopY:       a.Selection.LoopY,
			Total:       a.Selection.Total,
			Permutation: a.Selection.Permutation,
			Offset:      a.Selection.Offset,
			OffsetX:     a.Selection.OffsetX,
			OffsetY:     a.Selection.OffsetY,
		},
		Producer: storage.ProducerInfo{
			Name:    "mandalagen",
			Version: Version,
			GitSHA:  GitSHA,
		},
		CreatedAt: a.RenderedAt,
	}

	artifactTemp, err := p.store.WriteArtifactTemp(ctx, ref, a.JPEG)
	if err != nil {
		p.storageError()
		return fmt.Errorf("write artifact: %w", err)
	}
	manifestTemp, err := p.store.WriteManifestTemp(ctx, ref, manifest)
	if err != nil {
		p.store.Abort(ctx, []string{artifactTemp})
		p.storageError()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := p.store.Finalize(ctx, ref, []string{artifactTemp, manifestTemp}); err != nil {
		p.store.Abort(ctx, []string{artifactTemp, manifestTemp})
		p.storageError()
		return fmt.Errorf("finalize: %w", err)
	}

	if err := p.catalog.RecordRender(ctx, catalog.RenderRecord{
		Image:       a.Image,
		Date:        a.Date,
		RunID:       p.runID,
		Checksum:    a.Checksum,
		StorageURI:  p.store.URI(ref.Path(p.prefix)),
		ByteSize:    int64(len(a.JPEG)),
		Width:       a.Width,
		ViewCount:   a.ViewCount,
		Keyword:     a.Keyword,
		Permutation: a.Selection.Permutation,
		Offset:      a.Selection.Offset,
		OffsetX:     a.Selection.OffsetX,
		OffsetY:     a.Selection.OffsetY,
		RenderedAt:  a.RenderedAt,
	}); err != nil {
		// The artifact is already live. Log and count, do not unpublish.
		p.log.Error("catalog record failed", "image", a.Image, "date", a.Date.String(), "error", err)
		if m := metrics.Get(); m != nil {
			m.CatalogErrors.Inc()
		}
	}

	p.journal.Record(audit.Entry{
		Image:            a.Image,
		RenderDate:       a.Date.String(),
		RunID:            p.runID,
		Status:           audit.StatusWritten,
		LoopX:            int32(a.Selection.LoopX),
		LoopY:            int32(a.Selection.LoopY),
		PermutationTotal: int32(a.Selection.Total),
		Permutation:      int32(a.Selection.Permutation),
		Offset:           int32(a.Selection.Offset),
		OffsetX:          int32(a.Selection.OffsetX),
		OffsetY:          int32(a.Selection.OffsetY),
		Checksum:         a.Checksum,
		StorageURI:       p.store.URI(ref.Path(p.prefix)),
		ByteSize:         int64(len(a.JPEG)),
		RenderedAt:       a.RenderedAt,
	})

	if p.notifier != nil {
		err := p.notifier.EmitRender(ctx, &notify.Event{
			Timestamp: a.RenderedAt,
			Render: notify.RenderInfo{
				Image:      a.Image,
				Date:       a.Date.String(),
				Checksum:   a.Checksum,
				StorageURI: p.store.URI(ref.Path(p.prefix)),
				ByteSize:   int64(len(a.JPEG)),
				Width:      a.Width,
			},
			Producer: notify.ProducerInfo{
				Name:    "mandalagen",
				Version: Version,
				GitSHA:  GitSHA,
			},
		})
		if err != nil {
			p.log.Warn("announce failed", "image", a.Image, "date", a.Date.String(), "error", err)
		}
	}

	if m := metrics.Get(); m != nil {
		m.ObservePublishDuration(a.Image, time.Since(start).Seconds())
	}
	return nil
}

func (p *Pipeline) recordFailure(task Task, err error, summary *Summary) {
	summary.Failed++
	if m := metrics.Get(); m != nil {
		m.IncFailed(task.Spec.Name, failureReason(err))
	}
	p.journal.Record(audit.Entry{
		Image:      task.Spec.Name,
		RenderDate: task.Date.String(),
		RunID:      p.runID,
		Status:     audit.StatusFailed,
		Error:      err.Error(),
		RenderedAt: time.Now().UTC(),
	})
}

func (p *Pipeline) storageError() {
	if m := metrics.Get(); m != nil {
		m.StorageErrors.WithLabelValues("artifact").Inc()
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidGeometry):
		return "invalid_geometry"
	case errors.Is(err, permute.ErrDegenerateGeometry):
		return "degenerate_geometry"
	case errors.Is(err, oracle.ErrExhausted), errors.Is(err, filter.ErrPerturbationExhausted):
		return "exhausted"
	case errors.Is(err, filter.ErrUnsupportedFilter):
		return "unsupported_filter"
	case errors.Is(err, facts.ErrNoObservations):
		return "no_facts"
	default:
		return "render"
	}
}
