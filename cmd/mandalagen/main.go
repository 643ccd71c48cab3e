package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/daymark/mandalagen/internal/audit"
	"github.com/daymark/mandalagen/internal/calendar"
	"github.com/daymark/mandalagen/internal/catalog"
	"github.com/daymark/mandalagen/internal/config"
	"github.com/daymark/mandalagen/internal/facts"
	"github.com/daymark/mandalagen/internal/lock"
	"github.com/daymark/mandalagen/internal/logging"
	"github.com/daymark/mandalagen/internal/metrics"
	"github.com/daymark/mandalagen/internal/notify"
	"github.com/daymark/mandalagen/internal/render"
	"github.com/daymark/mandalagen/internal/source"
	"github.com/daymark/mandalagen/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML configuration")
		dateFlag   = flag.String("date", "", "single date to render (YYYY-MM-DD, default today)")
		fromFlag   = flag.String("from", "", "start of date range (YYYY-MM-DD)")
		toFlag     = flag.String("to", "", "end of date range (YYYY-MM-DD)")
		imagesFlag = flag.String("images", "", "comma-separated subset of configured images")
		widthFlag  = flag.Int("width", 0, "override output canvas width for this run")
		versionFlg = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *versionFlg {
		fmt.Printf("mandalagen %s (%s)\n", render.Version, render.GitSHA)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging)
	log := logging.Component("main")
	log.Info("mandalagen starting", "version", render.Version, "git_sha", render.GitSHA)

	dates, err := resolveDates(*dateFlag, *fromFlag, *toFlag)
	if err != nil {
		log.Error("invalid date arguments", "error", err)
		os.Exit(1)
	}

	specs, err := resolveSpecs(cfg, *imagesFlag, *widthFlag)
	if err != nil {
		log.Error("invalid image selection", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	if cfg.Lock.Path != "" {
		l, err := lock.Acquire(cfg.Lock.Path)
		if err != nil {
			log.Error("lock acquisition failed", "path", cfg.Lock.Path, "error", err)
			os.Exit(1)
		}
		defer l.Release()
	}

	if cfg.Metrics.Enabled {
		metrics.Init("mandalagen")
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	src, err := source.NewImageSource(source.Config{
		Backend:   cfg.Source.Backend,
		LocalDir:  cfg.Source.LocalDir,
		BucketURL: cfg.Source.BucketURL,
		Prefix:    cfg.Source.Prefix,
	})
	if err != nil {
		log.Error("create image source failed", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	store, err := storage.NewArtifactStore(storage.Config{
		Backend:    cfg.Storage.Backend,
		LocalDir:   cfg.Storage.LocalDir,
		GCSBucket:  cfg.Storage.GCSBucket,
		S3Bucket:   cfg.Storage.S3Bucket,
		S3Endpoint: cfg.Storage.S3Endpoint,
		S3Region:   cfg.Storage.S3Region,
		Prefix:     cfg.Storage.Prefix,
	})
	if err != nil {
		log.Error("create artifact store failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	provider, err := newFactsProvider(cfg.Facts)
	if err != nil {
		log.Error("create facts provider failed", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	cat, err := catalog.NewWriter(cfg.Catalog.PostgresDSN)
	if err != nil {
		log.Error("create render catalog failed", "error", err)
		os.Exit(1)
	}
	defer cat.Close()

	renderer := render.NewRenderer(src, render.Options{
		PermutationStep: cfg.Output.PermutationStep,
		Classic:         cfg.Output.ClassicMode,
		Quality:         cfg.Output.Quality,
		DefaultWidth:    cfg.Output.DefaultWidth,
	})

	notifier := notify.NewEmitter(notify.Config{
		Enabled:  cfg.Notify.Enabled,
		Endpoint: cfg.Notify.Endpoint,
		StateDir: cfg.Notify.StateDir,
	})
	defer notifier.Close()

	runID := uuid.New().String()
	journal, err := audit.NewJournal(audit.Config{
		Enabled: cfg.Audit.Enabled,
		Dir:     cfg.Audit.Dir,
		Format:  cfg.Audit.Format,
	}, runID)
	if err != nil {
		log.Error("create audit journal failed", "error", err)
		os.Exit(1)
	}

	pipeline := render.NewPipeline(render.PipelineConfig{
		Renderer: renderer,
		Store:    store,
		Facts:    provider,
		Catalog:  cat,
		Journal:  journal,
		Notifier: notifier,
		Prefix:   cfg.Storage.Prefix,
		Workers:  cfg.Perf.Workers,
		RunID:    runID,
	})

	summary, err := pipeline.Run(ctx, specs, dates)
	if cerr := journal.Close(); cerr != nil {
		log.Error("flush audit journal failed", "error", cerr)
	}
	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown complete", "written", summary.Written, "failed", summary.Failed)
			return
		}
		log.Error("pipeline failed", "error", err)
		os.Exit(1)
	}

	log.Info("run finished",
		"written", summary.Written,
		"skipped", summary.Skipped,
		"failed", summary.Failed)
	if summary.Failed > 0 {
		os.Exit(2)
	}
}

// resolveDates turns the date flags into the list of days to render.
// -date and -from/-to are mutually exclusive; with neither, today is used.
func resolveDates(single, from, to string) ([]calendar.Date, error) {
	if single != "" && (from != "" || to != "") {
		return nil, fmt.Errorf("-date cannot be combined with -from/-to")
	}
	if single != "" {
		d, err := calendar.Parse(single)
		if err != nil {
			return nil, err
		}
		return []calendar.Date{d}, nil
	}
	if from != "" || to != "" {
		if from == "" || to == "" {
			return nil, fmt.Errorf("-from and -to must be given together")
		}
		start, err := calendar.Parse(from)
		if err != nil {
			return nil, fmt.Errorf("parse -from: %w", err)
		}
		end, err := calendar.Parse(to)
		if err != nil {
			return nil, fmt.Errorf("parse -to: %w", err)
		}
		dates := calendar.Range(start, end)
		if len(dates) == 0 {
			return nil, fmt.Errorf("empty date range %s..%s", from, to)
		}
		return dates, nil
	}
	return []calendar.Date{calendar.DateOf(time.Now().UTC())}, nil
}

// resolveSpecs builds the render specs, optionally filtered by -images.
// A positive width overrides every spec's canvas width for this run.
func resolveSpecs(cfg config.Config, filterList string, width int) ([]render.ImageSpec, error) {
	selected := map[string]bool{}
	if filterList != "" {
		for _, name := range strings.Split(filterList, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := cfg.Images[name]; !ok {
				return nil, fmt.Errorf("unknown image %q", name)
			}
			selected[name] = true
		}
	}

	var specs []render.ImageSpec
	for name, ic := range cfg.Images {
		if len(selected) > 0 && !selected[name] {
			continue
		}
		filters, err := ic.FilterSpecs()
		if err != nil {
			return nil, fmt.Errorf("image %q: %w", name, err)
		}
		outWidth := ic.OutWidth
		if width > 0 {
			outWidth = width
		}
		specs = append(specs, render.ImageSpec{
			Name:       name,
			Source:     ic.Source,
			CropLeft:   ic.CropLeft,
			CropTop:    ic.CropTop,
			CropWidth:  ic.CropWidth,
			CropHeight: ic.CropHeight,
			Rectangle:  ic.Rectangle,
			OutWidth:   outWidth,
			Filters:    filters,
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}

func newFactsProvider(cfg config.FactsConfig) (facts.Provider, error) {
	switch cfg.Provider {
	case "postgres":
		return facts.NewPostgresStore(cfg.PostgresDSN)
	case "http":
		return facts.NewHTTPProvider(cfg.Endpoint), nil
	default:
		return nil, fmt.Errorf("unknown facts provider %q", cfg.Provider)
	}
}
