package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/daymark/mandalagen/internal/audit"
	"github.com/daymark/mandalagen/internal/calendar"
	"github.com/daymark/mandalagen/internal/catalog"
	"github.com/daymark/mandalagen/internal/facts"
	"github.com/daymark/mandalagen/internal/filter"
	"github.com/daymark/mandalagen/internal/oracle"
	"github.com/daymark/mandalagen/internal/storage"
)

// memSource serves synthetic bitmaps without touching the filesystem.
type memSource struct {
	imgs map[string]image.Image
}

func (m *memSource) Load(_ context.Context, key string) (image.Image, error) {
	img, ok := m.imgs[key]
	if !ok {
		return nil, errors.New("no such source: " + key)
	}
	return img, nil
}

func (m *memSource) Close() error { return nil }

// syntheticPhoto builds a deterministic test bitmap with enough pixel
// variation that crops at different offsets differ.
func syntheticPhoto(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8((x*7 + y*13) % 256)
			img.Pix[i+1] = uint8((x*3 + y*29) % 256)
			img.Pix[i+2] = uint8((x*11 + y*5) % 256)
			img.Pix[i+3] = 255
		}
	}
	return img
}

func testSource() *memSource {
	return &memSource{imgs: map[string]image.Image{
		"lighthouse.png": syntheticPhoto(128, 128),
		"harbor.png":     syntheticPhoto(160, 120),
	}}
}

func testFacts(images []string, dates []calendar.Date) *facts.StaticProvider {
	p := facts.NewStaticProvider()
	for _, img := range images {
		for _, d := range dates {
			p.Set(img, d, facts.Daily{ViewCount: 120, Keyword: "sunrise"})
		}
	}
	return p
}

func newTestPipeline(t *testing.T, src *memSource, provider facts.Provider) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewArtifactStore(storage.Config{
		Backend:  "local",
		LocalDir: dir,
		Prefix:   "mandalas/",
	})
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cat, err := catalog.NewWriter("")
	if err != nil {
		t.Fatalf("catalog.NewWriter: %v", err)
	}
	journal, err := audit.NewJournal(audit.Config{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("audit.NewJournal: %v", err)
	}

	p := NewPipeline(PipelineConfig{
		Renderer: NewRenderer(src, Options{}),
		Store:    store,
		Facts:    provider,
		Catalog:  cat,
		Journal:  journal,
		Prefix:   "mandalas/",
		Workers:  2,
	})
	return p, dir
}

func TestRenderDeterminism(t *testing.T) {
	task := Task{
		Spec:  baseSpec(),
		Date:  calendar.Date{Year: 2024, Month: 6, Day: 1},
		Facts: facts.Daily{ViewCount: 120, Keyword: "sunrise"},
	}
	task.Spec.Filters = []filter.Spec{
		{Type: "contrast", Params: map[string]float64{"amount": 10}},
		{Type: "blur", Params: map[string]float64{"sigma": 1.2}},
	}

	a1, err := NewRenderer(testSource(), Options{}).Render(context.Background(), task)
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	a2, err := NewRenderer(testSource(), Options{}).Render(context.Background(), task)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}

	if !bytes.Equal(a1.JPEG, a2.JPEG) {
		t.Error("renders of the same task differ")
	}
	if a1.Checksum != a2.Checksum {
		t.Errorf("checksums differ: %s vs %s", a1.Checksum, a2.Checksum)
	}
	if a1.Width != 128 {
		t.Errorf("width = %d, want 128", a1.Width)
	}
}

func TestRenderDatesDiffer(t *testing.T) {
	r := NewRenderer(testSource(), Options{})
	daily := facts.Daily{ViewCount: 120, Keyword: "sunrise"}
	spec := baseSpec()

	a1, err := r.Render(context.Background(), Task{Spec: spec, Date: calendar.Date{Year: 2024, Month: 6, Day: 1}, Facts: daily})
	if err != nil {
		t.Fatalf("render day 1: %v", err)
	}
	a2, err := r.Render(context.Background(), Task{Spec: spec, Date: calendar.Date{Year: 2024, Month: 6, Day: 2}, Facts: daily})
	if err != nil {
		t.Fatalf("render day 2: %v", err)
	}

	if a1.Selection.Permutation == a2.Selection.Permutation {
		t.Error("consecutive days picked the same permutation")
	}
	if bytes.Equal(a1.JPEG, a2.JPEG) {
		t.Error("consecutive days produced identical collages")
	}
}

func TestRenderOutputSquare(t *testing.T) {
	a, err := NewRenderer(testSource(), Options{}).Render(context.Background(), Task{
		Spec:  baseSpec(),
		Date:  calendar.Date{Year: 2024, Month: 6, Day: 1},
		Facts: facts.Daily{ViewCount: 1, Keyword: "k"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	cfg, err := imageConfigOf(a.JPEG)
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Width != 128 || cfg.Height != 128 {
		t.Errorf("output = %dx%d, want 128x128", cfg.Width, cfg.Height)
	}
}

func TestRenderPerturbationExhausted(t *testing.T) {
	spec := baseSpec()
	// One digest yields 20 bytes and the crop jitter takes the first,
	// so a chain demanding 20 more perturbations must run dry.
	for i := 0; i < 20; i++ {
		spec.Filters = append(spec.Filters, filter.Spec{
			Type:   "brightness",
			Params: map[string]float64{"amount": 5},
		})
	}

	_, err := NewRenderer(testSource(), Options{}).Render(context.Background(), Task{
		Spec:  spec,
		Date:  calendar.Date{Year: 2024, Month: 6, Day: 1},
		Facts: facts.Daily{ViewCount: 120, Keyword: "sunrise"},
	})
	if !errors.Is(err, filter.ErrPerturbationExhausted) && !errors.Is(err, oracle.ErrExhausted) {
		t.Fatalf("err = %v, want exhaustion", err)
	}
}

func TestClassicModeSkipsOracle(t *testing.T) {
	spec := baseSpec()
	for i := 0; i < 25; i++ {
		spec.Filters = append(spec.Filters, filter.Spec{
			Type:   "brightness",
			Params: map[string]float64{"amount": 2},
		})
	}

	// Classic derivation draws no oracle bytes, so even a long filter
	// chain cannot exhaust the digest.
	a, err := NewRenderer(testSource(), Options{Classic: true}).Render(context.Background(), Task{
		Spec:  spec,
		Date:  calendar.Date{Year: 2024, Month: 6, Day: 1},
		Facts: facts.Daily{ViewCount: 120, Keyword: "sunrise"},
	})
	if err != nil {
		t.Fatalf("classic render: %v", err)
	}
	if len(a.JPEG) == 0 {
		t.Fatal("empty artifact")
	}
}

func TestPipelineRunAndIdempotency(t *testing.T) {
	dates := []calendar.Date{
		{Year: 2024, Month: 6, Day: 1},
		{Year: 2024, Month: 6, Day: 2},
	}
	specs := []ImageSpec{baseSpec()}
	src := testSource()
	provider := testFacts([]string{"lighthouse"}, dates)

	p, dir := newTestPipeline(t, src, provider)

	sum, err := p.Run(context.Background(), specs, dates)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Written != 2 || sum.Failed != 0 || sum.Skipped != 0 {
		t.Fatalf("summary = %+v, want 2 written", sum)
	}

	artifact := filepath.Join(dir, "mandalas", "lighthouse", "lighthouse-20240601.jpg")
	if _, err := os.Stat(artifact); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	manifest := filepath.Join(dir, "mandalas", "lighthouse", "lighthouse-20240601.manifest.json")
	if _, err := os.Stat(manifest); err != nil {
		t.Fatalf("manifest missing: %v", err)
	}

	// A second run over the same pairs must not rewrite anything.
	sum2, err := p.Run(context.Background(), specs, dates)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if sum2.Skipped != 2 || sum2.Written != 0 {
		t.Fatalf("second summary = %+v, want 2 skipped", sum2)
	}
}

func TestPipelineFailureIsolation(t *testing.T) {
	dates := []calendar.Date{{Year: 2024, Month: 6, Day: 1}}

	exhausted := ImageSpec{
		Name:       "harbor",
		Source:     "harbor.png",
		CropLeft:   0,
		CropTop:    0,
		CropWidth:  64,
		CropHeight: 64,
		Rectangle:  32,
		OutWidth:   128,
	}
	for i := 0; i < 20; i++ {
		exhausted.Filters = append(exhausted.Filters, filter.Spec{
			Type:   "brightness",
			Params: map[string]float64{"amount": 5},
		})
	}
	specs := []ImageSpec{baseSpec(), exhausted}

	provider := testFacts([]string{"lighthouse", "harbor"}, dates)
	p, dir := newTestPipeline(t, testSource(), provider)

	sum, err := p.Run(context.Background(), specs, dates)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Written != 1 || sum.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 written 1 failed", sum)
	}

	if _, err := os.Stat(filepath.Join(dir, "mandalas", "lighthouse", "lighthouse-20240601.jpg")); err != nil {
		t.Errorf("healthy sibling not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "mandalas", "harbor", "harbor-20240601.jpg")); !os.IsNotExist(err) {
		t.Errorf("failed pair left an artifact, stat err = %v", err)
	}
}

func TestPipelineRejectsInvalidGeometry(t *testing.T) {
	dates := []calendar.Date{
		{Year: 2024, Month: 6, Day: 1},
		{Year: 2024, Month: 6, Day: 2},
	}
	bad := baseSpec()
	bad.Name = "harbor"
	bad.Source = "harbor.png"
	bad.Rectangle = 96 // exceeds the 64-pixel crop
	specs := []ImageSpec{bad, baseSpec()}

	provider := testFacts([]string{"lighthouse", "harbor"}, dates)
	p, _ := newTestPipeline(t, testSource(), provider)

	sum, err := p.Run(context.Background(), specs, dates)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The invalid image fails every requested date up front.
	if sum.Failed != 2 {
		t.Errorf("failed = %d, want 2", sum.Failed)
	}
	if sum.Written != 2 {
		t.Errorf("written = %d, want 2", sum.Written)
	}
}

func TestPipelineMissingFacts(t *testing.T) {
	dates := []calendar.Date{{Year: 2024, Month: 6, Day: 1}}
	specs := []ImageSpec{baseSpec()}

	// Provider with no observations for the image.
	p, _ := newTestPipeline(t, testSource(), facts.NewStaticProvider())

	sum, err := p.Run(context.Background(), specs, dates)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Failed != 1 || sum.Written != 0 {
		t.Fatalf("summary = %+v, want 1 failed", sum)
	}
}

func imageConfigOf(data []byte) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	return cfg, err
}
