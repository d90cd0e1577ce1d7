package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
	"github.com/ironsheep/icon-autolabel/internal/detection"
	"github.com/ironsheep/icon-autolabel/internal/index"
	"github.com/ironsheep/icon-autolabel/internal/scoring"
	"github.com/ironsheep/icon-autolabel/internal/taxonomy"
)

var (
	red  = color.RGBA{255, 0, 0, 255}
	blue = color.RGBA{0, 0, 255, 255}
)

// inkEmbedder describes a crop by its mean "ink" (1 - channel) per channel
// plus its share of white pixels, so only crops tightly around a colored
// shape point the same way as that shape's reference.
type inkEmbedder struct {
	fail bool
}

func (e inkEmbedder) Embed(_ context.Context, img image.Image) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedding service unavailable")
	}
	b := img.Bounds()
	var vec [4]float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			rf, gf, bf := float64(r)/0xffff, float64(g)/0xffff, float64(bl)/0xffff
			vec[0] += 1 - rf
			vec[1] += 1 - gf
			vec[2] += 1 - bf
			if rf > 0.95 && gf > 0.95 && bf > 0.95 {
				vec[3]++
			}
		}
	}
	return []float32{float32(vec[0]), float32(vec[1]), float32(vec[2]), float32(vec[3])}, nil
}

func (inkEmbedder) ModelID() string { return "ink" }

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

var (
	redBox  = detection.Box{X: 50, Y: 60, W: 64, H: 64}
	blueBox = detection.Box{X: 250, Y: 150, W: 64, H: 64}
)

// diagram draws a red and a blue icon on a white 400x300 canvas.
func diagram() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	fillRect(img, img.Bounds(), color.White)
	fillRect(img, redBox.Rect(), red)
	fillRect(img, blueBox.Rect(), blue)
	return img
}

func blank() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 200, 150))
	fillRect(img, img.Bounds(), color.White)
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

func testIndex(t *testing.T) *index.Index {
	t.Helper()
	ix, err := index.New([]index.ReferenceItem{
		{SourcePath: "Compute/Arch_Amazon-EC2_48.png", RawLabel: "Amazon EC2", Category: "Compute", Vector: []float32{0, 1, 1, 0}},
		{SourcePath: "Storage/Arch_Amazon-S3_48.png", RawLabel: "Amazon S3", Category: "Storage", Vector: []float32{1, 1, 0, 0}},
	}, "ink")
	if err != nil {
		t.Fatal(err)
	}
	return ix
}

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.New([]taxonomy.Entry{
		{Canonical: "Amazon EC2", Aliases: []string{"ec2"}},
		{Canonical: "Amazon S3", Aliases: []string{"s3"}},
	}, taxonomy.Rules{GroupMap: map[string]string{"Compute": "Compute Services"}})
	if err != nil {
		t.Fatal(err)
	}
	return tax
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Scoring.Weights = scoring.Weights{Embed: 1}
	cfg.Scoring.AcceptThreshold = 0.95
	cfg.CandidateWorkers = 4
	return cfg
}

func newTestLabeler(t *testing.T, cfg Config, deps Deps) *Labeler {
	t.Helper()
	if deps.Index == nil {
		deps.Index = testIndex(t)
	}
	if deps.Embedder == nil {
		deps.Embedder = inkEmbedder{}
	}
	if deps.Resolver == nil {
		deps.Resolver = testTaxonomy(t)
	}
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l
}

func TestAnalyzeImageData(t *testing.T) {
	cfg := testConfig()
	l := newTestLabeler(t, cfg, Deps{})

	res, err := l.AnalyzeImageData(context.Background(), "diagram.png", diagram())
	if err != nil {
		t.Fatalf("AnalyzeImageData failed: %v", err)
	}
	if res.Width != 400 || res.Height != 300 || res.ImagePath != "diagram.png" {
		t.Errorf("result header = %+v", res)
	}
	if len(res.Detections) != 2 {
		t.Fatalf("got %d detections, want 2: %+v", len(res.Detections), res.Detections)
	}

	want := map[string]struct {
		box   detection.Box
		group string
	}{
		"Amazon EC2": {redBox, "Compute Services"},
		"Amazon S3":  {blueBox, "Storage"},
	}
	for _, d := range res.Detections {
		w, ok := want[d.Label]
		if !ok {
			t.Errorf("unexpected label %q", d.Label)
			continue
		}
		box := detection.Box{X: d.BBox[0], Y: d.BBox[1], W: d.BBox[2], H: d.BBox[3]}
		if iou := detection.IoU(box, w.box); iou < 0.8 {
			t.Errorf("%s box %v has IoU %.2f with the icon", d.Label, d.BBox, iou)
		}
		if d.Group != w.group {
			t.Errorf("%s group = %q, want %q", d.Label, d.Group, w.group)
		}
		if d.NormalizationConfidence != 1 {
			t.Errorf("%s normalization confidence = %f", d.Label, d.NormalizationConfidence)
		}
		if d.Confidence != round4(0.7*d.Score+0.3) {
			t.Errorf("%s confidence = %f, want blend of score %f", d.Label, d.Confidence, d.Score)
		}
		delete(want, d.Label)
	}
}

func TestAnalyzeImageData_Invariants(t *testing.T) {
	cfg := testConfig()
	cfg.Scoring.AcceptThreshold = 0.6
	l := newTestLabeler(t, cfg, Deps{})

	res, err := l.AnalyzeImageData(context.Background(), "diagram.png", diagram())
	if err != nil {
		t.Fatal(err)
	}
	ds := res.Detections
	for i, d := range ds {
		box := detection.Box{X: d.BBox[0], Y: d.BBox[1], W: d.BBox[2], H: d.BBox[3]}
		if !box.Valid() || !box.Within(res.Width, res.Height) {
			t.Errorf("detection %d box %v outside image", i, d.BBox)
		}
		if d.Score < cfg.Scoring.AcceptThreshold || d.Score > 1 {
			t.Errorf("detection %d score %f outside [threshold, 1]", i, d.Score)
		}
		if i > 0 && d.Score > ds[i-1].Score {
			t.Errorf("detections not sorted at %d", i)
		}
		for j := i + 1; j < len(ds); j++ {
			other := detection.Box{X: ds[j].BBox[0], Y: ds[j].BBox[1], W: ds[j].BBox[2], H: ds[j].BBox[3]}
			if detection.IoU(box, other) >= cfg.NMSThreshold {
				t.Errorf("detections %d and %d overlap", i, j)
			}
		}
	}
}

func TestAnalyzeImageData_Deterministic(t *testing.T) {
	l := newTestLabeler(t, testConfig(), Deps{})
	img := diagram()

	first, err := l.AnalyzeImageData(context.Background(), "d.png", img)
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.AnalyzeImageData(context.Background(), "d.png", img)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Detections, second.Detections) {
		t.Errorf("repeated analysis differs:\n%+v\n%+v", first.Detections, second.Detections)
	}
}

func TestAnalyzeImageData_NoDetections(t *testing.T) {
	l := newTestLabeler(t, testConfig(), Deps{})
	res, err := l.AnalyzeImageData(context.Background(), "blank.png", blank())
	if err != nil {
		t.Fatalf("AnalyzeImageData failed: %v", err)
	}
	if res.Detections == nil || len(res.Detections) != 0 {
		t.Errorf("detections = %#v, want empty non-nil slice", res.Detections)
	}
}

func TestAnalyzeImageData_CapabilityFailure(t *testing.T) {
	l := newTestLabeler(t, testConfig(), Deps{Embedder: inkEmbedder{fail: true}})
	res, err := l.AnalyzeImageData(context.Background(), "diagram.png", diagram())
	if err != nil {
		t.Fatalf("capability failures must not fail the image: %v", err)
	}
	if len(res.Detections) != 0 {
		t.Errorf("got %d detections from a failing embedder", len(res.Detections))
	}
}

func TestAnalyzeImageData_Blacklist(t *testing.T) {
	ix, err := index.New([]index.ReferenceItem{
		{SourcePath: "a.png", RawLabel: "Amazon EC2", Vector: []float32{0, 1, 1, 0}},
		{SourcePath: "b.png", RawLabel: "Legend Swatch", Vector: []float32{1, 1, 0, 0}},
	}, "ink")
	if err != nil {
		t.Fatal(err)
	}
	tax, err := taxonomy.New([]taxonomy.Entry{{Canonical: "Amazon EC2"}}, taxonomy.Rules{Blacklist: []string{"legend"}})
	if err != nil {
		t.Fatal(err)
	}

	l := newTestLabeler(t, testConfig(), Deps{Index: ix, Resolver: tax})
	res, err := l.AnalyzeImageData(context.Background(), "diagram.png", diagram())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Detections) != 1 || res.Detections[0].Label != "Amazon EC2" {
		t.Errorf("detections = %+v, want only Amazon EC2", res.Detections)
	}
}

func TestAnalyzeImageData_NilResolverPassesThrough(t *testing.T) {
	cfg := testConfig()
	deps := Deps{Index: testIndex(t), Embedder: inkEmbedder{}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	l, err := New(cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	res, err := l.AnalyzeImageData(context.Background(), "diagram.png", diagram())
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range res.Detections {
		if d.Label != d.RawLabel || d.NormalizationConfidence != 0 {
			t.Errorf("detection %+v was normalized without a taxonomy", d)
		}
	}
}

func TestAnalyzeImage(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "diagram.png", diagram())
	l := newTestLabeler(t, testConfig(), Deps{})

	res, err := l.AnalyzeImage(context.Background(), path)
	if err != nil {
		t.Fatalf("AnalyzeImage failed: %v", err)
	}
	if len(res.Detections) != 2 || res.ProcessingTime <= 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestAnalyzeImage_DataError(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := newTestLabeler(t, testConfig(), Deps{})

	for _, path := range []string{bad, filepath.Join(dir, "missing.png")} {
		res, err := l.AnalyzeImage(context.Background(), path)
		if !errors.Is(err, apperr.ErrData) {
			t.Errorf("AnalyzeImage(%s) error = %v, want ErrData", filepath.Base(path), err)
		}
		if res != nil {
			t.Errorf("AnalyzeImage(%s) returned a result on error", filepath.Base(path))
		}
	}
}

func TestAnalyzeBatch(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writePNG(t, dir, "a.png", diagram()),
		filepath.Join(dir, "missing.png"),
		writePNG(t, dir, "b.png", blank()),
		writePNG(t, dir, "c.png", diagram()),
	}
	cfg := testConfig()
	cfg.ImageWorkers = 2
	l := newTestLabeler(t, cfg, Deps{})

	results := l.AnalyzeBatch(context.Background(), paths)
	if len(results) != len(paths) {
		t.Fatalf("got %d results for %d images", len(results), len(paths))
	}
	for i, r := range results {
		if r.ImagePath != paths[i] {
			t.Errorf("result %d is for %s, want %s", i, r.ImagePath, paths[i])
		}
	}
	if results[1].Error == "" || len(results[1].Detections) != 0 {
		t.Errorf("missing image result = %+v", results[1])
	}
	if results[0].Failed() || len(results[0].Detections) != 2 {
		t.Errorf("first image result = %+v", results[0])
	}
	if results[2].Failed() || len(results[2].Detections) != 0 {
		t.Errorf("blank image result = %+v", results[2])
	}
	if !reflect.DeepEqual(results[0].Detections, results[3].Detections) {
		t.Error("identical images in one batch got different detections")
	}
}

func TestAnalyzeBatch_Cancelled(t *testing.T) {
	dir := t.TempDir()
	paths := []string{writePNG(t, dir, "a.png", diagram()), writePNG(t, dir, "b.png", diagram())}
	l := newTestLabeler(t, testConfig(), Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := l.AnalyzeBatch(ctx, paths)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, r := range results {
		if !r.Failed() {
			t.Errorf("result %d succeeded after cancellation", i)
		}
	}
}

func TestCandidates(t *testing.T) {
	cfg := testConfig()
	cfg.Proposal.DisableEdges = true
	cfg.Proposal.DisableBlobs = true
	cfg.MaxCandidates = 3
	l := newTestLabeler(t, cfg, Deps{})

	cands, err := l.Candidates(diagram())
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 3 {
		t.Fatalf("got %d candidates, want the cap of 3", len(cands))
	}
	for i, c := range cands {
		if c.Order != i {
			t.Errorf("candidate %d has order %d; the cap must keep discovery order", i, c.Order)
		}
	}
}

func TestCandidates_MinCropSide(t *testing.T) {
	cfg := testConfig()
	cfg.Proposal.DisableEdges = true
	cfg.Proposal.DisableBlobs = true
	cfg.Proposal.Window = 20
	cfg.Proposal.Stride = 20
	l := newTestLabeler(t, cfg, Deps{})

	cands, err := l.Candidates(blank())
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 0 {
		t.Errorf("got %d candidates smaller than the minimum side", len(cands))
	}
}

func TestNew_Errors(t *testing.T) {
	bad := testConfig()
	bad.NMSThreshold = 0

	tests := []struct {
		name string
		cfg  Config
		deps Deps
	}{
		{"empty index", testConfig(), Deps{Embedder: inkEmbedder{}}},
		{"no embedder", testConfig(), Deps{Index: testIndex(t)}},
		{"invalid config", bad, Deps{Index: testIndex(t), Embedder: inkEmbedder{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg, tt.deps)
			if !errors.Is(err, apperr.ErrConfiguration) {
				t.Errorf("New() error = %v, want ErrConfiguration", err)
			}
			if l != nil {
				t.Error("New returned a labeler on error")
			}
		})
	}
}

func TestBuildIndex_Empty(t *testing.T) {
	ix, err := BuildIndex(context.Background(), t.TempDir(), inkEmbedder{}, index.DefaultBuildOptions())
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("BuildIndex() error = %v, want ErrConfiguration", err)
	}
	if ix != nil {
		t.Error("BuildIndex returned a partial index")
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"nms above one", func(c *Config) { c.NMSThreshold = 1.5 }},
		{"min crop side", func(c *Config) { c.MinCropSide = 0 }},
		{"max candidates", func(c *Config) { c.MaxCandidates = 0 }},
		{"display weight", func(c *Config) { c.DisplayWeight = -0.1 }},
		{"workers", func(c *Config) { c.ImageWorkers = 0 }},
		{"proposal", func(c *Config) { c.Proposal.MinArea = -1 }},
		{"scoring", func(c *Config) { c.Scoring.TopK = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, apperr.ErrConfiguration) {
				t.Errorf("Validate() = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestAnalyzeImageData_ServiceCode(t *testing.T) {
	tax, err := taxonomy.New([]taxonomy.Entry{
		{Canonical: "Amazon EC2", Code: "ec2"},
		{Canonical: "Amazon S3"},
	}, taxonomy.Rules{})
	if err != nil {
		t.Fatal(err)
	}
	l := newTestLabeler(t, testConfig(), Deps{Resolver: tax})

	res, err := l.AnalyzeImageData(context.Background(), "diagram.png", diagram())
	if err != nil {
		t.Fatalf("AnalyzeImageData failed: %v", err)
	}
	if len(res.Detections) != 2 {
		t.Fatalf("got %d detections, want 2", len(res.Detections))
	}
	for _, d := range res.Detections {
		want := ""
		if d.Label == "Amazon EC2" {
			want = "ec2"
		}
		if d.ServiceCode != want {
			t.Errorf("%s service code = %q, want %q", d.Label, d.ServiceCode, want)
		}
	}
}
