package index

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
)

// meanColorEmbedder embeds an image as its mean RGB, which is enough to tell
// solid-colored test icons apart.
type meanColorEmbedder struct {
	calls atomic.Int32
	fail  bool
}

func (e *meanColorEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	e.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.fail {
		return nil, fmt.Errorf("model rejected input")
	}
	b := img.Bounds()
	var r, g, bl, n float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float64(cr)
			g += float64(cg)
			bl += float64(cb)
			n++
		}
	}
	return []float32{float32(r / n), float32(g / n), float32(bl / n)}, nil
}

func (e *meanColorEmbedder) ModelID() string { return "mean-color" }

func writeIcon(t *testing.T, dir, rel string, c color.Color) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
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

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() BuildOptions {
	opts := DefaultBuildOptions()
	opts.CanvasSize = 64
	opts.Workers = 2
	opts.Logger = quietLogger()
	return opts
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	writeIcon(t, dir, "Compute/Arch_Amazon-EC2_32.png", color.RGBA{255, 0, 0, 255})
	writeIcon(t, dir, "Compute/Arch_Amazon-EC2_64.png", color.RGBA{255, 0, 0, 255})
	writeIcon(t, dir, "Storage/Arch_Amazon-S3_48.png", color.RGBA{0, 0, 255, 255})
	writeIcon(t, dir, "Integration/Arch_Amazon-SQS_48.png", color.RGBA{0, 200, 0, 255})

	emb := &meanColorEmbedder{}
	ix, err := Build(context.Background(), dir, emb, testOptions())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if ix.Len() != 3 {
		t.Fatalf("index has %d items, want 3", ix.Len())
	}
	if ix.ModelID() != "mean-color" {
		t.Errorf("ModelID = %q", ix.ModelID())
	}
	if emb.calls.Load() != 3 {
		t.Errorf("embedder called %d times, want 3", emb.calls.Load())
	}

	for _, it := range ix.Items() {
		if it.RawLabel == "Amazon EC2" && (it.Size != 64 || it.Category != "Compute") {
			t.Errorf("EC2 item = %+v", it)
		}
	}

	// A pure blue query is closest to the S3 icon.
	hits := ix.Search([]float32{0, 0, 1}, 1)
	if len(hits) != 1 || hits[0].Label != "Amazon S3" {
		t.Errorf("Search(blue) = %+v, want Amazon S3", hits)
	}
}

func TestBuild_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("no icons"), 0o644); err != nil {
		t.Fatal(err)
	}

	ix, err := Build(context.Background(), dir, &meanColorEmbedder{}, testOptions())
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("Build() error = %v, want ErrConfiguration", err)
	}
	if ix != nil {
		t.Error("Build returned an index for an empty directory")
	}
}

func TestBuild_InvalidInputs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.png")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		dir      string
		embedder Embedder
	}{
		{"missing directory", filepath.Join(dir, "missing"), &meanColorEmbedder{}},
		{"path is a file", file, &meanColorEmbedder{}},
		{"nil embedder", dir, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, err := Build(context.Background(), tt.dir, tt.embedder, testOptions())
			if !errors.Is(err, apperr.ErrConfiguration) {
				t.Errorf("Build() error = %v, want ErrConfiguration", err)
			}
			if ix != nil {
				t.Error("Build returned an index on error")
			}
		})
	}
}

func TestBuild_SkipsBadIcons(t *testing.T) {
	dir := t.TempDir()
	writeIcon(t, dir, "Arch_Amazon-S3_48.png", color.RGBA{0, 0, 255, 255})
	if err := os.WriteFile(filepath.Join(dir, "Arch_Broken_48.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	var logs strings.Builder
	opts := testOptions()
	opts.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	ix, err := Build(context.Background(), dir, &meanColorEmbedder{}, opts)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if ix.Len() != 1 {
		t.Errorf("index has %d items, want 1", ix.Len())
	}
	if !strings.Contains(logs.String(), "skipping reference icon") {
		t.Errorf("no warning logged for broken icon:\n%s", logs.String())
	}
}

func TestBuild_AllIconsFail(t *testing.T) {
	dir := t.TempDir()
	writeIcon(t, dir, "Arch_Amazon-EC2_48.png", color.RGBA{255, 0, 0, 255})

	ix, err := Build(context.Background(), dir, &meanColorEmbedder{fail: true}, testOptions())
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("Build() error = %v, want ErrConfiguration", err)
	}
	if ix != nil {
		t.Error("Build returned an index when nothing was embedded")
	}
}

func TestBuild_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeIcon(t, dir, "Arch_Amazon-EC2_48.png", color.RGBA{255, 0, 0, 255})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix, err := Build(ctx, dir, &meanColorEmbedder{}, testOptions())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Build() error = %v, want context.Canceled", err)
	}
	if ix != nil {
		t.Error("Build returned an index after cancellation")
	}
}

func TestBuild_Cache(t *testing.T) {
	dir := t.TempDir()
	writeIcon(t, dir, "Arch_Amazon-EC2_48.png", color.RGBA{255, 0, 0, 255})
	writeIcon(t, dir, "Arch_Amazon-S3_48.png", color.RGBA{0, 0, 255, 255})

	opts := testOptions()
	opts.CacheDir = filepath.Join(t.TempDir(), "cache")

	first := &meanColorEmbedder{}
	ix1, err := Build(context.Background(), dir, first, opts)
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	entries, err := os.ReadDir(opts.CacheDir)
	if err != nil {
		t.Fatalf("cache dir not created: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("cache has %d files, want 2", len(entries))
	}

	second := &meanColorEmbedder{}
	ix2, err := Build(context.Background(), dir, second, opts)
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	if second.calls.Load() != 0 {
		t.Errorf("second build embedded %d icons, want 0", second.calls.Load())
	}

	a, b := ix1.Items(), ix2.Items()
	for i := range a {
		for j := range a[i].Vector {
			if math.Abs(float64(a[i].Vector[j]-b[i].Vector[j])) > 1e-6 {
				t.Fatalf("cached vector %d differs: %v vs %v", i, a[i].Vector, b[i].Vector)
			}
		}
	}
}

func TestVectorCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := newVectorCache(dir, "m")
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{0.25, -1.5, 3}
	if err := c.save("k", want); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, ok, err := c.load("k")
	if err != nil || !ok {
		t.Fatalf("load = %v, %v", ok, err)
	}
	if len(got) != 3 || got[0] != 0.25 || got[1] != -1.5 || got[2] != 3 {
		t.Errorf("load = %v, want %v", got, want)
	}

	if _, ok, err := c.load("missing"); ok || err != nil {
		t.Errorf("missing key: ok=%v err=%v", ok, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "bad.bin"), []byte{9, 0, 0, 0, 1}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.load("bad"); err == nil {
		t.Error("truncated cache file loaded without error")
	}
}

func TestVectorCache_KeyDependsOnModel(t *testing.T) {
	path := writeIcon(t, t.TempDir(), "icon.png", color.Black)
	a, _ := newVectorCache("", "model-a")
	b, _ := newVectorCache("", "model-b")

	ka, err := a.key(path)
	if err != nil {
		t.Fatal(err)
	}
	kb, _ := b.key(path)
	if ka == kb {
		t.Error("cache key ignores the model ID")
	}
	again, _ := a.key(path)
	if ka != again {
		t.Error("cache key is not stable")
	}
}
