package index

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
	"github.com/ironsheep/icon-autolabel/internal/imaging"
)

// BuildOptions controls how reference icons are collected and embedded.
type BuildOptions struct {
	// LargestOnly keeps one file per label, the one with the largest size
	// suffix.
	LargestOnly bool
	// CacheDir persists embeddings between runs when non-empty.
	CacheDir string
	// CanvasSize and PadRatio control icon normalization before embedding.
	CanvasSize int
	PadRatio   float64
	// Workers bounds concurrent embedding calls. 0 means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// DefaultBuildOptions returns the options used for vendor icon packs.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		LargestOnly: true,
		CanvasSize:  256,
		PadRatio:    0.06,
	}
}

// Build scans dir for reference icons, embeds each one once and returns the
// index.
//
// Icons are trimmed of transparent margins and square-padded onto a white
// canvas before embedding. Icons that cannot be decoded or embedded are
// skipped with a warning. If nothing could be indexed Build fails with
// apperr.ErrConfiguration and returns no index.
func Build(ctx context.Context, dir string, embedder Embedder, opts BuildOptions) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if embedder == nil {
		return nil, apperr.Configf("no embedder configured")
	}
	if opts.CanvasSize <= 0 {
		opts.CanvasSize = 256
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: icon directory: %v", apperr.ErrConfiguration, err)
	}
	if !info.IsDir() {
		return nil, apperr.Configf("icon path %s is not a directory", dir)
	}

	files, err := ScanIcons(dir, opts.LargestOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: scan icons: %v", apperr.ErrConfiguration, err)
	}
	if len(files) == 0 {
		return nil, apperr.Configf("no reference icons found in %s", dir)
	}

	cache, err := newVectorCache(opts.CacheDir, embedder.ModelID())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrConfiguration, err)
	}

	vectors := make([][]float32, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := embedIcon(gctx, embedder, cache, f.Path, opts)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logger.Warn("skipping reference icon", "path", f.Path, "error", err)
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]ReferenceItem, 0, len(files))
	for i, f := range files {
		if vectors[i] == nil {
			continue
		}
		items = append(items, ReferenceItem{
			SourcePath: f.Path,
			RawLabel:   f.Label,
			Category:   f.Category,
			Size:       f.Size,
			Vector:     vectors[i],
		})
	}
	if len(items) == 0 {
		return nil, apperr.Configf("none of the %d icons in %s could be indexed", len(files), dir)
	}

	ix, err := New(items, embedder.ModelID())
	if err != nil {
		return nil, err
	}
	logger.Info("reference index built", "dir", dir, "icons", ix.Len(), "skipped", len(files)-ix.Len(), "dim", ix.Dim())
	return ix, nil
}

// embedIcon returns the normalized embedding for one icon file, consulting
// the disk cache first.
func embedIcon(ctx context.Context, embedder Embedder, cache *vectorCache, path string, opts BuildOptions) ([]float32, error) {
	key, keyErr := cache.key(path)
	if keyErr == nil {
		if vec, ok, err := cache.load(key); err == nil && ok {
			if n, ok := Normalize(vec); ok {
				return n, nil
			}
		}
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	vec, err := embedder.Embed(ctx, opts.Transform()(img))
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	n, ok := Normalize(vec)
	if !ok {
		return nil, fmt.Errorf("embed: zero or empty vector")
	}

	if keyErr == nil {
		// A failed cache write only costs a re-embed next run.
		_ = cache.save(key, n)
	}
	return n, nil
}

// Transform returns the normalization applied to icons before embedding,
// suitable for imaging.NewImageCache so structural matching sees the same
// pixels.
func (o BuildOptions) Transform() func(image.Image) image.Image {
	canvas := o.CanvasSize
	if canvas <= 0 {
		canvas = 256
	}
	return func(img image.Image) image.Image {
		return imaging.PrepareIcon(img, canvas, o.PadRatio)
	}
}
