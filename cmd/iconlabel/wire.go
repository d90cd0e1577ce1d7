package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
	"github.com/ironsheep/icon-autolabel/internal/config"
	"github.com/ironsheep/icon-autolabel/internal/embedding"
	"github.com/ironsheep/icon-autolabel/internal/imaging"
	"github.com/ironsheep/icon-autolabel/internal/index"
	"github.com/ironsheep/icon-autolabel/internal/keypoint"
	"github.com/ironsheep/icon-autolabel/internal/ocr"
	"github.com/ironsheep/icon-autolabel/internal/pipeline"
	"github.com/ironsheep/icon-autolabel/internal/taxonomy"
)

// labelerDeps is everything a labeling command needs. close releases the
// embedding runtime.
type labelerDeps struct {
	labeler  *pipeline.Labeler
	embedder index.Embedder
	taxonomy *taxonomy.Taxonomy
	close    func()
}

// newEmbedder returns the CLIP embedder when a model is configured and the
// descriptor embedder otherwise, memoized when cache_entries > 0.
func newEmbedder(c *config.Config) (index.Embedder, func(), error) {
	var (
		emb     index.Embedder
		closeFn = func() {}
	)
	if c.Embedding.Clip.ModelPath != "" {
		clip, err := embedding.NewClipEmbedder(c.Embedding.Clip)
		if err != nil {
			return nil, nil, err
		}
		emb = clip
		closeFn = func() {
			if err := clip.Close(); err != nil {
				logger.Warn("failed to release embedding model", "error", err)
			}
		}
		logger.Info("using CLIP embedder", "model", clip.ModelID())
	} else {
		emb = embedding.NewDescriptorEmbedder()
		logger.Info("using descriptor embedder", "model", emb.ModelID())
	}
	if c.Embedding.CacheEntries > 0 {
		emb = embedding.NewCachedEmbedder(emb, c.Embedding.CacheEntries)
	}
	return emb, closeFn, nil
}

// loadTaxonomy returns nil when no taxonomy source is configured.
func loadTaxonomy(c *config.Config) (*taxonomy.Taxonomy, error) {
	if c.Taxonomy.CSV == "" && c.Taxonomy.RulesDir == "" {
		return nil, nil
	}
	tax, err := taxonomy.Load(c.Taxonomy.CSV, c.Taxonomy.RulesDir, taxonomy.WithMinFuzzyScore(c.Taxonomy.MinFuzzyScore))
	if err != nil {
		return nil, err
	}
	logger.Info("taxonomy loaded", "names", tax.Len())
	return tax, nil
}

// buildLabeler indexes the reference icons and assembles the labeler.
func buildLabeler(ctx context.Context, c *config.Config) (*labelerDeps, error) {
	if c.Retrieval.IconsDir == "" {
		return nil, apperr.Configf("no reference icon directory: set --icons or retrieval.icons_dir")
	}
	tax, err := loadTaxonomy(c)
	if err != nil {
		return nil, err
	}
	emb, closeFn, err := newEmbedder(c)
	if err != nil {
		return nil, err
	}

	opts := c.BuildOptions()
	opts.Logger = logger
	ix, err := pipeline.BuildIndex(ctx, c.Retrieval.IconsDir, emb, opts)
	if err != nil {
		closeFn()
		return nil, err
	}

	deps := pipeline.Deps{Index: ix, Embedder: emb, Logger: logger}
	if tax != nil {
		deps.Resolver = tax
	}
	if c.Retrieval.Structural && c.Retrieval.Weights.Struct > 0 {
		deps.Matcher = keypoint.NewMatcher()
		deps.References = imaging.NewImageCache(opts.Transform())
	}
	if c.OCR.Enabled {
		deps.Text = ocr.NewTesseract(c.OCREngine())
	}

	l, err := pipeline.New(c.Pipeline(), deps)
	if err != nil {
		closeFn()
		return nil, err
	}
	return &labelerDeps{labeler: l, embedder: emb, taxonomy: tax, close: closeFn}, nil
}

// writeOutput encodes v as JSON or YAML. YAML output reuses the JSON field
// names.
func writeOutput(w io.Writer, format string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if format != "yaml" {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}
