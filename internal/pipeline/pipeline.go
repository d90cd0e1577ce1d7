// Package pipeline wires region proposals, candidate scoring, suppression
// and label normalization into per-image and batch analysis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
	"github.com/ironsheep/icon-autolabel/internal/detection"
	"github.com/ironsheep/icon-autolabel/internal/imaging"
	"github.com/ironsheep/icon-autolabel/internal/index"
	"github.com/ironsheep/icon-autolabel/internal/scoring"
	"github.com/ironsheep/icon-autolabel/internal/taxonomy"
)

// Deps are the collaborators of a Labeler. Index and Embedder are required.
type Deps struct {
	Index    *index.Index
	Embedder index.Embedder
	// Matcher, Text and References are optional; a missing one contributes
	// a zero signal.
	Matcher    scoring.StructuralMatcher
	Text       scoring.TextExtractor
	References scoring.ReferenceLoader
	// Resolver normalizes labels. nil passes raw labels through with
	// confidence 0.
	Resolver taxonomy.Resolver
	Logger   *slog.Logger
}

// groupNormalizer is implemented by resolvers that also rename groups.
type groupNormalizer interface {
	NormalizeGroup(group string) string
}

// codeLookup is implemented by resolvers that know service codes.
type codeLookup interface {
	Code(canonical string) string
}

// Labeler analyzes diagram images. It is immutable after New and safe for
// concurrent use.
type Labeler struct {
	cfg      Config
	scorer   *scoring.Scorer
	index    *index.Index
	resolver taxonomy.Resolver
	logger   *slog.Logger
}

// New validates cfg and deps. An empty index is a configuration error.
func New(cfg Config, deps Deps) (*Labeler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scorer, err := scoring.NewScorer(deps.Index, deps.Embedder, cfg.Scoring)
	if err != nil {
		return nil, err
	}
	scorer.Matcher = deps.Matcher
	scorer.Text = deps.Text
	scorer.References = deps.References

	resolver := deps.Resolver
	if resolver == nil {
		empty, err := taxonomy.New(nil, taxonomy.Rules{})
		if err != nil {
			return nil, err
		}
		resolver = empty
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Labeler{
		cfg:      cfg,
		scorer:   scorer,
		index:    deps.Index,
		resolver: resolver,
		logger:   logger,
	}, nil
}

// Config returns the labeler configuration.
func (l *Labeler) Config() Config { return l.cfg }

// Index returns the reference index.
func (l *Labeler) Index() *index.Index { return l.index }

// AnalyzeImage decodes path and analyzes it. A file that cannot be read or
// decoded fails with apperr.ErrData.
func (l *Labeler) AnalyzeImage(ctx context.Context, path string) (*AnalysisResult, error) {
	start := time.Now()
	img, err := imaging.Open(path)
	if err != nil {
		return nil, apperr.Data(path, err)
	}
	res, err := l.analyze(ctx, path, img)
	if err != nil {
		return nil, err
	}
	res.ProcessingTime = time.Since(start).Seconds()
	return res, nil
}

// AnalyzeImageData analyzes an already decoded image. path is only recorded
// in the result.
func (l *Labeler) AnalyzeImageData(ctx context.Context, path string, img image.Image) (*AnalysisResult, error) {
	start := time.Now()
	res, err := l.analyze(ctx, path, img)
	if err != nil {
		return nil, err
	}
	res.ProcessingTime = time.Since(start).Seconds()
	return res, nil
}

func (l *Labeler) analyze(ctx context.Context, path string, img image.Image) (*AnalysisResult, error) {
	b := img.Bounds()
	res := &AnalysisResult{
		ImagePath:  path,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Detections: []Detection{},
	}
	if b.Empty() {
		return nil, apperr.Data(path, errors.New("image has no pixels"))
	}

	candidates, err := l.Candidates(img)
	if err != nil {
		return nil, err
	}

	scored, err := l.scoreAll(ctx, img, candidates)
	if err != nil {
		return nil, err
	}

	ranked := make([]detection.Ranked, len(scored))
	for i, s := range scored {
		ranked[i] = detection.Ranked{Box: s.Box, Score: s.Fused, Order: s.Order}
	}
	for _, i := range detection.Suppress(ranked, l.cfg.NMSThreshold) {
		if d, ok := l.label(scored[i]); ok {
			res.Detections = append(res.Detections, d)
		}
	}

	l.logger.Debug("image analyzed",
		"path", path,
		"candidates", len(candidates),
		"accepted", len(scored),
		"detections", len(res.Detections))
	return res, nil
}

// Candidates proposes regions for img, clamps them to the image, drops
// those with a side below MinCropSide and caps the list at MaxCandidates.
func (l *Labeler) Candidates(img image.Image) ([]detection.Candidate, error) {
	proposals, err := detection.Propose(img, l.cfg.Proposal)
	if err != nil {
		return nil, err
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := proposals[:0]
	for _, c := range proposals {
		c.Box = c.Box.Clamp(w, h)
		if !c.Box.Valid() || c.Box.W < l.cfg.MinCropSide || c.Box.H < l.cfg.MinCropSide {
			continue
		}
		out = append(out, c)
		if len(out) == l.cfg.MaxCandidates {
			l.logger.Debug("candidate cap reached", "cap", l.cfg.MaxCandidates, "proposed", len(proposals))
			break
		}
	}
	return out, nil
}

// scoreAll scores candidates on a bounded pool. Only cancellation of ctx
// fails the image; any other candidate failure skips that candidate.
func (l *Labeler) scoreAll(ctx context.Context, img image.Image, candidates []detection.Candidate) ([]scoring.Scored, error) {
	results := make([]*scoring.Scored, len(candidates))
	failures := make([]error, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.CandidateWorkers)
	for i, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, ok, err := l.scorer.Score(gctx, img, c)
			switch {
			case err == nil:
				if ok {
					results[i] = &s
				}
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				if ctx.Err() != nil {
					return err
				}
				failures[i] = err
			case errors.Is(err, apperr.ErrValidation):
			default:
				failures[i] = err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, err := range failures {
		if err != nil {
			l.logger.Warn("candidate skipped", "box", candidates[i].Box, "error", err)
		}
	}

	out := make([]scoring.Scored, 0, len(candidates))
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

// label resolves a kept candidate's label. Blacklisted labels, which
// resolve to an empty name, are dropped.
func (l *Labeler) label(s scoring.Scored) (Detection, bool) {
	name, conf := l.resolver.Resolve(s.RawLabel)
	if name == "" {
		return Detection{}, false
	}

	var group string
	if ref, ok := l.index.Item(s.ReferenceID); ok {
		group = ref.Category
		if gn, ok := l.resolver.(groupNormalizer); ok {
			group = gn.NormalizeGroup(group)
		}
	}

	var code string
	if cl, ok := l.resolver.(codeLookup); ok {
		code = cl.Code(name)
	}

	w := l.cfg.DisplayWeight
	return Detection{
		BBox:                    s.Box.Array(),
		Label:                   name,
		RawLabel:                s.RawLabel,
		ServiceCode:             code,
		Group:                   group,
		Score:                   s.Fused,
		NormalizationConfidence: conf,
		Confidence:              round4(w*s.Fused + (1-w)*conf),
		Components:              s.Components,
		Source:                  string(s.Source),
		ReferencePath:           s.ReferencePath,
	}, true
}

// AnalyzeBatch analyzes paths on a bounded pool and returns exactly one
// result per path, in input order.
//
// A failed image yields a result with Error set and no detections; the
// batch continues. Once ctx is done, images not yet started are reported
// as cancelled.
func (l *Labeler) AnalyzeBatch(ctx context.Context, paths []string) []AnalysisResult {
	results := make([]AnalysisResult, len(paths))
	sem := make(chan struct{}, l.cfg.ImageWorkers)
	var wg sync.WaitGroup

	for i, path := range paths {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = failedResult(path, ctx.Err())
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := l.AnalyzeImage(ctx, path)
			if err != nil {
				l.logger.Warn("image failed", "path", path, "error", err)
				results[i] = failedResult(path, err)
				return
			}
			results[i] = *res
		}()
	}
	wg.Wait()
	return results
}

func failedResult(path string, err error) AnalysisResult {
	return AnalysisResult{
		ImagePath:  path,
		Detections: []Detection{},
		Error:      err.Error(),
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// BuildIndex builds the reference index for iconDir. It fails with
// apperr.ErrConfiguration, and returns no index, when no icon could be
// indexed.
func BuildIndex(ctx context.Context, iconDir string, embedder index.Embedder, opts index.BuildOptions) (*index.Index, error) {
	ix, err := index.Build(ctx, iconDir, embedder, opts)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	return ix, nil
}
