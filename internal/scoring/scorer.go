package scoring

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
	"github.com/ironsheep/icon-autolabel/internal/detection"
	"github.com/ironsheep/icon-autolabel/internal/imaging"
	"github.com/ironsheep/icon-autolabel/internal/index"
)

// Config holds the scoring thresholds.
type Config struct {
	Weights         Weights `json:"weights" mapstructure:"weights" yaml:"weights"`
	AcceptThreshold float64 `json:"accept_threshold" mapstructure:"accept_threshold" yaml:"accept_threshold"`
	// TopK is the number of nearest references retrieved per crop. Only the
	// best one is used for the label and the structural check.
	TopK int `json:"top_k" mapstructure:"top_k" yaml:"top_k"`
	// TextHint enables text extraction on each crop.
	TextHint       bool    `json:"text_hint" mapstructure:"text_hint" yaml:"text_hint"`
	TextMaxLen     int     `json:"text_max_len" mapstructure:"text_max_len" yaml:"text_max_len"`
	TextBonusValue float64 `json:"text_bonus" mapstructure:"text_bonus" yaml:"text_bonus"`
	// Attempts is the number of tries per capability call; 1 means no retry.
	Attempts uint `json:"attempts" mapstructure:"attempts" yaml:"attempts"`
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration `json:"retry_delay" mapstructure:"retry_delay" yaml:"retry_delay"`
	// CallTimeout bounds each capability call; 0 disables the bound.
	CallTimeout time.Duration `json:"call_timeout" mapstructure:"call_timeout" yaml:"call_timeout"`
}

// DefaultConfig returns the scoring defaults.
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		AcceptThreshold: 0.5,
		TopK:            5,
		TextHint:        false,
		TextMaxLen:      12,
		TextBonusValue:  0.2,
		Attempts:        1,
		RetryDelay:      50 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.AcceptThreshold < 0 || c.AcceptThreshold > 1 {
		return apperr.Configf("accept threshold must be in [0,1], got %v", c.AcceptThreshold)
	}
	if c.TopK < 1 {
		return apperr.Configf("top-k must be at least 1, got %d", c.TopK)
	}
	if c.TextHint && c.TextMaxLen < 1 {
		return apperr.Configf("text max length must be at least 1, got %d", c.TextMaxLen)
	}
	if c.TextBonusValue < 0 || c.TextBonusValue > 1 {
		return apperr.Configf("text bonus must be in [0,1], got %v", c.TextBonusValue)
	}
	if c.Attempts < 1 {
		return apperr.Configf("attempts must be at least 1")
	}
	if c.RetryDelay < 0 || c.CallTimeout < 0 {
		return apperr.Configf("retry delay and call timeout must not be negative")
	}
	return nil
}

// Scorer scores candidates of one or more images. It holds no per-image
// state and is safe for concurrent use when its capabilities are.
type Scorer struct {
	Index    *index.Index
	Embedder index.Embedder
	// Matcher is optional; without it the structural signal is 0.
	Matcher StructuralMatcher
	// Text is optional; it is only called when Config.TextHint is set.
	Text TextExtractor
	// References loads reference images for structural matching.
	References ReferenceLoader
	Config     Config
}

// NewScorer validates cfg and the required collaborators.
func NewScorer(ix *index.Index, embedder index.Embedder, cfg Config) (*Scorer, error) {
	if ix.Len() == 0 {
		return nil, apperr.Configf("reference index is empty")
	}
	if embedder == nil {
		return nil, apperr.Configf("no embedder configured")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{Index: ix, Embedder: embedder, Config: cfg}, nil
}

// Score crops cand from img and rates it. Candidate boxes are relative to
// img.Bounds().Min.
//
// It returns ok=false with a nil error when the candidate scores below the
// acceptance threshold or matches nothing. A degenerate box fails with
// apperr.ErrValidation and a failed embedding with apperr.ErrCapability.
// Structural and text failures fail the candidate too, since its score
// would be incomparable with the others.
func (s *Scorer) Score(ctx context.Context, img image.Image, cand detection.Candidate) (Scored, bool, error) {
	crop, err := imaging.Crop(img, cand.Box.Rect().Add(img.Bounds().Min))
	if err != nil {
		return Scored{}, false, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	vec, err := callCapability(ctx, s.Config, "embed", func(ctx context.Context) ([]float32, error) {
		return s.Embedder.Embed(ctx, crop)
	})
	if err != nil {
		return Scored{}, false, err
	}
	hits := s.Index.Search(vec, s.Config.TopK)
	if len(hits) == 0 {
		return Scored{}, false, nil
	}
	best := hits[0]

	comp := Components{EmbedSim: EmbedSimilarity(best.Similarity)}

	if s.Matcher != nil && s.References != nil && s.Config.Weights.Struct > 0 {
		ref, err := s.References.Load(best.Path)
		if err != nil {
			return Scored{}, false, apperr.Capability("reference image", err)
		}
		comp.StructSim, err = callCapability(ctx, s.Config, "structural match", func(ctx context.Context) (float64, error) {
			return s.Matcher.Match(ctx, crop, ref)
		})
		if err != nil {
			return Scored{}, false, err
		}
		comp.StructSim = clampUnit(comp.StructSim)
	}

	if s.Config.TextHint && s.Text != nil {
		text, err := callCapability(ctx, s.Config, "text extraction", func(ctx context.Context) (string, error) {
			return s.Text.ExtractText(ctx, crop)
		})
		if err != nil {
			return Scored{}, false, err
		}
		comp.TextHint = TextBonus(text, s.Config.TextMaxLen, s.Config.TextBonusValue)
	}

	fused := Fuse(s.Config.Weights, comp)
	if fused < s.Config.AcceptThreshold {
		return Scored{}, false, nil
	}
	return Scored{
		Box:           cand.Box,
		Order:         cand.Order,
		Source:        cand.Source,
		RawLabel:      best.Label,
		ReferenceID:   best.ID,
		ReferencePath: best.Path,
		Components:    comp,
		Fused:         fused,
	}, true, nil
}

// callCapability runs fn with the configured attempts and per-call timeout
// and wraps a final failure in apperr.ErrCapability. Cancellation of the
// parent context is returned as is.
func callCapability[T any](ctx context.Context, cfg Config, name string, fn func(context.Context) (T, error)) (T, error) {
	attempts := max(cfg.Attempts, 1)
	v, err := retry.DoWithData(
		func() (T, error) {
			callCtx := ctx
			if cfg.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
				defer cancel()
			}
			return fn(callCtx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		var zero T
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return zero, err
		}
		return zero, apperr.Capability(name, err)
	}
	return v, nil
}

func clampUnit(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
