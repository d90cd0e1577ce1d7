// Package scoring rates candidate regions against the reference index.
//
// A candidate's score fuses three signals: embedding similarity of the crop
// to its nearest reference, structural similarity to that same reference,
// and a bonus when the crop carries a short text caption. Candidates whose
// fused score falls below the acceptance threshold are rejected.
package scoring

import (
	"context"
	"image"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
	"github.com/ironsheep/icon-autolabel/internal/detection"
)

// StructuralMatcher scores how well two images agree in local structure.
// Scores are in [0, 1].
type StructuralMatcher interface {
	Match(ctx context.Context, a, b image.Image) (float64, error)
}

// TextExtractor returns the text visible in an image, possibly empty.
type TextExtractor interface {
	ExtractText(ctx context.Context, img image.Image) (string, error)
}

// ReferenceLoader returns the prepared image for a reference path.
// *imaging.ImageCache satisfies it.
type ReferenceLoader interface {
	Load(path string) (image.Image, error)
}

// Weights are the per-signal fusion weights.
type Weights struct {
	Embed  float64 `json:"embed" mapstructure:"embed" yaml:"embed"`
	Struct float64 `json:"struct" mapstructure:"struct" yaml:"struct"`
	Text   float64 `json:"text" mapstructure:"text" yaml:"text"`
}

// DefaultWeights returns the weights tuned for vendor icon packs.
func DefaultWeights() Weights {
	return Weights{Embed: 0.6, Struct: 0.3, Text: 0.1}
}

// Validate requires non-negative weights summing to at most 1, which keeps
// every fused score in [0, 1].
func (w Weights) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"embed", w.Embed}, {"struct", w.Struct}, {"text", w.Text}} {
		if f.v < 0 || math.IsNaN(f.v) {
			return apperr.Configf("%s weight must be non-negative, got %v", f.name, f.v)
		}
	}
	if sum := w.Embed + w.Struct + w.Text; sum > 1+1e-9 {
		return apperr.Configf("weights sum to %.4f, must not exceed 1", sum)
	}
	return nil
}

// Components are the individual signals behind a fused score, each in
// [0, 1].
type Components struct {
	EmbedSim  float64 `json:"embed_sim"`
	StructSim float64 `json:"struct_sim"`
	TextHint  float64 `json:"text_hint"`
}

// Fuse combines component scores with weights.
func Fuse(w Weights, c Components) float64 {
	return w.Embed*c.EmbedSim + w.Struct*c.StructSim + w.Text*c.TextHint
}

// EmbedSimilarity maps a cosine similarity in [-1, 1] to [0, 1].
func EmbedSimilarity(cosine float64) float64 {
	return math.Max(0, math.Min(1, (cosine+1)/2))
}

// TextBonus returns bonus when text, once trimmed of surrounding space, is
// non-empty and at most maxLen runes long; otherwise 0.
func TextBonus(text string, maxLen int, bonus float64) float64 {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n == 0 || n > maxLen {
		return 0
	}
	return bonus
}

// Scored is an accepted candidate with its best reference match.
type Scored struct {
	Box           detection.Box    `json:"box"`
	Order         int              `json:"order"`
	Source        detection.Source `json:"source"`
	RawLabel      string           `json:"raw_label"`
	ReferenceID   int              `json:"reference_id"`
	ReferencePath string           `json:"reference_path"`
	Components    Components       `json:"components"`
	Fused         float64          `json:"fused"`
}
