package detection

import (
	"fmt"
	"image"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
	"github.com/ironsheep/icon-autolabel/internal/imaging"
)

// Source identifies which heuristic proposed a candidate.
type Source string

const (
	SourceEdge Source = "edge"
	SourceBlob Source = "blob"
	SourceGrid Source = "grid"
)

// Candidate is a proposed region in source-image coordinates.
type Candidate struct {
	Box    Box    `json:"box"`
	Source Source `json:"source"`
	// Order is the discovery index, used to break score ties deterministically.
	Order int `json:"order"`
}

// ProposalConfig controls region proposal geometry.
type ProposalConfig struct {
	// MaxSize caps the longest image side used for proposals; larger images
	// are downscaled first. 0 disables downscaling.
	MaxSize int `json:"max_size" mapstructure:"max_size" yaml:"max_size"`

	// CannyLow and CannyHigh are the hysteresis thresholds (0-255 scale).
	CannyLow  int `json:"canny_low" mapstructure:"canny_low" yaml:"canny_low"`
	CannyHigh int `json:"canny_high" mapstructure:"canny_high" yaml:"canny_high"`

	// MinArea and MaxArea bound the box area (in downscaled pixels) of edge
	// and blob proposals.
	MinArea int `json:"min_area" mapstructure:"min_area" yaml:"min_area"`
	MaxArea int `json:"max_area" mapstructure:"max_area" yaml:"max_area"`

	// BlobDelta is the threshold step of the stable region sweep.
	BlobDelta int `json:"blob_delta" mapstructure:"blob_delta" yaml:"blob_delta"`
	// BlobMaxVariation is the largest relative area change across ±BlobDelta
	// for a region to count as stable.
	BlobMaxVariation float64 `json:"blob_max_variation" mapstructure:"blob_max_variation" yaml:"blob_max_variation"`

	// Window and Stride define the sliding grid.
	Window int `json:"window" mapstructure:"window" yaml:"window"`
	Stride int `json:"stride" mapstructure:"stride" yaml:"stride"`

	DisableEdges bool `json:"disable_edges,omitempty" mapstructure:"disable_edges" yaml:"disable_edges"`
	DisableBlobs bool `json:"disable_blobs,omitempty" mapstructure:"disable_blobs" yaml:"disable_blobs"`
	DisableGrid  bool `json:"disable_grid,omitempty" mapstructure:"disable_grid" yaml:"disable_grid"`
}

// DefaultProposalConfig returns the defaults tuned for clean architecture
// diagrams with icons of roughly 30-300 px.
func DefaultProposalConfig() ProposalConfig {
	return ProposalConfig{
		MaxSize:          1600,
		CannyLow:         60,
		CannyHigh:        160,
		MinArea:          900,
		MaxArea:          90000,
		BlobDelta:        5,
		BlobMaxVariation: 0.25,
		Window:           128,
		Stride:           96,
	}
}

// Validate checks the configuration for values that cannot work.
func (c ProposalConfig) Validate() error {
	switch {
	case c.MaxSize < 0:
		return apperr.Configf("max_size must be >= 0, got %d", c.MaxSize)
	case c.CannyLow < 0 || c.CannyHigh > 255 || c.CannyLow > c.CannyHigh:
		return apperr.Configf("canny thresholds must satisfy 0 <= low <= high <= 255, got %d/%d", c.CannyLow, c.CannyHigh)
	case c.MinArea < 0 || c.MinArea > c.MaxArea:
		return apperr.Configf("area bounds must satisfy 0 <= min <= max, got %d/%d", c.MinArea, c.MaxArea)
	case !c.DisableBlobs && (c.BlobDelta < 1 || c.BlobDelta > 127):
		return apperr.Configf("blob_delta must be in [1,127], got %d", c.BlobDelta)
	case !c.DisableBlobs && c.BlobMaxVariation <= 0:
		return apperr.Configf("blob_max_variation must be > 0, got %g", c.BlobMaxVariation)
	case !c.DisableGrid && (c.Window <= 0 || c.Stride <= 0):
		return apperr.Configf("window and stride must be > 0, got %d/%d", c.Window, c.Stride)
	}
	return nil
}

// Propose generates candidate regions for img.
//
// Edge contours, stable blob regions and the sliding grid run on a copy
// downscaled to MaxSize; their boxes are mapped back to img's coordinates
// (relative to img.Bounds().Min) and clamped to the image. Candidates are
// returned in discovery order (edge, blob, grid) with overlapping duplicates
// left for suppression.
//
// The number of candidates is not bounded here; small MinArea values on busy
// images can produce thousands, so callers must cap the list before scoring.
func Propose(img image.Image, cfg ProposalConfig) ([]Candidate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: empty image", apperr.ErrValidation)
	}

	small, ratio := imaging.Downscale(img, cfg.MaxSize)
	sb := small.Bounds()

	candidates := make([]Candidate, 0)
	add := func(boxes []Box, src Source) {
		for _, b := range boxes {
			b = b.scale(ratio).Clamp(width, height)
			if !b.Valid() {
				continue
			}
			candidates = append(candidates, Candidate{Box: b, Source: src, Order: len(candidates)})
		}
	}

	if !cfg.DisableEdges {
		add(edgeContours(small, cfg.CannyLow, cfg.CannyHigh, cfg.MinArea, cfg.MaxArea), SourceEdge)
	}
	if !cfg.DisableBlobs {
		add(blobRegions(small, cfg.BlobDelta, cfg.BlobMaxVariation, cfg.MinArea, cfg.MaxArea), SourceBlob)
	}
	if !cfg.DisableGrid {
		add(gridWindows(sb.Dx(), sb.Dy(), cfg.Window, cfg.Stride), SourceGrid)
	}
	return candidates, nil
}
