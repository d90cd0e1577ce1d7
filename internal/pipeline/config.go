package pipeline

import (
	"runtime"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
	"github.com/ironsheep/icon-autolabel/internal/detection"
	"github.com/ironsheep/icon-autolabel/internal/scoring"
)

// Config holds every threshold the labeler uses. The zero value is not
// valid; start from DefaultConfig.
type Config struct {
	Proposal detection.ProposalConfig `json:"proposal" mapstructure:"proposal" yaml:"proposal"`
	Scoring  scoring.Config           `json:"scoring" mapstructure:"scoring" yaml:"scoring"`

	// NMSThreshold is the IoU at which the lower-scoring of two detections
	// is suppressed.
	NMSThreshold float64 `json:"nms_threshold" mapstructure:"nms_threshold" yaml:"nms_threshold"`
	// MinCropSide drops candidates narrower or shorter than this after
	// clamping.
	MinCropSide int `json:"min_crop_side" mapstructure:"min_crop_side" yaml:"min_crop_side"`
	// MaxCandidates caps the candidates scored per image, keeping the
	// earliest discovered.
	MaxCandidates int `json:"max_candidates" mapstructure:"max_candidates" yaml:"max_candidates"`
	// DisplayWeight blends the fused score with the label confidence:
	// confidence = DisplayWeight*score + (1-DisplayWeight)*normalization.
	DisplayWeight float64 `json:"display_weight" mapstructure:"display_weight" yaml:"display_weight"`

	CandidateWorkers int `json:"candidate_workers" mapstructure:"candidate_workers" yaml:"candidate_workers"`
	ImageWorkers     int `json:"image_workers" mapstructure:"image_workers" yaml:"image_workers"`
}

// DefaultConfig returns the defaults for vendor architecture diagrams.
func DefaultConfig() Config {
	return Config{
		Proposal:         detection.DefaultProposalConfig(),
		Scoring:          scoring.DefaultConfig(),
		NMSThreshold:     0.45,
		MinCropSide:      24,
		MaxCandidates:    4000,
		DisplayWeight:    0.7,
		CandidateWorkers: runtime.GOMAXPROCS(0),
		ImageWorkers:     2,
	}
}

// Validate checks every section of the configuration.
func (c Config) Validate() error {
	if err := c.Proposal.Validate(); err != nil {
		return err
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	switch {
	case c.NMSThreshold <= 0 || c.NMSThreshold > 1:
		return apperr.Configf("nms_threshold must be in (0,1], got %v", c.NMSThreshold)
	case c.MinCropSide < 1:
		return apperr.Configf("min_crop_side must be >= 1, got %d", c.MinCropSide)
	case c.MaxCandidates < 1:
		return apperr.Configf("max_candidates must be >= 1, got %d", c.MaxCandidates)
	case c.DisplayWeight < 0 || c.DisplayWeight > 1:
		return apperr.Configf("display_weight must be in [0,1], got %v", c.DisplayWeight)
	case c.CandidateWorkers < 1 || c.ImageWorkers < 1:
		return apperr.Configf("worker counts must be >= 1, got %d/%d", c.CandidateWorkers, c.ImageWorkers)
	}
	return nil
}
