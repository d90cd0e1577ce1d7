// Package config loads labeler settings from defaults, an optional YAML file
// and ICONLABEL_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
	"github.com/ironsheep/icon-autolabel/internal/detection"
	"github.com/ironsheep/icon-autolabel/internal/embedding"
	"github.com/ironsheep/icon-autolabel/internal/index"
	"github.com/ironsheep/icon-autolabel/internal/ocr"
	"github.com/ironsheep/icon-autolabel/internal/pipeline"
	"github.com/ironsheep/icon-autolabel/internal/scoring"
	"github.com/ironsheep/icon-autolabel/internal/taxonomy"
)

// EnvPrefix prefixes every environment override, e.g.
// ICONLABEL_RETRIEVAL_ACCEPT_THRESHOLD=0.6.
const EnvPrefix = "ICONLABEL"

// Config is the on-disk configuration.
type Config struct {
	Detect    DetectConfig    `json:"detect" mapstructure:"detect" yaml:"detect"`
	Retrieval RetrievalConfig `json:"retrieval" mapstructure:"retrieval" yaml:"retrieval"`
	OCR       OCRConfig       `json:"ocr" mapstructure:"ocr" yaml:"ocr"`
	Taxonomy  TaxonomyConfig  `json:"taxonomy" mapstructure:"taxonomy" yaml:"taxonomy"`
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding" yaml:"embedding"`
	Workers   WorkersConfig   `json:"workers" mapstructure:"workers" yaml:"workers"`
}

// DetectConfig covers region proposals and suppression.
type DetectConfig struct {
	Proposal      detection.ProposalConfig `json:"proposal" mapstructure:"proposal" yaml:"proposal"`
	NMSThreshold  float64                  `json:"nms_threshold" mapstructure:"nms_threshold" yaml:"nms_threshold"`
	MinCropSide   int                      `json:"min_crop_side" mapstructure:"min_crop_side" yaml:"min_crop_side"`
	MaxCandidates int                      `json:"max_candidates" mapstructure:"max_candidates" yaml:"max_candidates"`
}

// RetrievalConfig covers the reference index and candidate scoring.
type RetrievalConfig struct {
	IconsDir    string  `json:"icons_dir" mapstructure:"icons_dir" yaml:"icons_dir"`
	CacheDir    string  `json:"cache_dir" mapstructure:"cache_dir" yaml:"cache_dir"`
	LargestOnly bool    `json:"largest_only" mapstructure:"largest_only" yaml:"largest_only"`
	CanvasSize  int     `json:"canvas_size" mapstructure:"canvas_size" yaml:"canvas_size"`
	PadRatio    float64 `json:"pad_ratio" mapstructure:"pad_ratio" yaml:"pad_ratio"`

	TopK            int             `json:"top_k" mapstructure:"top_k" yaml:"top_k"`
	Weights         scoring.Weights `json:"weights" mapstructure:"weights" yaml:"weights"`
	AcceptThreshold float64         `json:"accept_threshold" mapstructure:"accept_threshold" yaml:"accept_threshold"`
	DisplayWeight   float64         `json:"display_weight" mapstructure:"display_weight" yaml:"display_weight"`
	// Structural enables keypoint matching against the best reference.
	Structural bool `json:"structural" mapstructure:"structural" yaml:"structural"`

	Attempts      uint `json:"attempts" mapstructure:"attempts" yaml:"attempts"`
	RetryDelayMS  int  `json:"retry_delay_ms" mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
	CallTimeoutMS int  `json:"call_timeout_ms" mapstructure:"call_timeout_ms" yaml:"call_timeout_ms"`
}

// OCRConfig covers the text hint.
type OCRConfig struct {
	Enabled        bool     `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Languages      []string `json:"languages" mapstructure:"languages" yaml:"languages"`
	TessdataPrefix string   `json:"tessdata_prefix" mapstructure:"tessdata_prefix" yaml:"tessdata_prefix"`
	MinHeight      int      `json:"min_height" mapstructure:"min_height" yaml:"min_height"`
	MaxLen         int      `json:"max_len" mapstructure:"max_len" yaml:"max_len"`
	Bonus          float64  `json:"bonus" mapstructure:"bonus" yaml:"bonus"`
}

// TaxonomyConfig locates the canonical name list and rule files.
type TaxonomyConfig struct {
	CSV           string  `json:"csv" mapstructure:"csv" yaml:"csv"`
	RulesDir      string  `json:"rules_dir" mapstructure:"rules_dir" yaml:"rules_dir"`
	MinFuzzyScore float64 `json:"min_fuzzy_score" mapstructure:"min_fuzzy_score" yaml:"min_fuzzy_score"`
}

// EmbeddingConfig selects the embedder. An empty Clip.ModelPath selects the
// built-in descriptor embedder.
type EmbeddingConfig struct {
	Clip embedding.ClipConfig `json:"clip" mapstructure:"clip" yaml:"clip"`
	// CacheEntries bounds the in-memory embedding cache; 0 disables it.
	CacheEntries int `json:"cache_entries" mapstructure:"cache_entries" yaml:"cache_entries"`
}

// WorkersConfig bounds concurrency. 0 means GOMAXPROCS.
type WorkersConfig struct {
	Candidates int `json:"candidates" mapstructure:"candidates" yaml:"candidates"`
	Images     int `json:"images" mapstructure:"images" yaml:"images"`
	Index      int `json:"index" mapstructure:"index" yaml:"index"`
}

// DefaultConfig returns the defaults. Paths are left empty.
func DefaultConfig() Config {
	p := pipeline.DefaultConfig()
	b := index.DefaultBuildOptions()
	o := ocr.DefaultConfig()
	return Config{
		Detect: DetectConfig{
			Proposal:      p.Proposal,
			NMSThreshold:  p.NMSThreshold,
			MinCropSide:   p.MinCropSide,
			MaxCandidates: p.MaxCandidates,
		},
		Retrieval: RetrievalConfig{
			CacheDir:        ".iconlabel-cache",
			LargestOnly:     b.LargestOnly,
			CanvasSize:      b.CanvasSize,
			PadRatio:        b.PadRatio,
			TopK:            p.Scoring.TopK,
			Weights:         p.Scoring.Weights,
			AcceptThreshold: p.Scoring.AcceptThreshold,
			DisplayWeight:   p.DisplayWeight,
			Structural:      true,
			Attempts:        p.Scoring.Attempts,
			RetryDelayMS:    int(p.Scoring.RetryDelay / time.Millisecond),
		},
		OCR: OCRConfig{
			Languages: o.Languages,
			MinHeight: o.MinHeight,
			MaxLen:    p.Scoring.TextMaxLen,
			Bonus:     p.Scoring.TextBonusValue,
		},
		Taxonomy: TaxonomyConfig{
			MinFuzzyScore: taxonomy.DefaultMinFuzzyScore,
		},
		Embedding: EmbeddingConfig{
			Clip:         embedding.DefaultClipConfig(),
			CacheEntries: 4096,
		},
		Workers: WorkersConfig{
			Images: p.ImageWorkers,
		},
	}
}

// Load reads the configuration. cfgFile, when set, must exist; otherwise
// iconlabel.yaml is looked up in the working directory and $HOME/.iconlabel
// and may be absent. Environment variables override both.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("iconlabel")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.iconlabel")
	}
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: error reading config file: %v", apperr.ErrConfiguration, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", apperr.ErrConfiguration, err)
	}
	return &cfg, nil
}

// Pipeline converts the configuration into labeler thresholds.
func (c *Config) Pipeline() pipeline.Config {
	p := pipeline.DefaultConfig()
	p.Proposal = c.Detect.Proposal
	p.NMSThreshold = c.Detect.NMSThreshold
	p.MinCropSide = c.Detect.MinCropSide
	p.MaxCandidates = c.Detect.MaxCandidates
	p.DisplayWeight = c.Retrieval.DisplayWeight

	p.Scoring = scoring.Config{
		Weights:         c.Retrieval.Weights,
		AcceptThreshold: c.Retrieval.AcceptThreshold,
		TopK:            c.Retrieval.TopK,
		TextHint:        c.OCR.Enabled,
		TextMaxLen:      c.OCR.MaxLen,
		TextBonusValue:  c.OCR.Bonus,
		Attempts:        c.Retrieval.Attempts,
		RetryDelay:      time.Duration(c.Retrieval.RetryDelayMS) * time.Millisecond,
		CallTimeout:     time.Duration(c.Retrieval.CallTimeoutMS) * time.Millisecond,
	}

	p.CandidateWorkers = orProcs(c.Workers.Candidates)
	p.ImageWorkers = orProcs(c.Workers.Images)
	return p
}

// BuildOptions converts the retrieval section into index build options.
func (c *Config) BuildOptions() index.BuildOptions {
	return index.BuildOptions{
		LargestOnly: c.Retrieval.LargestOnly,
		CacheDir:    c.Retrieval.CacheDir,
		CanvasSize:  c.Retrieval.CanvasSize,
		PadRatio:    c.Retrieval.PadRatio,
		Workers:     c.Workers.Index,
	}
}

// OCREngine returns the Tesseract settings.
func (c *Config) OCREngine() ocr.Config {
	return ocr.Config{
		Languages:      c.OCR.Languages,
		TessdataPrefix: c.OCR.TessdataPrefix,
		MinHeight:      c.OCR.MinHeight,
	}
}

// Validate checks the whole configuration without touching the filesystem.
func (c *Config) Validate() error {
	if err := c.Pipeline().Validate(); err != nil {
		return err
	}
	switch {
	case c.Retrieval.CanvasSize < 0:
		return apperr.Configf("canvas_size must be >= 0, got %d", c.Retrieval.CanvasSize)
	case c.Retrieval.PadRatio < 0 || c.Retrieval.PadRatio >= 0.5:
		return apperr.Configf("pad_ratio must be in [0,0.5), got %v", c.Retrieval.PadRatio)
	case c.Retrieval.RetryDelayMS < 0 || c.Retrieval.CallTimeoutMS < 0:
		return apperr.Configf("retry_delay_ms and call_timeout_ms must not be negative")
	case c.Taxonomy.MinFuzzyScore < 0 || c.Taxonomy.MinFuzzyScore > 1:
		return apperr.Configf("min_fuzzy_score must be in [0,1], got %v", c.Taxonomy.MinFuzzyScore)
	case c.Embedding.CacheEntries < 0:
		return apperr.Configf("cache_entries must be >= 0, got %d", c.Embedding.CacheEntries)
	case c.Workers.Candidates < 0 || c.Workers.Images < 0 || c.Workers.Index < 0:
		return apperr.Configf("worker counts must not be negative")
	}
	return nil
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# iconlabel configuration
# Every key can be overridden with an ICONLABEL_ environment variable, e.g.
#   ICONLABEL_RETRIEVAL_ICONS_DIR=./icons ICONLABEL_OCR_ENABLED=true
# Leave embedding.clip.model_path empty to use the built-in descriptor embedder.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}

func orProcs(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}
