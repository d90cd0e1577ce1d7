package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// TextRegion represents a word with its location and OCR confidence.
type TextRegion struct {
	Text string `json:"text"`

	// Confidence is the OCR confidence score (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	Bounds Bounds `json:"bounds"`
}

// OCRResult contains the complete results of text extraction from an image.
type OCRResult struct {
	// FullText is all recognized text, trimmed of surrounding whitespace.
	FullText string `json:"full_text"`

	// Regions contains individual words with their bounding boxes and confidence scores.
	// May be empty if bounding box extraction fails (text will still be in FullText).
	Regions []TextRegion `json:"regions"`
}

// Config controls the Tesseract engine.
type Config struct {
	// Languages are Tesseract language codes, "eng" when empty.
	Languages []string `json:"languages" mapstructure:"languages" yaml:"languages"`
	// TessdataPrefix overrides the directory holding *.traineddata files.
	TessdataPrefix string `json:"tessdata_prefix" mapstructure:"tessdata_prefix" yaml:"tessdata_prefix"`
	// MinHeight upscales smaller crops before recognition; Tesseract does
	// poorly on text only a few pixels tall.
	MinHeight int `json:"min_height" mapstructure:"min_height" yaml:"min_height"`
}

// DefaultConfig returns English recognition with crops upscaled to 64 px.
func DefaultConfig() Config {
	return Config{Languages: []string{"eng"}, MinHeight: 64}
}

// Tesseract extracts text from image crops. A fresh client is created per
// call, so it is safe for concurrent use.
type Tesseract struct {
	cfg Config
}

// NewTesseract returns an extractor with cfg.
func NewTesseract(cfg Config) *Tesseract {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	return &Tesseract{cfg: cfg}
}

// ExtractText returns the text in img, trimmed, or "" when there is none.
func (t *Tesseract) ExtractText(ctx context.Context, img image.Image) (string, error) {
	res, err := t.Read(ctx, img)
	if err != nil {
		return "", err
	}
	return res.FullText, nil
}

// Read performs OCR on img and returns the text with word boxes.
//
// Word boxes are in img's coordinate space, after undoing any upscaling.
// If word-level extraction fails the full text is still returned with an
// empty Regions slice.
//
// Tesseract calls cannot be interrupted; ctx is only checked before the
// engine starts.
func (t *Tesseract) Read(ctx context.Context, img image.Image) (*OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	scale := 1.0
	src := img
	if t.cfg.MinHeight > 0 && b.Dy() < t.cfg.MinHeight {
		scale = float64(t.cfg.MinHeight) / float64(b.Dy())
		src = imaging.Resize(img, int(float64(b.Dx())*scale+0.5), t.cfg.MinHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if t.cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.cfg.TessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(t.cfg.Languages...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	// Icon captions are short and scattered, not paragraphs.
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	result := &OCRResult{
		FullText: strings.TrimSpace(text),
		Regions:  []TextRegion{},
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return result, nil
	}
	for _, box := range boxes {
		if strings.TrimSpace(box.Word) == "" {
			continue
		}
		result.Regions = append(result.Regions, TextRegion{
			Text:       box.Word,
			Confidence: float64(box.Confidence) / 100.0,
			Bounds:     unscale(box.Box, scale, b.Min),
		})
	}
	return result, nil
}

// unscale maps a box on the upscaled image back to the source image.
func unscale(r image.Rectangle, scale float64, origin image.Point) Bounds {
	f := func(v int) int { return int(float64(v)/scale + 0.5) }
	return Bounds{
		X1: f(r.Min.X) + origin.X,
		Y1: f(r.Min.Y) + origin.Y,
		X2: f(r.Max.X) + origin.X,
		Y2: f(r.Max.Y) + origin.Y,
	}
}
