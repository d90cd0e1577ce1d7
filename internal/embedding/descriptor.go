package embedding

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	hueBins        = 12
	saturationBins = 4
	valueBins      = 4
	// layoutWeight scales the luminance layout relative to the histogram so
	// neither block dominates the cosine.
	layoutWeight = 0.5
)

// DescriptorEmbedder describes an image by its HSV color distribution and a
// coarse luminance layout.
//
// The vector holds a saturation-weighted hue histogram, saturation and value
// histograms over opaque pixels, then a LayoutSize×LayoutSize grid of
// mean-centered luminance. Fully transparent pixels are ignored by the
// histograms.
type DescriptorEmbedder struct {
	LayoutSize int
}

// NewDescriptorEmbedder returns a descriptor embedder with an 8×8 layout.
func NewDescriptorEmbedder() *DescriptorEmbedder {
	return &DescriptorEmbedder{LayoutSize: 8}
}

// Dim returns the vector length.
func (d *DescriptorEmbedder) Dim() int {
	return hueBins + saturationBins + valueBins + d.layout()*d.layout()
}

// ModelID implements index.Embedder.
func (d *DescriptorEmbedder) ModelID() string {
	return fmt.Sprintf("descriptor-hsv%d-layout%d", hueBins, d.layout())
}

// Embed implements index.Embedder.
func (d *DescriptorEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	vec := make([]float32, d.Dim())
	hue := vec[:hueBins]
	sat := vec[hueBins : hueBins+saturationBins]
	val := vec[hueBins+saturationBins : hueBins+saturationBins+valueBins]

	var opaque float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				continue
			}
			h, s, v := c.Hsv()
			hue[bin(h/360, hueBins)] += float32(s)
			sat[bin(s, saturationBins)]++
			val[bin(v, valueBins)]++
			opaque++
		}
	}
	if opaque > 0 {
		for i := range vec[:hueBins+saturationBins+valueBins] {
			vec[i] /= float32(opaque)
		}
	}

	d.fillLayout(vec[hueBins+saturationBins+valueBins:], img)
	return vec, nil
}

// fillLayout writes the mean-centered luminance of img resized to a square
// grid.
func (d *DescriptorEmbedder) fillLayout(out []float32, img image.Image) {
	n := d.layout()
	small := imaging.Resize(img, n, n, imaging.Box)
	gray := make([]float64, n*n)
	var mean float64
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			g := color.GrayModel.Convert(small.At(x, y)).(color.Gray)
			gray[y*n+x] = float64(g.Y) / 255
			mean += gray[y*n+x]
		}
	}
	mean /= float64(n * n)
	for i, g := range gray {
		out[i] = float32((g - mean) * layoutWeight)
	}
}

func (d *DescriptorEmbedder) layout() int {
	if d.LayoutSize <= 0 {
		return 8
	}
	return d.LayoutSize
}

// bin maps v in [0, 1] to one of n buckets.
func bin(v float64, n int) int {
	i := int(math.Floor(v * float64(n)))
	return max(0, min(n-1, i))
}
