// Package keypoint scores structural similarity between two images by
// matching oriented binary corner descriptors.
//
// Both images are resized to a square grayscale canvas. Corners are found
// with the Harris detector, oriented by their intensity centroid, and
// described with a steered 256-bit BRIEF pattern. Descriptors are matched
// by brute-force Hamming distance with a cross-check, and the score is the
// share of close matches.
package keypoint

import (
	"context"
	"image"
	"math"
	"math/bits"
	"math/rand/v2"
	"sort"

	"github.com/disintegration/imaging"

	imgproc "github.com/ironsheep/icon-autolabel/internal/imaging"
)

const (
	patchRadius = 15
	// border keeps every rotated sample of the patch inside the canvas.
	border      = 22
	harrisK     = 0.04
	descriptorN = 256
)

// pattern holds the BRIEF sampling pairs. It is generated once from a fixed
// seed so descriptors are comparable across runs.
var pattern = makePattern(descriptorN, 0x1c0a, 0x0b1e)

type pair struct {
	x1, y1, x2, y2 float64
}

func makePattern(n int, seed1, seed2 uint64) []pair {
	r := rand.New(rand.NewPCG(seed1, seed2))
	sigma := float64(2*patchRadius+1) / 5
	sample := func() float64 {
		v := math.Round(r.NormFloat64() * sigma)
		return math.Max(-patchRadius, math.Min(patchRadius, v))
	}
	out := make([]pair, n)
	for i := range out {
		out[i] = pair{sample(), sample(), sample(), sample()}
	}
	return out
}

// Descriptor is a 256-bit binary patch descriptor.
type Descriptor [descriptorN / 64]uint64

// Distance returns the Hamming distance between two descriptors.
func (d Descriptor) Distance(o Descriptor) int {
	n := 0
	for i := range d {
		n += bits.OnesCount64(d[i] ^ o[i])
	}
	return n
}

// Keypoint is a detected corner on the canvas.
type Keypoint struct {
	X, Y       int
	Response   float64
	Angle      float64
	Descriptor Descriptor
}

// Matcher compares images structurally. The zero value is not usable; use
// NewMatcher.
type Matcher struct {
	// CanvasSize is the side both images are resized to.
	CanvasSize int
	// MaxFeatures keeps the strongest corners per image.
	MaxFeatures int
	// Quality is the minimum Harris response relative to the strongest
	// corner.
	Quality float64
	// MaxDistance is the exclusive Hamming distance below which a match
	// counts as good.
	MaxDistance int
	// MinKeypoints is required in both images for a non-zero score.
	MinKeypoints int
	// MinMatches is the smallest denominator of the score.
	MinMatches int
}

// NewMatcher returns a matcher with the defaults used for icon refinement.
func NewMatcher() *Matcher {
	return &Matcher{
		CanvasSize:   128,
		MaxFeatures:  500,
		Quality:      0.01,
		MaxDistance:  64,
		MinKeypoints: 5,
		MinMatches:   10,
	}
}

// Match returns a similarity in [0, 1].
//
// The score is good / max(MinMatches, matches), where matches are the
// cross-checked descriptor pairs and good are those closer than
// MaxDistance. It is 0 when either image has fewer than MinKeypoints
// corners.
func (m *Matcher) Match(ctx context.Context, a, b image.Image) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ka := m.Detect(a)
	if len(ka) < m.MinKeypoints {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	kb := m.Detect(b)
	if len(kb) < m.MinKeypoints {
		return 0, nil
	}

	matches := crossCheck(ka, kb)
	good := 0
	for _, d := range matches {
		if d < m.MaxDistance {
			good++
		}
	}
	return math.Min(1, float64(good)/float64(max(m.MinMatches, len(matches)))), nil
}

// Detect finds up to MaxFeatures oriented corners with descriptors,
// strongest first.
func (m *Matcher) Detect(img image.Image) []Keypoint {
	size := m.CanvasSize
	if img.Bounds().Empty() || size <= 2*border {
		return nil
	}
	canvas := imaging.Resize(img, size, size, imaging.Lanczos)
	gray, w, h := imgproc.Luminance(canvas)
	smooth := imgproc.GaussianBlur(gray, w, h)

	response := harris(smooth, w, h)
	kps := m.corners(response, w, h)
	for i := range kps {
		kps[i].Angle = orientation(smooth, w, kps[i].X, kps[i].Y)
		kps[i].Descriptor = describe(smooth, w, kps[i].X, kps[i].Y, kps[i].Angle)
	}
	return kps
}

// harris computes the Harris corner response from Sobel gradients with a
// Gaussian-weighted structure tensor.
func harris(img []float64, w, h int) []float64 {
	ixx := make([]float64, w*h)
	iyy := make([]float64, w*h)
	ixy := make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			at := func(dx, dy int) float64 { return img[(y+dy)*w+x+dx] }
			gx := -at(-1, -1) - 2*at(-1, 0) - at(-1, 1) + at(1, -1) + 2*at(1, 0) + at(1, 1)
			gy := -at(-1, -1) - 2*at(0, -1) - at(1, -1) + at(-1, 1) + 2*at(0, 1) + at(1, 1)
			i := y*w + x
			ixx[i] = gx * gx
			iyy[i] = gy * gy
			ixy[i] = gx * gy
		}
	}
	sxx := imgproc.GaussianBlur(ixx, w, h)
	syy := imgproc.GaussianBlur(iyy, w, h)
	sxy := imgproc.GaussianBlur(ixy, w, h)

	out := make([]float64, w*h)
	for i := range out {
		trace := sxx[i] + syy[i]
		out[i] = sxx[i]*syy[i] - sxy[i]*sxy[i] - harrisK*trace*trace
	}
	return out
}

// corners keeps 3×3 local maxima above the quality threshold inside the
// descriptor border. Equal neighbours resolve to the first in raster order.
func (m *Matcher) corners(response []float64, w, h int) []Keypoint {
	var peak float64
	for _, r := range response {
		peak = math.Max(peak, r)
	}
	if peak <= 1e-12 {
		return nil
	}
	threshold := peak * m.Quality

	var kps []Keypoint
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			i := y*w + x
			r := response[i]
			if r <= threshold || !localMax(response, w, x, y) {
				continue
			}
			kps = append(kps, Keypoint{X: x, Y: y, Response: r})
		}
	}

	sort.SliceStable(kps, func(i, j int) bool {
		return kps[i].Response > kps[j].Response
	})
	if m.MaxFeatures > 0 && len(kps) > m.MaxFeatures {
		kps = kps[:m.MaxFeatures]
	}
	return kps
}

func localMax(response []float64, w, x, y int) bool {
	r := response[y*w+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := response[(y+dy)*w+x+dx]
			if n > r || (n == r && (dy < 0 || (dy == 0 && dx < 0))) {
				return false
			}
		}
	}
	return true
}

// orientation returns the angle of the intensity centroid of the circular
// patch around (cx, cy).
func orientation(img []float64, w, cx, cy int) float64 {
	var m10, m01 float64
	for dy := -patchRadius; dy <= patchRadius; dy++ {
		for dx := -patchRadius; dx <= patchRadius; dx++ {
			if dx*dx+dy*dy > patchRadius*patchRadius {
				continue
			}
			v := img[(cy+dy)*w+cx+dx]
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	return math.Atan2(m01, m10)
}

// describe samples the rotated BRIEF pattern around (cx, cy).
func describe(img []float64, w, cx, cy int, angle float64) Descriptor {
	var d Descriptor
	sin, cos := math.Sincos(angle)
	sample := func(px, py float64) float64 {
		x := cx + int(math.Round(cos*px-sin*py))
		y := cy + int(math.Round(sin*px+cos*py))
		return img[y*w+x]
	}
	for i, p := range pattern {
		if sample(p.x1, p.y1) < sample(p.x2, p.y2) {
			d[i/64] |= 1 << (i % 64)
		}
	}
	return d
}

// crossCheck returns the Hamming distances of mutually nearest descriptor
// pairs. The first of equally near candidates wins.
func crossCheck(a, b []Keypoint) []int {
	nearest := func(d Descriptor, set []Keypoint) (int, int) {
		best, bestDist := -1, math.MaxInt
		for j, k := range set {
			if dist := d.Distance(k.Descriptor); dist < bestDist {
				best, bestDist = j, dist
			}
		}
		return best, bestDist
	}

	var out []int
	for i, ka := range a {
		j, dist := nearest(ka.Descriptor, b)
		if j < 0 {
			continue
		}
		if back, _ := nearest(b[j].Descriptor, a); back == i {
			out = append(out, dist)
		}
	}
	return out
}
