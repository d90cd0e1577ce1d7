package detection

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
)

// thresholdLevel holds the dark and bright components of one binarization.
type thresholdLevel struct {
	darkLabels    []int32
	darkRegions   []region
	brightLabels  []int32
	brightRegions []region
}

// blobRegions finds maximally stable extremal regions with a threshold sweep.
//
// The grayscale image is binarized at every multiple of delta. At each level
// the connected components of dark pixels (value < level) and bright pixels
// (value >= level) are candidate regions. A region is stable when its area
// changes by less than maxVariation (relative to its own area) between the
// neighbouring levels level-delta and level+delta. Stable regions whose box
// area lies in [minArea, maxArea] are returned, each distinct box once, in
// level order.
func blobRegions(img image.Image, delta int, maxVariation float64, minArea, maxArea int) []Box {
	gray := effect.Grayscale(img)
	gb := gray.Bounds()
	width, height := gb.Dx(), gb.Dy()
	if width == 0 || height == 0 || delta <= 0 {
		return nil
	}

	// Grayscale returns RGBA with R, G and B all set to the luminance.
	values := make([]uint8, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			values[y*width+x] = gray.RGBAAt(x+gb.Min.X, y+gb.Min.Y).R
		}
	}

	levels := make([]int, 0, 256/delta)
	for t := delta; t < 256; t += delta {
		levels = append(levels, t)
	}
	if len(levels) < 3 {
		return nil
	}

	label := func(t int) *thresholdLevel {
		mask := segment.Threshold(gray, uint8(t))
		mb := mask.Bounds()
		bright := make([]bool, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				bright[y*width+x] = mask.GrayAt(x+mb.Min.X, y+mb.Min.Y).Y != 0
			}
		}
		darker := func(a, b int) bool { return values[a] < values[b] }
		brighter := func(a, b int) bool { return values[a] > values[b] }

		l := &thresholdLevel{}
		l.darkLabels, l.darkRegions = labelComponents(width, height, func(i int) bool { return !bright[i] }, darker)
		l.brightLabels, l.brightRegions = labelComponents(width, height, func(i int) bool { return bright[i] }, brighter)
		return l
	}

	seen := make(map[Box]struct{})
	boxes := make([]Box, 0)
	keep := func(b Box) {
		area := b.Area()
		if area < minArea || area > maxArea {
			return
		}
		if _, dup := seen[b]; dup {
			return
		}
		seen[b] = struct{}{}
		boxes = append(boxes, b)
	}

	prev, cur := label(levels[0]), label(levels[1])
	for i := 1; i < len(levels)-1; i++ {
		next := label(levels[i+1])

		// Dark regions grow with the level.
		for _, r := range cur.darkRegions {
			grown := areaAt(next.darkLabels, next.darkRegions, r.seed)
			shrunk := areaAt(prev.darkLabels, prev.darkRegions, r.seed)
			if stable(r.pixels, grown, shrunk, maxVariation) {
				keep(r.box)
			}
		}

		// Bright regions shrink as the level rises.
		for _, r := range cur.brightRegions {
			grown := areaAt(prev.brightLabels, prev.brightRegions, r.seed)
			shrunk := areaAt(next.brightLabels, next.brightRegions, r.seed)
			if stable(r.pixels, grown, shrunk, maxVariation) {
				keep(r.box)
			}
		}

		prev, cur = cur, next
	}
	return boxes
}

// areaAt returns the pixel count of the component containing pixel p, or 0
// if p is not a member at that level.
func areaAt(labels []int32, regions []region, p int) int {
	id := labels[p]
	if id == 0 {
		return 0
	}
	return regions[id-1].pixels
}

func stable(area, grown, shrunk int, maxVariation float64) bool {
	if area == 0 {
		return false
	}
	return float64(grown-shrunk)/float64(area) < maxVariation
}
