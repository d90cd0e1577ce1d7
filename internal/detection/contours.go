package detection

import (
	"image"

	"github.com/ironsheep/icon-autolabel/internal/imaging"
)

// minContourPixels drops edge fragments too small to outline anything.
const minContourPixels = 10

// region is one connected component found by labelComponents.
type region struct {
	box    Box
	pixels int
	// seed is the flat index of the component's extreme pixel, used to find
	// the same component at a neighbouring threshold level.
	seed int
}

// labelComponents groups 8-connected pixels for which member reports true.
//
// The returned label slice holds 1+component index for member pixels and 0
// elsewhere. When extreme is non-nil, seed is the pixel p of each component
// for which extreme(p, q) holds against every other q in it; otherwise seed is
// the first pixel found.
func labelComponents(width, height int, member func(i int) bool, extreme func(a, b int) bool) ([]int32, []region) {
	labels := make([]int32, width*height)
	regions := make([]region, 0)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if labels[i] != 0 || !member(i) {
				continue
			}
			id := int32(len(regions) + 1)
			regions = append(regions, floodFill(labels, member, extreme, id, x, y, width, height))
		}
	}
	return labels, regions
}

// floodFill performs an iterative flood fill from (startX, startY), writing
// id into labels for every reached pixel.
//
// Uses an explicit stack so very large components cannot overflow the
// goroutine stack. Pixels are labeled when pushed, so each is visited once.
func floodFill(labels []int32, member func(i int) bool, extreme func(a, b int) bool, id int32, startX, startY, width, height int) region {
	start := startY*width + startX
	labels[start] = id
	stack := []int{start}

	minX, minY := startX, startY
	maxX, maxY := startX, startY
	seed := start
	pixels := 0

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		px, py := p%width, p/width
		pixels++

		if px < minX {
			minX = px
		}
		if px > maxX {
			maxX = px
		}
		if py < minY {
			minY = py
		}
		if py > maxY {
			maxY = py
		}
		if extreme != nil && extreme(p, seed) {
			seed = p
		}

		// 8-connected neighbors
		for dy := -1; dy <= 1; dy++ {
			ny := py + dy
			if ny < 0 || ny >= height {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				nx := px + dx
				if (dx == 0 && dy == 0) || nx < 0 || nx >= width {
					continue
				}
				n := ny*width + nx
				if labels[n] == 0 && member(n) {
					labels[n] = id
					stack = append(stack, n)
				}
			}
		}
	}

	return region{
		box:    Box{X: minX, Y: minY, W: maxX - minX + 1, H: maxY - minY + 1},
		pixels: pixels,
		seed:   seed,
	}
}

// edgeContours returns the bounding boxes of outer edge contours whose box
// area lies in [minArea, maxArea].
//
// Edges come from Canny detection. Each 8-connected group of edge pixels is a
// contour; a contour whose box sits inside the box of another icon-sized
// contour (area at most maxArea) is interior detail of that icon and is
// dropped. Contours nested only inside larger frames are kept.
func edgeContours(img image.Image, cannyLow, cannyHigh, minArea, maxArea int) []Box {
	edges := imaging.DetectEdges(img, cannyLow, cannyHigh)
	_, comps := labelComponents(edges.Width, edges.Height, func(i int) bool { return edges.Pix[i] }, nil)

	contours := make([]Box, 0, len(comps))
	for _, c := range comps {
		if c.pixels >= minContourPixels {
			contours = append(contours, c.box)
		}
	}

	boxes := make([]Box, 0)
	for i, b := range contours {
		area := b.Area()
		if area < minArea || area > maxArea {
			continue
		}
		if nestedInIcon(contours, i, maxArea) {
			continue
		}
		boxes = append(boxes, b)
	}
	return boxes
}

// nestedInIcon reports whether contours[i] lies inside a different,
// icon-sized contour.
func nestedInIcon(contours []Box, i, maxArea int) bool {
	b := contours[i]
	for j, outer := range contours {
		if j == i || outer == b || outer.Area() > maxArea {
			continue
		}
		if outer.Contains(b) {
			return true
		}
	}
	return false
}
