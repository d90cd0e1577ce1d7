package detection

import "image"

// Box is an axis-aligned bounding box in pixel coordinates.
//
// (X, Y) is the top-left corner; the box covers [X, X+W) × [Y, Y+H).
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Area returns W × H, or 0 for degenerate boxes.
func (b Box) Area() int {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Valid reports whether the box has a positive width and height.
func (b Box) Valid() bool {
	return b.W > 0 && b.H > 0
}

// Within reports whether the box lies inside [0,width] × [0,height].
func (b Box) Within(width, height int) bool {
	return b.X >= 0 && b.Y >= 0 && b.X+b.W <= width && b.Y+b.H <= height
}

// Clamp intersects the box with [0,width] × [0,height].
//
// A box entirely outside the image clamps to a zero-area box.
func (b Box) Clamp(width, height int) Box {
	x1 := clampInt(b.X, 0, width)
	y1 := clampInt(b.Y, 0, height)
	x2 := clampInt(b.X+b.W, 0, width)
	y2 := clampInt(b.Y+b.H, 0, height)
	return Box{X: x1, Y: y1, W: max(0, x2-x1), H: max(0, y2-y1)}
}

// Contains reports whether o lies entirely inside b.
func (b Box) Contains(o Box) bool {
	return o.X >= b.X && o.Y >= b.Y && o.X+o.W <= b.X+b.W && o.Y+o.H <= b.Y+b.H
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Array returns the box as [x, y, w, h].
func (b Box) Array() [4]int {
	return [4]int{b.X, b.Y, b.W, b.H}
}

// scale maps a box found on a downscaled image back to source coordinates.
// ratio is downscaled/source; coordinates are truncated.
func (b Box) scale(ratio float64) Box {
	if ratio == 1.0 {
		return b
	}
	return Box{
		X: int(float64(b.X) / ratio),
		Y: int(float64(b.Y) / ratio),
		W: int(float64(b.W) / ratio),
		H: int(float64(b.H) / ratio),
	}
}

// IoU returns the intersection-over-union of two boxes in [0, 1].
//
// Degenerate boxes have an IoU of 0 with everything.
func IoU(a, b Box) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.X+a.W, b.X+b.W)
	y2 := min(a.Y+a.H, b.Y+b.H)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := float64((x2 - x1) * (y2 - y1))
	union := float64(a.Area()+b.Area()) - inter
	return inter / union
}

func clampInt(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
