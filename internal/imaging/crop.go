package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Crop extracts the rectangle r (in img's coordinate space) from img.
//
// The result always has its origin at (0,0). r must lie inside img.Bounds()
// and be non-empty.
func Crop(img image.Image, r image.Rectangle) (image.Image, error) {
	bounds := img.Bounds()
	if !r.In(bounds) {
		return nil, fmt.Errorf("crop region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			r.Min.X, r.Min.Y, r.Max.X, r.Max.Y, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}
	if r.Empty() {
		return nil, fmt.Errorf("invalid crop region: x1 must be < x2, y1 must be < y2")
	}
	return imaging.Crop(img, r), nil
}

// Downscale shrinks img so that its longest side is at most maxSize.
//
// It returns the (possibly unchanged) image and the ratio new/original. The
// ratio is exactly 1.0 when no resize happened, which callers use to skip the
// rescale step. Box filtering is used since it behaves like area averaging
// when shrinking.
func Downscale(img image.Image, maxSize int) (image.Image, float64) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if maxSize <= 0 || longest <= maxSize {
		return img, 1.0
	}

	r := float64(maxSize) / float64(longest)
	nw := int(float64(w) * r)
	nh := int(float64(h) * r)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return imaging.Resize(img, nw, nh, imaging.Box), r
}

// TrimTransparent crops away fully transparent margins.
//
// Images without any transparent border, or that are entirely transparent,
// are returned unchanged.
func TrimTransparent(img image.Image) image.Image {
	bounds := img.Bounds()
	minX, minY := bounds.Max.X, bounds.Max.Y
	maxX, maxY := bounds.Min.X-1, bounds.Min.Y-1

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < minX || maxY < minY {
		return img
	}
	r := image.Rect(minX, minY, maxX+1, maxY+1)
	if r == bounds {
		return img
	}
	return imaging.Crop(img, r)
}

// PrepareIcon normalizes a reference icon or a candidate crop for embedding.
//
// The transparent margin is trimmed, the content is scaled to fit inside a
// canvasSize square leaving padRatio*canvasSize of padding on each side,
// and composited centered onto an opaque white canvas.
func PrepareIcon(img image.Image, canvasSize int, padRatio float64) image.Image {
	img = TrimTransparent(img)
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}

	canvas := imaging.New(canvasSize, canvasSize, color.White)
	if longest == 0 {
		return canvas
	}

	pad := int(math.Round(padRatio * float64(canvasSize)))
	inner := canvasSize - 2*pad
	if inner < 1 {
		inner = canvasSize
	}
	scale := float64(inner) / float64(longest)
	nw := maxInt(1, int(float64(w)*scale))
	nh := maxInt(1, int(float64(h)*scale))

	resized := imaging.Resize(img, nw, nh, imaging.Lanczos)
	return imaging.OverlayCenter(canvas, resized, 1.0)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
