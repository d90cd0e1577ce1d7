package imaging

import (
	"image"
	"math"
)

// EdgeMap is a binary edge image. Pix is row-major; Pix[y*Width+x] is true
// for edge pixels. Coordinates are relative to the source image's Min point.
type EdgeMap struct {
	Width  int
	Height int
	Pix    []bool
}

// At reports whether (x, y) is an edge pixel. Out-of-range coordinates are
// never edges.
func (e *EdgeMap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= e.Width || y >= e.Height {
		return false
	}
	return e.Pix[y*e.Width+x]
}

// Count returns the number of edge pixels.
func (e *EdgeMap) Count() int {
	n := 0
	for _, v := range e.Pix {
		if v {
			n++
		}
	}
	return n
}

// DetectEdges performs Canny-style edge detection on an image.
//
// Parameters:
//   - img: Source image (color or grayscale).
//   - thresholdLow: Gradients below this (0-255 scale) are discarded.
//   - thresholdHigh: Gradients above this are always edges; those between the
//     two thresholds are kept only when 8-connected to a strong edge.
//
// # Algorithm
//
//  1. Grayscale conversion: ITU-R BT.601 weights (0.299*R + 0.587*G + 0.114*B)
//  2. Gaussian blur: 5x5 kernel to reduce noise
//  3. Gradient computation: Sobel operators, magnitude = sqrt(Gx² + Gy²)
//  4. Non-maximum suppression along the gradient direction
//  5. Hysteresis thresholding
//
// The thresholds match OpenCV's Canny scale for an 8-bit image divided by
// 255, so values tuned there (60/160 for clean diagrams) carry over roughly.
func DetectEdges(img image.Image, thresholdLow, thresholdHigh int) *EdgeMap {
	gray, width, height := Luminance(img)
	return detectEdgesGray(gray, width, height, thresholdLow, thresholdHigh)
}

// Luminance converts img to a row-major slice of luminance values in [0,1].
func Luminance(img image.Image) ([]float64, int, int) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			rf := float64(r>>8) / 255.0
			gf := float64(g>>8) / 255.0
			bf := float64(b>>8) / 255.0
			gray[y*width+x] = 0.299*rf + 0.587*gf + 0.114*bf
		}
	}
	return gray, width, height
}

func detectEdgesGray(gray []float64, width, height, thresholdLow, thresholdHigh int) *EdgeMap {
	blurred := GaussianBlur(gray, width, height)

	magnitude := make([]float64, width*height)
	direction := make([]float64, width*height)

	sobelX := [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY := [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					py := clamp(y+ky, 0, height-1)
					px := clamp(x+kx, 0, width-1)
					v := blurred[py*width+px]
					gx += v * sobelX[ky+1][kx+1]
					gy += v * sobelY[ky+1][kx+1]
				}
			}
			magnitude[y*width+x] = math.Sqrt(gx*gx + gy*gy)
			direction[y*width+x] = math.Atan2(gy, gx)
		}
	}

	// Non-maximum suppression
	suppressed := make([]float64, width*height)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			angle := direction[y*width+x]
			mag := magnitude[y*width+x]

			var n1, n2 float64
			switch {
			case (angle >= -math.Pi/8 && angle < math.Pi/8) || angle >= 7*math.Pi/8 || angle < -7*math.Pi/8:
				n1 = magnitude[y*width+x-1]
				n2 = magnitude[y*width+x+1]
			case (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8):
				n1 = magnitude[(y-1)*width+x+1]
				n2 = magnitude[(y+1)*width+x-1]
			case (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8):
				n1 = magnitude[(y-1)*width+x]
				n2 = magnitude[(y+1)*width+x]
			default:
				n1 = magnitude[(y-1)*width+x-1]
				n2 = magnitude[(y+1)*width+x+1]
			}

			if mag >= n1 && mag >= n2 {
				suppressed[y*width+x] = mag
			}
		}
	}

	// Double threshold and edge tracking by hysteresis
	edges := &EdgeMap{Width: width, Height: height, Pix: make([]bool, width*height)}
	lowThresh := float64(thresholdLow) / 255.0
	highThresh := float64(thresholdHigh) / 255.0

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			val := suppressed[y*width+x]
			if val <= 0 {
				continue
			}
			if val >= highThresh {
				edges.Pix[y*width+x] = true
			} else if val >= lowThresh {
				hasStrongNeighbor := false
				for ky := -1; ky <= 1 && !hasStrongNeighbor; ky++ {
					for kx := -1; kx <= 1 && !hasStrongNeighbor; kx++ {
						py := clamp(y+ky, 0, height-1)
						px := clamp(x+kx, 0, width-1)
						if suppressed[py*width+px] >= highThresh {
							hasStrongNeighbor = true
						}
					}
				}
				edges.Pix[y*width+x] = hasStrongNeighbor
			}
		}
	}

	return edges
}

// GaussianBlur applies a 5x5 Gaussian blur (sigma ≈ 1.4, kernel sum 273).
// Border pixels use clamped (replicated) edge values.
func GaussianBlur(img []float64, width, height int) []float64 {
	kernel := [5][5]float64{
		{1, 4, 7, 4, 1},
		{4, 16, 26, 16, 4},
		{7, 26, 41, 26, 7},
		{4, 16, 26, 16, 4},
		{1, 4, 7, 4, 1},
	}
	const kernelSum = 273.0

	result := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum float64
			for ky := -2; ky <= 2; ky++ {
				for kx := -2; kx <= 2; kx++ {
					py := clamp(y+ky, 0, height-1)
					px := clamp(x+kx, 0, width-1)
					sum += img[py*width+px] * kernel[ky+2][kx+2]
				}
			}
			result[y*width+x] = sum / kernelSum
		}
	}
	return result
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
