package detection

import (
	"image"
	"image/color"
	"testing"
)

// createTestImage creates a solid color test image
func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// fillRect paints a filled rectangle covering [x1,x2) × [y1,y2)
func fillRect(img *image.RGBA, x1, y1, x2, y2 int, c color.Color) {
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			img.Set(x, y, c)
		}
	}
}

func TestLabelComponents(t *testing.T) {
	// Two separate blobs and a diagonal pair that is 8-connected
	grid := []string{
		"##....",
		"##....",
		"....#.",
		".....#",
	}
	width, height := 6, 4
	member := func(i int) bool { return grid[i/width][i%width] == '#' }

	labels, regions := labelComponents(width, height, member, nil)
	if len(regions) != 2 {
		t.Fatalf("got %d regions, want 2", len(regions))
	}

	if regions[0].box != (Box{X: 0, Y: 0, W: 2, H: 2}) || regions[0].pixels != 4 {
		t.Errorf("first region: got %+v", regions[0])
	}
	if regions[1].box != (Box{X: 4, Y: 2, W: 2, H: 2}) || regions[1].pixels != 2 {
		t.Errorf("second region: got %+v", regions[1])
	}
	if labels[0] != 1 || labels[2*width+4] != 2 || labels[3*width+5] != 2 {
		t.Error("labels do not match region ids")
	}
	if labels[width*height-2] != 0 {
		t.Error("non-member pixel should be unlabeled")
	}
}

func TestLabelComponents_Seed(t *testing.T) {
	values := []uint8{
		9, 9, 0,
		3, 1, 0,
		0, 0, 0,
	}
	member := func(i int) bool { return values[i] > 0 }
	darker := func(a, b int) bool { return values[a] < values[b] }

	_, regions := labelComponents(3, 3, member, darker)
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	if regions[0].seed != 4 {
		t.Errorf("seed: got %d, want 4 (the darkest member)", regions[0].seed)
	}
}

func TestLabelComponents_Empty(t *testing.T) {
	_, regions := labelComponents(10, 10, func(int) bool { return false }, nil)
	if len(regions) != 0 {
		t.Errorf("got %d regions, want 0", len(regions))
	}
}

func TestNestedInIcon(t *testing.T) {
	contours := []Box{
		{X: 10, Y: 10, W: 100, H: 100}, // icon outline
		{X: 30, Y: 30, W: 40, H: 40},   // glyph inside the icon
		{X: 0, Y: 0, W: 1000, H: 1000}, // diagram frame
		{X: 300, Y: 300, W: 50, H: 50}, // icon inside the frame only
	}
	maxArea := 90000

	tests := []struct {
		i    int
		want bool
	}{
		{0, false},
		{1, true},
		{2, false},
		{3, false},
	}
	for _, tt := range tests {
		if got := nestedInIcon(contours, tt.i, maxArea); got != tt.want {
			t.Errorf("nestedInIcon(%d) = %v, want %v", tt.i, got, tt.want)
		}
	}
}

func TestEdgeContours(t *testing.T) {
	img := createTestImage(200, 200, color.White)
	fillRect(img, 50, 50, 110, 110, color.Black)

	boxes := edgeContours(img, 60, 160, 900, 90000)
	if len(boxes) == 0 {
		t.Fatal("expected a contour around the square")
	}

	square := Box{X: 50, Y: 50, W: 60, H: 60}
	best := 0.0
	for _, b := range boxes {
		if iou := IoU(b, square); iou > best {
			best = iou
		}
	}
	if best < 0.8 {
		t.Errorf("best IoU with the square: got %.2f, want >= 0.8 (boxes %v)", best, boxes)
	}
}

func TestEdgeContours_AreaFilter(t *testing.T) {
	img := createTestImage(200, 200, color.White)
	fillRect(img, 50, 50, 60, 60, color.Black) // ~100 px², below minArea

	if boxes := edgeContours(img, 60, 160, 900, 90000); len(boxes) != 0 {
		t.Errorf("small square should be filtered, got %v", boxes)
	}
}

func TestEdgeContours_UniformImage(t *testing.T) {
	img := createTestImage(100, 100, color.White)
	if boxes := edgeContours(img, 60, 160, 0, 100000); len(boxes) != 0 {
		t.Errorf("uniform image produced contours: %v", boxes)
	}
}
