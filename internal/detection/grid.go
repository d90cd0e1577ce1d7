package detection

// gridWindows tiles a width×height image with window×window boxes at the
// given stride.
//
// Window origins run 0, stride, 2*stride, ... while below
// max(1, dim-window) on each axis, so the far margin is covered only when it
// falls on the stride. Every window is clamped to the image; an image smaller
// than the window yields exactly one window covering the whole image.
func gridWindows(width, height, window, stride int) []Box {
	if width <= 0 || height <= 0 || window <= 0 || stride <= 0 {
		return nil
	}

	windows := make([]Box, 0)
	for y := 0; y < max(1, height-window); y += stride {
		for x := 0; x < max(1, width-window); x += stride {
			b := Box{X: x, Y: y, W: window, H: window}
			windows = append(windows, b.Clamp(width, height))
		}
	}
	return windows
}
