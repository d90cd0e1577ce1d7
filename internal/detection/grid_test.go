package detection

import "testing"

func TestGridWindows(t *testing.T) {
	tests := []struct {
		name                string
		width, height       int
		window, stride      int
		wantCount           int
		wantFirst, wantLast Box
	}{
		{
			name: "diagram", width: 800, height: 600, window: 128, stride: 96,
			wantCount: 35,
			wantFirst: Box{0, 0, 128, 128},
			wantLast:  Box{576, 384, 128, 128},
		},
		{
			name: "smaller than window", width: 100, height: 50, window: 128, stride: 96,
			wantCount: 1,
			wantFirst: Box{0, 0, 100, 50},
			wantLast:  Box{0, 0, 100, 50},
		},
		{
			name: "exactly one window", width: 128, height: 128, window: 128, stride: 96,
			wantCount: 1,
			wantFirst: Box{0, 0, 128, 128},
			wantLast:  Box{0, 0, 128, 128},
		},
		{
			name: "wide strip", width: 300, height: 100, window: 128, stride: 96,
			wantCount: 2,
			wantFirst: Box{0, 0, 128, 100},
			wantLast:  Box{96, 0, 128, 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows := gridWindows(tt.width, tt.height, tt.window, tt.stride)
			if len(windows) != tt.wantCount {
				t.Fatalf("got %d windows, want %d", len(windows), tt.wantCount)
			}
			if windows[0] != tt.wantFirst {
				t.Errorf("first window: got %+v, want %+v", windows[0], tt.wantFirst)
			}
			if last := windows[len(windows)-1]; last != tt.wantLast {
				t.Errorf("last window: got %+v, want %+v", last, tt.wantLast)
			}
			for _, w := range windows {
				if !w.Within(tt.width, tt.height) {
					t.Errorf("window %+v outside %dx%d", w, tt.width, tt.height)
				}
			}
		})
	}
}

func TestGridWindows_Degenerate(t *testing.T) {
	if w := gridWindows(0, 100, 128, 96); w != nil {
		t.Errorf("zero-width image: got %v, want nil", w)
	}
	if w := gridWindows(100, 100, 128, 0); w != nil {
		t.Errorf("zero stride: got %v, want nil", w)
	}
}
