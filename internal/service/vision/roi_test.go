package vision

import (
	"image"
	"testing"
)

func TestSelectRegion(t *testing.T) {
	tests := []struct {
		name       string
		candidates []image.Rectangle
		pad        int
		expected   image.Rectangle
		found      bool
	}{
		{"none", nil, 4, image.Rectangle{}, false},
		{"too small", []image.Rectangle{image.Rect(0, 0, 40, 400)}, 4, image.Rectangle{}, false},
		{"largest wins", []image.Rectangle{image.Rect(0, 0, 200, 200), image.Rect(300, 300, 700, 700)}, 4, image.Rect(304, 304, 696, 696), true},
		{"clipped to frame", []image.Rectangle{image.Rect(-10, -10, 500, 500)}, 4, image.Rect(0, 0, 496, 496), true},
		{"padding eats region", []image.Rectangle{image.Rect(0, 0, 60, 60)}, 30, image.Rectangle{}, false},
	}

	for _, tt := range tests {
		got, ok := SelectRegion(tt.candidates, 1000, 1000, tt.pad)
		if ok != tt.found || got != tt.expected {
			t.Errorf("%s: SelectRegion = %v, %v, expected %v, %v", tt.name, got, ok, tt.expected, tt.found)
		}
	}
}
