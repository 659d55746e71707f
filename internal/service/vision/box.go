// Package vision holds the detector post-processing: confidence/class filtering, coordinate
// conversion and box deduplication. It has no OpenCV dependency.
package vision

import "image"

// epsilon keeps the ratios defined for degenerate boxes.
const epsilon = 1e-6

func area(r image.Rectangle) float64 {
	if r.Empty() {
		return 0
	}
	return float64(r.Dx()) * float64(r.Dy())
}

func overlap(a, b image.Rectangle) float64 {
	return area(a.Intersect(b))
}

// IoU returns the intersection over union of two boxes.
func IoU(a, b image.Rectangle) float64 {
	inter := overlap(a, b)
	return inter / (area(a) + area(b) - inter + epsilon)
}

// InsideRatio returns the fraction of a's area that lies inside b.
func InsideRatio(a, b image.Rectangle) float64 {
	return overlap(a, b) / (area(a) + epsilon)
}

// Union returns the smallest box containing every box in group.
func Union(group []image.Rectangle) image.Rectangle {
	if len(group) == 0 {
		return image.Rectangle{}
	}
	u := group[0]
	for _, r := range group[1:] {
		u.Min.X = min(u.Min.X, r.Min.X)
		u.Min.Y = min(u.Min.Y, r.Min.Y)
		u.Max.X = max(u.Max.X, r.Max.X)
		u.Max.Y = max(u.Max.Y, r.Max.Y)
	}
	return u
}
