package vision

import (
	"errors"
	"image"
	"math"

	"aerialcapture/internal/dto"
)

// ErrRegionNotFound is returned by croppers that could not isolate a region of interest.
var ErrRegionNotFound = errors.New("region of interest not found")

// DetectorOutput is the raw result of one inference call. Boxes are normalized
// [ymin, xmin, ymax, xmax]; only the first Count entries are meaningful.
type DetectorOutput struct {
	Boxes   [][4]float32
	Classes []float32
	Scores  []float32
	Count   int
}

// Len returns the usable detection count, clamped to the shortest array.
func (o DetectorOutput) Len() int {
	n := min(len(o.Boxes), len(o.Classes), len(o.Scores))
	if o.Count >= 0 && o.Count < n {
		n = o.Count
	}
	return n
}

// Filter keeps detections of one class at or above a confidence threshold.
type Filter struct {
	Confidence float64
	Class      int
}

// Apply converts the kept detections to absolute pixel boxes for a width x height image.
func (f Filter) Apply(out DetectorOutput, width, height int) []dto.Detection {
	n := out.Len()
	detections := make([]dto.Detection, 0, n)
	w, h := float64(width), float64(height)
	for i := 0; i < n; i++ {
		score := float64(out.Scores[i])
		if score < f.Confidence || int(math.Round(float64(out.Classes[i]))) != f.Class {
			continue
		}
		b := out.Boxes[i]
		detections = append(detections, dto.Detection{
			Box: image.Rect(
				int(float64(b[1])*w), int(float64(b[0])*h),
				int(float64(b[3])*w), int(float64(b[2])*h),
			),
			ClassID: f.Class,
			Score:   score,
		})
	}
	return detections
}

// OffsetDetections shifts boxes computed on a crop back into full-frame coordinates.
func OffsetDetections(detections []dto.Detection, dx, dy int) []dto.Detection {
	if dx == 0 && dy == 0 {
		return detections
	}
	shift := image.Pt(dx, dy)
	out := make([]dto.Detection, len(detections))
	for i, d := range detections {
		d.Box = d.Box.Add(shift)
		out[i] = d
	}
	return out
}
