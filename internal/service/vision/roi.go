package vision

import (
	"image"

	"aerialcapture/internal/dto"
)

// minRegionFraction is the smallest side, relative to the frame, a candidate region may have.
const minRegionFraction = 0.05

// Cropper isolates a region of interest before detection. The returned offset is the
// crop origin in frame coordinates; ErrRegionNotFound means no region was isolated.
type Cropper interface {
	Crop(frame dto.Frame) (image.Point, dto.Frame, error)
}

// SelectRegion picks the largest candidate whose sides are both at least 5% of the frame
// and shrinks it by pad pixels on every side, clipped to the frame.
func SelectRegion(candidates []image.Rectangle, width, height, pad int) (image.Rectangle, bool) {
	var best image.Rectangle
	bestArea := 0
	for _, c := range candidates {
		if float64(c.Dx()) < float64(width)*minRegionFraction || float64(c.Dy()) < float64(height)*minRegionFraction {
			continue
		}
		if a := c.Dx() * c.Dy(); a > bestArea {
			best, bestArea = c, a
		}
	}
	if bestArea == 0 {
		return image.Rectangle{}, false
	}

	inner := image.Rect(best.Min.X+pad, best.Min.Y+pad, best.Max.X-pad, best.Max.Y-pad)
	if inner.Min.X >= inner.Max.X || inner.Min.Y >= inner.Max.Y {
		return image.Rectangle{}, false
	}
	inner = inner.Intersect(image.Rect(0, 0, width, height))
	if inner.Empty() {
		return image.Rectangle{}, false
	}
	return inner, true
}
