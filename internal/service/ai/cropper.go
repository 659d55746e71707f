package ai

import (
	"image"

	"gocv.io/x/gocv"

	"aerialcapture/internal/dto"
	"aerialcapture/internal/service/vision"
)

// GreenBoxCropper isolates the inside of a bright green rectangle drawn on the frame.
type GreenBoxCropper struct {
	Pad int
}

// NewGreenBoxCropper returns a cropper that trims pad pixels inside the detected border.
func NewGreenBoxCropper(pad int) *GreenBoxCropper {
	return &GreenBoxCropper{Pad: pad}
}

// Crop returns the crop origin and an owned copy of the region.
func (c *GreenBoxCropper) Crop(frame dto.Frame) (image.Point, dto.Frame, error) {
	src, err := matOf(frame)
	if err != nil {
		return image.Point{}, nil, err
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	if err := gocv.CvtColor(src, &hsv, gocv.ColorBGRToHSV); err != nil {
		return image.Point{}, nil, err
	}

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, gocv.NewScalar(35, 60, 60, 0), gocv.NewScalar(85, 255, 255, 0), &mask)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	for i := 0; i < 2; i++ {
		gocv.Dilate(mask, &mask, kernel)
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	candidates := make([]image.Rectangle, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		candidates = append(candidates, gocv.BoundingRect(contours.At(i)))
	}

	region, ok := vision.SelectRegion(candidates, src.Cols(), src.Rows(), c.Pad)
	if !ok {
		return image.Point{}, nil, vision.ErrRegionNotFound
	}

	view := src.Region(region)
	defer view.Close()
	return region.Min, NewMatFrame(view.Clone()), nil
}
