package ai

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"aerialcapture/internal/dto"
)

// Annotator draws merged boxes and a label on a copy of a frame.
type Annotator struct {
	Label string
	Color color.RGBA
}

// NewAnnotator returns an annotator drawing green boxes.
func NewAnnotator(label string) *Annotator {
	return &Annotator{Label: label, Color: color.RGBA{R: 0, G: 255, B: 0, A: 0}}
}

// Annotate returns a new frame; the input is left untouched.
func (a *Annotator) Annotate(frame dto.Frame, boxes []image.Rectangle) (dto.Frame, error) {
	src, err := matOf(frame)
	if err != nil {
		return nil, err
	}
	mat := src.Clone()

	for _, box := range boxes {
		if err := gocv.Rectangle(&mat, box, a.Color, 3); err != nil {
			mat.Close()
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		origin := image.Pt(box.Min.X, max(0, box.Min.Y-10))
		if err := gocv.PutText(&mat, a.Label, origin, gocv.FontHersheySimplex, 0.8, a.Color, 2); err != nil {
			mat.Close()
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	return NewMatFrame(mat), nil
}
