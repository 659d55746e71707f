package dto

import "image"

// Detection is a single detector hit in absolute pixel coordinates.
type Detection struct {
	Box     image.Rectangle
	ClassID int
	Score   float64
}
