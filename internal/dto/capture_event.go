package dto

import (
	"path/filepath"
	"time"
)

// CaptureEvent is the live-feed message sent to viewers for each emitted capture.
type CaptureEvent struct {
	ID         string    `json:"id"`
	CapturedAt time.Time `json:"captured_at"`
	Image      string    `json:"image"`
	Boxes      [][4]int  `json:"boxes"`
	GPS        GPSFix    `json:"gps"`
}

// NewCaptureEvent summarizes a record without its pixels.
func NewCaptureEvent(r *CaptureRecord) CaptureEvent {
	boxes := make([][4]int, 0, len(r.Boxes))
	for _, b := range r.Boxes {
		boxes = append(boxes, [4]int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y})
	}
	return CaptureEvent{
		ID:         r.ID,
		CapturedAt: r.Timestamp,
		Image:      filepath.Base(r.ImagePath),
		Boxes:      boxes,
		GPS:        r.GPS,
	}
}
