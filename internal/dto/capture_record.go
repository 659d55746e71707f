package dto

import (
	"image"
	"time"
)

// CaptureRecord is one processed frame on its way to disk. The queue that receives it owns Frame.
type CaptureRecord struct {
	ID          string
	Timestamp   time.Time
	Frame       Frame // annotated private copy
	Boxes       []image.Rectangle
	GPS         GPSFix
	ImagePath   string
	SidecarPath string
}

// UploadJob derives the upload reference for this record.
func (r *CaptureRecord) UploadJob() UploadJob {
	return UploadJob{
		CaptureID:   r.ID,
		ImagePath:   r.ImagePath,
		SidecarPath: r.SidecarPath,
		CapturedAt:  r.Timestamp,
		GPS:         r.GPS,
	}
}
