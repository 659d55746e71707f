package dto

import "time"

// UploadJob points at files the persistence worker has already written.
type UploadJob struct {
	CaptureID   string
	ImagePath   string
	SidecarPath string
	CapturedAt  time.Time
	GPS         GPSFix
}
