package model

import "time"

// Upload states of a catalog row.
const (
	UploadPending = "pending"
	UploadDone    = "uploaded"
	UploadFailed  = "failed"
)

// Capture represents one persisted capture.
type Capture struct {
	ID            string     `json:"id"`
	Filename      string     `json:"filename"`
	ImagePath     string     `json:"image_path"`
	SidecarPath   string     `json:"sidecar_path"`
	CapturedAt    time.Time  `json:"captured_at"`
	Lat           *float64   `json:"lat"`
	Lon           *float64   `json:"lon"`
	Alt           *float64   `json:"alt"`
	GPSObservedAt *time.Time `json:"gps_observed_at"`
	FileSize      int64      `json:"filesize"`
	UploadStatus  string     `json:"upload_status"`
	UploadError   string     `json:"upload_error,omitempty"`
	UploadedAt    *time.Time `json:"uploaded_at"`
	Attempts      int        `json:"attempts"`
	Boxes         []Box      `json:"boxes"`
}

// Box is one merged detection box of a capture, in frame pixels.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}
