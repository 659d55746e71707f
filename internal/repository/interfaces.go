package repository

import (
	"time"

	"aerialcapture/internal/model"
)

// CaptureRepository defines the interface for the capture catalog.
type CaptureRepository interface {
	// Create operations
	Insert(c *model.Capture) error

	// Read operations
	GetByID(id string) (*model.Capture, error)
	GetByFilename(filename string) (*model.Capture, error)
	ListRecent(limit int) ([]model.Capture, error)
	ListPendingUploads(limit int) ([]model.Capture, error)
	CountByStatus() (map[string]int, error)

	// Update operations
	MarkUploaded(id string, at time.Time) error
	MarkFailed(id string, reason string) error
}
