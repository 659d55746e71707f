package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"aerialcapture/internal/dto"
	"aerialcapture/internal/model"
)

// ScanDir builds catalog rows for capture images already in dir. Images whose
// name is not a capture timestamp are reported in skipped. A missing or
// unreadable sidecar yields a row with unknown GPS.
func ScanDir(dir string) (rows []*model.Capture, skipped []string, err error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".jpg" {
			continue
		}

		capturedAt, err := ParseCaptureFilename(file.Name())
		if err != nil {
			skipped = append(skipped, file.Name())
			continue
		}

		info, err := file.Info()
		if err != nil {
			skipped = append(skipped, file.Name())
			continue
		}

		imagePath, sidecarPath := Paths(dir, capturedAt)
		var fix dto.GPSFix
		if _, parsed, err := ReadSidecarFile(sidecarPath); err == nil {
			fix = parsed
		}

		rows = append(rows, CatalogRow(&dto.CaptureRecord{
			ID:          uuid.NewString(),
			Timestamp:   capturedAt,
			GPS:         fix,
			ImagePath:   imagePath,
			SidecarPath: sidecarPath,
		}, info.Size()))
	}
	return rows, skipped, nil
}
