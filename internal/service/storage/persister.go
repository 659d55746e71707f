package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"aerialcapture/internal/config"
	"aerialcapture/internal/dto"
	"aerialcapture/internal/logger"
	"aerialcapture/internal/model"
	"aerialcapture/internal/repository"
)

// UploadQueue receives jobs whose files are already on disk.
type UploadQueue interface {
	Put(ctx context.Context, job dto.UploadJob) error
}

// Records is the persistence queue as seen by its consumer.
type Records interface {
	Items() <-chan *dto.CaptureRecord
}

// PersistService writes capture records to disk and the catalog, then hands the
// upload job on. It is the only consumer of its queue.
type PersistService struct {
	saveDir string
	quality int
	records Records
	uploads UploadQueue
	repo    repository.CaptureRepository
	logger  *logger.Logger

	saved  atomic.Int64
	failed atomic.Int64
	wg     sync.WaitGroup
}

// NewPersistService creates the worker. uploads and repo may be nil.
func NewPersistService(cfg *config.Config, records Records, uploads UploadQueue, repo repository.CaptureRepository, logger *logger.Logger) *PersistService {
	return &PersistService{
		saveDir: cfg.SaveDir,
		quality: cfg.JPEGQuality,
		records: records,
		uploads: uploads,
		repo:    repo,
		logger:  logger,
	}
}

// Start launches the consumer loop. It exits once the queue is closed and drained.
func (s *PersistService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("Persistence worker started, saving to %s", s.saveDir)
		for record := range s.records.Items() {
			s.handle(ctx, record)
		}
		s.logger.Info("Persistence worker stopped: %d saved, %d failed", s.saved.Load(), s.failed.Load())
	}()
}

// Wait blocks until the consumer loop has exited.
func (s *PersistService) Wait() {
	s.wg.Wait()
}

// Saved returns how many records were written.
func (s *PersistService) Saved() int64 { return s.saved.Load() }

// Failed returns how many records could not be written.
func (s *PersistService) Failed() int64 { return s.failed.Load() }

// handle makes a single attempt; failures are logged and the record is consumed.
func (s *PersistService) handle(ctx context.Context, record *dto.CaptureRecord) {
	job, err := s.Persist(ctx, record)
	if err != nil {
		s.failed.Add(1)
		s.logger.Error("Error saving capture %s: %v", record.ID, err)
		return
	}
	s.saved.Add(1)

	if s.uploads == nil {
		return
	}
	if err := s.uploads.Put(ctx, job); err != nil {
		s.logger.Error("Error queueing upload of %s: %v", filepath.Base(job.ImagePath), err)
	}
}

// Persist writes the image, the sidecar and the catalog row of one record and
// returns the upload job referencing the written files. It releases the frame.
func (s *PersistService) Persist(ctx context.Context, record *dto.CaptureRecord) (dto.UploadJob, error) {
	if record.Frame != nil {
		defer record.Frame.Close()
	}
	if err := ctx.Err(); err != nil {
		return dto.UploadJob{}, err
	}
	if record.ImagePath == "" || record.SidecarPath == "" {
		record.ImagePath, record.SidecarPath = Paths(s.saveDir, record.Timestamp)
	}
	if record.Frame == nil {
		return dto.UploadJob{}, fmt.Errorf("record has no frame")
	}

	data, err := record.Frame.Encode(s.quality)
	if err != nil {
		return dto.UploadJob{}, err
	}

	if err := os.MkdirAll(filepath.Dir(record.ImagePath), 0755); err != nil {
		return dto.UploadJob{}, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := writeFileAtomic(record.ImagePath, data); err != nil {
		return dto.UploadJob{}, fmt.Errorf("failed to write image: %w", err)
	}
	if err := writeFileAtomic(record.SidecarPath, []byte(FormatSidecar(record.Timestamp, record.GPS))); err != nil {
		// An image without its sidecar would be imported later with unknown GPS.
		if rmErr := os.Remove(record.ImagePath); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Error("Error removing %s: %v", filepath.Base(record.ImagePath), rmErr)
		}
		return dto.UploadJob{}, fmt.Errorf("failed to write sidecar: %w", err)
	}
	s.logger.Info("%s and location saved", filepath.Base(record.ImagePath))

	if s.repo != nil {
		// The files are already durable, so a catalog failure does not stop the upload.
		if err := s.repo.Insert(CatalogRow(record, int64(len(data)))); err != nil {
			s.logger.Error("Error saving capture to database %s: %v", filepath.Base(record.ImagePath), err)
		}
	}

	return record.UploadJob(), nil
}

// CatalogRow converts a written record into its catalog row.
func CatalogRow(record *dto.CaptureRecord, fileSize int64) *model.Capture {
	row := &model.Capture{
		ID:           record.ID,
		Filename:     filepath.Base(record.ImagePath),
		ImagePath:    record.ImagePath,
		SidecarPath:  record.SidecarPath,
		CapturedAt:   record.Timestamp,
		FileSize:     fileSize,
		UploadStatus: model.UploadPending,
		Boxes:        make([]model.Box, 0, len(record.Boxes)),
	}
	if record.GPS.Valid {
		fix := record.GPS
		observed := fix.ObservedAt
		row.Lat, row.Lon, row.Alt = &fix.Lat, &fix.Lon, &fix.Alt
		row.GPSObservedAt = &observed
	}
	for _, b := range record.Boxes {
		row.Boxes = append(row.Boxes, model.Box{X1: b.Min.X, Y1: b.Min.Y, X2: b.Max.X, Y2: b.Max.Y})
	}
	return row
}

// JobFromRow rebuilds the upload job of a catalog row.
func JobFromRow(row *model.Capture) dto.UploadJob {
	job := dto.UploadJob{
		CaptureID:   row.ID,
		ImagePath:   row.ImagePath,
		SidecarPath: row.SidecarPath,
		CapturedAt:  row.CapturedAt,
	}
	if row.Lat != nil && row.Lon != nil {
		job.GPS = dto.GPSFix{Lat: *row.Lat, Lon: *row.Lon, Valid: true}
		if row.Alt != nil {
			job.GPS.Alt = *row.Alt
		}
		if row.GPSObservedAt != nil {
			job.GPS.ObservedAt = *row.GPSObservedAt
		}
	}
	return job
}
