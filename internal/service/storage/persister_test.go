package storage

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"aerialcapture/internal/config"
	"aerialcapture/internal/dto"
	"aerialcapture/internal/logger"
	"aerialcapture/internal/model"
	"aerialcapture/internal/repository/sqlite"
	"aerialcapture/internal/service/queue"
)

type fakeFrame struct {
	data   []byte
	err    error
	mu     sync.Mutex
	closed bool
}

func (f *fakeFrame) Size() (int, int) { return 640, 480 }
func (f *fakeFrame) Clone() dto.Frame { return &fakeFrame{data: f.data, err: f.err} }
func (f *fakeFrame) Encode(int) ([]byte, error) { return f.data, f.err }
func (f *fakeFrame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFrame) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// recordingUploads checks that every forwarded job already exists on disk.
type recordingUploads struct {
	t    *testing.T
	mu   sync.Mutex
	jobs []dto.UploadJob
}

func (r *recordingUploads) Put(_ context.Context, job dto.UploadJob) error {
	if _, err := os.Stat(job.ImagePath); err != nil {
		r.t.Errorf("upload job forwarded before image existed: %v", err)
	}
	if _, err := os.Stat(job.SidecarPath); err != nil {
		r.t.Errorf("upload job forwarded before sidecar existed: %v", err)
	}
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	return nil
}

func (r *recordingUploads) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func newRecord(id string, ts time.Time, frame dto.Frame) *dto.CaptureRecord {
	return &dto.CaptureRecord{
		ID:        id,
		Timestamp: ts,
		Frame:     frame,
		Boxes:     []image.Rectangle{image.Rect(1, 2, 30, 40)},
	}
}

func TestPersist_WritesFilesCatalogAndForwards(t *testing.T) {
	dir := t.TempDir()
	db, err := sqlite.New(filepath.Join(dir, "captures.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	repo := sqlite.NewCaptureRepository(db)

	q := queue.New[*dto.CaptureRecord](4, queue.Block, nil)
	uploads := &recordingUploads{t: t}
	s := NewPersistService(&config.Config{SaveDir: dir, JPEGQuality: 100}, q, uploads, repo, logger.Discard())

	frame := &fakeFrame{data: []byte("jpeg-bytes")}
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	record := newRecord("cap-1", ts, frame)
	record.GPS = dto.GPSFix{Lat: 1, Lon: 2, Alt: 3, ObservedAt: ts, Valid: true}

	s.Start(context.Background())
	if err := q.Put(context.Background(), record); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	q.Close()
	s.Wait()

	imagePath, sidecarPath := Paths(dir, ts)
	data, err := os.ReadFile(imagePath)
	if err != nil || string(data) != "jpeg-bytes" {
		t.Errorf("image = %q, %v", data, err)
	}
	if _, fix, err := ReadSidecarFile(sidecarPath); err != nil || !fix.Valid || fix.Lat != 1 {
		t.Errorf("sidecar fix = %+v, %v", fix, err)
	}
	if !frame.isClosed() {
		t.Error("frame should be closed after persisting")
	}
	if uploads.count() != 1 || uploads.jobs[0].CaptureID != "cap-1" || uploads.jobs[0].ImagePath != imagePath {
		t.Errorf("forwarded jobs = %+v", uploads.jobs)
	}

	row, err := repo.GetByID("cap-1")
	if err != nil || row == nil {
		t.Fatalf("catalog row = %v, %v", row, err)
	}
	if row.UploadStatus != model.UploadPending || row.FileSize != int64(len("jpeg-bytes")) || len(row.Boxes) != 1 {
		t.Errorf("catalog row = %+v", row)
	}
}

func TestPersist_DrainsAllJobsOnClose(t *testing.T) {
	dir := t.TempDir()
	q := queue.New[*dto.CaptureRecord](16, queue.Block, nil)
	uploads := &recordingUploads{t: t}
	s := NewPersistService(&config.Config{SaveDir: dir, JPEGQuality: 100}, q, uploads, nil, logger.Discard())

	const n = 10
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * 500 * time.Millisecond)
		if err := q.Put(context.Background(), newRecord("r", ts, &fakeFrame{data: []byte{byte(i)}})); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}
	q.Close()

	s.Start(context.Background())
	s.Wait()

	if s.Saved() != n || uploads.count() != n {
		t.Errorf("saved %d, forwarded %d, expected %d each", s.Saved(), uploads.count(), n)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if len(files) != n {
		t.Errorf("found %d images, expected %d", len(files), n)
	}
}

func TestPersist_FailureIsCountedAndNotForwarded(t *testing.T) {
	dir := t.TempDir()
	q := queue.New[*dto.CaptureRecord](4, queue.Block, nil)
	uploads := &recordingUploads{t: t}
	s := NewPersistService(&config.Config{SaveDir: dir, JPEGQuality: 100}, q, uploads, nil, logger.Discard())

	bad := &fakeFrame{err: errors.New("encoder exploded")}
	good := &fakeFrame{data: []byte("ok")}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	q.Put(context.Background(), newRecord("bad", base, bad))
	q.Put(context.Background(), newRecord("good", base.Add(time.Second), good))
	q.Close()

	s.Start(context.Background())
	s.Wait()

	if s.Failed() != 1 || s.Saved() != 1 {
		t.Errorf("failed %d, saved %d, expected 1 each", s.Failed(), s.Saved())
	}
	if uploads.count() != 1 || uploads.jobs[0].CaptureID != "good" {
		t.Errorf("forwarded jobs = %+v, expected only the good record", uploads.jobs)
	}
	if !bad.isClosed() {
		t.Error("frame of a failed record should still be released")
	}
}

func TestCatalogRowAndJobFromRow(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	record := newRecord("x", ts, nil)
	record.ImagePath, record.SidecarPath = "/d/x.jpg", "/d/x.txt"
	record.GPS = dto.GPSFix{Lat: 10, Lon: 20, Alt: 30, ObservedAt: ts, Valid: true}

	row := CatalogRow(record, 99)
	job := JobFromRow(row)

	if job != record.UploadJob() {
		t.Errorf("JobFromRow = %+v, expected %+v", job, record.UploadJob())
	}

	record.GPS = dto.GPSFix{}
	row = CatalogRow(record, 99)
	if row.Lat != nil || JobFromRow(row).GPS.Valid {
		t.Errorf("unknown fix should produce null coordinates, got %+v", row)
	}
}

func TestPersist_SidecarFailureRemovesImage(t *testing.T) {
	dir := t.TempDir()
	uploads := &recordingUploads{t: t}
	s := NewPersistService(&config.Config{SaveDir: dir, JPEGQuality: 100}, nil, uploads, nil, logger.Discard())

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	record := newRecord("cap-orphan", ts, &fakeFrame{data: []byte("jpeg-bytes")})
	record.ImagePath, _ = Paths(dir, ts)
	record.SidecarPath = filepath.Join(dir, "missing", "sidecar.txt")

	if _, err := s.Persist(context.Background(), record); err == nil {
		t.Fatal("expected the sidecar write to fail")
	}

	if _, err := os.Stat(record.ImagePath); !os.IsNotExist(err) {
		t.Errorf("image should be removed when its sidecar cannot be written, stat = %v", err)
	}
	if uploads.count() != 0 {
		t.Errorf("forwarded %d jobs, expected none", uploads.count())
	}
}
