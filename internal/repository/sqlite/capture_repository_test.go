package sqlite

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"aerialcapture/internal/model"
)

func newTestRepo(t *testing.T) *CaptureRepository {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "catalog", "captures.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewCaptureRepository(db)
}

func capture(id string, at time.Time) *model.Capture {
	return &model.Capture{
		ID:          id,
		Filename:    id + ".jpg",
		ImagePath:   "/data/" + id + ".jpg",
		SidecarPath: "/data/" + id + ".txt",
		CapturedAt:  at,
		FileSize:    1024,
	}
}

func TestCaptureRepository_InsertAndGet(t *testing.T) {
	repo := newTestRepo(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 500_000_000, time.UTC)
	lat, lon, alt := 51.5, -0.12, 80.25
	observed := at.Add(-time.Second)

	c := capture("a", at)
	c.Lat, c.Lon, c.Alt, c.GPSObservedAt = &lat, &lon, &alt, &observed
	c.Boxes = []model.Box{{X1: 0, Y1: 0, X2: 100, Y2: 100}, {X1: 200, Y1: 200, X2: 300, Y2: 300}}

	if err := repo.Insert(c); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := repo.GetByID("a")
	if err != nil || got == nil {
		t.Fatalf("GetByID = %v, %v", got, err)
	}
	if !got.CapturedAt.Equal(at) {
		t.Errorf("CapturedAt = %v, expected %v", got.CapturedAt, at)
	}
	if got.Lat == nil || *got.Lat != lat || got.Alt == nil || *got.Alt != alt {
		t.Errorf("GPS columns not round-tripped: %+v", got)
	}
	if got.GPSObservedAt == nil || !got.GPSObservedAt.Equal(observed) {
		t.Errorf("GPSObservedAt = %v, expected %v", got.GPSObservedAt, observed)
	}
	if len(got.Boxes) != 2 || got.Boxes[1] != c.Boxes[1] {
		t.Errorf("Boxes = %v, expected %v", got.Boxes, c.Boxes)
	}
	if got.UploadStatus != model.UploadPending {
		t.Errorf("UploadStatus = %q, expected pending", got.UploadStatus)
	}
}

func TestCaptureRepository_UnknownGPSIsNull(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Insert(capture("nogps", time.Now())); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := repo.GetByID("nogps")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Lat != nil || got.Lon != nil || got.Alt != nil || got.GPSObservedAt != nil {
		t.Errorf("expected null GPS columns, got %+v", got)
	}
	if got.Boxes == nil {
		t.Error("Boxes should be empty, not nil")
	}
}

func TestCaptureRepository_GetByIDMissing(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetByID("missing")
	if err != nil || got != nil {
		t.Errorf("GetByID(missing) = %v, %v, expected nil, nil", got, err)
	}
}

func TestCaptureRepository_GetByFilename(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Insert(capture("f1", time.Now())); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := repo.GetByFilename("f1.jpg")
	if err != nil || got == nil || got.ID != "f1" {
		t.Errorf("GetByFilename(f1.jpg) = %v, %v", got, err)
	}

	got, err = repo.GetByFilename("other.jpg")
	if err != nil || got != nil {
		t.Errorf("GetByFilename(other.jpg) = %v, %v, expected nil, nil", got, err)
	}
}

func TestCaptureRepository_ListAndMark(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"c1", "c2", "c3"} {
		if err := repo.Insert(capture(id, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Insert(%s) failed: %v", id, err)
		}
	}

	recent, err := repo.ListRecent(2)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "c3" || recent[1].ID != "c2" {
		t.Errorf("ListRecent = %v, expected c3, c2", ids(recent))
	}

	if err := repo.MarkUploaded("c1", base); err != nil {
		t.Fatalf("MarkUploaded failed: %v", err)
	}
	if err := repo.MarkFailed("c2", "endpoint returned 500"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	pending, err := repo.ListPendingUploads(0)
	if err != nil {
		t.Fatalf("ListPendingUploads failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "c2" || pending[1].ID != "c3" {
		t.Errorf("ListPendingUploads = %v, expected c2, c3", ids(pending))
	}
	if pending[0].UploadError != "endpoint returned 500" || pending[0].Attempts != 1 {
		t.Errorf("failed row = %+v", pending[0])
	}

	counts, err := repo.CountByStatus()
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	expected := map[string]int{model.UploadPending: 1, model.UploadDone: 1, model.UploadFailed: 1}
	for status, n := range expected {
		if counts[status] != n {
			t.Errorf("counts[%s] = %d, expected %d", status, counts[status], n)
		}
	}
}

func TestCaptureRepository_MarkMissing(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.MarkFailed("ghost", "x"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("MarkFailed(ghost) = %v, expected sql.ErrNoRows", err)
	}
}

func TestCaptureRepository_DuplicateInsert(t *testing.T) {
	repo := newTestRepo(t)
	c := capture("dup", time.Now())
	if err := repo.Insert(c); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := repo.Insert(c); err == nil {
		t.Error("second Insert with the same id should fail")
	}
}

func ids(captures []model.Capture) []string {
	out := make([]string, len(captures))
	for i, c := range captures {
		out[i] = c.ID
	}
	return out
}
