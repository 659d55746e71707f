package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"aerialcapture/internal/model"
)

const captureColumns = `id, filename, image_path, sidecar_path, captured_at, lat, lon, alt,
	gps_observed_at, filesize, upload_status, upload_error, uploaded_at, attempts`

// CaptureRepository implements repository.CaptureRepository for SQLite.
type CaptureRepository struct {
	db *DB
}

// NewCaptureRepository creates a new SQLite capture repository.
func NewCaptureRepository(db *DB) *CaptureRepository {
	return &CaptureRepository{db: db}
}

// Insert adds a capture and its boxes in a single transaction.
func (r *CaptureRepository) Insert(c *model.Capture) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	status := c.UploadStatus
	if status == "" {
		status = model.UploadPending
	}

	_, err = tx.Exec(`
		INSERT INTO captures (id, filename, image_path, sidecar_path, captured_at, lat, lon, alt, gps_observed_at, filesize, upload_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Filename, c.ImagePath, c.SidecarPath, c.CapturedAt.UTC(),
		nullFloat(c.Lat), nullFloat(c.Lon), nullFloat(c.Alt), nullTime(c.GPSObservedAt),
		c.FileSize, status)
	if err != nil {
		return fmt.Errorf("failed to insert capture: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO boxes (capture_id, x1, y1, x2, y2) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range c.Boxes {
		if _, err := stmt.Exec(c.ID, b.X1, b.Y1, b.X2, b.Y2); err != nil {
			return fmt.Errorf("failed to insert box: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit capture: %w", err)
	}
	c.UploadStatus = status
	return nil
}

// GetByID retrieves a capture by its ID. It returns nil when no row matches.
func (r *CaptureRepository) GetByID(id string) (*model.Capture, error) {
	return r.getOne(`SELECT `+captureColumns+` FROM captures WHERE id = ?`, id)
}

// GetByFilename retrieves a capture by its image file name. It returns nil when no row matches.
func (r *CaptureRepository) GetByFilename(filename string) (*model.Capture, error) {
	return r.getOne(`SELECT `+captureColumns+` FROM captures WHERE filename = ?`, filename)
}

func (r *CaptureRepository) getOne(query string, arg string) (*model.Capture, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	c, err := scanCapture(r.db.Conn().QueryRow(query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capture: %w", err)
	}

	boxes, err := r.boxes(c.ID)
	if err != nil {
		return nil, err
	}
	c.Boxes = boxes
	return c, nil
}

// ListRecent returns the newest captures first.
func (r *CaptureRepository) ListRecent(limit int) ([]model.Capture, error) {
	return r.list(`SELECT `+captureColumns+` FROM captures ORDER BY captured_at DESC LIMIT ?`, limit)
}

// ListPendingUploads returns captures never uploaded or whose upload failed, oldest first.
func (r *CaptureRepository) ListPendingUploads(limit int) ([]model.Capture, error) {
	return r.list(`SELECT `+captureColumns+` FROM captures
		WHERE upload_status IN ('`+model.UploadPending+`', '`+model.UploadFailed+`')
		ORDER BY captured_at ASC LIMIT ?`, limit)
}

// CountByStatus returns the number of captures per upload status.
func (r *CaptureRepository) CountByStatus() (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT upload_status, COUNT(*) FROM captures GROUP BY upload_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count captures: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{
		model.UploadPending: 0,
		model.UploadDone:    0,
		model.UploadFailed:  0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// MarkUploaded records a successful delivery.
func (r *CaptureRepository) MarkUploaded(id string, at time.Time) error {
	return r.update(id, `
		UPDATE captures SET upload_status = ?, upload_error = '', uploaded_at = ?, attempts = attempts + 1
		WHERE id = ?
	`, model.UploadDone, at.UTC(), id)
}

// MarkFailed records a failed delivery; the row stays eligible for replay.
func (r *CaptureRepository) MarkFailed(id string, reason string) error {
	return r.update(id, `
		UPDATE captures SET upload_status = ?, upload_error = ?, attempts = attempts + 1
		WHERE id = ?
	`, model.UploadFailed, reason, id)
}

func (r *CaptureRepository) update(id, query string, args ...interface{}) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update capture %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update capture %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("capture %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

func (r *CaptureRepository) list(query string, limit int) ([]model.Capture, error) {
	if limit <= 0 {
		limit = -1
	}

	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}

	var captures []model.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		captures = append(captures, *c)
	}
	err = rows.Err()
	// The single connection must be released before the box queries below.
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}

	for i := range captures {
		boxes, err := r.boxes(captures[i].ID)
		if err != nil {
			return nil, err
		}
		captures[i].Boxes = boxes
	}
	return captures, nil
}

func (r *CaptureRepository) boxes(captureID string) ([]model.Box, error) {
	rows, err := r.db.Conn().Query(`SELECT x1, y1, x2, y2 FROM boxes WHERE capture_id = ? ORDER BY id`, captureID)
	if err != nil {
		return nil, fmt.Errorf("failed to query boxes: %w", err)
	}
	defer rows.Close()

	boxes := []model.Box{}
	for rows.Next() {
		var b model.Box
		if err := rows.Scan(&b.X1, &b.Y1, &b.X2, &b.Y2); err != nil {
			return nil, fmt.Errorf("failed to scan box: %w", err)
		}
		boxes = append(boxes, b)
	}
	return boxes, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCapture(s scanner) (*model.Capture, error) {
	var c model.Capture
	var lat, lon, alt sql.NullFloat64
	var observed, uploaded sql.NullTime

	err := s.Scan(&c.ID, &c.Filename, &c.ImagePath, &c.SidecarPath, &c.CapturedAt,
		&lat, &lon, &alt, &observed, &c.FileSize,
		&c.UploadStatus, &c.UploadError, &uploaded, &c.Attempts)
	if err != nil {
		return nil, err
	}

	if lat.Valid {
		c.Lat = &lat.Float64
	}
	if lon.Valid {
		c.Lon = &lon.Float64
	}
	if alt.Valid {
		c.Alt = &alt.Float64
	}
	if observed.Valid {
		c.GPSObservedAt = &observed.Time
	}
	if uploaded.Valid {
		c.UploadedAt = &uploaded.Time
	}
	return &c, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}
