package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"aerialcapture/internal/config"
	"aerialcapture/internal/dto"
	"aerialcapture/internal/logger"
	"aerialcapture/internal/service/queue"
	"aerialcapture/internal/service/storage"
	"aerialcapture/internal/service/vision"
)

// Camera is the frame source. Read returns a frame the caller owns.
type Camera interface {
	Read() (dto.Frame, error)
}

// Detector runs one inference on a frame.
type Detector interface {
	Infer(frame dto.Frame) (vision.DetectorOutput, error)
}

// Annotator draws boxes on a new copy of a frame.
type Annotator interface {
	Annotate(frame dto.Frame, boxes []image.Rectangle) (dto.Frame, error)
}

// PositionSource returns the current GPS fix without blocking.
type PositionSource interface {
	Snapshot() dto.GPSFix
}

// RecordQueue accepts capture records for persistence and takes ownership of them.
type RecordQueue interface {
	Put(ctx context.Context, record *dto.CaptureRecord) error
}

// Notifier is told about every emitted capture.
type Notifier interface {
	Notify(event dto.CaptureEvent)
}

// Components are the collaborators of the Manager. Cropper, GPS and Notifier are optional.
type Components struct {
	Camera    Camera
	Detector  Detector
	Annotator Annotator
	Cropper   vision.Cropper
	GPS       PositionSource
	Records   RecordQueue
	Notifier  Notifier
}

const (
	// maxReadRetry caps the wait between reads of a failing camera.
	maxReadRetry = 5 * time.Second
	// readFailureSummary is how many consecutive failed reads pass between repeated warnings.
	readFailureSummary = 100
)

// Manager drives the capture loop: read, rate gate, infer, filter, deduplicate,
// annotate and emit.
type Manager struct {
	components Components
	filter     vision.Filter
	dedup      *vision.Deduplicator
	limiter    *rate.Limiter
	readRetry  *backoff.ExponentialBackOff
	clock      clock.Clock
	saveDir    string
	logger     *logger.Logger

	frames     atomic.Int64
	gated      atomic.Int64
	inferred   atomic.Int64
	emitted    atomic.Int64
	skipped    atomic.Int64
	readErrors atomic.Int64
	failures   atomic.Int64

	// consecutive failed reads, owned by the Run goroutine
	readFailures int
}

func NewManager(cfg *config.Config, components Components, clk clock.Clock, logger *logger.Logger) *Manager {
	if clk == nil {
		clk = clock.New()
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = cfg.FrameInterval
	retry.MaxInterval = maxReadRetry
	retry.RandomizationFactor = 0
	retry.MaxElapsedTime = 0
	retry.Clock = clk
	retry.Reset()

	return &Manager{
		components: components,
		filter:     vision.Filter{Confidence: cfg.ConfThreshold, Class: cfg.TargetClass},
		dedup:      vision.NewDeduplicator(cfg.MergeIoU, cfg.AreaInsideRatio),
		limiter:    rate.NewLimiter(rate.Every(cfg.FrameInterval), 1),
		readRetry:  retry,
		clock:      clk,
		saveDir:    cfg.SaveDir,
		logger:     logger,
	}
}

// Run loops until ctx is cancelled. A failed frame read waits on the clock,
// longer for every consecutive failure, before the camera is read again; a
// persistence queue that has been closed ends the loop with an error.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("Capture loop started, processing at most one frame every %s", m.limiterInterval())
	defer m.logger.Info("Capture loop stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := m.components.Camera.Read()
		if err != nil {
			m.readFailed(err)
			if !m.waitRead(ctx) {
				return nil
			}
			continue
		}
		m.readRecovered()
		m.frames.Add(1)

		// Frames arriving faster than the interval are dropped, never buffered.
		if !m.limiter.AllowN(m.clock.Now(), 1) {
			m.gated.Add(1)
			frame.Close()
			continue
		}

		if _, err := m.ProcessFrame(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.failures.Add(1)
			if isFatal(err) {
				return err
			}
			m.logger.Error("Frame processing failed: %v", err)
		}
	}
}

// readFailed counts a failed read. Only the first failure of a streak and every
// readFailureSummary-th one after it are logged.
func (m *Manager) readFailed(err error) {
	m.readErrors.Add(1)
	m.readFailures++
	switch {
	case m.readFailures == 1:
		m.logger.Warning("Frame read failed: %v", err)
	case m.readFailures%readFailureSummary == 0:
		m.logger.Warning("Camera still failing after %d consecutive reads: %v", m.readFailures, err)
	}
}

// waitRead blocks for the next read retry interval. It reports false when ctx ended first.
func (m *Manager) waitRead(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-m.clock.After(m.readRetry.NextBackOff()):
		return true
	}
}

func (m *Manager) readRecovered() {
	if m.readFailures == 0 {
		return
	}
	m.logger.Info("Camera recovered after %d failed reads", m.readFailures)
	m.readFailures = 0
	m.readRetry.Reset()
}

// ProcessFrame runs one gated frame through the pipeline and releases it. It
// returns the emitted record, or nil when the frame was skipped.
func (m *Manager) ProcessFrame(ctx context.Context, frame dto.Frame) (*dto.CaptureRecord, error) {
	defer frame.Close()
	m.inferred.Add(1)

	input, offset, ok := m.crop(frame)
	if !ok {
		m.skipped.Add(1)
		return nil, nil
	}
	if input != frame {
		defer input.Close()
	}

	out, err := m.components.Detector.Infer(input)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	width, height := input.Size()
	detections := vision.OffsetDetections(m.filter.Apply(out, width, height), offset.X, offset.Y)
	if len(detections) == 0 {
		m.skipped.Add(1)
		m.logger.Debug("Skipped frame, no target detections")
		return nil, nil
	}

	boxes := m.dedup.Deduplicate(detections)
	if len(boxes) == 0 {
		m.skipped.Add(1)
		m.logger.Info("Skipped frame, only overlapping duplicates found")
		return nil, nil
	}

	annotated, err := m.annotate(frame, boxes)
	if err != nil {
		return nil, err
	}

	record := m.newRecord(annotated, boxes)
	event := dto.NewCaptureEvent(record)
	if err := m.components.Records.Put(ctx, record); err != nil {
		annotated.Close()
		return nil, fmt.Errorf("failed to queue capture: %w", err)
	}

	m.emitted.Add(1)
	m.logger.Info("Captured %s with %d box(es)", event.Image, len(boxes))
	if m.components.Notifier != nil {
		m.components.Notifier.Notify(event)
	}
	return record, nil
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() dto.CaptureStats {
	return dto.CaptureStats{
		Frames:     m.frames.Load(),
		Gated:      m.gated.Load(),
		Inferred:   m.inferred.Load(),
		Emitted:    m.emitted.Load(),
		Skipped:    m.skipped.Load(),
		ReadErrors: m.readErrors.Load(),
		Failures:   m.failures.Load(),
	}
}

// crop returns the detector input and the offset of its origin in the frame.
func (m *Manager) crop(frame dto.Frame) (dto.Frame, image.Point, bool) {
	if m.components.Cropper == nil {
		return frame, image.Point{}, true
	}

	offset, cropped, err := m.components.Cropper.Crop(frame)
	switch {
	case errors.Is(err, vision.ErrRegionNotFound):
		m.logger.Info("Skipped frame, no region of interest found")
		return nil, image.Point{}, false
	case err != nil:
		m.logger.Warning("Region of interest crop failed: %v", err)
		return nil, image.Point{}, false
	}
	return cropped, offset, true
}

// annotate falls back to an unmarked copy when drawing fails; annotation never
// changes the detection data.
func (m *Manager) annotate(frame dto.Frame, boxes []image.Rectangle) (dto.Frame, error) {
	if m.components.Annotator != nil {
		annotated, err := m.components.Annotator.Annotate(frame, boxes)
		if err == nil {
			return annotated, nil
		}
		m.logger.Warning("Failed to draw boxes: %v", err)
	}

	clone := frame.Clone()
	if clone == nil {
		return nil, errors.New("failed to copy frame")
	}
	return clone, nil
}

func (m *Manager) newRecord(frame dto.Frame, boxes []image.Rectangle) *dto.CaptureRecord {
	ts := m.clock.Now()
	imagePath, sidecarPath := storage.Paths(m.saveDir, ts)

	var fix dto.GPSFix
	if m.components.GPS != nil {
		fix = m.components.GPS.Snapshot()
	}

	return &dto.CaptureRecord{
		ID:          uuid.NewString(),
		Timestamp:   ts,
		Frame:       frame,
		Boxes:       boxes,
		GPS:         fix,
		ImagePath:   imagePath,
		SidecarPath: sidecarPath,
	}
}

func (m *Manager) limiterInterval() string {
	limit := m.limiter.Limit()
	if limit <= 0 {
		return "never"
	}
	return fmt.Sprintf("%.3fs", 1/float64(limit))
}

// isFatal reports errors after which no further frame can be emitted.
func isFatal(err error) bool {
	return errors.Is(err, queue.ErrClosed)
}
