package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"

	"aerialcapture/internal/config"
	"aerialcapture/internal/dto"
	"aerialcapture/internal/logger"
	"aerialcapture/internal/repository"
)

var (
	// ErrImageMissing is returned when the referenced image is not on disk.
	ErrImageMissing = errors.New("image file missing")
	// ErrRejected is returned when the endpoint answers with a non-2xx status.
	ErrRejected = errors.New("upload rejected")
)

// Jobs is the upload queue as seen by its consumer.
type Jobs interface {
	Items() <-chan dto.UploadJob
}

// UploadService delivers capture files to the remote endpoint. It is the only
// consumer of its queue.
type UploadService struct {
	url     string
	client  *http.Client
	pacing  time.Duration
	backoff time.Duration
	retries int
	jobs    Jobs
	repo    repository.CaptureRepository
	clock   clock.Clock
	logger  *logger.Logger

	sent   atomic.Int64
	failed atomic.Int64
	wg     sync.WaitGroup
}

// NewUploadService creates the worker. jobs and repo may be nil when only Send is used.
func NewUploadService(cfg *config.Config, jobs Jobs, repo repository.CaptureRepository, clk clock.Clock, logger *logger.Logger) *UploadService {
	if clk == nil {
		clk = clock.New()
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = cfg.UploadTimeout

	return &UploadService{
		url:     cfg.UploadURL,
		client:  client,
		pacing:  cfg.UploadPacing,
		backoff: cfg.UploadBackoff,
		retries: cfg.UploadRetries,
		jobs:    jobs,
		repo:    repo,
		clock:   clk,
		logger:  logger,
	}
}

// Start launches the consumer loop. It exits once the queue is closed and drained;
// an in-flight request runs to its timeout.
func (s *UploadService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("Upload worker started, posting to %s", s.url)
		for job := range s.jobs.Items() {
			s.handle(ctx, job)
		}
		s.logger.Info("Upload worker stopped: %d sent, %d failed", s.sent.Load(), s.failed.Load())
	}()
}

// Wait blocks until the consumer loop has exited.
func (s *UploadService) Wait() {
	s.wg.Wait()
}

// Sent returns how many jobs were delivered.
func (s *UploadService) Sent() int64 { return s.sent.Load() }

// Failed returns how many jobs were given up on.
func (s *UploadService) Failed() int64 { return s.failed.Load() }

func (s *UploadService) handle(ctx context.Context, job dto.UploadJob) {
	s.DeliverPaced(ctx, job)
}

// DeliverPaced delivers one job, then waits the pacing interval after a success
// or the backoff interval after a failure, so consecutive calls never hit the
// endpoint back to back.
func (s *UploadService) DeliverPaced(ctx context.Context, job dto.UploadJob) error {
	err := s.Deliver(ctx, job)
	wait := s.pacing
	if err != nil {
		wait = s.backoff
	}
	select {
	case <-ctx.Done():
	case <-s.clock.After(wait):
	}
	return err
}

// Deliver sends one job and records the outcome in the catalog. A failed job is
// dropped from the queue and stays marked failed for replay.
func (s *UploadService) Deliver(ctx context.Context, job dto.UploadJob) error {
	name := filepath.Base(job.ImagePath)
	if err := s.Send(ctx, job); err != nil {
		s.failed.Add(1)
		s.logger.Error("Upload of %s failed: %v", name, err)
		if s.repo != nil && job.CaptureID != "" {
			if markErr := s.repo.MarkFailed(job.CaptureID, err.Error()); markErr != nil {
				s.logger.Error("Error marking %s failed: %v", name, markErr)
			}
		}
		return err
	}

	s.sent.Add(1)
	s.logger.Info("Uploaded %s and %s", name, filepath.Base(job.SidecarPath))
	if s.repo != nil && job.CaptureID != "" {
		if err := s.repo.MarkUploaded(job.CaptureID, s.clock.Now()); err != nil {
			s.logger.Error("Error marking %s uploaded: %v", name, err)
		}
	}
	return nil
}

// Send posts the job, retrying up to the configured count with exponential backoff.
// A missing image is never retried.
func (s *UploadService) Send(ctx context.Context, job dto.UploadJob) error {
	if s.retries <= 0 {
		return s.post(ctx, job)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.backoff
	policy.MaxElapsedTime = 0
	policy.Clock = s.clock

	attempt := 0
	operation := func() error {
		attempt++
		err := s.post(ctx, job)
		if errors.Is(err, ErrImageMissing) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warning("Upload attempt %d of %s failed, retrying in %s: %v", attempt, filepath.Base(job.ImagePath), wait, err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.retries)), ctx)
	return backoff.RetryNotifyWithTimer(operation, b, notify, &clockTimer{clock: s.clock})
}

// post makes a single multipart request.
func (s *UploadService) post(ctx context.Context, job dto.UploadJob) error {
	image, err := os.Open(job.ImagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrImageMissing, job.ImagePath)
		}
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer image.Close()

	gpsJSON, err := json.Marshal(job.GPS)
	if err != nil {
		return fmt.Errorf("failed to encode gps: %w", err)
	}

	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		writer.CloseWithError(s.writeForm(form, image, job, gpsJSON))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		body.Close()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := s.client.Do(req)
	// Unblocks the form writer if the request ended before reading the whole body.
	body.Close()
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", ErrRejected, resp.Status)
	}
	return nil
}

func (s *UploadService) writeForm(form *multipart.Writer, image io.Reader, job dto.UploadJob, gpsJSON []byte) error {
	part, err := form.CreateFormFile("file", filepath.Base(job.ImagePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, image); err != nil {
		return err
	}

	if sidecar, err := os.ReadFile(job.SidecarPath); err == nil {
		part, err := form.CreateFormFile("sidecar", filepath.Base(job.SidecarPath))
		if err != nil {
			return err
		}
		if _, err := part.Write(sidecar); err != nil {
			return err
		}
	} else if job.SidecarPath != "" {
		s.logger.Warning("Sidecar %s not attached: %v", filepath.Base(job.SidecarPath), err)
	}

	if err := form.WriteField("gps", string(gpsJSON)); err != nil {
		return err
	}
	if err := form.WriteField("captured_at", job.CapturedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return form.Close()
}

// clockTimer drives backoff waits from the service clock.
type clockTimer struct {
	clock clock.Clock
	timer *clock.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.Timer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}
