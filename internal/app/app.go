package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"aerialcapture/internal/config"
	"aerialcapture/internal/dto"
	"aerialcapture/internal/logger"
	"aerialcapture/internal/repository/sqlite"
	"aerialcapture/internal/route"
	"aerialcapture/internal/service"
	"aerialcapture/internal/service/ai"
	"aerialcapture/internal/service/gps"
	"aerialcapture/internal/service/queue"
	"aerialcapture/internal/service/storage"
	"aerialcapture/internal/service/upload"
	"aerialcapture/internal/service/vision"
	"aerialcapture/internal/service/websocket"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	camera     *ai.Camera
	detector   *ai.DetectorService
	db         *sqlite.DB
	repo       *sqlite.CaptureRepository
	gps        *gps.Correlator
	records    *queue.Queue[*dto.CaptureRecord]
	uploads    *queue.Queue[dto.UploadJob]
	persister  *storage.PersistService
	uploader   *upload.UploadService
	hubService *websocket.HubService
	manager    *service.Manager
	server     *http.Server
}

// New opens every device and wires the pipeline. Camera and detector failures are fatal.
func New(cfg *config.Config, logger *logger.Logger) (*App, error) {
	policy, err := queue.ParsePolicy(cfg.QueueOverflow)
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, logger: logger}

	a.camera, err = ai.OpenCamera(cfg, logger)
	if err != nil {
		return nil, err
	}

	a.detector, err = ai.NewDetectorService(cfg, logger)
	if err != nil {
		a.camera.Close()
		return nil, err
	}

	a.db, err = sqlite.New(cfg.DBPath)
	if err != nil {
		a.closeDevices()
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	a.repo = sqlite.NewCaptureRepository(a.db)

	stream, err := openPositionStream(cfg, logger)
	if err != nil {
		// The pipeline runs without GPS; every sidecar says so.
		logger.Error("GPS source %s unavailable: %v", cfg.GPSSource, err)
		stream = nil
	}
	a.gps = gps.NewCorrelator(stream, cfg.GPSWait, clock.New(), logger)

	a.records = queue.New[*dto.CaptureRecord](cfg.QueueSize, policy, func(r *dto.CaptureRecord) {
		logger.Warning("Persistence queue full - dropped capture %s", r.ID)
		r.Frame.Close()
	})
	a.uploads = queue.New[dto.UploadJob](cfg.QueueSize, policy, func(j dto.UploadJob) {
		logger.Warning("Upload queue full - %s stays pending in the catalog", j.CaptureID)
	})

	a.persister = storage.NewPersistService(cfg, a.records, a.uploads, a.repo, logger)
	a.uploader = upload.NewUploadService(cfg, a.uploads, a.repo, clock.New(), logger)
	a.hubService = websocket.NewHubService(logger)

	var cropper vision.Cropper
	if cfg.ROICrop {
		cropper = ai.NewGreenBoxCropper(cfg.ROIPadPx)
	}
	a.manager = service.NewManager(cfg, service.Components{
		Camera:    a.camera,
		Detector:  a.detector,
		Annotator: ai.NewAnnotator(cfg.TargetLabel),
		Cropper:   cropper,
		GPS:       a.gps,
		Records:   a.records,
		Notifier:  a.hubService,
	}, clock.New(), logger)

	if cfg.HTTPAddr != "" {
		a.server = &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: route.SetupRoutes(route.Dependencies{
				Hub:    a.hubService,
				GPS:    a.gps,
				Status: a,
				Repo:   a.repo,
				Logger: logger,
				Token:  cfg.HTTPToken,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return a, nil
}

func openPositionStream(cfg *config.Config, logger *logger.Logger) (gps.PositionStream, error) {
	onParseError := func(line string, err error) {
		logger.Debug("Ignoring NMEA sentence %q: %v", line, err)
	}

	switch cfg.GPSSource {
	case config.GPSSourceMAVLink:
		return gps.NewMAVLinkStream(cfg.GPSAddress, clock.New())
	case config.GPSSourceNMEAUDP:
		return gps.ListenNMEAUDP(cfg.GPSAddress, clock.New(), onParseError)
	case config.GPSSourceNMEASerial:
		return gps.OpenSerialNMEA(cfg.GPSSerialPath, cfg.GPSBaud, clock.New(), onParseError)
	default:
		return nil, nil
	}
}

// Run blocks until ctx is cancelled or the capture loop fails, then drains the
// workers in pipeline order and releases every device.
func (a *App) Run(ctx context.Context) error {
	// Workers outlive ctx so that queued captures are still written and sent.
	workers := context.WithoutCancel(ctx)

	a.gps.Start(ctx)
	go a.hubService.Run()
	a.persister.Start(workers)
	a.uploader.Start(workers)

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.logger.Info("Operator API listening on %s", a.server.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	a.logger.Info("Aerial capture started")
	a.logger.Info("Images: %s", a.config.SaveDir)
	a.logger.Info("AI Model: %s", a.config.ModelPath)
	a.logger.Info("Upload URL: %s", a.config.UploadURL)

	captureCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case err := <-serverErr:
			a.logger.Error("Operator API failed: %v", err)
		case <-captureCtx.Done():
		}
	}()

	runErr := a.manager.Run(captureCtx)
	cancel()

	return multierr.Append(runErr, a.shutdown())
}

// shutdown stops the pipeline front to back so that no record is lost in between.
func (a *App) shutdown() error {
	a.logger.Info("Shutting down - draining %d captures and %d uploads", a.records.Len(), a.uploads.Len())

	a.records.Close()
	a.persister.Wait()
	a.uploads.Close()
	a.uploader.Wait()

	// Closes the MAVLink node, UDP socket or serial port behind the correlator.
	err := a.gps.Stop()
	a.hubService.Stop()

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = multierr.Append(err, a.server.Shutdown(ctx))
		cancel()
	}
	err = multierr.Append(err, a.closeDevices())
	err = multierr.Append(err, a.db.Close())
	a.logger.Info("Shutdown complete: %d saved, %d uploaded, %d upload failures",
		a.persister.Saved(), a.uploader.Sent(), a.uploader.Failed())
	return err
}

func (a *App) closeDevices() error {
	err := a.camera.Close()
	if a.detector != nil {
		err = multierr.Append(err, a.detector.Close())
	}
	return err
}

// Status reports the live counters of every stage.
func (a *App) Status() dto.PipelineStatus {
	status := dto.PipelineStatus{
		Capture: a.manager.Stats(),
		PersistQueue: dto.QueueStats{
			Depth:    a.records.Len(),
			Capacity: a.records.Cap(),
			Dropped:  a.records.Dropped(),
		},
		UploadQueue: dto.QueueStats{
			Depth:    a.uploads.Len(),
			Capacity: a.uploads.Cap(),
			Dropped:  a.uploads.Dropped(),
		},
		Persisted:  dto.WorkerStats{Done: a.persister.Saved(), Failed: a.persister.Failed()},
		Uploaded:   dto.WorkerStats{Done: a.uploader.Sent(), Failed: a.uploader.Failed()},
		GPS:        a.gps.Snapshot(),
		GPSUpdates: a.gps.Updates(),
		Viewers:    a.hubService.GetClientCount(),
	}
	if counts, err := a.repo.CountByStatus(); err == nil {
		status.Catalog = counts
	} else {
		a.logger.Warning("Failed to count catalog rows: %v", err)
	}
	return status
}
