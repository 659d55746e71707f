package ai

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"aerialcapture/internal/config"
	"aerialcapture/internal/dto"
	"aerialcapture/internal/logger"
)

// ErrCameraOpen is returned when the capture device cannot be opened.
var ErrCameraOpen = errors.New("camera could not be opened")

// Camera reads frames from a V4L2 device.
type Camera struct {
	capture *gocv.VideoCapture
	device  string
	logger  *logger.Logger
	mu      sync.Mutex
}

// OpenCamera opens the configured device and applies its capture properties.
func OpenCamera(cfg *config.Config, logger *logger.Logger) (*Camera, error) {
	var device interface{} = cfg.CameraDevice
	if id, err := strconv.Atoi(cfg.CameraDevice); err == nil {
		device = id
	}

	capture, err := gocv.OpenVideoCaptureWithAPI(device, gocv.VideoCaptureV4L2)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCameraOpen, cfg.CameraDevice, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %s", ErrCameraOpen, cfg.CameraDevice)
	}

	if cfg.CameraFourCC != "" {
		capture.Set(gocv.VideoCaptureFOURCC, capture.ToCodec(cfg.CameraFourCC))
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.CameraWidth))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.CameraHeight))
	capture.Set(gocv.VideoCaptureFPS, float64(cfg.CameraFPS))
	// Packed UYVY frames are converted here rather than by the backend.
	capture.Set(gocv.VideoCaptureConvertRGB, 0)

	logger.Info("Camera %s opened at %.0fx%.0f", cfg.CameraDevice,
		capture.Get(gocv.VideoCaptureFrameWidth), capture.Get(gocv.VideoCaptureFrameHeight))

	return &Camera{capture: capture, device: cfg.CameraDevice, logger: logger}, nil
}

// Read returns the next frame in BGR order. The caller owns the frame.
func (c *Camera) Read() (dto.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to read frame from %s", c.device)
	}

	if mat.Channels() == 2 {
		bgr := gocv.NewMat()
		err := gocv.CvtColor(mat, &bgr, gocv.ColorYUVToBGRUYVY)
		mat.Close()
		if err != nil {
			bgr.Close()
			return nil, fmt.Errorf("failed to convert UYVY frame: %w", err)
		}
		mat = bgr
	}

	return NewMatFrame(mat), nil
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture.Close()
}
