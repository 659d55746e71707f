package ai

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"aerialcapture/internal/config"
	"aerialcapture/internal/dto"
	"aerialcapture/internal/logger"
	"aerialcapture/internal/service/vision"
)

// ErrDetectorInit is returned when the detection network cannot be loaded.
var ErrDetectorInit = errors.New("detector could not be initialized")

// DetectorService runs an SSD network through the OpenCV DNN module.
type DetectorService struct {
	net        gocv.Net
	modelPath  string
	configPath string
	inputSize  int
	classShift int
	logger     *logger.Logger
	mu         sync.Mutex
}

// NewDetectorService loads the configured network.
func NewDetectorService(cfg *config.Config, logger *logger.Logger) (*DetectorService, error) {
	service := &DetectorService{
		modelPath:  cfg.ModelPath,
		configPath: cfg.ModelConfigPath,
		inputSize:  cfg.DetectorInputSize,
		classShift: cfg.DetectorClassShift,
		logger:     logger,
	}

	if err := service.initializeNet(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectorInit, err)
	}
	return service, nil
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}

	if s.configPath != "" {
		if _, err := os.Stat(s.configPath); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", s.configPath)
		}
	}

	net := gocv.ReadNet(s.modelPath, s.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.logger.Info("Detection network initialized from %s", s.modelPath)
	return nil
}

// Infer runs the network once. Boxes come back normalized as [ymin, xmin, ymax, xmax]
// with class ids shifted so the first model class is 0.
func (s *DetectorService) Infer(frame dto.Frame) (vision.DetectorOutput, error) {
	mat, err := matOf(frame)
	if err != nil {
		return vision.DetectorOutput{}, err
	}
	if mat.Empty() {
		return vision.DetectorOutput{}, fmt.Errorf("frame is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Parameters that fit the SSD COCO input.
	size := image.Pt(s.inputSize, s.inputSize)
	blob := gocv.BlobFromImage(mat, 1.0/127.5, size, gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")

	output := s.net.Forward("")
	defer output.Close()

	// Rows: [batch_id, class_id, confidence, left, top, right, bottom]
	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	n := rows.Rows()
	out := vision.DetectorOutput{
		Boxes:   make([][4]float32, 0, n),
		Classes: make([]float32, 0, n),
		Scores:  make([]float32, 0, n),
		Count:   n,
	}
	for i := 0; i < n; i++ {
		left, top := rows.GetFloatAt(i, 3), rows.GetFloatAt(i, 4)
		right, bottom := rows.GetFloatAt(i, 5), rows.GetFloatAt(i, 6)
		out.Boxes = append(out.Boxes, [4]float32{clamp01(top), clamp01(left), clamp01(bottom), clamp01(right)})
		out.Classes = append(out.Classes, rows.GetFloatAt(i, 1)-float32(s.classShift))
		out.Scores = append(out.Scores, rows.GetFloatAt(i, 2))
	}
	return out, nil
}

func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
