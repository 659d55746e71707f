package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// GPS source kinds.
const (
	GPSSourceMAVLink    = "mavlink"
	GPSSourceNMEAUDP    = "nmea-udp"
	GPSSourceNMEASerial = "nmea-serial"
	GPSSourceNone       = "none"
)

// Queue overflow policies.
const (
	OverflowBlock      = "block"
	OverflowDropOldest = "drop-oldest"
)

type Config struct {
	// Camera
	CameraDevice string
	CameraWidth  int
	CameraHeight int
	CameraFourCC string
	CameraFPS    int

	// Detector
	ModelPath          string
	ModelConfigPath    string
	DetectorInputSize  int
	DetectorClassShift int // subtracted from raw class ids so the target class is 0-based

	// Processing
	FrameInterval   time.Duration
	ConfThreshold   float64
	TargetClass     int
	TargetLabel     string
	MergeIoU        float64
	AreaInsideRatio float64
	ROICrop         bool
	ROIPadPx        int

	// Storage
	SaveDir     string
	JPEGQuality int
	DBPath      string

	// Upload
	UploadURL     string
	UploadTimeout time.Duration
	UploadPacing  time.Duration
	UploadBackoff time.Duration
	UploadRetries int

	// GPS
	GPSSource     string
	GPSAddress    string
	GPSSerialPath string
	GPSBaud       int
	GPSWait       time.Duration

	// Queues
	QueueSize     int
	QueueOverflow string

	HTTPAddr     string
	HTTPToken    string
	LogDirectory string
	LogLevel     string
}

// Load reads the optional env file and then the process environment.
func Load() *Config {
	envFile := getEnv("ENV_FILE", ".env")
	if _, err := os.Stat(envFile); err == nil {
		// Existing process variables win over the file.
		_ = godotenv.Load(envFile)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	saveDir := getEnv("SAVE_DIR", filepath.Join(home, "Desktop"))

	return &Config{
		CameraDevice: getEnv("CAMERA_DEVICE", "/dev/video0"),
		CameraWidth:  getEnvAsInt("CAMERA_WIDTH", 3840),
		CameraHeight: getEnvAsInt("CAMERA_HEIGHT", 2160),
		CameraFourCC: getEnv("CAMERA_FOURCC", "UYVY"),
		CameraFPS:    getEnvAsInt("CAMERA_FPS", 15),

		ModelPath:          getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ModelConfigPath:    getEnv("MODEL_CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		DetectorInputSize:  getEnvAsInt("DETECTOR_INPUT_SIZE", 300),
		DetectorClassShift: getEnvAsInt("DETECTOR_CLASS_OFFSET", 1),

		FrameInterval:   getEnvAsDuration("FRAME_INTERVAL", 500*time.Millisecond),
		ConfThreshold:   getEnvAsFloat("CONF_THRESH", 0.6),
		TargetClass:     getEnvAsInt("TARGET_CLASS", 0),
		TargetLabel:     getEnv("TARGET_LABEL", "person"),
		MergeIoU:        getEnvAsFloat("MERGE_IOU_THRESH", 0.6),
		AreaInsideRatio: getEnvAsFloat("AREA_INSIDE_RATIO", 0.8),
		ROICrop:         getEnvAsBool("ROI_CROP", false),
		ROIPadPx:        getEnvAsInt("ROI_PAD_PX", 4),

		SaveDir:     saveDir,
		JPEGQuality: getEnvAsInt("JPEG_QUALITY", 100),
		DBPath:      getEnv("DB_PATH", filepath.Join(saveDir, "captures.db")),

		UploadURL:     getEnv("UPLOAD_URL", "http://10.25.159.239:8080/api/uploads"),
		UploadTimeout: getEnvAsDuration("UPLOAD_TIMEOUT", 20*time.Second),
		UploadPacing:  getEnvAsDuration("UPLOAD_PACING", 200*time.Millisecond),
		UploadBackoff: getEnvAsDuration("UPLOAD_BACKOFF", time.Second),
		UploadRetries: getEnvAsInt("UPLOAD_RETRIES", 0),

		GPSSource:     getEnv("GPS_SOURCE", GPSSourceMAVLink),
		GPSAddress:    getEnv("GPS_ADDRESS", ":14551"),
		GPSSerialPath: getEnv("GPS_SERIAL_PATH", "/dev/ttyAMA0"),
		GPSBaud:       getEnvAsInt("GPS_BAUD", 9600),
		GPSWait:       getEnvAsDuration("GPS_WAIT", 3*time.Second),

		QueueSize:     getEnvAsInt("QUEUE_SIZE", 64),
		QueueOverflow: getEnv("QUEUE_OVERFLOW", OverflowBlock),

		HTTPAddr:     os.Getenv("HTTP_ADDR"),
		HTTPToken:    os.Getenv("HTTP_TOKEN"),
		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports the first configuration value that cannot run the pipeline.
func (c *Config) Validate() error {
	switch {
	case c.ConfThreshold < 0 || c.ConfThreshold > 1:
		return fmt.Errorf("CONF_THRESH must be in [0,1], got %v", c.ConfThreshold)
	case c.MergeIoU < 0 || c.MergeIoU > 1:
		return fmt.Errorf("MERGE_IOU_THRESH must be in [0,1], got %v", c.MergeIoU)
	case c.AreaInsideRatio < 0 || c.AreaInsideRatio > 1:
		return fmt.Errorf("AREA_INSIDE_RATIO must be in [0,1], got %v", c.AreaInsideRatio)
	case c.FrameInterval <= 0:
		return errors.New("FRAME_INTERVAL must be positive")
	case c.QueueSize <= 0:
		return errors.New("QUEUE_SIZE must be positive")
	case c.JPEGQuality < 0 || c.JPEGQuality > 100:
		return fmt.Errorf("JPEG_QUALITY must be in [0,100], got %d", c.JPEGQuality)
	case c.UploadRetries < 0:
		return errors.New("UPLOAD_RETRIES must not be negative")
	case c.GPSWait <= 0:
		return errors.New("GPS_WAIT must be positive")
	case c.SaveDir == "":
		return errors.New("SAVE_DIR must be set")
	}

	switch c.QueueOverflow {
	case OverflowBlock, OverflowDropOldest:
	default:
		return fmt.Errorf("unknown QUEUE_OVERFLOW %q", c.QueueOverflow)
	}

	switch c.GPSSource {
	case GPSSourceMAVLink, GPSSourceNMEAUDP, GPSSourceNMEASerial, GPSSourceNone:
	default:
		return fmt.Errorf("unknown GPS_SOURCE %q", c.GPSSource)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("500ms") or plain seconds ("0.5").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
