package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SAVE_DIR", t.TempDir())

	cfg := Load()

	if cfg.FrameInterval != 500*time.Millisecond {
		t.Errorf("FrameInterval = %v, expected 500ms", cfg.FrameInterval)
	}
	if cfg.ConfThreshold != 0.6 || cfg.MergeIoU != 0.6 || cfg.AreaInsideRatio != 0.8 {
		t.Errorf("unexpected thresholds: %v %v %v", cfg.ConfThreshold, cfg.MergeIoU, cfg.AreaInsideRatio)
	}
	if cfg.UploadTimeout != 20*time.Second || cfg.UploadPacing != 200*time.Millisecond || cfg.UploadBackoff != time.Second {
		t.Errorf("unexpected upload timings: %v %v %v", cfg.UploadTimeout, cfg.UploadPacing, cfg.UploadBackoff)
	}
	if cfg.GPSWait != 3*time.Second {
		t.Errorf("GPSWait = %v, expected 3s", cfg.GPSWait)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "capture.env")
	content := "FRAME_INTERVAL=0.25\nTARGET_LABEL=vehicle\nQUEUE_OVERFLOW=drop-oldest\n"
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("SAVE_DIR", dir)
	// godotenv.Load never overrides variables that are already set.
	t.Setenv("TARGET_LABEL", "person")
	t.Cleanup(func() {
		os.Unsetenv("FRAME_INTERVAL")
		os.Unsetenv("QUEUE_OVERFLOW")
	})

	cfg := Load()

	if cfg.FrameInterval != 250*time.Millisecond {
		t.Errorf("FrameInterval = %v, expected 250ms", cfg.FrameInterval)
	}
	if cfg.TargetLabel != "person" {
		t.Errorf("TargetLabel = %q, process env should win", cfg.TargetLabel)
	}
	if cfg.QueueOverflow != OverflowDropOldest {
		t.Errorf("QueueOverflow = %q", cfg.QueueOverflow)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"confidence above one", func(c *Config) { c.ConfThreshold = 1.5 }},
		{"negative merge threshold", func(c *Config) { c.MergeIoU = -0.1 }},
		{"zero interval", func(c *Config) { c.FrameInterval = 0 }},
		{"zero queue", func(c *Config) { c.QueueSize = 0 }},
		{"unknown overflow", func(c *Config) { c.QueueOverflow = "spill" }},
		{"unknown gps source", func(c *Config) { c.GPSSource = "carrier-pigeon" }},
		{"negative retries", func(c *Config) { c.UploadRetries = -1 }},
	}

	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SAVE_DIR", t.TempDir())

	for _, tt := range tests {
		cfg := Load()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"", time.Second},
		{"750ms", 750 * time.Millisecond},
		{"2", 2 * time.Second},
		{"0.5", 500 * time.Millisecond},
		{"soon", time.Second},
	}

	for _, tt := range tests {
		t.Setenv("TEST_DURATION", tt.value)
		if got := getEnvAsDuration("TEST_DURATION", time.Second); got != tt.expected {
			t.Errorf("getEnvAsDuration(%q) = %v, expected %v", tt.value, got, tt.expected)
		}
	}
}
