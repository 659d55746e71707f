package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aerialcapture/internal/dto"
)

func TestFormatSidecar(t *testing.T) {
	captured := time.Date(2025, 6, 1, 12, 30, 15, 250_000_000, time.Local)

	tests := []struct {
		name     string
		fix      dto.GPSFix
		expected string
	}{
		{
			name:     "unknown fix",
			fix:      dto.GPSFix{},
			expected: "Capture time: 2025-06-01_12-30-15.250\nGPS data not available\n",
		},
		{
			name: "known fix",
			fix: dto.GPSFix{
				Lat: 51.50745671, Lon: -0.1278, Alt: 120.456,
				ObservedAt: captured.Add(-time.Second), Valid: true,
			},
			expected: "Capture time: 2025-06-01_12-30-15.250\n" +
				"GPS time: 2025-06-01_12-30-14.250\n" +
				"Latitude: 51.5074567\n" +
				"Longitude: -0.1278000\n" +
				"Altitude: 120.46 m\n",
		},
	}

	for _, tt := range tests {
		if got := FormatSidecar(captured, tt.fix); got != tt.expected {
			t.Errorf("%s: FormatSidecar = %q, expected %q", tt.name, got, tt.expected)
		}
	}
}

func TestParseSidecar_RoundTrip(t *testing.T) {
	captured := time.Date(2025, 6, 1, 12, 30, 15, 250_000_000, time.Local)
	fix := dto.GPSFix{Lat: 51.5074567, Lon: -0.1278, Alt: 120.46, ObservedAt: captured, Valid: true}

	gotTime, gotFix, err := ParseSidecar(strings.NewReader(FormatSidecar(captured, fix)))
	if err != nil {
		t.Fatalf("ParseSidecar failed: %v", err)
	}
	if !gotTime.Equal(captured) {
		t.Errorf("capture time = %v, expected %v", gotTime, captured)
	}
	if !gotFix.Valid || gotFix.Lat != fix.Lat || gotFix.Lon != fix.Lon || gotFix.Alt != fix.Alt || !gotFix.ObservedAt.Equal(fix.ObservedAt) {
		t.Errorf("fix = %+v, expected %+v", gotFix, fix)
	}

	_, unknown, err := ParseSidecar(strings.NewReader(FormatSidecar(captured, dto.GPSFix{})))
	if err != nil {
		t.Fatalf("ParseSidecar failed: %v", err)
	}
	if unknown.Valid {
		t.Errorf("expected unknown fix, got %+v", unknown)
	}
}

func TestParseSidecar_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"GPS data not available\n",
		"Capture time: yesterday\n",
		"Capture time: 2025-06-01_12-30-15.250\nLatitude: north\n",
		"Capture time: 2025-06-01_12-30-15.250\nHeading: 90\n",
	}

	for _, in := range inputs {
		if _, _, err := ParseSidecar(strings.NewReader(in)); err == nil {
			t.Errorf("ParseSidecar(%q) should fail", in)
		}
	}
}

func TestPathsAndParseCaptureFilename(t *testing.T) {
	ts := time.Date(2025, 6, 1, 8, 5, 3, 7_000_000, time.Local)

	img, txt := Paths("/data", ts)
	if img != "/data/2025-06-01_08-05-03.007.jpg" || txt != "/data/2025-06-01_08-05-03.007.txt" {
		t.Errorf("Paths = %s, %s", img, txt)
	}

	got, err := ParseCaptureFilename(img)
	if err != nil || !got.Equal(ts) {
		t.Errorf("ParseCaptureFilename(%s) = %v, %v", img, got, err)
	}
	if _, err := ParseCaptureFilename("holiday.jpg"); err == nil {
		t.Error("ParseCaptureFilename should reject foreign names")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")

	if err := writeFileAtomic(path, []byte("first")); err != nil {
		t.Fatalf("writeFileAtomic failed: %v", err)
	}
	if err := writeFileAtomic(path, []byte("second")); err != nil {
		t.Fatalf("writeFileAtomic failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "second" {
		t.Errorf("content = %q, %v", data, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the final file, found %d entries", len(entries))
	}
}
