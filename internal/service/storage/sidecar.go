package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"aerialcapture/internal/dto"
)

// TimestampLayout names capture files and stamps sidecars. The millisecond suffix keeps
// two captures within one second apart.
const TimestampLayout = "2006-01-02_15-04-05.000"

const (
	captureTimePrefix = "Capture time: "
	gpsTimePrefix     = "GPS time: "
	latitudePrefix    = "Latitude: "
	longitudePrefix   = "Longitude: "
	altitudePrefix    = "Altitude: "
	gpsUnavailable    = "GPS data not available"
)

// Paths returns the image and sidecar paths for a capture taken at ts.
func Paths(dir string, ts time.Time) (imagePath, sidecarPath string) {
	base := filepath.Join(dir, ts.Local().Format(TimestampLayout))
	return base + ".jpg", base + ".txt"
}

// ParseCaptureFilename recovers the capture time from an image or sidecar file name.
func ParseCaptureFilename(name string) (time.Time, error) {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	ts, err := time.ParseInLocation(TimestampLayout, stem, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid capture filename %q: %w", name, err)
	}
	return ts, nil
}

// FormatSidecar renders the sidecar text for a capture.
func FormatSidecar(capturedAt time.Time, fix dto.GPSFix) string {
	var b strings.Builder
	b.WriteString(captureTimePrefix + capturedAt.Local().Format(TimestampLayout) + "\n")
	if fix.Valid {
		fmt.Fprintf(&b, "%s%s\n", gpsTimePrefix, fix.ObservedAt.Local().Format(TimestampLayout))
		fmt.Fprintf(&b, "%s%.7f\n", latitudePrefix, fix.Lat)
		fmt.Fprintf(&b, "%s%.7f\n", longitudePrefix, fix.Lon)
		fmt.Fprintf(&b, "%s%.2f m\n", altitudePrefix, fix.Alt)
	} else {
		b.WriteString(gpsUnavailable + "\n")
	}
	return b.String()
}

// ParseSidecar reads back the output of FormatSidecar.
func ParseSidecar(r io.Reader) (time.Time, dto.GPSFix, error) {
	var capturedAt time.Time
	var fix dto.GPSFix
	var seen int

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, captureTimePrefix):
			capturedAt, err = time.ParseInLocation(TimestampLayout, strings.TrimPrefix(line, captureTimePrefix), time.Local)
		case line == gpsUnavailable:
			fix = dto.GPSFix{}
		case strings.HasPrefix(line, gpsTimePrefix):
			fix.ObservedAt, err = time.ParseInLocation(TimestampLayout, strings.TrimPrefix(line, gpsTimePrefix), time.Local)
			seen++
		case strings.HasPrefix(line, latitudePrefix):
			fix.Lat, err = strconv.ParseFloat(strings.TrimPrefix(line, latitudePrefix), 64)
			seen++
		case strings.HasPrefix(line, longitudePrefix):
			fix.Lon, err = strconv.ParseFloat(strings.TrimPrefix(line, longitudePrefix), 64)
			seen++
		case strings.HasPrefix(line, altitudePrefix):
			fix.Alt, err = strconv.ParseFloat(strings.TrimSuffix(strings.TrimPrefix(line, altitudePrefix), " m"), 64)
			seen++
		default:
			err = fmt.Errorf("unexpected line %q", line)
		}
		if err != nil {
			return time.Time{}, dto.GPSFix{}, fmt.Errorf("invalid sidecar: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return time.Time{}, dto.GPSFix{}, err
	}
	if capturedAt.IsZero() {
		return time.Time{}, dto.GPSFix{}, fmt.Errorf("invalid sidecar: missing capture time")
	}
	fix.Valid = seen == 4
	if !fix.Valid {
		fix = dto.GPSFix{}
	}
	return capturedAt, fix, nil
}

// ReadSidecarFile parses the sidecar at path.
func ReadSidecarFile(path string) (time.Time, dto.GPSFix, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, dto.GPSFix{}, err
	}
	defer f.Close()
	return ParseSidecar(f)
}

// writeFileAtomic writes data next to path and renames it into place, so readers
// never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
