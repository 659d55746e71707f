package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"aerialcapture/internal/dto"
	"aerialcapture/internal/logger"
	"aerialcapture/internal/repository"
)

const (
	defaultCaptureLimit = 50
	maxCaptureLimit     = 500
)

// PositionSource returns the current GPS fix.
type PositionSource interface {
	Snapshot() dto.GPSFix
}

// StatusReporter assembles the pipeline status.
type StatusReporter interface {
	Status() dto.PipelineStatus
}

// ListCapturesHandler returns the newest catalog rows.
func ListCapturesHandler(repo repository.CaptureRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := atoiDefault(r.URL.Query().Get("limit"), defaultCaptureLimit)
		if limit > maxCaptureLimit {
			limit = maxCaptureLimit
		}

		captures, err := repo.ListRecent(limit)
		if err != nil {
			logger.Error("Error querying captures from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{
			"captures": captures,
			"count":    len(captures),
		})
	}
}

// CaptureImageHandler serves the image of one capture by id.
func CaptureImageHandler(repo repository.CaptureRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Missing id", http.StatusBadRequest)
			return
		}

		capture, err := repo.GetByID(id)
		if err != nil {
			logger.Error("Error loading capture %s: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if capture == nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, capture.ImagePath)
	}
}

// GPSHandler returns the current fix snapshot.
func GPSHandler(source PositionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, source.Snapshot())
	}
}

// StatusHandler returns queue depths and worker counters.
func StatusHandler(reporter StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, reporter.Status())
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(v)
}

// atoiDefault parses a positive integer, falling back to def.
func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
