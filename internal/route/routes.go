package route

import (
	"net/http"

	"aerialcapture/internal/handler"
	"aerialcapture/internal/logger"
	"aerialcapture/internal/middleware"
	"aerialcapture/internal/repository"
	hub "aerialcapture/internal/service/websocket"
)

// Dependencies are the services behind the operator endpoints.
type Dependencies struct {
	Hub    *hub.HubService
	GPS    handler.PositionSource
	Status handler.StatusReporter
	Repo   repository.CaptureRepository
	Logger *logger.Logger
	Token  string
}

// SetupRoutes registers the operator API and wraps the mux with token authentication.
func SetupRoutes(deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	if deps.Hub != nil {
		mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(deps.Hub, deps.Logger))
	}
	mux.HandleFunc("/api/gps", handler.GPSHandler(deps.GPS))
	mux.HandleFunc("/api/status", handler.StatusHandler(deps.Status))
	if deps.Repo != nil {
		mux.HandleFunc("/api/captures", handler.ListCapturesHandler(deps.Repo, deps.Logger))
		mux.HandleFunc("/api/captures/image", handler.CaptureImageHandler(deps.Repo, deps.Logger))
	}

	// Log endpoints
	logFiles := map[string]string{
		"info":    logger.InfoFile,
		"warning": logger.WarningFile,
		"error":   logger.ErrorFile,
	}
	for name, file := range logFiles {
		mux.HandleFunc("/logs/"+name, handler.ShowLogsHandler(deps.Logger, file))
		mux.HandleFunc("/logs/"+name+"/clear", handler.ClearLogsHandler(deps.Logger, file))
	}

	return middleware.TokenAuth(deps.Token, mux)
}
