package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	ws "wavesight/internal/websocket"
)

// HealthService reports process and subsystem health.
type HealthService struct {
	version   string
	hub       *ws.Hub
	uploads   *UploadStore
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus is the health check response.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// NewHealthService wires the health service. hub and uploads may be nil.
func NewHealthService(version string, hub *ws.Hub, uploads *UploadStore, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		hub:       hub,
		uploads:   uploads,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// Check returns the current health snapshot. There are no external
// dependencies, so status is always healthy once the process answers.
func (s *HealthService) Check(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Runtime: map[string]interface{}{
			"go_version":     runtime.Version(),
			"os":             runtime.GOOS,
			"arch":           runtime.GOARCH,
			"goroutines":     runtime.NumGoroutine(),
			"uptime_seconds": time.Since(s.startTime).Seconds(),
		},
		Services: map[string]interface{}{},
	}

	if s.hub != nil {
		status.Services["websocket"] = map[string]interface{}{
			"status":  "healthy",
			"clients": s.hub.ClientCount(),
		}
	}
	if s.uploads != nil {
		status.Services["uploads"] = map[string]interface{}{
			"status": "healthy",
			"stored": s.uploads.Len(),
		}
	}

	s.logger.DebugContext(ctx, "health check served",
		slog.String("status", status.Status))
	return status
}
