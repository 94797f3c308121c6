// Package handlers provides HTTP request handlers for the pingscan API.
// This file implements health check and version endpoints.
package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/anstrom/pingscan/internal/logging"
)

// Status constants.
const (
	StatusHealthy       = "healthy"
	StatusDegraded      = "degraded"
	StatusNotConfigured = "not configured"
)

// StatsSource reports engine state. *jobs.Manager implements it.
type StatsSource interface {
	Stats() map[string]interface{}
}

// HealthHandler handles health check and version endpoints.
type HealthHandler struct {
	stats     StatsSource
	logger    *logging.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler. A nil stats source is
// reported as not configured.
func NewHealthHandler(stats StatsSource, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{
		stats:     stats,
		logger:    logger.WithComponent("health"),
		startTime: time.Now(),
	}
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]string      `json:"checks"`
	Engine    map[string]interface{} `json:"engine,omitempty"`
}

// LivenessResponse represents a liveness check response.
type LivenessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

// VersionResponse represents version information.
type VersionResponse struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	BuildTime string    `json:"build_time"`
	GoVersion string    `json:"go_version"`
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
}

// Health reports engine state. Stalled probes degrade the status but still
// answer 200; only a missing engine gives 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Health check requested", "remote_addr", r.RemoteAddr)

	response := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).String(),
		Checks:    make(map[string]string),
	}

	statusCode := http.StatusOK
	if h.stats == nil {
		response.Status = StatusDegraded
		response.Checks["scanner"] = StatusNotConfigured
		statusCode = http.StatusServiceUnavailable
	} else {
		response.Engine = h.stats.Stats()
		response.Checks["scanner"] = "ok"
		if stalled, ok := response.Engine["stalled"].(int); ok && stalled > 0 {
			response.Status = StatusDegraded
			response.Checks["probes"] = "stalled"
		}
	}

	writeJSON(w, r, statusCode, response)
}

// Liveness performs a simple liveness check without dependencies.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).String(),
	})
}

// Version reports build information.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, VersionResponse{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		PID:       os.Getpid(),
		Timestamp: time.Now().UTC(),
	})
}

// Build information, set via ldflags through SetBuildInfo.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// SetBuildInfo sets build information (called by main package).
func SetBuildInfo(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}
