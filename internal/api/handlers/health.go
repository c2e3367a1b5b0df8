// Package handlers provides HTTP request handlers for the nmapdeck API.
// This file implements the health check endpoint.
package handlers

import (
	"log/slog"
	"net/http"
	"os/exec"
	"time"
)

// Status constants.
const (
	StatusOK       = "ok"
	CheckFound     = "found"
	CheckNotFound  = "not found"
	healthyMessage = "nmapdeck server is running"
)

// HealthHandler handles the health endpoint.
type HealthHandler struct {
	nmapBinary string
	scans      ScanRunner
	logger     *slog.Logger
	startTime  time.Time
	lookPath   func(string) (string, error)
}

// NewHealthHandler creates a new health handler. scans may be nil.
func NewHealthHandler(nmapBinary string, scans ScanRunner, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		nmapBinary: nmapBinary,
		scans:      scans,
		logger:     logger.With("handler", "health"),
		startTime:  time.Now(),
		lookPath:   exec.LookPath,
	}
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status      string            `json:"status"`
	Message     string            `json:"message"`
	Timestamp   time.Time         `json:"timestamp"`
	Uptime      string            `json:"uptime"`
	ActiveScans int               `json:"active_scans"`
	Checks      map[string]string `json:"checks"`
}

// Health handles GET /api/health. The server reports ok whenever it can
// answer; a missing nmap binary only shows up in the checks.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"nmap": CheckFound}
	if _, err := h.lookPath(h.nmapBinary); err != nil {
		checks["nmap"] = CheckNotFound
	}

	response := HealthResponse{
		Status:    StatusOK,
		Message:   healthyMessage,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    checks,
	}
	if h.scans != nil {
		response.ActiveScans = h.scans.ActiveScans()
	}

	writeJSON(w, r, http.StatusOK, response)
}
