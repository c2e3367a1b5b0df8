// Package handlers provides HTTP request handlers for the nmapdeck API.
// This file implements the scan run and report parse endpoints.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/anstrom/nmapdeck/internal/api/middleware"
	"github.com/anstrom/nmapdeck/internal/errors"
	"github.com/anstrom/nmapdeck/internal/metrics"
	"github.com/anstrom/nmapdeck/internal/results"
	"github.com/anstrom/nmapdeck/internal/scanning"
)

// ScanRunner runs nmap scans.
type ScanRunner interface {
	RunScan(ctx context.Context, targetsText string, mode scanning.Mode) (*scanning.Outcome, error)
	ActiveScans() int
}

// ScanHandler handles scan execution and report parsing.
type ScanHandler struct {
	scanner        ScanRunner
	events         Broadcaster
	metrics        metrics.Recorder
	logger         *slog.Logger
	maxRequestSize int64
}

// NewScanHandler creates a new scan handler. events may be nil.
func NewScanHandler(scanner ScanRunner, events Broadcaster, rec metrics.Recorder,
	logger *slog.Logger, maxRequestSize int64) *ScanHandler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &ScanHandler{
		scanner:        scanner,
		events:         events,
		metrics:        rec,
		logger:         logger.With("handler", "scan"),
		maxRequestSize: maxRequestSize,
	}
}

// RunScanRequest is the body of POST /api/scan/run. Targets are checked by
// the scanner so that their errors keep their own codes.
type RunScanRequest struct {
	Targets string `json:"targets"`
	Mode    string `json:"mode" validate:"omitempty,max=32"`
}

// RunScanResponse is returned when nmap produced a report.
type RunScanResponse struct {
	Success   bool      `json:"success"`
	XML       string    `json:"xml"`
	File      string    `json:"file"`
	Timestamp time.Time `json:"timestamp"`
}

// SoftFailureResponse is returned with 200 when nmap exited cleanly but
// wrote no report. XML carries whatever it printed.
type SoftFailureResponse struct {
	Error string `json:"error"`
	XML   string `json:"xml"`
}

// ParseRequest is the body of POST /api/scan/parse.
type ParseRequest struct {
	XML string `json:"xml"`
}

// ParseResponse is a normalized report.
type ParseResponse struct {
	Success bool            `json:"success"`
	Hosts   []results.Host  `json:"hosts"`
	Summary results.Summary `json:"summary"`
}

// RunScan handles POST /api/scan/run.
func (h *ScanHandler) RunScan(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r)

	var req RunScanRequest
	if err := parseJSON(r, h.maxRequestSize, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	mode := scanning.ParseMode(req.Mode)

	event := ScanEvent{RequestID: requestID, Targets: req.Targets, Mode: mode.String()}
	h.publish(EventScanStarted, event)

	// A scan runs to completion once started; a client going away must not
	// kill nmap or lose the saved report. Only the scan timeout applies.
	outcome, err := h.scanner.RunScan(context.WithoutCancel(r.Context()), req.Targets, mode)
	if err != nil {
		h.logger.Warn("Scan rejected",
			"request_id", requestID,
			"code", errors.GetCode(err),
			"error", err)
		event.Code = string(errors.GetCode(err))
		event.Error = err.Error()
		h.publish(EventScanFailed, event)
		writeError(w, r, statusFor(err), err)
		return
	}

	event.Duration = outcome.Duration.String()

	switch {
	case outcome.Succeeded():
		event.File = outcome.SavedPath
		h.publish(EventScanCompleted, event)
		writeJSON(w, r, http.StatusOK, RunScanResponse{
			Success:   true,
			XML:       string(outcome.Output),
			File:      outcome.SavedPath,
			Timestamp: outcome.Timestamp,
		})

	case outcome.Soft():
		event.Code = string(outcome.Code)
		event.Error = outcome.Message
		h.publish(EventScanFailed, event)
		writeJSON(w, r, http.StatusOK, SoftFailureResponse{
			Error: outcome.Message,
			XML:   string(outcome.Output),
		})

	default:
		event.Code = string(outcome.Code)
		event.Error = outcome.Message
		h.publish(EventScanFailed, event)
		writeError(w, r, http.StatusInternalServerError, outcome.Err())
	}
}

// ParseScan handles POST /api/scan/parse.
func (h *ScanHandler) ParseScan(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if err := parseJSON(r, h.maxRequestSize, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.XML == "" {
		writeError(w, r, http.StatusBadRequest,
			errors.NewScanError(errors.CodeValidation, "No XML provided"))
		return
	}

	result, err := results.ParseOutput([]byte(req.XML))
	if err != nil {
		h.metrics.IncrementParseErrors()
		h.logger.Error("Failed to parse report",
			"request_id", middleware.GetRequestID(r),
			"error", err)
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	result.Record(h.metrics)

	writeJSON(w, r, http.StatusOK, ParseResponse{
		Success: true,
		Hosts:   result.Hosts,
		Summary: result.Summary,
	})
}

func (h *ScanHandler) publish(eventType string, event ScanEvent) {
	if h.events == nil {
		return
	}
	if err := h.events.Broadcast(eventType, event); err != nil {
		h.logger.Debug("Event not delivered", "type", eventType, "error", err)
	}
}
