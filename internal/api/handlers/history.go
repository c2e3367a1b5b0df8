// Package handlers provides HTTP request handlers for the nmapdeck API.
// This file implements the scan history endpoints.
package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/anstrom/nmapdeck/internal/api/middleware"
	"github.com/anstrom/nmapdeck/internal/errors"
	"github.com/anstrom/nmapdeck/internal/export"
	"github.com/anstrom/nmapdeck/internal/history"
	"github.com/anstrom/nmapdeck/internal/results"
)

// HistoryHandler handles history-related HTTP requests.
type HistoryHandler struct {
	store          history.Store
	files          *export.Exporter
	logger         *slog.Logger
	maxRequestSize int64
}

// NewHistoryHandler creates a new history handler. Saved reports are only
// read back from the exporter's directory.
func NewHistoryHandler(store history.Store, files *export.Exporter, logger *slog.Logger,
	maxRequestSize int64) *HistoryHandler {
	return &HistoryHandler{
		store:          store,
		files:          files,
		logger:         logger.With("handler", "history"),
		maxRequestSize: maxRequestSize,
	}
}

// AddHistoryRequest is the body of POST /api/history/add. Summary may be
// the host counts object; anything else is replaced by counts taken from
// the saved report.
type AddHistoryRequest struct {
	Targets string          `json:"targets" validate:"required,max=4096"`
	Mode    string          `json:"mode" validate:"omitempty,max=32"`
	File    string          `json:"file" validate:"max=4096"`
	Summary json.RawMessage `json:"summary"`
}

// HistoryListResponse is returned by list and add.
type HistoryListResponse struct {
	Success bool            `json:"success"`
	History []history.Entry `json:"history"`
	Entry   *history.Entry  `json:"entry,omitempty"`
}

// HistoryDetailResponse is an entry with its saved report.
type HistoryDetailResponse struct {
	Success bool             `json:"success"`
	XML     string           `json:"xml"`
	Entry   history.Entry    `json:"entry"`
	Run     *results.RunInfo `json:"run,omitempty"`
}

// MessageResponse is a bare acknowledgement.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ListHistory handles GET /api/history.
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list history", "request_id", middleware.GetRequestID(r), "error", err)
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, r, http.StatusOK, HistoryListResponse{Success: true, History: entries})
}

// AddHistory handles POST /api/history/add.
func (h *HistoryHandler) AddHistory(w http.ResponseWriter, r *http.Request) {
	var req AddHistoryRequest
	if err := parseJSON(r, h.maxRequestSize, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.File != "" && !h.files.Contains(req.File) {
		writeError(w, r, http.StatusBadRequest,
			errors.NewScanError(errors.CodeValidation, "file must be inside the output directory"))
		return
	}

	summary, err := h.summaryFor(req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	entry, err := h.store.Add(r.Context(), history.Entry{
		Targets: req.Targets,
		Mode:    req.Mode,
		File:    req.File,
		Summary: summary,
	})
	if err != nil {
		h.logger.Error("Failed to add history entry", "request_id", middleware.GetRequestID(r), "error", err)
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	entries, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, r, http.StatusOK, HistoryListResponse{Success: true, History: entries, Entry: &entry})
}

// GetHistory handles GET /api/history/get/{id}.
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := extractStringFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	entry, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	if !h.files.Contains(entry.File) {
		writeError(w, r, http.StatusInternalServerError,
			errors.NewScanError(errors.CodeFileNotFound, "saved report is not available"))
		return
	}
	raw, err := export.ReadReport(entry.File)
	if err != nil {
		h.logger.Error("Failed to read saved report",
			"request_id", middleware.GetRequestID(r),
			"id", id,
			"file", entry.File,
			"error", err)
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	response := HistoryDetailResponse{Success: true, XML: string(raw), Entry: entry}
	if run, err := results.ReadRunInfo(raw); err == nil {
		response.Run = run
	}
	writeJSON(w, r, http.StatusOK, response)
}

// ClearHistory handles POST /api/history/clear.
func (h *HistoryHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, r, http.StatusOK, MessageResponse{Success: true, Message: "History cleared"})
}

// summaryFor decodes an object summary or derives one from the saved report.
func (h *HistoryHandler) summaryFor(req AddHistoryRequest) (results.Summary, error) {
	var summary results.Summary

	if trimmed := bytes.TrimSpace(req.Summary); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &summary); err != nil {
			return summary, errors.WrapScanError(errors.CodeValidation, "invalid summary", err)
		}
		return summary, nil
	}

	if req.File == "" {
		return summary, nil
	}
	raw, err := export.ReadReport(req.File)
	if err != nil {
		return summary, nil
	}
	if result, err := results.ParseOutput(raw); err == nil {
		summary = result.Summary
	}
	return summary, nil
}
