// Package handlers provides HTTP request handlers for the nmapdeck API.
// This file implements the export endpoints.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/anstrom/nmapdeck/internal/api/middleware"
	"github.com/anstrom/nmapdeck/internal/export"
	"github.com/anstrom/nmapdeck/internal/results"
)

// ExportHandler handles export-related HTTP requests.
type ExportHandler struct {
	exporter       *export.Exporter
	logger         *slog.Logger
	maxRequestSize int64
}

// NewExportHandler creates a new export handler.
func NewExportHandler(exporter *export.Exporter, logger *slog.Logger, maxRequestSize int64) *ExportHandler {
	return &ExportHandler{
		exporter:       exporter,
		logger:         logger.With("handler", "export"),
		maxRequestSize: maxRequestSize,
	}
}

// ExportCSVRequest is the body of POST /api/export/csv.
type ExportCSVRequest struct {
	Ports []results.Port `json:"ports"`
}

// ExportXMLRequest is the body of POST /api/export/xml.
type ExportXMLRequest struct {
	XML string `json:"xml"`
}

// ExportCSVResponse describes a written CSV file and its content.
type ExportCSVResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	CSV      string `json:"csv"`
}

// ExportXMLResponse describes a written report copy.
type ExportXMLResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// ExportListResponse lists the output directory.
type ExportListResponse struct {
	Success bool          `json:"success"`
	Exports []export.File `json:"exports"`
}

// ExportCSV handles POST /api/export/csv.
func (h *ExportHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var req ExportCSVRequest
	if err := parseJSON(r, h.maxRequestSize, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	written, content, err := h.exporter.PortsCSV(req.Ports)
	if err != nil {
		h.logFailure(r, "csv", err)
		writeError(w, r, statusFor(err), err)
		return
	}

	h.logger.Info("Ports exported", "request_id", middleware.GetRequestID(r),
		"file", written.Path, "ports", len(req.Ports))
	writeJSON(w, r, http.StatusOK, ExportCSVResponse{
		Success:  true,
		Filename: written.Filename,
		Path:     written.Path,
		CSV:      content,
	})
}

// ExportXML handles POST /api/export/xml.
func (h *ExportHandler) ExportXML(w http.ResponseWriter, r *http.Request) {
	var req ExportXMLRequest
	if err := parseJSON(r, h.maxRequestSize, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	written, err := h.exporter.XML([]byte(req.XML))
	if err != nil {
		h.logFailure(r, "xml", err)
		writeError(w, r, statusFor(err), err)
		return
	}

	h.logger.Info("Report exported", "request_id", middleware.GetRequestID(r), "file", written.Path)
	writeJSON(w, r, http.StatusOK, ExportXMLResponse{
		Success:  true,
		Filename: written.Filename,
		Path:     written.Path,
	})
}

// ListExports handles GET /api/export/list.
func (h *ExportHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	files, err := h.exporter.List()
	if err != nil {
		h.logFailure(r, "list", err)
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ExportListResponse{Success: true, Exports: files})
}

func (h *ExportHandler) logFailure(r *http.Request, kind string, err error) {
	h.logger.Warn("Export failed",
		"request_id", middleware.GetRequestID(r),
		"kind", kind,
		"error", err)
}
