// Package handlers provides HTTP request handlers for the nmapdeck API.
// This file contains the response and request helpers shared by all
// handlers.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/anstrom/nmapdeck/internal/api/middleware"
	"github.com/anstrom/nmapdeck/internal/errors"
)

// DefaultMaxRequestSize bounds request bodies when no limit is configured.
const DefaultMaxRequestSize = 10 * 1024 * 1024

var validate = validator.New()

// ErrorResponse is the body of every error reply. Error carries the human
// readable message so clients can show it directly.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are gone already; all we can do is log.
		slog.Error("Failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"error", err)
	}
}

// writeError writes an error response. Coded errors contribute their code,
// their bare message and, for nmap failures, the exit status.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	response := ErrorResponse{
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	}

	var scanErr *errors.ScanError
	var storeErr *errors.StoreError
	switch {
	case stderrors.As(err, &scanErr):
		response.Error = scanErr.Message
		response.Code = string(scanErr.Code)
		if scanErr.Code == errors.CodeToolError {
			exitCode := scanErr.ExitCode
			response.ExitCode = &exitCode
		}
	case stderrors.As(err, &storeErr):
		response.Error = storeErr.Message
		response.Code = string(storeErr.Code)
	default:
		if code := errors.GetCode(err); code != errors.CodeUnknown {
			response.Code = string(code)
		}
	}

	writeJSON(w, r, statusCode, response)
}

// statusFor maps an error code to the HTTP status the API reports it with.
func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeMissingTargets, errors.CodeInvalidTargets, errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodeNotFound, errors.CodeFileNotFound:
		return http.StatusNotFound
	case errors.CodeRateLimited:
		return http.StatusTooManyRequests
	case errors.CodeCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseJSON decodes the request body into dest and validates it.
func parseJSON(r *http.Request, maxSize int64, dest interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errors.NewScanError(errors.CodeValidation, "request body is empty")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxRequestSize
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxSize)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.NewScanError(errors.CodeValidation,
				fmt.Sprintf("request body too large (max %d bytes)", maxSize))
		}
		return errors.WrapScanError(errors.CodeValidation, "invalid JSON: "+err.Error(), err)
	}

	if err := validate.Struct(dest); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError turns validator output into a single readable message.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.WrapScanError(errors.CodeValidation, err.Error(), err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", strings.ToLower(fe.Field())))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return errors.WrapScanError(errors.CodeValidation, strings.Join(msgs, "; "), err)
}

// extractStringFromPath extracts the id path parameter.
func extractStringFromPath(r *http.Request) (string, error) {
	idStr, exists := mux.Vars(r)["id"]
	if !exists || strings.TrimSpace(idStr) == "" {
		return "", errors.NewScanError(errors.CodeValidation, "id not provided")
	}
	return idStr, nil
}
