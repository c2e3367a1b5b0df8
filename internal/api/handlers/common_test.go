package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/nmapdeck/internal/api/middleware"
	apierrors "github.com/anstrom/nmapdeck/internal/errors"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// jsonRequest builds a POST request carrying body encoded as JSON.
func jsonRequest(t *testing.T, path string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantError    string
		wantCode     string
		wantExitCode *int
	}{
		{
			name:      "plain error",
			err:       fmt.Errorf("boom"),
			wantError: "boom",
		},
		{
			name:      "coded error uses bare message",
			err:       apierrors.ErrMissingTargets(),
			wantError: apierrors.ErrMissingTargets().Message,
			wantCode:  "MISSING_TARGETS",
		},
		{
			name:         "tool error carries exit code",
			err:          apierrors.NewScanError(apierrors.CodeToolError, "Failed to resolve host").WithExitCode(1),
			wantError:    "Failed to resolve host",
			wantCode:     "TOOL_ERROR",
			wantExitCode: intPtr(1),
		},
		{
			name:      "store error hides cause",
			err:       apierrors.WrapStoreError(apierrors.CodeStoreQuery, "list", fmt.Errorf("disk full")),
			wantCode:  "STORE_QUERY",
			wantError: "History store operation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-1"))
			rec := httptest.NewRecorder()

			writeError(rec, req, http.StatusBadRequest, tt.err)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantExitCode, resp.ExitCode)
			assert.Equal(t, "req-1", resp.RequestID)
			assert.False(t, resp.Timestamp.IsZero())
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code apierrors.ErrorCode
		want int
	}{
		{apierrors.CodeMissingTargets, http.StatusBadRequest},
		{apierrors.CodeInvalidTargets, http.StatusBadRequest},
		{apierrors.CodeValidation, http.StatusBadRequest},
		{apierrors.CodeNotFound, http.StatusNotFound},
		{apierrors.CodeFileNotFound, http.StatusNotFound},
		{apierrors.CodeRateLimited, http.StatusTooManyRequests},
		{apierrors.CodeCanceled, http.StatusServiceUnavailable},
		{apierrors.CodeToolNotInstalled, http.StatusInternalServerError},
		{apierrors.CodeToolError, http.StatusInternalServerError},
		{apierrors.CodeProcessError, http.StatusInternalServerError},
		{apierrors.CodeMalformedOutput, http.StatusInternalServerError},
		{apierrors.CodeFileWrite, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(apierrors.NewScanError(tt.code, "x")))
		})
	}

	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("plain")))
}

func TestParseJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}

	tests := []struct {
		name    string
		body    string
		maxSize int64
		wantErr string
	}{
		{name: "valid", body: `{"name":"x"}`},
		{name: "empty body", body: "", wantErr: "request body is empty"},
		{name: "invalid json", body: `{"name":`, wantErr: "invalid JSON"},
		{name: "missing required field", body: `{}`, wantErr: "name is required"},
		{name: "too large", body: `{"name":"` + strings.Repeat("a", 64) + `"}`, maxSize: 16, wantErr: "too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.body != "" {
				req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			}

			var dest payload
			err := parseJSON(req, tt.maxSize, &dest)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "x", dest.Name)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, apierrors.IsCode(err, apierrors.CodeValidation))
		})
	}
}

func TestExtractStringFromPath(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		want    string
		wantErr bool
	}{
		{name: "present", vars: map[string]string{"id": "abc"}, want: "abc"},
		{name: "missing", vars: map[string]string{}, wantErr: true},
		{name: "blank", vars: map[string]string{"id": "  "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), tt.vars)
			got, err := extractStringFromPath(req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func intPtr(i int) *int {
	return &i
}
