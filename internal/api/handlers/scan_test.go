package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/anstrom/nmapdeck/internal/errors"
	"github.com/anstrom/nmapdeck/internal/logging"
	"github.com/anstrom/nmapdeck/internal/metrics"
	"github.com/anstrom/nmapdeck/internal/scanning"
)

const sampleReport = `<?xml version="1.0"?>
<nmaprun scanner="nmap">
  <host><status state="up"/><address addr="10.0.0.1" addrtype="ipv4"/>
    <ports><port protocol="tcp" portid="22"><state state="open" reason="syn-ack"/><service name="ssh"/></port></ports>
  </host>
  <host><status state="down"/><address addr="10.0.0.2" addrtype="ipv4"/></host>
</nmaprun>`

// fakeRunner returns a canned result and remembers what it was asked.
type fakeRunner struct {
	outcome *scanning.Outcome
	err     error

	targets string
	mode    scanning.Mode
}

func (f *fakeRunner) RunScan(_ context.Context, targets string, mode scanning.Mode) (*scanning.Outcome, error) {
	f.targets = targets
	f.mode = mode
	return f.outcome, f.err
}

func (f *fakeRunner) ActiveScans() int { return 0 }

type recordedEvent struct {
	Type  string
	Event ScanEvent
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBroadcaster) Broadcast(eventType string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	event, _ := data.(ScanEvent)
	b.events = append(b.events, recordedEvent{Type: eventType, Event: event})
	return nil
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

type parseCounter struct {
	metrics.Nop
	mu     sync.Mutex
	errors int
	hosts  map[string]int
}

func (p *parseCounter) IncrementParseErrors() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors++
}

func (p *parseCounter) IncrementHostsParsed(state string, count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hosts == nil {
		p.hosts = make(map[string]int)
	}
	p.hosts[state] += count
}

func TestScanHandler_RunScan(t *testing.T) {
	stamp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		body       map[string]string
		runner     *fakeRunner
		wantStatus int
		wantEvents []string
		check      func(t *testing.T, body map[string]interface{})
	}{
		{
			name: "success",
			body: map[string]string{"targets": "10.0.0.1", "mode": "quick"},
			runner: &fakeRunner{outcome: &scanning.Outcome{
				Kind:      scanning.OutcomeSuccess,
				Output:    []byte(sampleReport),
				SavedPath: "/out/nmap_scan.xml",
				Timestamp: stamp,
			}},
			wantStatus: http.StatusOK,
			wantEvents: []string{EventScanStarted, EventScanCompleted},
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, true, body["success"])
				assert.Equal(t, sampleReport, body["xml"])
				assert.Equal(t, "/out/nmap_scan.xml", body["file"])
				assert.Equal(t, "2024-01-02T03:04:05Z", body["timestamp"])
			},
		},
		{
			name:       "missing targets",
			body:       map[string]string{"targets": ""},
			runner:     &fakeRunner{err: apierrors.ErrMissingTargets()},
			wantStatus: http.StatusBadRequest,
			wantEvents: []string{EventScanStarted, EventScanFailed},
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "MISSING_TARGETS", body["code"])
				assert.Equal(t, "No targets provided", body["error"])
			},
		},
		{
			name:       "invalid targets",
			body:       map[string]string{"targets": "not a host!"},
			runner:     &fakeRunner{err: apierrors.ErrInvalidTargets("not a host!")},
			wantStatus: http.StatusBadRequest,
			wantEvents: []string{EventScanStarted, EventScanFailed},
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "INVALID_TARGETS", body["code"])
			},
		},
		{
			name: "soft failure returns raw output",
			body: map[string]string{"targets": "10.0.0.1"},
			runner: &fakeRunner{outcome: &scanning.Outcome{
				Kind:    scanning.OutcomeToolError,
				Code:    apierrors.CodeNoStructuredOutput,
				Message: "No XML output from nmap",
				Output:  []byte("Starting Nmap"),
			}},
			wantStatus: http.StatusOK,
			wantEvents: []string{EventScanStarted, EventScanFailed},
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "No XML output from nmap", body["error"])
				assert.Equal(t, "Starting Nmap", body["xml"])
				assert.NotContains(t, body, "success")
			},
		},
		{
			name: "tool error carries exit code",
			body: map[string]string{"targets": "10.0.0.1"},
			runner: &fakeRunner{outcome: &scanning.Outcome{
				Kind:     scanning.OutcomeToolError,
				Code:     apierrors.CodeToolError,
				Message:  "Failed to resolve \"nohost\".",
				ExitCode: 1,
			}},
			wantStatus: http.StatusInternalServerError,
			wantEvents: []string{EventScanStarted, EventScanFailed},
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "TOOL_ERROR", body["code"])
				assert.Equal(t, "Failed to resolve \"nohost\".", body["error"])
				assert.Equal(t, float64(1), body["exit_code"])
			},
		},
		{
			name: "tool not installed",
			body: map[string]string{"targets": "10.0.0.1"},
			runner: &fakeRunner{outcome: &scanning.Outcome{
				Kind:    scanning.OutcomeProcessError,
				Code:    apierrors.CodeToolNotInstalled,
				Message: "nmap not found in PATH. Please install nmap.",
			}},
			wantStatus: http.StatusInternalServerError,
			wantEvents: []string{EventScanStarted, EventScanFailed},
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "TOOL_NOT_INSTALLED", body["code"])
				assert.NotContains(t, body, "exit_code")
			},
		},
		{
			name:       "no slot available",
			body:       map[string]string{"targets": "10.0.0.1"},
			runner:     &fakeRunner{err: apierrors.NewScanError(apierrors.CodeCanceled, "scan was not started")},
			wantStatus: http.StatusServiceUnavailable,
			wantEvents: []string{EventScanStarted, EventScanFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &recordingBroadcaster{}
			handler := NewScanHandler(tt.runner, events, nil, createTestLogger(), 0)

			rec := httptest.NewRecorder()
			handler.RunScan(rec, jsonRequest(t, "/api/scan/run", tt.body))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantEvents, events.types())

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestScanHandler_RunScanPassesModeAndTargets(t *testing.T) {
	runner := &fakeRunner{outcome: &scanning.Outcome{Kind: scanning.OutcomeSuccess, Output: []byte(sampleReport)}}
	handler := NewScanHandler(runner, nil, nil, createTestLogger(), 0)

	rec := httptest.NewRecorder()
	handler.RunScan(rec, jsonRequest(t, "/api/scan/run", map[string]string{
		"targets": "10.0.0.1, example.com",
		"mode":    "SvcDetect",
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10.0.0.1, example.com", runner.targets)
	assert.Equal(t, scanning.ModeServiceDetect, runner.mode)
}

func TestScanHandler_RunScanOutlivesClient(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake nmap scripts need a POSIX shell")
	}

	binary := filepath.Join(t.TempDir(), "nmap")
	script := "#!/bin/sh\nsleep 1\ncat <<'EOF'\n" + sampleReport + "\nEOF\n"
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o755)) // #nosec G306 - test binary

	outDir := t.TempDir()
	scanner := scanning.NewScanner(scanning.Options{
		Binary:        binary,
		OutputDir:     outDir,
		MaxConcurrent: 1,
		Logger:        logging.NewDiscard(),
	})
	defer func() { _ = scanner.Close() }()
	handler := NewScanHandler(scanner, nil, nil, createTestLogger(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(200*time.Millisecond, cancel)

	req := jsonRequest(t, "/api/scan/run", map[string]string{"targets": "10.0.0.1"}).WithContext(ctx)
	rec := httptest.NewRecorder()
	handler.RunScan(rec, req)

	require.Error(t, ctx.Err(), "client went away before nmap finished")
	require.Equal(t, http.StatusOK, rec.Code)

	var body RunScanResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
	require.NotEmpty(t, body.File)
	assert.Equal(t, outDir, filepath.Dir(body.File))

	saved, err := os.ReadFile(body.File)
	require.NoError(t, err)
	assert.Contains(t, string(saved), "<nmaprun")
}

func TestScanHandler_RunScanBadBody(t *testing.T) {
	runner := &fakeRunner{}
	handler := NewScanHandler(runner, nil, nil, createTestLogger(), 0)

	req := httptest.NewRequest(http.MethodPost, "/api/scan/run", nil)
	rec := httptest.NewRecorder()
	handler.RunScan(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, runner.targets, "scanner is not called")
}

func TestScanHandler_ParseScan(t *testing.T) {
	tests := []struct {
		name       string
		xml        string
		wantStatus int
		wantError  string
		wantHosts  int
		wantErrors int
	}{
		{
			name:       "report",
			xml:        sampleReport,
			wantStatus: http.StatusOK,
			wantHosts:  2,
		},
		{
			name:       "missing xml",
			xml:        "",
			wantStatus: http.StatusBadRequest,
			wantError:  "No XML provided",
		},
		{
			name:       "malformed",
			xml:        "<nmaprun><host>",
			wantStatus: http.StatusInternalServerError,
			wantErrors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := &parseCounter{}
			handler := NewScanHandler(&fakeRunner{}, nil, counter, createTestLogger(), 0)

			rec := httptest.NewRecorder()
			handler.ParseScan(rec, jsonRequest(t, "/api/scan/parse", map[string]string{"xml": tt.xml}))

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantErrors, counter.errors)

			if tt.wantStatus != http.StatusOK {
				resp := decodeError(t, rec)
				if tt.wantError != "" {
					assert.Equal(t, tt.wantError, resp.Error)
				}
				return
			}

			var resp ParseResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.True(t, resp.Success)
			assert.Len(t, resp.Hosts, tt.wantHosts)
			assert.Equal(t, 2, resp.Summary.Total)
			assert.Equal(t, 1, resp.Summary.Up)
			assert.Equal(t, 1, resp.Summary.Down)
			assert.Equal(t, map[string]int{"up": 1, "down": 1}, counter.hosts)
		})
	}
}
