package metrics

import "time"

// Recorder is the set of measurements the scan pipeline, history stores
// and HTTP layer report. PrometheusMetrics is the production implementation;
// Nop is handy in tests.
type Recorder interface {
	IncrementScansTotal(mode, outcome string)
	RecordScanDuration(mode string, duration time.Duration)
	IncrementScanErrors(mode, code string)
	SetActiveScans(count int)

	IncrementHostsParsed(state string, count int)
	IncrementPortsParsed(protocol, state string, count int)
	IncrementParseErrors()

	RecordHistoryOperation(operation string, duration time.Duration, success bool)

	IncrementHTTPRequests(method, path, status string)
	RecordHTTPDuration(method, path string, duration time.Duration)
}

// Ensure that PrometheusMetrics implements Recorder.
var _ Recorder = (*PrometheusMetrics)(nil)

// Nop discards every measurement.
type Nop struct{}

func (Nop) IncrementScansTotal(string, string) {}
func (Nop) RecordScanDuration(string, time.Duration) {}
func (Nop) IncrementScanErrors(string, string) {}
func (Nop) SetActiveScans(int) {}
func (Nop) IncrementHostsParsed(string, int) {}
func (Nop) IncrementPortsParsed(string, string, int) {}
func (Nop) IncrementParseErrors() {}
func (Nop) RecordHistoryOperation(string, time.Duration, bool) {}
func (Nop) IncrementHTTPRequests(string, string, string) {}
func (Nop) RecordHTTPDuration(string, string, time.Duration) {}

var _ Recorder = Nop{}
