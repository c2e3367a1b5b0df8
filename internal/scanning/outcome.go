package scanning

import (
	"time"

	"github.com/anstrom/nmapdeck/internal/errors"
)

// OutcomeKind discriminates the result of one nmap run.
type OutcomeKind string

const (
	// OutcomeSuccess means nmap produced an XML report.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeToolError means nmap ran but reported a failure.
	OutcomeToolError OutcomeKind = "tool_error"
	// OutcomeProcessError means nmap could not be run to completion.
	OutcomeProcessError OutcomeKind = "process_error"
)

// Outcome is the result of supervising one nmap process.
type Outcome struct {
	Kind OutcomeKind

	// Output is nmap's stdout, verbatim. Set on success and on the
	// no-structured-output tool error.
	Output []byte

	// SavedPath is where Output was persisted, empty if persisting failed.
	SavedPath string

	Timestamp time.Time
	Duration  time.Duration

	// Message is stderr for tool errors and a description for process errors.
	Message  string
	ExitCode int
	Code     errors.ErrorCode

	// Args is the argument vector nmap was started with.
	Args []string
}

// Succeeded reports whether the run produced an XML report.
func (o *Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// Soft reports whether the run failed without any error output from nmap,
// only a missing report. The raw stdout is still available in Output.
func (o *Outcome) Soft() bool {
	return o.Kind == OutcomeToolError && o.Code == errors.CodeNoStructuredOutput
}

// Err returns the failure as a coded error, or nil on success.
func (o *Outcome) Err() error {
	if o.Succeeded() {
		return nil
	}
	return errors.NewScanError(o.Code, o.Message).WithExitCode(o.ExitCode)
}
