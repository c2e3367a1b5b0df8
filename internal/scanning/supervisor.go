package scanning

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/nmapdeck/internal/errors"
	"github.com/anstrom/nmapdeck/internal/logging"
)

const (
	// xmlMarker identifies an nmap XML report in stdout.
	xmlMarker = "<nmaprun"

	noXMLMessage = "No XML output captured"

	scanFilePrefix = "nmap_scan_"
	scanFilePerm   = 0600

	// waitDelay bounds how long Wait blocks on pipes held open by
	// grandchildren after nmap itself has exited or been killed.
	waitDelay = 5 * time.Second
)

// Supervisor runs one nmap process per call, captures both output streams
// and classifies the result. Successful reports are persisted to outputDir.
type Supervisor struct {
	outputDir string
	logger    *logging.Logger
	now       func() time.Time
}

// NewSupervisor creates a supervisor that saves reports into outputDir.
// The directory must already exist. An empty outputDir disables saving.
func NewSupervisor(outputDir string, logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Supervisor{
		outputDir: outputDir,
		logger:    logger.WithComponent("supervisor"),
		now:       time.Now,
	}
}

// Run resolves binary, executes it with args and waits for it to exit.
// It never returns nil. Classification, in order:
//   - binary missing, start failure, cancellation or death by signal with
//     nothing on stderr: OutcomeProcessError
//   - anything on stderr: OutcomeToolError carrying stderr and the exit code
//   - stdout without an XML report: OutcomeToolError coded NO_STRUCTURED_OUTPUT
//   - otherwise: OutcomeSuccess, with stdout saved to disk
func (s *Supervisor) Run(ctx context.Context, binary string, args []string) *Outcome {
	started := s.now()
	outcome := &Outcome{Timestamp: started, Args: args, ExitCode: -1}
	defer func() {
		outcome.Duration = time.Since(started)
	}()

	path, err := exec.LookPath(binary)
	if err != nil {
		notFound := errors.ErrToolNotInstalled(binary, err)
		return s.processFailure(outcome, notFound.Code, notFound.Message)
	}

	cmd := exec.CommandContext(ctx, path, args...) // #nosec G204 - args come from the mode table and validated targets
	cmd.WaitDelay = waitDelay

	// exec copies each stream on its own goroutine, so neither pipe can
	// fill up and stall nmap while the other is being read.
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Debug("Starting nmap", "path", path, "args", strings.Join(args, " "))
	runErr := cmd.Run()
	if cmd.ProcessState != nil {
		outcome.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		code := errors.CodeCanceled
		if ctxErr == context.DeadlineExceeded {
			code = errors.CodeTimeout
		}
		return s.processFailure(outcome, code, fmt.Sprintf("scan aborted: %v", ctxErr))
	}

	if stderr.Len() > 0 {
		outcome.Kind = OutcomeToolError
		outcome.Code = errors.CodeToolError
		outcome.Message = stderr.String()
		s.logger.Warn("nmap reported an error", "exit_code", outcome.ExitCode, "stderr", strings.TrimSpace(outcome.Message))
		return outcome
	}

	if runErr != nil {
		exitErr, isExit := runErr.(*exec.ExitError)
		if !isExit || outcome.ExitCode < 0 {
			// Start failure, or killed by a signal.
			return s.processFailure(outcome, errors.CodeProcessError, runErr.Error())
		}
		// Non-zero exit with a quiet stderr still counts if a report came out.
		s.logger.Debug("nmap exited non-zero", "exit_code", exitErr.ExitCode())
	}

	outcome.Output = stdout.Bytes()
	if !bytes.Contains(outcome.Output, []byte(xmlMarker)) {
		outcome.Kind = OutcomeToolError
		outcome.Code = errors.CodeNoStructuredOutput
		outcome.Message = stdout.String()
		if outcome.Message == "" {
			outcome.Message = noXMLMessage
		}
		s.logger.Warn("nmap produced no XML report", "exit_code", outcome.ExitCode, "stdout_bytes", stdout.Len())
		return outcome
	}

	outcome.Kind = OutcomeSuccess
	outcome.SavedPath = s.persist(outcome.Output, started)
	return outcome
}

func (s *Supervisor) processFailure(outcome *Outcome, code errors.ErrorCode, message string) *Outcome {
	outcome.Kind = OutcomeProcessError
	outcome.Code = code
	outcome.Message = message
	s.logger.Error("nmap process failed", "code", code, "error", message)
	return outcome
}

// persist writes the raw report and returns its path. Failures are logged
// and reported as an empty path; they never change the outcome.
func (s *Supervisor) persist(output []byte, ts time.Time) string {
	if s.outputDir == "" {
		return ""
	}

	path := filepath.Join(s.outputDir, ScanFileName(ts))
	if err := os.WriteFile(path, output, scanFilePerm); err != nil {
		s.logger.Error("Failed to save scan output", "path", path, "error", err)
		return ""
	}

	s.logger.Debug("Saved scan output", "path", path, "bytes", len(output))
	return path
}

// ScanFileName returns a unique report file name for a scan started at ts,
// for example nmap_scan_2024-05-01T10-11-12-345Z_1a2b3c4d.xml.
func ScanFileName(ts time.Time) string {
	stamp := strings.ReplaceAll(ts.UTC().Format("2006-01-02T15-04-05.000Z"), ".", "-")
	return fmt.Sprintf("%s%s_%s.xml", scanFilePrefix, stamp, uuid.New().String()[:8])
}
