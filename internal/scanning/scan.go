package scanning

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/nmapdeck/internal/errors"
	"github.com/anstrom/nmapdeck/internal/logging"
	"github.com/anstrom/nmapdeck/internal/metrics"
	"github.com/anstrom/nmapdeck/internal/targets"
)

// DefaultBinary is the nmap executable looked up in PATH.
const DefaultBinary = "nmap"

// Options configures a Scanner.
type Options struct {
	// Binary is the nmap executable, DefaultBinary when empty.
	Binary string

	// OutputDir receives raw XML reports. It must exist.
	OutputDir string

	// MaxConcurrent bounds simultaneous nmap processes, 0 for unbounded.
	MaxConcurrent int

	// Timeout aborts a scan after this long, 0 for no limit.
	Timeout time.Duration

	Logger  *logging.Logger
	Metrics metrics.Recorder

	// Privileged overrides the privilege probe. Used by tests.
	Privileged func() bool
}

// Scanner validates targets, builds the nmap command line and supervises
// the run. It holds no per-request state and is safe for concurrent use.
type Scanner struct {
	binary     string
	supervisor *Supervisor
	resources  ResourceManager
	timeout    time.Duration
	privileged func() bool
	metrics    metrics.Recorder
	logger     *logging.Logger
}

// NewScanner creates a Scanner from opts.
func NewScanner(opts Options) *Scanner {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Privileged == nil {
		opts.Privileged = HasElevatedPrivilege
	}

	return &Scanner{
		binary:     opts.Binary,
		supervisor: NewSupervisor(opts.OutputDir, opts.Logger),
		resources:  NewResourceManager(opts.MaxConcurrent),
		timeout:    opts.Timeout,
		privileged: opts.Privileged,
		metrics:    opts.Metrics,
		logger:     opts.Logger.WithComponent("scanner"),
	}
}

// RunScan validates targetsText and runs nmap in the given mode.
//
// Input problems (MISSING_TARGETS, INVALID_TARGETS) and failures to obtain
// a process slot are returned as errors before nmap is touched. Everything
// that happens once nmap is involved is described by the Outcome.
func (s *Scanner) RunScan(ctx context.Context, targetsText string, mode Mode) (*Outcome, error) {
	if targetsText == "" {
		s.metrics.IncrementScanErrors(mode.String(), string(errors.CodeMissingTargets))
		return nil, errors.ErrMissingTargets()
	}

	valid, err := targets.Parse(targetsText)
	if err != nil {
		s.metrics.IncrementScanErrors(mode.String(), string(errors.GetCode(err)))
		return nil, err
	}

	args := BuildArgs(mode, s.privileged(), valid)

	scanID := uuid.New().String()
	log := s.logger.WithScanID(scanID)
	if opts := optionLike(valid); len(opts) > 0 {
		log.Warn("Targets look like nmap options", "tokens", opts)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.resources.Acquire(ctx, scanID); err != nil {
		log.Warn("No scan slot available", "error", err)
		return nil, errors.WrapScanError(errors.CodeCanceled, "scan was not started", err)
	}
	s.metrics.SetActiveScans(s.resources.GetActiveScans())
	defer func() {
		s.resources.Release(scanID)
		s.metrics.SetActiveScans(s.resources.GetActiveScans())
	}()

	log.InfoScan("Starting scan", strings.Join(valid, " "),
		"mode", mode,
		"target_count", len(valid),
		"dropped", len(targets.Split(targetsText))-len(valid))

	outcome := s.supervisor.Run(ctx, s.binary, args)

	s.metrics.IncrementScansTotal(mode.String(), string(outcome.Kind))
	s.metrics.RecordScanDuration(mode.String(), outcome.Duration)
	if !outcome.Succeeded() {
		s.metrics.IncrementScanErrors(mode.String(), string(outcome.Code))
		log.ErrorScan("Scan failed", strings.Join(valid, " "), outcome.Err(),
			"mode", mode, "kind", outcome.Kind, "duration", outcome.Duration)
		return outcome, nil
	}

	log.Info("Scan completed",
		"mode", mode,
		"duration", outcome.Duration,
		"bytes", len(outcome.Output),
		"file", outcome.SavedPath)
	return outcome, nil
}

// optionLike returns the tokens nmap will read as options rather than
// targets.
func optionLike(tokens []string) []string {
	var opts []string
	for _, t := range tokens {
		if strings.HasPrefix(t, "-") {
			opts = append(opts, t)
		}
	}
	return opts
}

// ActiveScans returns how many nmap processes this scanner is running.
func (s *Scanner) ActiveScans() int {
	return s.resources.GetActiveScans()
}

// Close stops accepting new scans. Running scans are not interrupted.
func (s *Scanner) Close() error {
	return s.resources.Close()
}
