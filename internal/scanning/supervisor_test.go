package scanning

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/nmapdeck/internal/errors"
	"github.com/anstrom/nmapdeck/internal/logging"
)

const sampleReport = `<?xml version="1.0" encoding="UTF-8"?>
<nmaprun scanner="nmap" args="nmap -oX - 10.0.0.1" start="1700000000" version="7.94">
<host><status state="up" reason="arp-response"/><address addr="10.0.0.1" addrtype="ipv4"/></host>
<runstats><finished time="1700000001" elapsed="1.00" exit="success"/><hosts up="1" down="0" total="1"/></runstats>
</nmaprun>`

// fakeNmap writes an executable shell script standing in for nmap.
func fakeNmap(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake nmap scripts need a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "nmap")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755)) // #nosec G306 - test binary
	return path
}

func reportScript() string {
	return "cat <<'EOF'\n" + sampleReport + "\nEOF"
}

func TestSupervisorRun(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		kind     OutcomeKind
		code     errors.ErrorCode
		exitCode int
		message  string
		saved    bool
	}{
		{
			name:   "xml report is a success",
			script: reportScript(),
			kind:   OutcomeSuccess,
			saved:  true,
		},
		{
			name:   "non-zero exit with report and quiet stderr is a success",
			script: reportScript() + "\nexit 3",
			kind:   OutcomeSuccess,
			saved:  true,
		},
		{
			name:     "stderr is a tool error",
			script:   "echo 'Failed to resolve \"nope\".' >&2\nexit 1",
			kind:     OutcomeToolError,
			code:     errors.CodeToolError,
			exitCode: 1,
			message:  "Failed to resolve \"nope\".\n",
		},
		{
			name:     "stderr wins over a clean exit and a report",
			script:   reportScript() + "\necho 'WARNING: something' >&2",
			kind:     OutcomeToolError,
			code:     errors.CodeToolError,
			exitCode: 0,
			message:  "WARNING: something\n",
		},
		{
			name:     "text without report is a soft failure",
			script:   "echo 'Starting Nmap 7.94'",
			kind:     OutcomeToolError,
			code:     errors.CodeNoStructuredOutput,
			exitCode: 0,
			message:  "Starting Nmap 7.94\n",
		},
		{
			name:     "empty stdout is a soft failure",
			script:   "exit 0",
			kind:     OutcomeToolError,
			code:     errors.CodeNoStructuredOutput,
			exitCode: 0,
			message:  noXMLMessage,
		},
		{
			name:     "killed by signal is a process error",
			script:   "kill -9 $$",
			kind:     OutcomeProcessError,
			code:     errors.CodeProcessError,
			exitCode: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			binary := fakeNmap(t, tt.script)
			outDir := t.TempDir()
			sup := NewSupervisor(outDir, logging.NewDiscard())

			outcome := sup.Run(context.Background(), binary, []string{"-oX", "-", "-n", "10.0.0.1"})
			require.NotNil(t, outcome)

			assert.Equal(t, tt.kind, outcome.Kind)
			assert.Equal(t, tt.exitCode, outcome.ExitCode)
			assert.False(t, outcome.Timestamp.IsZero())

			if tt.kind == OutcomeSuccess {
				assert.NoError(t, outcome.Err())
				assert.Contains(t, string(outcome.Output), "<nmaprun")
			} else {
				assert.Equal(t, tt.code, outcome.Code)
				assert.True(t, errors.IsCode(outcome.Err(), tt.code))
			}
			if tt.message != "" {
				assert.Equal(t, tt.message, outcome.Message)
			}

			if tt.saved {
				require.NotEmpty(t, outcome.SavedPath)
				assert.Equal(t, outDir, filepath.Dir(outcome.SavedPath))
				saved, err := os.ReadFile(outcome.SavedPath)
				require.NoError(t, err)
				assert.Equal(t, outcome.Output, saved, "report must be saved verbatim")
			} else {
				entries, err := os.ReadDir(outDir)
				require.NoError(t, err)
				assert.Empty(t, entries, "failed runs must not leave files behind")
			}
		})
	}
}

func TestSupervisorSoftFailureKeepsOutput(t *testing.T) {
	binary := fakeNmap(t, "echo 'partial output'")
	outcome := NewSupervisor(t.TempDir(), logging.NewDiscard()).Run(context.Background(), binary, nil)

	assert.True(t, outcome.Soft())
	assert.Equal(t, "partial output\n", string(outcome.Output))
}

func TestSupervisorPassesArgs(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	binary := fakeNmap(t, "printf '%s\\n' \"$@\" > '"+argsFile+"'\n"+reportScript())

	args := []string{"-sn", "-oX", "-", "-n", "10.0.0.1", "example.com"}
	outcome := NewSupervisor("", logging.NewDiscard()).Run(context.Background(), binary, args)
	require.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Empty(t, outcome.SavedPath, "saving is disabled without an output dir")

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, args, strings.Fields(string(recorded)))
	assert.Equal(t, args, outcome.Args)
}

func TestSupervisorMissingBinary(t *testing.T) {
	outcome := NewSupervisor(t.TempDir(), logging.NewDiscard()).
		Run(context.Background(), "nmap-does-not-exist-anywhere", nil)

	assert.Equal(t, OutcomeProcessError, outcome.Kind)
	assert.Equal(t, errors.CodeToolNotInstalled, outcome.Code)
	assert.Contains(t, outcome.Message, "not found in PATH")
}

func TestSupervisorTimeout(t *testing.T) {
	binary := fakeNmap(t, "exec sleep 5")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	started := time.Now()
	outcome := NewSupervisor(t.TempDir(), logging.NewDiscard()).Run(ctx, binary, nil)

	assert.Less(t, time.Since(started), 4*time.Second)
	assert.Equal(t, OutcomeProcessError, outcome.Kind)
	assert.Equal(t, errors.CodeTimeout, outcome.Code)
}

func TestSupervisorDrainsBothStreams(t *testing.T) {
	// 100 rounds of 4000 bytes on each stream, far beyond a pipe buffer.
	const chunk, rounds = 4000, 100
	script := `i=0
while [ $i -lt 100 ]; do
  head -c 4000 /dev/zero | tr '\0' e >&2
  head -c 4000 /dev/zero | tr '\0' o
  i=$((i+1))
done
` + reportScript()
	binary := fakeNmap(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	outcome := NewSupervisor(t.TempDir(), logging.NewDiscard()).Run(ctx, binary, nil)

	require.NoError(t, ctx.Err(), "nmap stalled on a full pipe")
	assert.Equal(t, OutcomeToolError, outcome.Kind)
	assert.Equal(t, errors.CodeToolError, outcome.Code)
	assert.Len(t, outcome.Message, chunk*rounds)
	assert.Equal(t, strings.Repeat("e", chunk*rounds), outcome.Message)
}

func TestSupervisorUnwritableOutputDir(t *testing.T) {
	binary := fakeNmap(t, reportScript())
	missing := filepath.Join(t.TempDir(), "does", "not", "exist")

	outcome := NewSupervisor(missing, logging.NewDiscard()).Run(context.Background(), binary, nil)

	assert.Equal(t, OutcomeSuccess, outcome.Kind, "save failures never fail the scan")
	assert.Empty(t, outcome.SavedPath)
	assert.NotEmpty(t, outcome.Output)
}

func TestScanFileName(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 11, 12, 345_000_000, time.FixedZone("CEST", 2*60*60))

	name := ScanFileName(ts)
	assert.True(t, strings.HasPrefix(name, "nmap_scan_2024-05-01T08-11-12-345Z_"), name)
	assert.True(t, strings.HasSuffix(name, ".xml"))
	assert.Len(t, name, len("nmap_scan_2024-05-01T08-11-12-345Z_")+8+len(".xml"))
	assert.NotEqual(t, name, ScanFileName(ts), "names for the same instant must differ")
}
