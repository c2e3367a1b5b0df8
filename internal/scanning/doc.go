// Package scanning turns a scan request into a supervised nmap run.
//
// # Overview
//
// A request is free-form target text plus a Mode. Scanner.RunScan validates
// the targets through the targets package, builds the argument vector with
// BuildArgs, waits for a slot from the ResourceManager and hands the command
// to a Supervisor. The result is an Outcome:
//
//   - OutcomeSuccess: nmap wrote an XML report to stdout. The report is
//     kept verbatim in Outcome.Output and saved as nmap_scan_<timestamp>.xml.
//   - OutcomeToolError: nmap wrote to stderr (Code TOOL_ERROR, with the exit
//     code), or exited without a report (Code NO_STRUCTURED_OUTPUT).
//   - OutcomeProcessError: nmap was missing (TOOL_NOT_INSTALLED), could not
//     start, was killed, or the context ended first.
//
// Invalid input never reaches nmap: RunScan returns MISSING_TARGETS or
// INVALID_TARGETS as an error instead.
//
// # Command lines
//
// Every invocation starts with "-oX - -n". The mode adds its flags from a
// fixed table; service and OS detection use a SYN scan (-sS) when the process
// has root privileges and a connect scan (-sT) otherwise:
//
//	args := scanning.BuildArgs(scanning.ModeQuick, false, []string{"10.0.0.1"})
//	// [-oX - -n --top-ports 200 -T4 10.0.0.1]
//
// # Usage
//
//	scanner := scanning.NewScanner(scanning.Options{
//		OutputDir:     "output",
//		MaxConcurrent: 4,
//	})
//
//	outcome, err := scanner.RunScan(ctx, "192.168.1.1, example.com", scanning.ModeQuick)
//	if err != nil {
//		// bad input
//	}
//	if outcome.Succeeded() {
//		result, err := results.ParseOutput(outcome.Output)
//		...
//	}
package scanning
