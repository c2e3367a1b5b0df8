package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/nmapdeck/internal/export"
	"github.com/anstrom/nmapdeck/internal/history"
	"github.com/anstrom/nmapdeck/internal/results"
)

// emptyCell fills table cells for absent values.
const emptyCell = "-"

// displayJSON writes v as indented JSON.
func displayJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// displayHostsTable prints one row per port. Hosts without ports still get
// a row so that down hosts are visible.
func displayHostsTable(w io.Writer, result *results.Result) {
	table := tablewriter.NewWriter(w)
	table.Header("Address", "State", "MAC", "OS", "Port", "Port State", "Service", "Version")

	for i := range result.Hosts {
		host := &result.Hosts[i]
		hostCells := []string{
			valueOr(host.Address),
			host.State,
			macCell(host),
			valueOr(host.OSGuess),
		}
		if len(host.Ports) == 0 {
			_ = table.Append(append(hostCells, emptyCell, emptyCell, emptyCell, emptyCell))
			continue
		}
		for _, port := range host.Ports {
			_ = table.Append(append(append([]string{}, hostCells...),
				port.Port+"/"+port.Protocol, port.State, port.Service, port.Version))
		}
	}

	_ = table.Render()
	displaySummary(w, result.Summary)
}

func displaySummary(w io.Writer, s results.Summary) {
	fmt.Fprintf(w, "\n%d host(s): %d up, %d down\n", s.Total, s.Up, s.Down)
}

func displayRunInfo(w io.Writer, info *results.RunInfo) {
	fmt.Fprintf(w, "Scanner:  %s %s\n", info.Scanner, info.Version)
	fmt.Fprintf(w, "Command:  %s\n", info.Args)
	fmt.Fprintf(w, "Started:  %s\n", info.Start)
	if info.Finished != "" {
		fmt.Fprintf(w, "Finished: %s (%.2fs, %s)\n", info.Finished, info.Elapsed, info.Exit)
	}
	fmt.Fprintln(w)
}

func displayHistoryTable(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No scans recorded.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Time", "Targets", "Mode", "Hosts Up", "Total", "File")
	for _, e := range entries {
		_ = table.Append([]string{
			e.ID,
			e.Timestamp.Local().Format(time.DateTime),
			e.Targets,
			e.Mode,
			strconv.Itoa(e.Summary.Up),
			strconv.Itoa(e.Summary.Total),
			e.File,
		})
	}
	_ = table.Render()
}

func displayExportsTable(w io.Writer, files []export.File) {
	if len(files) == 0 {
		fmt.Fprintln(w, "No saved scans or exports.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("Name", "Size", "Modified")
	for _, f := range files {
		_ = table.Append([]string{
			f.Name,
			formatSize(f.Size),
			f.ModTime.Local().Format(time.DateTime),
		})
	}
	_ = table.Render()
}

func macCell(host *results.Host) string {
	mac := valueOr(host.MAC)
	if host.MACVendor != nil && *host.MACVendor != "" {
		mac += " (" + *host.MACVendor + ")"
	}
	return mac
}

func valueOr(s *string) string {
	if s == nil || *s == "" {
		return emptyCell
	}
	return *s
}

// formatSize renders a byte count with a binary unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
