package results

import (
	"github.com/Ullaakut/nmap/v3"

	"github.com/anstrom/nmapdeck/internal/errors"
	"github.com/anstrom/nmapdeck/internal/metrics"
)

// RunInfo is the metadata nmap records about the run itself.
type RunInfo struct {
	Scanner    string  `json:"scanner"`
	Version    string  `json:"version"`
	Args       string  `json:"args"`
	Start      string  `json:"start"`
	Finished   string  `json:"finished"`
	Elapsed    float32 `json:"elapsed"`
	Exit       string  `json:"exit"`
	Summary    string  `json:"summary"`
	HostsUp    int     `json:"hostsUp"`
	HostsDown  int     `json:"hostsDown"`
	HostsTotal int     `json:"hostsTotal"`
}

// ReadRunInfo extracts run metadata from an nmap XML report using the
// nmap library's own report model.
func ReadRunInfo(raw []byte) (*RunInfo, error) {
	run := &nmap.Run{}
	if err := nmap.Parse(raw, run); err != nil {
		return nil, errors.ErrMalformedOutput(err)
	}

	return &RunInfo{
		Scanner:    run.Scanner,
		Version:    run.Version,
		Args:       run.Args,
		Start:      run.StartStr,
		Finished:   run.Stats.Finished.TimeStr,
		Elapsed:    run.Stats.Finished.Elapsed,
		Exit:       run.Stats.Finished.Exit,
		Summary:    run.Stats.Finished.Summary,
		HostsUp:    run.Stats.Hosts.Up,
		HostsDown:  run.Stats.Hosts.Down,
		HostsTotal: run.Stats.Hosts.Total,
	}, nil
}

// Record reports host and port counts of r to rec.
func (r *Result) Record(rec metrics.Recorder) {
	hostStates := make(map[string]int)
	type portKey struct{ protocol, state string }
	portStates := make(map[portKey]int)

	for _, h := range r.Hosts {
		hostStates[h.State]++
		for _, p := range h.Ports {
			portStates[portKey{p.Protocol, p.State}]++
		}
	}

	for state, n := range hostStates {
		rec.IncrementHostsParsed(state, n)
	}
	for key, n := range portStates {
		rec.IncrementPortsParsed(key.protocol, key.state, n)
	}
}
