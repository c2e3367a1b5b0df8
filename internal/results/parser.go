// Package results normalizes nmap XML reports into a flat host/port model.
package results

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/anstrom/nmapdeck/internal/errors"
)

const (
	rootElement = "nmaprun"

	stateUp      = "up"
	stateDown    = "down"
	stateUnknown = "unknown"

	// placeholder for absent service names and version strings
	noValue = "-"
)

// Host is one scanned host. Nil pointers encode as JSON null.
type Host struct {
	Address   *string `json:"address"`
	MAC       *string `json:"mac"`
	MACVendor *string `json:"macVendor"`
	State     string  `json:"state"`
	OSGuess   *string `json:"osGuess"`
	Ports     []Port  `json:"ports"`
	StartTime string  `json:"starttime,omitempty"`
	EndTime   string  `json:"endtime,omitempty"`
}

// Port is one port of a host. Port stays text because nmap does not
// promise a number there.
type Port struct {
	Protocol string `json:"protocol"`
	Port     string `json:"port"`
	State    string `json:"state"`
	Reason   string `json:"reason"`
	Service  string `json:"service"`
	Version  string `json:"version"`
}

// Summary counts hosts by state. Hosts that are neither up nor down only
// count towards Total.
type Summary struct {
	Total int `json:"total"`
	Up    int `json:"up"`
	Down  int `json:"down"`
}

// Result is a parsed report.
type Result struct {
	Hosts   []Host  `json:"hosts"`
	Summary Summary `json:"summary"`
}

// The raw report model. Every child element is a slice so that one and many
// occurrences decode the same way; first picks the one we use.
type xmlRun struct {
	Hosts []xmlHost `xml:"host"`
}

type xmlHost struct {
	StartTime string       `xml:"starttime,attr"`
	EndTime   string       `xml:"endtime,attr"`
	Status    []xmlStatus  `xml:"status"`
	Addresses []xmlAddress `xml:"address"`
	OS        []xmlOS      `xml:"os"`
	Ports     []xmlPorts   `xml:"ports"`
}

type xmlStatus struct {
	State  string `xml:"state,attr"`
	Reason string `xml:"reason,attr"`
}

type xmlAddress struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
	Vendor   string `xml:"vendor,attr"`
}

type xmlOS struct {
	Matches []xmlOSMatch `xml:"osmatch"`
}

type xmlOSMatch struct {
	Name     string `xml:"name,attr"`
	Accuracy string `xml:"accuracy,attr"`
}

type xmlPorts struct {
	Ports []xmlPort `xml:"port"`
}

type xmlPort struct {
	Protocol string       `xml:"protocol,attr"`
	PortID   string       `xml:"portid,attr"`
	State    []xmlState   `xml:"state"`
	Service  []xmlService `xml:"service"`
}

type xmlState struct {
	State  string `xml:"state,attr"`
	Reason string `xml:"reason,attr"`
}

type xmlService struct {
	Name      string `xml:"name,attr"`
	Product   string `xml:"product,attr"`
	Version   string `xml:"version,attr"`
	ExtraInfo string `xml:"extrainfo,attr"`
}

// first returns the first element of items, if any.
func first[T any](items []T) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	return items[0], true
}

// ParseOutput parses an nmap XML report.
//
// Input that is not well-formed XML, including trailing content after the
// root element, fails with MALFORMED_OUTPUT and no partial result. A
// well-formed document whose root is not nmaprun, or that has no hosts, is
// an empty successful result.
func ParseOutput(raw []byte) (*Result, error) {
	run, err := decodeRun(raw)
	if err != nil {
		return nil, errors.ErrMalformedOutput(err)
	}

	result := &Result{Hosts: make([]Host, 0, len(run.Hosts))}
	for _, h := range run.Hosts {
		host := normalizeHost(h)
		result.Hosts = append(result.Hosts, host)

		result.Summary.Total++
		switch host.State {
		case stateUp:
			result.Summary.Up++
		case stateDown:
			result.Summary.Down++
		}
	}
	return result, nil
}

// decodeRun walks the whole document so that errors anywhere, including
// after the root element, are reported.
func decodeRun(raw []byte) (*xmlRun, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	run := &xmlRun{}
	seenRoot := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if seenRoot {
				return nil, fmt.Errorf("unexpected element <%s> after document element", t.Name.Local)
			}
			seenRoot = true
			if t.Name.Local == rootElement {
				if err := dec.DecodeElement(run, &t); err != nil {
					return nil, err
				}
			} else if err := dec.Skip(); err != nil {
				return nil, err
			}
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return nil, fmt.Errorf("unexpected text %q outside document element", truncate(string(t), 32))
			}
		}
	}

	if !seenRoot {
		return nil, fmt.Errorf("no document element found")
	}
	return run, nil
}

func normalizeHost(h xmlHost) Host {
	host := Host{
		State:     stateUnknown,
		Ports:     []Port{},
		StartTime: h.StartTime,
		EndTime:   h.EndTime,
	}

	if status, ok := first(h.Status); ok && status.State != "" {
		host.State = status.State
	}

	for _, addr := range h.Addresses {
		switch addr.AddrType {
		case "ipv4", "ipv6":
			// First IP address wins.
			if host.Address == nil {
				host.Address = stringPtr(addr.Addr)
			}
		case "mac":
			if host.MAC == nil {
				host.MAC = stringPtr(addr.Addr)
				host.MACVendor = optional(addr.Vendor)
			}
		}
	}

	if osElem, ok := first(h.OS); ok {
		if match, ok := first(osElem.Matches); ok {
			host.OSGuess = optional(match.Name)
		}
	}

	if ports, ok := first(h.Ports); ok {
		for _, p := range ports.Ports {
			host.Ports = append(host.Ports, normalizePort(p))
		}
	}

	return host
}

func normalizePort(p xmlPort) Port {
	port := Port{
		Protocol: p.Protocol,
		Port:     p.PortID,
		State:    stateUnknown,
		Service:  noValue,
		Version:  noValue,
	}

	if st, ok := first(p.State); ok {
		if st.State != "" {
			port.State = st.State
		}
		port.Reason = st.Reason
	}

	if svc, ok := first(p.Service); ok {
		if svc.Name != "" {
			port.Service = svc.Name
		}
		port.Version = versionString(svc.Product, svc.Version, svc.ExtraInfo)
	}

	return port
}

// versionString joins the non-empty parts with single spaces, or returns "-".
func versionString(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	if s := strings.TrimSpace(strings.Join(kept, " ")); s != "" {
		return s
	}
	return noValue
}

func stringPtr(s string) *string {
	return &s
}

// optional returns nil for the empty string.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
