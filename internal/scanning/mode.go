package scanning

import "strings"

// Mode names a scan profile. The set is closed: unknown names resolve to
// ModeDefault rather than failing.
type Mode string

const (
	ModePing          Mode = "ping"
	ModeQuick         Mode = "quick"
	ModeFullTCP       Mode = "full-tcp"
	ModeServiceDetect Mode = "service-detect"
	ModeOSDetect      Mode = "os-detect"
	ModeScriptScan    Mode = "script-scan"
	ModeDefault       Mode = "default"
)

// modeNames maps every accepted spelling, including the short names the web
// front end sends, onto a Mode.
var modeNames = map[string]Mode{
	"ping":           ModePing,
	"quick":          ModeQuick,
	"full-tcp":       ModeFullTCP,
	"fulltcp":        ModeFullTCP,
	"service-detect": ModeServiceDetect,
	"svcdetect":      ModeServiceDetect,
	"os-detect":      ModeOSDetect,
	"os":             ModeOSDetect,
	"script-scan":    ModeScriptScan,
	"nse":            ModeScriptScan,
	"default":        ModeDefault,
}

// ParseMode resolves a mode name. Matching ignores case and surrounding space.
func ParseMode(name string) Mode {
	if m, ok := modeNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return m
	}
	return ModeDefault
}

// Modes lists every mode in presentation order.
func Modes() []Mode {
	return []Mode{
		ModePing,
		ModeQuick,
		ModeFullTCP,
		ModeServiceDetect,
		ModeOSDetect,
		ModeScriptScan,
		ModeDefault,
	}
}

func (m Mode) String() string {
	return string(m)
}
