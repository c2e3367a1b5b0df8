package scanning

import (
	"fmt"

	"github.com/Ullaakut/nmap/v3"
)

// tcpScanToken stands in for the TCP scan technique in the mode table.
// It becomes -sS (SYN) with raw socket privileges and -sT (connect) without.
const tcpScanToken = "<tcp>"

const (
	synScanFlag     = "-sS"
	connectScanFlag = "-sT"
)

// baseArgs are present in every invocation: XML report on stdout, no DNS.
var baseArgs = []string{"-oX", "-", "-n"}

var aggressiveTiming = fmt.Sprintf("-T%d", nmap.TimingAggressive)

type modeArgs struct {
	// prefix goes before baseArgs, args after.
	prefix []string
	args   []string
}

var modeTable = map[Mode]modeArgs{
	ModePing:          {prefix: []string{"-sn"}},
	ModeQuick:         {args: []string{"--top-ports", "200", aggressiveTiming}},
	ModeFullTCP:       {args: []string{"-p-", aggressiveTiming}},
	ModeServiceDetect: {args: []string{tcpScanToken, "-sV", aggressiveTiming}},
	ModeOSDetect: {args: []string{
		"-O", tcpScanToken, "-sV", "--osscan-guess", "--traceroute", aggressiveTiming,
	}},
	ModeScriptScan: {args: []string{"-sC", "-sV", aggressiveTiming}},
	ModeDefault:    {args: []string{"-sV", aggressiveTiming}},
}

// BuildArgs returns the nmap argument vector for a scan. It has no side
// effects; privilege is passed in so callers decide how it is detected.
// Targets are appended last, in order.
func BuildArgs(mode Mode, privileged bool, targets []string) []string {
	entry, ok := modeTable[mode]
	if !ok {
		entry = modeTable[ModeDefault]
	}

	tcpFlag := connectScanFlag
	if privileged {
		tcpFlag = synScanFlag
	}

	args := make([]string, 0, len(entry.prefix)+len(baseArgs)+len(entry.args)+len(targets))
	args = append(args, entry.prefix...)
	args = append(args, baseArgs...)
	for _, a := range entry.args {
		if a == tcpScanToken {
			a = tcpFlag
		}
		args = append(args, a)
	}
	return append(args, targets...)
}
