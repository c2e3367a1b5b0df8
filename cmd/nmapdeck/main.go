// Command nmapdeck runs nmap scans and serves their results over HTTP.
package main

import "github.com/anstrom/nmapdeck/cmd/cli"

// Build information, set through -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
