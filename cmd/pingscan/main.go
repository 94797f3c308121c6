// Command pingscan probes hosts over ICMP, TCP and UDP.
package main

import (
	"github.com/anstrom/pingscan/cmd/cli"
)

// Build information, set via ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
