// Command osdc is the OSD client's operator CLI: mount initialization,
// foreground start, and live status/config inspection.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/osdc/cmd/osdc/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
