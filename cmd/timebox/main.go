// Command timebox runs, validates and inspects reaction dispatch
// scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/timebox/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
