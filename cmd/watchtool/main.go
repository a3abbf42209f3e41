// Command watchtool is a demo harness for the watch, watchdog, and
// traffic engines, driven by a scripted scenario file.
package main

import (
	"fmt"
	"os"

	"github.com/watchcore/periodwatch/internal/cliapp"
)

func main() {
	root := cliapp.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cliapp.GetExitCode(err))
	}
}
