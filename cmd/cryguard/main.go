// Command cryguard is the entry point for the baby-cry monitor.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// errSilentExit makes main exit 1 after a command has already printed its
// own failure line.
var errSilentExit = errors.New("exit 1")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, errSilentExit) {
			fmt.Fprintf(os.Stderr, "cryguard: %v\n", err)
		}
		return 1
	}
	return 0
}
