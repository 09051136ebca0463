package main

import (
	"fmt"
	"os"

	"github.com/jmgilman/go/ghtree/internal/cli"
)

// main is the entry point for the ghtree command.
func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
