// Package main is the entry point for the Halyard CLI and daemon.
package main

import (
	"os"

	"github.com/halyard-sh/halyard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
