// Package main is the entry point for the minerd daemon and CLI.
package main

import (
	"os"

	"github.com/indexd/miner/internal/cli"
)

// Version information (set at build time via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)

	err := cli.Execute()
	os.Exit(cli.ExitCode(err))
}
