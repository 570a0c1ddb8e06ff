// Package main is the entry point for the meta CLI.
//
// The binary coordinates version bumps and git operations across the
// members of a meta-workspace. It delegates all functionality to the
// internal/cli package, which defines the cobra commands.
//
// Build-time variables (version, commit, date) are injected via ldflags.
// During development they default to "dev", "none" and "unknown".
package main

import (
	"github.com/mmr-tortoise/meta/internal/cli"
)

// version, commit, and date are set at build time via
// -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
