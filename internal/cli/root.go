// Package cli implements the cobra-based CLI commands for meta.
//
// Each subcommand family (init, bump, list, the git forwarding commands and
// the tag commands) is defined in its own file within this package. This
// file defines the root command that serves as the parent for all
// subcommands and handles global flags, configuration and exit codes.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/meta/internal/config"
	"github.com/mmr-tortoise/meta/internal/git"
	"github.com/mmr-tortoise/meta/internal/manifest"
	"github.com/mmr-tortoise/meta/internal/model"
	"github.com/mmr-tortoise/meta/internal/ui"
)

// Global state shared across all subcommands. The output flags are bound
// to persistent flags on the root command; cfg and logger are rebuilt by
// the root command's PersistentPreRunE on every invocation.
var (
	// jsonOutput selects JSON output for reports and errors.
	jsonOutput bool

	// yamlOutput selects YAML output for reports and errors.
	yamlOutput bool

	// cfg is the resolved configuration of the running command.
	cfg = defaultConfig()

	// logger writes diagnostics to stderr. Debug messages are shown
	// only with --verbose.
	logger = newLogger(os.Stderr, false)
)

// Version, Commit and Date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action. It provides help
// text and global flags, and loads the configuration before any
// subcommand runs.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "meta",
		Short: "Coordinate versions and git operations across a meta-workspace",
		Long: `meta manages a set of sibling repositories declared in Meta.toml.

It bumps the version of every member at once, rewriting the dependency
references between members so the workspace stays consistent, and forwards
git commands (branch, commit, push, tag, ...) to every member repository.`,

		// SilenceUsage prevents cobra from printing usage on every error.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// Execute formats them as text, JSON or YAML.
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(cmd.Flags())
			if err != nil {
				if errors.Is(err, model.ErrParse) || errors.Is(err, model.ErrIO) {
					return model.WrapCLIError(model.ExitManifestError, "failed to read settings", err)
				}
				return model.WrapCLIError(model.ExitGeneralError, "invalid configuration", err)
			}
			cfg = c
			logger = newLogger(cmd.ErrOrStderr(), cfg.Verbose)
			VerboseLog("root=%s manifest=%s remote=%s jobs=%d", cfg.Root, cfg.ManifestPath(), cfg.Remote, cfg.Jobs)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	config.AddFlags(flags)
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	flags.BoolVar(&yamlOutput, "yaml", false, "Output in YAML format")
	rootCmd.MarkFlagsMutuallyExclusive("json", "yaml")

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewBumpCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewCommitCommand())
	for _, cmd := range NewGitCommands() {
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range NewTagCommands() {
		rootCmd.AddCommand(cmd)
	}

	return rootCmd
}

// Execute runs the root command and exits with the resulting exit code.
// This is the main entry point called from main.go.
func Execute(rootCmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, rootCmd)
	stop()
	os.Exit(int(code))
}

// run executes rootCmd and translates the returned error into an exit
// code. CLIError types carry their own exit code; other errors (cobra's
// argument and flag errors, for instance) exit with code 1.
func run(ctx context.Context, rootCmd *cobra.Command) model.ExitCode {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return model.ExitSuccess
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		if !cliErr.Silent {
			printError(rootCmd.ErrOrStderr(), cliErr.Message, cliErr.Err)
		}
		return cliErr.Code
	}

	printError(rootCmd.ErrOrStderr(), err.Error(), nil)
	return model.ExitGeneralError
}

// printError outputs an error message on w in the format selected by the
// --json and --yaml flags.
func printError(w io.Writer, message string, underlying error) {
	ui.NewPrinter(w, ui.FormatFor(jsonOutput, yamlOutput)).Error(message, underlying)
}

// VerboseLog logs a debug message, which is shown only when verbose mode
// is enabled.
func VerboseLog(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

// newPrinter returns a report printer for the command's standard output.
func newPrinter(cmd *cobra.Command) *ui.Printer {
	return ui.NewPrinter(cmd.OutOrStdout(), ui.FormatFor(jsonOutput, yamlOutput))
}

func newLogger(w io.Writer, verbose bool) *log.Logger {
	l := log.NewWithOptions(w, log.Options{Prefix: "meta"})
	if verbose {
		l.SetLevel(log.DebugLevel)
	}
	return l
}

func defaultConfig() *config.Config {
	c := config.Default()
	return &c
}

// loadWorkspace loads the manifest named by the configuration. A missing
// or malformed manifest is a fatal error with ExitManifestError.
func loadWorkspace() (*model.Workspace, error) {
	path := cfg.ManifestPath()
	ws, err := manifest.Load(path)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.WrapCLIError(model.ExitManifestError, "manifest not found", err)
		}
		return nil, model.WrapCLIError(model.ExitManifestError, "failed to load manifest", err)
	}
	VerboseLog("Loaded %d members from %s", len(ws.Members), ws.ManifestPath)

	if dups := ws.Duplicates(); len(dups) > 0 {
		logger.Warn("duplicate members in manifest", "members", dups)
	}
	return ws, nil
}

// requireGit returns a git manager, or a fatal error with
// ExitGitNotInstalled when git is not on PATH.
func requireGit() (*git.Manager, error) {
	gm := git.NewManager()
	if !gm.IsInstalled() {
		return nil, model.NewCLIError(model.ExitGitNotInstalled, "git is not installed or not on PATH")
	}
	return gm, nil
}
