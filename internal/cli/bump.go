package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/meta/internal/bump"
	"github.com/mmr-tortoise/meta/internal/descriptor"
	"github.com/mmr-tortoise/meta/internal/model"
)

// bumpFlags holds the flag values for the bump command.
type bumpFlags struct {
	dryRun bool // --dry-run: report changes without writing
}

// NewBumpCommand creates the "bump" cobra command.
func NewBumpCommand() *cobra.Command {
	flags := &bumpFlags{}

	cmd := &cobra.Command{
		Use:   "bump <version|major|minor|patch|premajor|preminor|prepatch|prerelease>",
		Short: "Set every member to one version and update the references between them",
		Long: `Set the version of every workspace member and rewrite each dependency on
another member to point at the new version.

The argument is either an explicit semantic version (1.2.3, v1.2.3,
1.3.0-rc.1) or a keyword applied to the highest version in the workspace.
Version, tag and branch references are rewritten; path and workspace
references are left alone. Members that cannot be read are reported and
skipped; the others are still bumped.

Examples:
  meta bump 0.2.0
  meta bump minor
  meta bump prerelease --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBump(cmd, args[0], flags)
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Show what would change without writing any file")

	return cmd
}

func runBump(cmd *cobra.Command, target string, flags *bumpFlags) error {
	ws, err := loadWorkspace()
	if err != nil {
		return err
	}

	engine := bump.NewEngine(descriptor.FileStore{},
		bump.WithJobs(cfg.Jobs),
		bump.WithLogger(logger),
	)
	report, err := engine.Bump(cmd.Context(), ws, target, flags.dryRun)
	if err != nil {
		if errors.Is(err, model.ErrInvalidVersion) {
			return model.WrapCLIError(model.ExitInvalidVersion,
				fmt.Sprintf("cannot bump to %q", target), err)
		}
		return model.WrapCLIError(model.ExitGeneralError, "bump failed", err)
	}

	if err := newPrinter(cmd).Report(report); err != nil {
		return err
	}
	return report.Err()
}
