package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/meta/internal/manifest"
	"github.com/mmr-tortoise/meta/internal/model"
)

// initFlags holds the flag values for the init command.
type initFlags struct {
	force bool // --force: overwrite an existing manifest
}

// NewInitCommand creates the "init" cobra command.
func NewInitCommand() *cobra.Command {
	flags := &initFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create Meta.toml from the packages found under the workspace root",
		Long: `Scan the immediate subdirectories of the workspace root for Cargo.toml and
package.json files and write their paths to the manifest.

Cargo and npm workspaces found in a subdirectory are expanded, so every
package they declare becomes a member.

Examples:
  meta init
  meta init --force
  meta --root ~/src/project init`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite an existing manifest")

	return cmd
}

func runInit(cmd *cobra.Command, flags *initFlags) error {
	path := cfg.ManifestPath()
	if manifest.Exists(path) && !flags.force {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("%s already exists (use --force to overwrite)", path))
	}

	ws, err := manifest.Scan(cfg.Root)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to scan workspace", err)
	}
	if len(ws.Members) == 0 {
		logger.Warn("no packages found, manifest not written", "root", ws.Root)
		return nil
	}
	VerboseLog("Found %d members under %s", len(ws.Members), ws.Root)

	ws.ManifestPath = path
	if err := manifest.Save(path, ws); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to write manifest", err)
	}
	return newPrinter(cmd).Workspace(ws)
}
