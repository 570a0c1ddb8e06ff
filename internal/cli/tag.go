package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/meta/internal/git"
	"github.com/mmr-tortoise/meta/internal/model"
	"github.com/mmr-tortoise/meta/internal/runner"
	"github.com/mmr-tortoise/meta/internal/version"
)

// removeFlags holds the flag values for remove-branch and remove-tag.
type removeFlags struct {
	remote bool // --remote: also delete the ref on the remote
}

// NewTagCommands creates tag, push-tag, remove-tag and remove-branch.
func NewTagCommands() []*cobra.Command {
	removeBranch := &removeFlags{}
	removeTag := &removeFlags{}

	tagCmd := &cobra.Command{
		Use:   "tag [version]",
		Short: "Tag HEAD of every repository with <tag-prefix><version>",
		Long: `Create a lightweight tag at HEAD of every repository.

Without an argument the version the repository's members share is used.

Examples:
  meta tag
  meta tag 0.2.0
  meta --tag-prefix release- tag`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit, err := explicitTag(args)
			if err != nil {
				return err
			}
			return runOnRepositories(cmd, "tag", func(ws *model.Workspace, gm *git.Manager) runner.Op {
				return func(ctx context.Context, t runner.Target) (string, error) {
					name, err := repositoryTag(ws, t, explicit)
					if err != nil {
						return "", err
					}
					return "tagged " + name, gm.Tag(ctx, t.Dir, name)
				}
			})
		},
	}

	pushTagCmd := &cobra.Command{
		Use:   "push-tag [version]",
		Short: "Push the version tag of every repository to the remote",
		Long: `Push <tag-prefix><version> of every repository to the remote.

Without an argument the version the repository's members share is used.

Examples:
  meta push-tag
  meta --remote-name upstream push-tag 0.2.0`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit, err := explicitTag(args)
			if err != nil {
				return err
			}
			return runOnRepositories(cmd, "push-tag", func(ws *model.Workspace, gm *git.Manager) runner.Op {
				return func(ctx context.Context, t runner.Target) (string, error) {
					name, err := repositoryTag(ws, t, explicit)
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("pushed tag %s to %s", name, cfg.Remote), gm.PushTag(ctx, t.Dir, cfg.Remote, name)
				}
			})
		},
	}

	removeTagCmd := &cobra.Command{
		Use:   "remove-tag <version|tag>",
		Short: "Delete a tag in every repository",
		Long: `Delete a tag in every repository. A version argument is turned into a tag
name with the tag prefix; anything else is used as the tag name as is.

With --remote the tag is also deleted on the remote, and repositories where
it only exists remotely do not fail.

Examples:
  meta remove-tag 0.2.0
  meta remove-tag v0.2.0 --remote`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if v, err := version.Validate(name); err == nil {
				name = version.TagName(cfg.TagPrefix, v)
			}
			return runOnRepositories(cmd, "remove-tag", func(_ *model.Workspace, gm *git.Manager) runner.Op {
				return func(ctx context.Context, t runner.Target) (string, error) {
					remote := remoteFor(removeTag)
					return removedMessage("tag", name, remote), gm.RemoveTag(ctx, t.Dir, name, remote)
				}
			})
		},
	}
	removeTagCmd.Flags().BoolVarP(&removeTag.remote, "remote", "r", false, "Also delete the tag on the remote")

	removeBranchCmd := &cobra.Command{
		Use:   "remove-branch <name>",
		Short: "Force-delete a branch in every repository",
		Long: `Force-delete a local branch in every repository.

With --remote the branch is also deleted on the remote, and repositories
where it only exists remotely do not fail.

Examples:
  meta remove-branch release-0.2
  meta remove-branch release-0.2 --remote`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return runOnRepositories(cmd, "remove-branch", func(_ *model.Workspace, gm *git.Manager) runner.Op {
				return func(ctx context.Context, t runner.Target) (string, error) {
					remote := remoteFor(removeBranch)
					return removedMessage("branch", name, remote), gm.RemoveBranch(ctx, t.Dir, name, remote)
				}
			})
		},
	}
	removeBranchCmd.Flags().BoolVarP(&removeBranch.remote, "remote", "r", false, "Also delete the branch on the remote")

	return []*cobra.Command{tagCmd, pushTagCmd, removeTagCmd, removeBranchCmd}
}

// explicitTag returns the tag named by an optional version argument, or ""
// when the argument is absent. An invalid version is a fatal error.
func explicitTag(args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	v, err := version.Validate(args[0])
	if err != nil {
		if errors.Is(err, model.ErrInvalidVersion) {
			return "", model.WrapCLIError(model.ExitInvalidVersion, "cannot derive a tag", err)
		}
		return "", err
	}
	return version.TagName(cfg.TagPrefix, v), nil
}

// repositoryTag returns explicit, or the tag derived from the version the
// members of t share.
func repositoryTag(ws *model.Workspace, t runner.Target, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	docs, err := readMembers(ws, t)
	if err != nil {
		return "", err
	}
	v, err := commonVersion(t, docs)
	if err != nil {
		return "", err
	}
	return version.TagName(cfg.TagPrefix, v), nil
}

func remoteFor(f *removeFlags) string {
	if f.remote {
		return cfg.Remote
	}
	return ""
}

func removedMessage(kind, name, remote string) string {
	if remote == "" {
		return fmt.Sprintf("removed %s %s", kind, name)
	}
	return fmt.Sprintf("removed %s %s locally and on %s", kind, name, remote)
}
