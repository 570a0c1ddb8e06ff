package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/meta/internal/git"
	"github.com/mmr-tortoise/meta/internal/model"
	"github.com/mmr-tortoise/meta/internal/runner"
)

// repoOpFactory builds the operation a git command runs on every
// repository of the workspace.
type repoOpFactory func(ws *model.Workspace, gm *git.Manager) runner.Op

// NewGitCommands creates the commands forwarded to git in every member
// repository: branch, checkout, merge, push, pull and fetch.
func NewGitCommands() []*cobra.Command {
	return []*cobra.Command{
		{
			Use:   "branch <name>",
			Short: "Switch every repository to a branch, creating it where missing",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				name := args[0]
				return runOnRepositories(cmd, "branch", func(_ *model.Workspace, gm *git.Manager) runner.Op {
					return func(ctx context.Context, t runner.Target) (string, error) {
						created, err := gm.SwitchBranch(ctx, t.Dir, name)
						if err != nil {
							return "", err
						}
						if created {
							return "created branch " + name, nil
						}
						return "switched to " + name, nil
					}
				})
			},
		},
		{
			Use:   "checkout <ref>",
			Short: "Check out a branch or ref in every repository",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ref := args[0]
				return runOnRepositories(cmd, "checkout", func(_ *model.Workspace, gm *git.Manager) runner.Op {
					return func(ctx context.Context, t runner.Target) (string, error) {
						return "checked out " + ref, gm.Checkout(ctx, t.Dir, ref)
					}
				})
			},
		},
		{
			Use:   "merge <branch>",
			Short: "Merge a branch into the current branch of every repository",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				branch := args[0]
				return runOnRepositories(cmd, "merge", func(_ *model.Workspace, gm *git.Manager) runner.Op {
					return func(ctx context.Context, t runner.Target) (string, error) {
						return "merged " + branch, gm.Merge(ctx, t.Dir, branch)
					}
				})
			},
		},
		{
			Use:   "push",
			Short: "Push the current branch of every repository and set its upstream",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnRepositories(cmd, "push", func(_ *model.Workspace, gm *git.Manager) runner.Op {
					return func(ctx context.Context, t runner.Target) (string, error) {
						branch, err := gm.Push(ctx, t.Dir, cfg.Remote)
						return fmt.Sprintf("pushed %s to %s", branch, cfg.Remote), err
					}
				})
			},
		},
		{
			Use:   "pull",
			Short: "Pull the current branch of every repository",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnRepositories(cmd, "pull", func(_ *model.Workspace, gm *git.Manager) runner.Op {
					return func(ctx context.Context, t runner.Target) (string, error) {
						return "pulled from " + cfg.Remote, gm.Pull(ctx, t.Dir, cfg.Remote)
					}
				})
			},
		},
		{
			Use:   "fetch",
			Short: "Fetch the remote of every repository",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnRepositories(cmd, "fetch", func(_ *model.Workspace, gm *git.Manager) runner.Op {
					return func(ctx context.Context, t runner.Target) (string, error) {
						return "fetched " + cfg.Remote, gm.Fetch(ctx, t.Dir, cfg.Remote)
					}
				})
			},
		},
	}
}

// runOnRepositories runs the operation built by factory once per git
// repository of the workspace and renders the report.
//
// Members sharing a repository get one invocation. Members outside any
// repository are reported as failures after the repository results.
func runOnRepositories(cmd *cobra.Command, name string, factory repoOpFactory) error {
	ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	gm, err := requireGit()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	targets, failures := runner.GroupByRepository(ctx, ws, gm)
	VerboseLog("%s: %d repositories for %d members", name, len(targets), len(ws.Members))

	r := runner.New(runner.WithJobs(cfg.Jobs), runner.WithLogger(logger))
	results := r.ApplyToAll(ctx, targets, factory(ws, gm))

	report := &model.Report{Command: name, Results: append(results, failures...)}
	if err := newPrinter(cmd).Report(report); err != nil {
		return err
	}
	return report.Err()
}
