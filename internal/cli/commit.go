package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/meta/internal/descriptor"
	"github.com/mmr-tortoise/meta/internal/git"
	"github.com/mmr-tortoise/meta/internal/model"
	"github.com/mmr-tortoise/meta/internal/runner"
)

// commitFlags holds the flag values for the commit command.
type commitFlags struct {
	message string // -m/--message: commit message
}

// NewCommitCommand creates the "commit" cobra command.
func NewCommitCommand() *cobra.Command {
	flags := &commitFlags{}

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit the package descriptors of every repository",
		Long: `Stage and commit the Cargo.toml or package.json of every member, one commit
per repository. Other changes in the working tree are not committed.
Repositories whose descriptors are unchanged are skipped.

Without --message the commit message is "Bump version to <version>", using
the version the repository's members share.

Examples:
  meta commit
  meta commit -m "Release 0.2.0"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnRepositories(cmd, "commit", func(ws *model.Workspace, gm *git.Manager) runner.Op {
				return func(ctx context.Context, t runner.Target) (string, error) {
					return commitRepository(ctx, gm, ws, t, flags.message)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&flags.message, "message", "m", "", `Commit message (default "Bump version to <version>")`)

	return cmd
}

func commitRepository(ctx context.Context, gm *git.Manager, ws *model.Workspace, t runner.Target, message string) (string, error) {
	docs, err := readMembers(ws, t)
	if err != nil {
		return "", err
	}
	if message == "" {
		v, err := commonVersion(t, docs)
		if err != nil {
			return "", err
		}
		message = "Bump version to " + v
	}

	files := make([]string, 0, len(docs))
	for _, doc := range docs {
		files = append(files, doc.Path())
	}
	committed, err := gm.Commit(ctx, t.Dir, message, files)
	if err != nil {
		return "", err
	}
	if !committed {
		return "nothing to commit", nil
	}
	return fmt.Sprintf("committed %q", message), nil
}

// readMembers reads the descriptors of the members covered by t.
func readMembers(ws *model.Workspace, t runner.Target) ([]*descriptor.Document, error) {
	docs := make([]*descriptor.Document, 0, len(t.Members))
	for _, path := range t.Members {
		doc, err := descriptor.Read(model.Member{Path: path}.Dir(ws.Root))
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", path, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// commonVersion returns the version shared by docs. Members of one
// repository that disagree on the version are an error.
func commonVersion(t runner.Target, docs []*descriptor.Document) (string, error) {
	if len(docs) == 0 {
		return "", fmt.Errorf("%w: %s has no members", model.ErrNotFound, t.Path)
	}
	v := docs[0].Version()
	for _, doc := range docs[1:] {
		if doc.Version() != v {
			versions := make([]string, 0, len(docs))
			for i, d := range docs {
				versions = append(versions, t.Members[i]+"@"+d.Version())
			}
			return "", fmt.Errorf("members of %s disagree on the version (%s); pass it explicitly",
				t.Path, strings.Join(versions, ", "))
		}
	}
	return v, nil
}
