package cli

import (
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/meta/internal/descriptor"
	"github.com/mmr-tortoise/meta/internal/model"
	"github.com/mmr-tortoise/meta/internal/ui"
)

// NewListCommand creates the "list" cobra command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspace members with their package names and versions",
		Long: `List every member of the manifest with its package name, version and
descriptor format, followed by its dependencies on other members. Members
whose descriptor cannot be read are listed with the error.

Examples:
  meta list
  meta list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd)
		},
	}
}

func runList(cmd *cobra.Command) error {
	ws, err := loadWorkspace()
	if err != nil {
		return err
	}

	rows := make([]ui.MemberRow, 0, len(ws.Members))
	docs := make([]*descriptor.Document, 0, len(ws.Members))
	for _, m := range ws.Members {
		row := ui.MemberRow{Path: m.Path}
		doc, err := descriptor.Read(m.Dir(ws.Root))
		if err != nil {
			row.Err = err
		} else {
			row.Name = doc.Name()
			row.Version = doc.Version()
			row.Format = doc.Format()
		}
		rows = append(rows, row)
		docs = append(docs, doc)
	}

	for i, doc := range docs {
		if doc != nil {
			rows[i].DependsOn = memberDependencies(doc.Descriptor(), docs)
		}
	}

	return newPrinter(cmd).Members(rows)
}

// memberDependencies returns the entries of desc that reference another
// readable member, grouped by member in manifest order.
func memberDependencies(desc model.Descriptor, docs []*descriptor.Document) []model.Dependency {
	var deps []model.Dependency
	seen := map[string]bool{desc.Name: true}
	for _, doc := range docs {
		if doc == nil || seen[doc.Name()] {
			continue
		}
		seen[doc.Name()] = true
		deps = append(deps, desc.DependenciesOn(doc.Name())...)
	}
	return deps
}
