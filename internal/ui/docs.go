package ui

import "github.com/mmr-tortoise/meta/internal/model"

// MemberRow is one line of the list command's output.
type MemberRow struct {
	Path    string
	Name    string
	Version string
	Format  model.DescriptorFormat

	// DependsOn lists the member's references to other workspace members.
	DependsOn []model.Dependency

	Err error
}

// The *Doc types are the serialized forms of reports. Errors are
// flattened to a kind and a message since error values do not marshal.

type reportDoc struct {
	Command   string      `json:"command" yaml:"command"`
	DryRun    bool        `json:"dryRun" yaml:"dryRun"`
	Succeeded int         `json:"succeeded" yaml:"succeeded"`
	Failed    int         `json:"failed" yaml:"failed"`
	Results   []resultDoc `json:"results" yaml:"results"`
}

type resultDoc struct {
	Path           string                   `json:"path" yaml:"path"`
	Members        []string                 `json:"members,omitempty" yaml:"members,omitempty"`
	Name           string                   `json:"name,omitempty" yaml:"name,omitempty"`
	OldVersion     string                   `json:"oldVersion,omitempty" yaml:"oldVersion,omitempty"`
	NewVersion     string                   `json:"newVersion,omitempty" yaml:"newVersion,omitempty"`
	VersionUpdated bool                     `json:"versionUpdated" yaml:"versionUpdated"`
	Dependencies   []model.DependencyChange `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Message        string                   `json:"message,omitempty" yaml:"message,omitempty"`
	OK             bool                     `json:"ok" yaml:"ok"`
	Error          *errorDoc                `json:"error,omitempty" yaml:"error,omitempty"`
}

type errorDoc struct {
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

type membersDoc struct {
	Members []memberDoc `json:"members" yaml:"members"`
}

type memberDoc struct {
	Path    string    `json:"path" yaml:"path"`
	Name    string    `json:"name,omitempty" yaml:"name,omitempty"`
	Version string    `json:"version,omitempty" yaml:"version,omitempty"`
	Format    string             `json:"format,omitempty" yaml:"format,omitempty"`
	DependsOn []model.Dependency `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	Error     *errorDoc          `json:"error,omitempty" yaml:"error,omitempty"`
}

type workspaceDoc struct {
	Manifest string   `json:"manifest" yaml:"manifest"`
	Members  []string `json:"members" yaml:"members"`
}

type fatalDoc struct {
	Error fatalError `json:"error" yaml:"error"`
}

type fatalError struct {
	Message string `json:"message" yaml:"message"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Kind    string `json:"kind,omitempty" yaml:"kind,omitempty"`
}

func newErrorDoc(err error) *errorDoc {
	if err == nil {
		return nil
	}
	return &errorDoc{Kind: model.Kind(err), Message: err.Error()}
}

func newReportDoc(r *model.Report) reportDoc {
	doc := reportDoc{
		Command:   r.Command,
		DryRun:    r.DryRun,
		Succeeded: r.Succeeded(),
		Failed:    r.Failed(),
		Results:   make([]resultDoc, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		doc.Results = append(doc.Results, resultDoc{
			Path:           res.Path,
			Members:        res.Members,
			Name:           res.Name,
			OldVersion:     res.OldVersion,
			NewVersion:     res.NewVersion,
			VersionUpdated: res.VersionUpdated,
			Dependencies:   res.Dependencies,
			Message:        res.Message,
			OK:             res.OK(),
			Error:          newErrorDoc(res.Err),
		})
	}
	return doc
}

func newMemberDoc(row MemberRow) memberDoc {
	doc := memberDoc{
		Path:    row.Path,
		Name:    row.Name,
		Version: row.Version,
		Format:    string(row.Format),
		DependsOn: row.DependsOn,
		Error:     newErrorDoc(row.Err),
	}
	return doc
}
