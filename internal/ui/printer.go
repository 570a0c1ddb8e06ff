// Package ui renders command reports as styled text, JSON or YAML.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/meta/internal/model"
)

// Format selects how a Printer renders its output.
type Format string

const (
	// FormatText is human-readable, styled text.
	FormatText Format = "text"

	// FormatJSON is indented JSON for machine consumption.
	FormatJSON Format = "json"

	// FormatYAML is YAML for machine consumption.
	FormatYAML Format = "yaml"
)

// FormatFor returns the format selected by the --json and --yaml flags.
func FormatFor(jsonOutput, yamlOutput bool) Format {
	switch {
	case jsonOutput:
		return FormatJSON
	case yamlOutput:
		return FormatYAML
	default:
		return FormatText
	}
}

// Printer writes reports to w in one format.
type Printer struct {
	w      io.Writer
	format Format
	st     styles
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format, st: newStyles(w)}
}

// Report renders a command report.
func (p *Printer) Report(r *model.Report) error {
	doc := newReportDoc(r)
	switch p.format {
	case FormatJSON:
		return p.json(doc)
	case FormatYAML:
		return p.yaml(doc)
	default:
		p.reportText(r)
		return nil
	}
}

// Members renders the member listing produced by the list command.
func (p *Printer) Members(rows []MemberRow) error {
	doc := membersDoc{Members: make([]memberDoc, 0, len(rows))}
	for _, row := range rows {
		doc.Members = append(doc.Members, newMemberDoc(row))
	}
	switch p.format {
	case FormatJSON:
		return p.json(doc)
	case FormatYAML:
		return p.yaml(doc)
	default:
		p.membersText(rows)
		return nil
	}
}

// Workspace renders the members written to a manifest by init.
func (p *Printer) Workspace(ws *model.Workspace) error {
	doc := workspaceDoc{Manifest: ws.ManifestPath, Members: ws.Paths()}
	if doc.Members == nil {
		doc.Members = []string{}
	}
	switch p.format {
	case FormatJSON:
		return p.json(doc)
	case FormatYAML:
		return p.yaml(doc)
	default:
		fmt.Fprintf(p.w, "%s %s with %s\n",
			p.st.ok.Render("✓"), ws.ManifestPath, pluralize(len(ws.Members), "member"))
		for _, m := range ws.Members {
			fmt.Fprintf(p.w, "  %s\n", m.Path)
		}
		return nil
	}
}

// Error renders a fatal error. Text goes out as "Error: ..."; JSON and
// YAML carry the message, the optional detail and the error kind.
func (p *Printer) Error(message string, underlying error) {
	doc := fatalDoc{Error: fatalError{Message: message}}
	if underlying != nil {
		doc.Error.Detail = underlying.Error()
		doc.Error.Kind = model.Kind(underlying)
	}
	switch p.format {
	case FormatJSON:
		_ = p.json(doc)
	case FormatYAML:
		_ = p.yaml(doc)
	default:
		if underlying != nil {
			fmt.Fprintf(p.w, "%s %s: %v\n", p.st.fail.Render("Error:"), message, underlying)
		} else {
			fmt.Fprintf(p.w, "%s %s\n", p.st.fail.Render("Error:"), message)
		}
	}
}

func (p *Printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (p *Printer) yaml(v any) error {
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// reportText prints one line per result, followed by the rewritten
// dependencies and a summary line:
//
//	✓ core (core-lib) 0.1.0 → 0.2.0
//	✓ app (app) 0.1.0 → 0.2.0
//	    dependencies: core-lib 0.1.0 → 0.2.0
//	✗ broken: parse error: Cargo.toml: missing [package] name
//
//	2 succeeded, 1 failed
func (p *Printer) reportText(r *model.Report) {
	if r.DryRun {
		fmt.Fprintln(p.w, p.st.warn.Render("dry run: no files were written"))
	}

	for _, res := range r.Results {
		label := p.st.member.Render(res.Path)
		if len(res.Members) > 0 {
			label += " " + p.st.muted.Render("("+strings.Join(res.Members, ", ")+")")
		}

		if !res.OK() {
			fmt.Fprintf(p.w, "%s %s: %v\n", p.st.fail.Render("✗"), label, res.Err)
			continue
		}

		line := p.st.ok.Render("✓") + " " + label
		if res.Name != "" && res.Name != res.Path {
			line += " " + p.st.muted.Render("("+res.Name+")")
		}
		switch {
		case res.VersionUpdated:
			line += " " + res.OldVersion + " → " + res.NewVersion
		case res.NewVersion != "":
			line += " " + res.NewVersion
		}
		if res.Message != "" && (r.Command != "bump" || !res.Changed()) {
			line += " " + p.st.muted.Render(res.Message)
		}
		fmt.Fprintln(p.w, line)

		for _, c := range res.Dependencies {
			fmt.Fprintf(p.w, "    %s %s\n", p.st.muted.Render(c.Table+":"), c.String())
		}
	}

	summary := fmt.Sprintf("%d succeeded", r.Succeeded())
	if failed := r.Failed(); failed > 0 {
		summary += ", " + p.st.fail.Render(fmt.Sprintf("%d failed", failed))
	}
	fmt.Fprintf(p.w, "\n%s\n", summary)
}

// membersText prints a fixed-width table of members:
//
//	PATH      NAME      VERSION  FORMAT
//	core      core-lib  0.1.0    cargo
//	web       web       0.1.0    npm
//	          → core-lib 0.1.0 (dependencies, version)
func (p *Printer) membersText(rows []MemberRow) {
	if len(rows) == 0 {
		fmt.Fprintln(p.w, "No members found.")
		return
	}

	pathWidth, nameWidth := len("PATH"), len("NAME")
	for _, row := range rows {
		pathWidth = max(pathWidth, len(row.Path))
		nameWidth = max(nameWidth, len(row.Name))
	}

	fmt.Fprintln(p.w, p.st.heading.Render(
		fmt.Sprintf("%-*s  %-*s  %-10s %s", pathWidth, "PATH", nameWidth, "NAME", "VERSION", "FORMAT")))
	for _, row := range rows {
		if row.Err != nil {
			fmt.Fprintf(p.w, "%-*s  %s\n", pathWidth, row.Path, p.st.fail.Render(row.Err.Error()))
			continue
		}
		fmt.Fprintf(p.w, "%-*s  %-*s  %-10s %s\n",
			pathWidth, row.Path, nameWidth, row.Name, row.Version, row.Format)
		for _, dep := range row.DependsOn {
			fmt.Fprintf(p.w, "%*s  %s\n", pathWidth, "",
				p.st.muted.Render(fmt.Sprintf("→ %s %s (%s, %s)", dep.Name, dep.Spec, dep.Table, dep.Kind)))
		}
	}
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
