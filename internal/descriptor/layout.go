package descriptor

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mmr-tortoise/meta/internal/model"
)

// layout is the editable view of a descriptor: decoded values plus the
// byte ranges they were read from.
type layout struct {
	name             *stringValue
	version          *stringValue
	versionInherited bool
	entries          []*entry
}

// stringValue is a string token of the source document. start and end
// delimit the token including its quotes.
type stringValue struct {
	start, end int
	value      string
	quote      byte
}

// replace returns the edit that swaps the token for s, quoted the way
// the format (and, for TOML, the original token) requires.
func (v *stringValue) replace(s string, format model.DescriptorFormat) edit {
	var text string
	if format == model.FormatNPM {
		text = quoteJSON(s)
	} else {
		text = quoteTOML(s, v.quote)
	}
	return edit{start: v.start, end: v.end, text: text}
}

// field is one key of a table-form Cargo dependency
// (`{ version = "1", git = "..." }` or a `[dependencies.name]` table).
// keyStart is the offset of the field key, so keyStart to value.end spans
// the whole `key = value` pair.
type field struct {
	keyStart int
	value    *stringValue
	boolean  bool
}

// entry is one dependency entry of a descriptor.
type entry struct {
	table string
	key   string
	name  string

	// plain is set for the string form (`name = "1.0"` in Cargo, every
	// entry in package.json).
	plain *stringValue

	// fields holds the table form of a Cargo entry.
	fields map[string]*field

	// npm marks package.json entries, whose plain spec may be a git URL,
	// a path, an alias or a workspace reference.
	npm bool
}

func (e *entry) str(name string) *stringValue {
	if f, ok := e.fields[name]; ok {
		return f.value
	}
	return nil
}

// dependency converts the entry into its model form.
func (e *entry) dependency() model.Dependency {
	dep := model.Dependency{Table: e.table, Key: e.key, Name: e.name}
	if e.npm {
		dep.Kind, dep.Spec = parseNPMSpec(e.plain.value).kind, e.plain.value
		return dep
	}
	if e.plain != nil {
		dep.Kind, dep.Spec = model.KindVersion, e.plain.value
		return dep
	}

	if f, ok := e.fields["workspace"]; ok && f.boolean {
		dep.Kind, dep.Spec = model.KindWorkspace, "workspace"
		return dep
	}
	_, hasGit := e.fields["git"]
	switch {
	case hasGit && e.str("tag") != nil:
		dep.Kind, dep.Spec = model.KindGitTag, e.str("tag").value
	case hasGit && e.str("branch") != nil:
		dep.Kind, dep.Spec = model.KindGitBranch, e.str("branch").value
	case e.str("version") != nil:
		dep.Kind, dep.Spec = model.KindVersion, e.str("version").value
	case hasGit:
		dep.Kind = model.KindGit
		if v := e.str("git"); v != nil {
			dep.Spec = v.value
		}
	case e.str("path") != nil:
		dep.Kind, dep.Spec = model.KindPath, e.str("path").value
	default:
		dep.Kind = model.KindVersion
	}
	return dep
}

// tagFor derives the tag that references target, keeping the "v" style
// of the tag it replaces.
func tagFor(oldTag, target string) string {
	if strings.HasPrefix(oldTag, "v") {
		return "v" + target
	}
	return target
}

func quoteTOML(s string, quote byte) string {
	if quote == '\'' && !strings.ContainsAny(s, "'\n") {
		return "'" + s + "'"
	}
	return strconv.Quote(s)
}

func quoteJSON(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
