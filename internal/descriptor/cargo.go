package descriptor

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"

	"github.com/mmr-tortoise/meta/internal/model"
)

// cargoDepTables are the table names Cargo reads dependencies from,
// including the deprecated underscore spellings.
var cargoDepTables = map[string]bool{
	"dependencies":       true,
	"dev-dependencies":   true,
	"build-dependencies": true,
	"dev_dependencies":   true,
	"build_dependencies": true,
}

// depTableLen returns how many leading key parts of path name a dependency
// table, or 0 if path is not inside one. Recognised tables are
// [dependencies] and its dev/build variants, [target.<cfg>.dependencies]
// and [workspace.dependencies].
func depTableLen(path []string) int {
	switch {
	case len(path) >= 1 && cargoDepTables[path[0]]:
		return 1
	case len(path) >= 3 && path[0] == "target" && cargoDepTables[path[2]]:
		return 3
	case len(path) >= 2 && path[0] == "workspace" && path[1] == "dependencies":
		return 2
	default:
		return 0
	}
}

// cargoParser walks the top-level expressions of a Cargo.toml and collects
// the package identity and dependency entries with their byte ranges.
type cargoParser struct {
	data    []byte
	layout  *layout
	entries map[string]*entry
}

func parseCargo(data []byte) (*layout, error) {
	// The unstable parser is purely syntactic; a full decode also catches
	// duplicate keys and tables.
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}

	c := &cargoParser{
		data:    data,
		layout:  &layout{},
		entries: make(map[string]*entry),
	}

	var (
		p       unstable.Parser
		table   []string
		inArray bool
	)
	p.Reset(data)
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table:
			table, _ = keyParts(expr.Key())
			inArray = false
		case unstable.ArrayTable:
			// [[bin]], [[test]] and friends never hold dependencies.
			table, inArray = nil, true
		case unstable.KeyValue:
			if inArray {
				continue
			}
			parts, last := keyParts(expr.Key())
			path := append(append([]string(nil), table...), parts...)
			c.keyValue(path, last, expr.Value())
		}
	}
	if err := p.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	return c.layout, nil
}

// keyParts decodes a (possibly dotted) key and returns the offset of its
// last part.
func keyParts(it unstable.Iterator) ([]string, int) {
	var (
		parts []string
		last  int
	)
	for it.Next() {
		n := it.Node()
		parts = append(parts, string(n.Data))
		last = int(n.Raw.Offset)
	}
	return parts, last
}

func (c *cargoParser) keyValue(path []string, keyStart int, value *unstable.Node) {
	if len(path) >= 2 && path[0] == "package" {
		switch path[1] {
		case "name":
			if len(path) == 2 && value.Kind == unstable.String {
				c.layout.name = c.stringValue(value)
			}
		case "version":
			if len(path) == 2 && value.Kind == unstable.String {
				c.layout.version = c.stringValue(value)
			} else {
				// version.workspace = true or version = { workspace = true }
				c.layout.versionInherited = true
			}
		}
		return
	}

	n := depTableLen(path)
	if n == 0 || len(path) <= n {
		return
	}
	e := c.entry(formatTableName(path[:n]), path[n])
	rest := path[n+1:]

	switch {
	case len(rest) == 0 && value.Kind == unstable.String:
		e.plain = c.stringValue(value)
	case len(rest) == 0 && value.Kind == unstable.InlineTable:
		it := value.Children()
		for it.Next() {
			kv := it.Node()
			if kv.Kind != unstable.KeyValue {
				continue
			}
			parts, last := keyParts(kv.Key())
			if len(parts) == 1 {
				c.setField(e, parts[0], last, kv.Value())
			}
		}
	case len(rest) == 1:
		c.setField(e, rest[0], keyStart, value)
	}
}

// entry returns the entry for key in table, creating it in declaration
// order. Sub-tables and dotted keys add fields to the same entry.
func (c *cargoParser) entry(table, key string) *entry {
	id := table + "\x00" + key
	if e, ok := c.entries[id]; ok {
		return e
	}
	e := &entry{table: table, key: key, name: key}
	c.entries[id] = e
	c.layout.entries = append(c.layout.entries, e)
	return e
}

func (c *cargoParser) setField(e *entry, name string, keyStart int, value *unstable.Node) {
	f := &field{keyStart: keyStart}
	switch value.Kind {
	case unstable.String:
		f.value = c.stringValue(value)
	case unstable.Bool:
		f.boolean = string(value.Data) == "true"
	}
	if e.fields == nil {
		e.fields = make(map[string]*field)
	}
	e.fields[name] = f
	if name == "package" && f.value != nil {
		e.name = f.value.value
	}
}

func (c *cargoParser) stringValue(n *unstable.Node) *stringValue {
	start := int(n.Raw.Offset)
	return &stringValue{
		start: start,
		end:   start + int(n.Raw.Length),
		value: string(n.Data),
		quote: c.data[start],
	}
}

// formatTableName renders key parts the way they would be written in a
// table header, quoting parts that are not bare keys.
func formatTableName(parts []string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		if isBareKey(p) {
			quoted[i] = p
		} else {
			quoted[i] = "'" + p + "'"
		}
	}
	return strings.Join(quoted, ".")
}

func isBareKey(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// rewriteCargoEntry rewrites the version-carrying parts of a Cargo entry to
// reference target:
//
//	core = "0.1.0"                          -> "0.2.0"
//	core = { version = "0.1.0", ... }       -> version = "0.2.0"
//	core = { git = "...", tag = "v0.1.0" }  -> tag = "v0.2.0"
//	core = { git = "...", branch = "main" } -> tag = "v0.2.0"
//
// Path-only and workspace-inherited entries produce no edits.
func rewriteCargoEntry(e *entry, target string) ([]edit, []model.DependencyChange) {
	var (
		edits   []edit
		changes []model.DependencyChange
	)
	change := func(old, new string) {
		changes = append(changes, model.DependencyChange{Table: e.table, Key: e.key, OldSpec: old, NewSpec: new})
	}

	if e.plain != nil {
		if e.plain.value != target {
			edits = append(edits, e.plain.replace(target, model.FormatCargo))
			change(e.plain.value, target)
		}
		return edits, changes
	}
	if f, ok := e.fields["workspace"]; ok && f.boolean {
		return nil, nil
	}

	if v := e.str("version"); v != nil && v.value != target {
		edits = append(edits, v.replace(target, model.FormatCargo))
		change(v.value, target)
	}
	if t := e.str("tag"); t != nil {
		if tag := tagFor(t.value, target); t.value != tag {
			edits = append(edits, t.replace(tag, model.FormatCargo))
			change(t.value, tag)
		}
	} else if b, ok := e.fields["branch"]; ok && b.value != nil {
		tag := "v" + target
		edits = append(edits, edit{
			start: b.keyStart,
			end:   b.value.end,
			text:  "tag = " + quoteTOML(tag, b.value.quote),
		})
		change("branch "+b.value.value, "tag "+tag)
	}
	return edits, changes
}
