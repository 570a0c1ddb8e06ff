package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/mmr-tortoise/meta/internal/model"
	"github.com/mmr-tortoise/meta/internal/version"
)

// npmDepTables are the package.json objects holding dependency specifiers.
var npmDepTables = map[string]bool{
	"dependencies":         true,
	"devDependencies":      true,
	"peerDependencies":     true,
	"optionalDependencies": true,
}

// utf8BOM is the byte order mark some editors put at the start of
// package.json.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// parseNPM reads a package.json. Comments, trailing commas and a leading
// byte order mark are tolerated: they are blanked out in a copy without
// moving any byte, so the offsets found in the cleaned copy are valid in
// the original, which keeps them.
func parseNPM(data []byte) (*layout, error) {
	clean := jsonc.ToJSON(data)
	if bytes.HasPrefix(clean, utf8BOM) {
		copy(clean, "   ")
	}

	var root map[string]any
	if err := json.Unmarshal(clean, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}

	w := &npmWalker{data: clean, dec: json.NewDecoder(bytes.NewReader(clean))}
	l, err := w.walk()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	return l, nil
}

type npmWalker struct {
	data []byte
	dec  *json.Decoder
}

func (w *npmWalker) walk() (*layout, error) {
	if err := w.expectDelim('{'); err != nil {
		return nil, err
	}

	l := &layout{}
	for w.dec.More() {
		key, err := w.key()
		if err != nil {
			return nil, err
		}
		switch {
		case key == "name" || key == "version":
			v, err := w.stringOrSkip()
			if err != nil {
				return nil, err
			}
			if v == nil {
				continue
			}
			if key == "name" {
				l.name = v
			} else {
				l.version = v
			}
		case npmDepTables[key]:
			entries, err := w.dependencies(key)
			if err != nil {
				return nil, err
			}
			l.entries = append(l.entries, entries...)
		default:
			if err := w.skip(); err != nil {
				return nil, err
			}
		}
	}
	return l, nil
}

func (w *npmWalker) dependencies(table string) ([]*entry, error) {
	tok, err := w.dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		if ok {
			return nil, w.skipRest(d)
		}
		return nil, nil
	}

	var entries []*entry
	for w.dec.More() {
		key, err := w.key()
		if err != nil {
			return nil, err
		}
		v, err := w.stringOrSkip()
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		e := &entry{table: table, key: key, name: key, plain: v, npm: true}
		if ref := parseNPMSpec(v.value); ref.alias != "" {
			e.name = ref.alias
		}
		entries = append(entries, e)
	}
	_, err = w.dec.Token() // '}'
	return entries, err
}

func (w *npmWalker) key() (string, error) {
	tok, err := w.dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key at offset %d", w.dec.InputOffset())
	}
	return key, nil
}

// stringOrSkip reads the next value. Strings are returned with their byte
// range; any other value is skipped and nil is returned.
func (w *npmWalker) stringOrSkip() (*stringValue, error) {
	before := int(w.dec.InputOffset())
	tok, err := w.dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case string:
		end := int(w.dec.InputOffset())
		start := bytes.IndexByte(w.data[before:end], '"')
		if start < 0 {
			return nil, fmt.Errorf("cannot locate string at offset %d", before)
		}
		return &stringValue{start: before + start, end: end, value: t, quote: '"'}, nil
	case json.Delim:
		return nil, w.skipRest(t)
	default:
		return nil, nil
	}
}

func (w *npmWalker) skip() error {
	tok, err := w.dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); ok {
		return w.skipRest(d)
	}
	return nil
}

// skipRest consumes tokens up to the delimiter closing open.
func (w *npmWalker) skipRest(open json.Delim) error {
	if open != '{' && open != '[' {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := w.dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

func (w *npmWalker) expectDelim(want json.Delim) error {
	tok, err := w.dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q at the top level", want)
	}
	return nil
}

// npmRef is the decoded form of a package.json dependency specifier.
type npmRef struct {
	kind model.DependencyKind

	// alias is the real package name of an "npm:<name>@<range>" alias.
	alias string

	// base is the specifier up to and excluding the rewritable part
	// (e.g. "github:org/repo#" or "npm:core@"); ref is that part.
	base string
	ref  string
}

// parseNPMSpec classifies a dependency specifier.
func parseNPMSpec(spec string) npmRef {
	s := strings.TrimSpace(spec)
	switch {
	case strings.HasPrefix(s, "workspace:"):
		return npmRef{kind: model.KindWorkspace}
	case strings.HasPrefix(s, "file:"), strings.HasPrefix(s, "link:"),
		strings.HasPrefix(s, "./"), strings.HasPrefix(s, "../"),
		strings.HasPrefix(s, "/"), strings.HasPrefix(s, "~/"):
		return npmRef{kind: model.KindPath}
	case strings.HasPrefix(s, "npm:"):
		rest := strings.TrimPrefix(s, "npm:")
		// Scoped names start with '@', so look for the separator after it.
		if i := strings.LastIndex(rest, "@"); i > 0 {
			return npmRef{kind: model.KindVersion, alias: rest[:i], base: "npm:" + rest[:i+1], ref: rest[i+1:]}
		}
		return npmRef{kind: model.KindVersion, alias: rest, base: "npm:" + rest + "@"}
	case isGitSpec(s):
		base, frag, ok := strings.Cut(s, "#")
		if !ok {
			return npmRef{kind: model.KindGit}
		}
		base += "#"
		switch {
		case strings.HasPrefix(frag, "semver:"):
			return npmRef{kind: model.KindVersion, base: base + "semver:", ref: strings.TrimPrefix(frag, "semver:")}
		case version.IsValid(frag):
			return npmRef{kind: model.KindGitTag, base: base, ref: frag}
		default:
			return npmRef{kind: model.KindGitBranch, base: base, ref: frag}
		}
	default:
		return npmRef{kind: model.KindVersion, ref: s}
	}
}

func isGitSpec(s string) bool {
	for _, p := range []string{"git+", "git://", "github:", "gitlab:", "bitbucket:", "gist:", "http://", "https://"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	// "org/repo" GitHub shorthand
	return !strings.HasPrefix(s, "@") && strings.Count(s, "/") == 1 && !strings.ContainsAny(s, " :<>=^~*|")
}

// rewriteNPMEntry applies the same rules as rewriteCargoEntry to a
// package.json specifier. Git fragments that name a tag keep its "v"
// style; a branch fragment becomes "v<target>".
func rewriteNPMEntry(e *entry, target string) ([]edit, []model.DependencyChange) {
	ref := parseNPMSpec(e.plain.value)
	var spec string
	switch ref.kind {
	case model.KindVersion:
		spec = ref.base + target
	case model.KindGitTag:
		spec = ref.base + tagFor(ref.ref, target)
	case model.KindGitBranch:
		spec = ref.base + "v" + target
	default:
		return nil, nil
	}
	if spec == e.plain.value {
		return nil, nil
	}
	return []edit{e.plain.replace(spec, model.FormatNPM)},
		[]model.DependencyChange{{Table: e.table, Key: e.key, OldSpec: e.plain.value, NewSpec: spec}}
}
