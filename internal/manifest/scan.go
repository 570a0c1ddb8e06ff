package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"

	"github.com/mmr-tortoise/meta/internal/model"
)

// skipDirs are never scanned for members.
var skipDirs = map[string]bool{
	"target":       true,
	"node_modules": true,
}

// cargoManifest is the subset of Cargo.toml that Scan looks at.
type cargoManifest struct {
	Package   *struct{} `toml:"package"`
	Workspace *struct {
		Members []string `toml:"members"`
		Exclude []string `toml:"exclude"`
	} `toml:"workspace"`
}

// npmManifest is the subset of package.json that Scan looks at.
// "workspaces" is either a list of globs or {"packages": [...]}.
type npmManifest struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	Workspaces json.RawMessage `json:"workspaces"`
}

// Scan builds a workspace from the immediate subdirectories of root that
// hold a Cargo.toml or package.json.
//
// A subdirectory that is itself a Cargo or npm workspace contributes every
// member matched by its globs; it also contributes itself when it declares
// a package of its own. Hidden directories, target and node_modules are
// skipped. The result is sorted and free of duplicates.
func Scan(root string) (*model.Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrIO, err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: scanning %s: %v", model.ErrIO, root, err)
	}

	var found []string
	for _, e := range entries {
		if !e.IsDir() || skipDir(e.Name()) {
			continue
		}
		members, err := scanDir(abs, filepath.Join(abs, e.Name()))
		if err != nil {
			return nil, err
		}
		found = append(found, members...)
	}

	sort.Strings(found)
	ws := &model.Workspace{
		Root:         abs,
		ManifestPath: filepath.Join(abs, FileName),
	}
	for i, m := range found {
		if i > 0 && found[i-1] == m {
			continue
		}
		ws.Members = append(ws.Members, model.Member{Path: m})
	}
	return ws, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || skipDirs[name]
}

// scanDir returns the members contributed by dir, relative to root.
func scanDir(root, dir string) ([]string, error) {
	if data, err := os.ReadFile(filepath.Join(dir, model.FormatCargo.FileName())); err == nil {
		var m cargoManifest
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", model.ErrParse, filepath.Join(dir, "Cargo.toml"), err)
		}
		var members []string
		if m.Package != nil {
			members = append(members, relPath(root, dir))
		}
		if m.Workspace != nil {
			expanded, err := expand(root, dir, m.Workspace.Members, m.Workspace.Exclude)
			if err != nil {
				return nil, err
			}
			members = append(members, expanded...)
		}
		return members, nil
	}

	if data, err := os.ReadFile(filepath.Join(dir, model.FormatNPM.FileName())); err == nil {
		var m npmManifest
		if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", model.ErrParse, filepath.Join(dir, "package.json"), err)
		}
		var members []string
		if m.Name != "" && m.Version != "" {
			members = append(members, relPath(root, dir))
		}
		include, exclude := npmWorkspaces(m.Workspaces)
		expanded, err := expand(root, dir, include, exclude)
		if err != nil {
			return nil, err
		}
		return append(members, expanded...), nil
	}

	return nil, nil
}

// npmWorkspaces splits the "workspaces" globs into include and exclude
// ("!pattern") lists.
func npmWorkspaces(raw json.RawMessage) (include, exclude []string) {
	if len(raw) == 0 {
		return nil, nil
	}
	var patterns []string
	if err := json.Unmarshal(raw, &patterns); err != nil {
		var obj struct {
			Packages []string `json:"packages"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, nil
		}
		patterns = obj.Packages
	}
	for _, p := range patterns {
		if rest, ok := strings.CutPrefix(p, "!"); ok {
			exclude = append(exclude, rest)
		} else {
			include = append(include, p)
		}
	}
	return include, exclude
}

// expand resolves workspace member globs relative to dir and keeps the
// matched directories that hold a descriptor.
func expand(root, dir string, patterns, exclude []string) ([]string, error) {
	fsys := os.DirFS(dir)
	var members []string
	for _, pattern := range patterns {
		pattern = path.Clean(filepath.ToSlash(pattern))
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: workspace member pattern %q: %v", model.ErrParse, dir, pattern, err)
		}
		for _, match := range matches {
			if excluded(match, exclude) {
				continue
			}
			full := filepath.Join(dir, filepath.FromSlash(match))
			if !hasDescriptor(full) {
				continue
			}
			members = append(members, relPath(root, full))
		}
	}
	return members, nil
}

func excluded(match string, exclude []string) bool {
	for _, pattern := range exclude {
		ok, err := doublestar.Match(path.Clean(filepath.ToSlash(pattern)), match)
		if err == nil && ok {
			return true
		}
	}
	return false
}

func hasDescriptor(dir string) bool {
	for _, f := range []model.DescriptorFormat{model.FormatCargo, model.FormatNPM} {
		if info, err := os.Stat(filepath.Join(dir, f.FileName())); err == nil && info.Mode().IsRegular() {
			return true
		}
	}
	return false
}

func relPath(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return filepath.ToSlash(dir)
	}
	return filepath.ToSlash(rel)
}
