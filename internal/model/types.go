// Package model defines the domain types for the meta CLI.
//
// All entities in this package are passed explicitly between components.
// The manifest is the only source of truth for workspace membership, and
// the package descriptors are the only source of truth for names, versions
// and dependency references.
package model

import (
	"fmt"
	"path/filepath"
)

// DescriptorFormat identifies the package manifest format of a member.
// The format decides which file is read and how dependency references
// are rewritten during a bump.
type DescriptorFormat string

const (
	// FormatCargo is a Rust crate described by Cargo.toml.
	FormatCargo DescriptorFormat = "cargo"

	// FormatNPM is a JavaScript package described by package.json.
	FormatNPM DescriptorFormat = "npm"
)

// String returns the string representation of DescriptorFormat.
func (f DescriptorFormat) String() string {
	return string(f)
}

// IsValid checks whether the DescriptorFormat value is one of the
// predefined formats.
func (f DescriptorFormat) IsValid() bool {
	switch f {
	case FormatCargo, FormatNPM:
		return true
	default:
		return false
	}
}

// FileName returns the descriptor file name for the format.
func (f DescriptorFormat) FileName() string {
	switch f {
	case FormatCargo:
		return "Cargo.toml"
	case FormatNPM:
		return "package.json"
	default:
		return ""
	}
}

// DependencyKind classifies how a dependency entry references its target.
// Only some kinds carry a version that a bump can rewrite.
type DependencyKind string

const (
	// KindVersion is a registry version requirement ("1.0", "^1.2.3", "*").
	KindVersion DependencyKind = "version"

	// KindGitTag is a git reference pinned to a tag.
	KindGitTag DependencyKind = "git-tag"

	// KindGitBranch is a git reference that follows a branch.
	KindGitBranch DependencyKind = "git-branch"

	// KindGit is a git reference without a tag, branch or version.
	KindGit DependencyKind = "git"

	// KindPath is a local filesystem reference with no version.
	KindPath DependencyKind = "path"

	// KindWorkspace is inherited from a workspace root
	// (Cargo `workspace = true` or the npm `workspace:` protocol).
	KindWorkspace DependencyKind = "workspace"
)

// String returns the string representation of DependencyKind.
func (k DependencyKind) String() string {
	return string(k)
}

// IsVersioned reports whether a bump rewrites references of this kind.
// Path and workspace references point at the member checkout itself and
// are left untouched.
func (k DependencyKind) IsVersioned() bool {
	switch k {
	case KindVersion, KindGitTag, KindGitBranch:
		return true
	default:
		return false
	}
}

// Member is one addressable unit of the workspace, identified by its
// manifest path (relative, slash separated).
type Member struct {
	// Path is the member location relative to the workspace root,
	// exactly as written in the manifest.
	Path string `json:"path" yaml:"path"`
}

// Dir resolves the member path against the workspace root.
func (m Member) Dir(root string) string {
	return filepath.Join(root, filepath.FromSlash(m.Path))
}

// Workspace is the ordered set of members declared in the manifest.
//
// A Workspace is loaded once per command and passed into every operation.
// Members are kept in manifest order; duplicates are not rejected but are
// reported by Duplicates so the CLI can warn about them.
type Workspace struct {
	// Root is the absolute path of the directory holding the manifest.
	Root string `json:"root" yaml:"root"`

	// ManifestPath is the absolute path of the manifest file.
	ManifestPath string `json:"manifestPath" yaml:"manifestPath"`

	// Members lists the workspace members in manifest order.
	Members []Member `json:"members" yaml:"members"`
}

// Paths returns the member paths in manifest order.
func (w *Workspace) Paths() []string {
	paths := make([]string, 0, len(w.Members))
	for _, m := range w.Members {
		paths = append(paths, m.Path)
	}
	return paths
}

// Duplicates returns member paths that appear more than once, in order
// of their second occurrence.
func (w *Workspace) Duplicates() []string {
	seen := make(map[string]bool, len(w.Members))
	var dups []string
	for _, m := range w.Members {
		key := filepath.ToSlash(filepath.Clean(m.Path))
		if seen[key] {
			dups = append(dups, m.Path)
			continue
		}
		seen[key] = true
	}
	return dups
}

// Dependency is a single dependency entry of a package descriptor.
type Dependency struct {
	// Table is the section the entry was declared in, e.g. "dependencies",
	// "dev-dependencies", "target.'cfg(unix)'.dependencies" or
	// "devDependencies".
	Table string `json:"table" yaml:"table"`

	// Key is the entry key as written in the descriptor.
	Key string `json:"key" yaml:"key"`

	// Name is the real package name. It differs from Key for renamed
	// Cargo dependencies (`alias = { package = "real" }`).
	Name string `json:"name" yaml:"name"`

	// Spec is the version-carrying part of the entry: the version
	// requirement, the tag or branch name, or the path.
	Spec string `json:"spec" yaml:"spec"`

	// Kind classifies the reference.
	Kind DependencyKind `json:"kind" yaml:"kind"`
}

// Descriptor is the package identity and dependency list of a member.
type Descriptor struct {
	// Name is the package name, the cross-reference key within the workspace.
	Name string `json:"name" yaml:"name"`

	// Version is the package's own semantic version.
	Version string `json:"version" yaml:"version"`

	// Format is the descriptor format the values were read from.
	Format DescriptorFormat `json:"format" yaml:"format"`

	// Dependencies lists every dependency entry in declaration order.
	Dependencies []Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// DependenciesOn returns the entries whose package name is name.
func (d Descriptor) DependenciesOn(name string) []Dependency {
	var deps []Dependency
	for _, dep := range d.Dependencies {
		if dep.Name == name {
			deps = append(deps, dep)
		}
	}
	return deps
}

// DependencyChange records one rewritten dependency entry.
type DependencyChange struct {
	Table   string `json:"table" yaml:"table"`
	Key     string `json:"key" yaml:"key"`
	OldSpec string `json:"old" yaml:"old"`
	NewSpec string `json:"new" yaml:"new"`
}

// String returns "key old → new", the form used in text reports.
func (c DependencyChange) String() string {
	return fmt.Sprintf("%s %s → %s", c.Key, c.OldSpec, c.NewSpec)
}
