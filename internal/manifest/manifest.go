// Package manifest loads, saves and generates the Meta.toml file that
// declares the members of a meta workspace.
//
//	[workspace]
//	members = ["core", "app"]
//
// An optional [settings] table is read by the config package; this package
// only deals with membership.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/atomicwriter"
	"github.com/pelletier/go-toml/v2"

	"github.com/mmr-tortoise/meta/internal/model"
)

// FileName is the default manifest file name.
const FileName = "Meta.toml"

// File is the on-disk layout of the manifest.
type File struct {
	Workspace *Section `toml:"workspace" comment:"Members of the meta workspace, in the order commands visit them."`
}

// Section is the [workspace] table.
type Section struct {
	Members []string `toml:"members"`
}

// Exists reports whether a manifest file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load reads and validates the manifest at path. The workspace root is the
// directory holding the manifest.
//
// A missing file yields an error wrapping model.ErrNotFound; malformed TOML,
// a missing [workspace] table or an invalid member path yields
// model.ErrParse.
func Load(path string) (*model.Workspace, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrIO, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: manifest %s does not exist (run 'meta init' first)", model.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: reading manifest: %v", model.ErrIO, err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	ws := &model.Workspace{
		Root:         filepath.Dir(abs),
		ManifestPath: abs,
	}
	for _, m := range f.Workspace.Members {
		ws.Members = append(ws.Members, model.Member{Path: m})
	}
	return ws, nil
}

// Parse decodes and validates manifest content.
func Parse(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	if err := validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Save validates ws and writes its member list to path atomically.
func Save(path string, ws *model.Workspace) error {
	f := &File{Workspace: &Section{Members: ws.Paths()}}
	if err := validate(f); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf).SetArraysMultiline(true)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("%w: encoding manifest: %v", model.ErrIO, err)
	}
	if err := atomicwriter.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: writing manifest: %v", model.ErrIO, err)
	}
	return nil
}

func validate(f *File) error {
	if f.Workspace == nil {
		return fmt.Errorf("%w: manifest: [workspace] table is required", model.ErrParse)
	}
	for i, m := range f.Workspace.Members {
		if err := validatePath(m, fmt.Sprintf("workspace.members[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// validatePath ensures a member path is relative and does not escape the
// workspace root.
func validatePath(p, label string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("%w: manifest: %s: empty member path", model.ErrParse, label)
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: manifest: %s: absolute path is not allowed: %s", model.ErrParse, label, p)
	}
	cleaned := filepath.Clean(filepath.FromSlash(p))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: manifest: %s: path must not escape the workspace: %s", model.ErrParse, label, p)
	}
	return nil
}
