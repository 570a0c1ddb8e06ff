package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/moby/sys/atomicwriter"

	"github.com/mmr-tortoise/meta/internal/model"
)

// formats lists the descriptor formats in detection order.
var formats = []model.DescriptorFormat{model.FormatCargo, model.FormatNPM}

// Document is a parsed package descriptor together with its raw bytes.
// Mutations are applied to the raw bytes immediately and the document is
// re-parsed, so Descriptor always reflects the current content.
type Document struct {
	path     string
	format   model.DescriptorFormat
	perm     fs.FileMode
	original []byte
	data     []byte
	layout   *layout
	desc     model.Descriptor
}

// Detect returns the descriptor path and format for a member directory.
// It returns an error wrapping model.ErrNotFound when the directory holds
// no known descriptor.
func Detect(dir string) (string, model.DescriptorFormat, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", "", fmt.Errorf("%w: member directory %s does not exist", model.ErrNotFound, dir)
		}
		return "", "", fmt.Errorf("%w: %v", model.ErrIO, err)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("%w: %s is not a directory", model.ErrNotFound, dir)
	}

	for _, f := range formats {
		path := filepath.Join(dir, f.FileName())
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			return path, f, nil
		}
	}
	return "", "", fmt.Errorf("%w: no Cargo.toml or package.json in %s", model.ErrNotFound, dir)
}

// Read locates and parses the descriptor in dir.
//
// Errors wrap model.ErrNotFound when no descriptor exists, model.ErrParse
// when it is malformed or lacks a name or version, and model.ErrIO when it
// cannot be read.
func Read(dir string) (*Document, error) {
	path, format, err := Detect(dir)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrIO, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", model.ErrIO, path, err)
	}

	doc, err := Parse(path, format, data)
	if err != nil {
		return nil, err
	}
	doc.perm = info.Mode().Perm()
	return doc, nil
}

// Parse builds a Document from raw descriptor bytes. path is only used
// for error messages and as the Write destination.
func Parse(path string, format model.DescriptorFormat, data []byte) (*Document, error) {
	if !format.IsValid() {
		return nil, fmt.Errorf("%w: %s: unsupported descriptor format %q", model.ErrParse, path, format)
	}
	doc := &Document{
		path:     path,
		format:   format,
		perm:     0o644,
		original: data,
		data:     data,
	}
	if err := doc.parse(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Write saves the document atomically if its content changed.
// Failures wrap model.ErrIO.
func Write(doc *Document) error {
	if !doc.Changed() {
		return nil
	}
	if err := atomicwriter.WriteFile(doc.path, doc.data, doc.perm); err != nil {
		return fmt.Errorf("%w: write %s: %v", model.ErrIO, doc.path, err)
	}
	doc.original = doc.data
	return nil
}

// FileStore reads and writes descriptors on the local filesystem.
type FileStore struct{}

// Read calls the package-level Read.
func (FileStore) Read(dir string) (*Document, error) { return Read(dir) }

// Write calls the package-level Write.
func (FileStore) Write(doc *Document) error { return Write(doc) }

// Path returns the descriptor file path.
func (d *Document) Path() string { return d.path }

// Format returns the descriptor format.
func (d *Document) Format() model.DescriptorFormat { return d.format }

// Descriptor returns the parsed package identity and dependencies.
func (d *Document) Descriptor() model.Descriptor {
	desc := d.desc
	desc.Dependencies = append([]model.Dependency(nil), d.desc.Dependencies...)
	return desc
}

// Name returns the package name.
func (d *Document) Name() string { return d.desc.Name }

// Version returns the package version.
func (d *Document) Version() string { return d.desc.Version }

// Bytes returns the current content, including unsaved edits.
func (d *Document) Bytes() []byte { return d.data }

// Changed reports whether the content differs from what was read or
// last written.
func (d *Document) Changed() bool {
	return !bytes.Equal(d.original, d.data)
}

// SetVersion sets the package's own version. It reports whether the
// content changed.
func (d *Document) SetVersion(v string) (bool, error) {
	cur := d.layout.version
	if cur.value == v {
		return false, nil
	}
	if err := d.apply([]edit{cur.replace(v, d.format)}); err != nil {
		return false, err
	}
	return true, nil
}

// RewriteDependencies rewrites every dependency entry whose package name
// is a key of versions so that it references versions[name]. Entries of
// other packages are never touched. Path and workspace-inherited entries
// are left as they are.
//
// It returns the rewritten entries in declaration order.
func (d *Document) RewriteDependencies(versions map[string]string) ([]model.DependencyChange, error) {
	var (
		edits   []edit
		changes []model.DependencyChange
	)
	for _, e := range d.layout.entries {
		target, ok := versions[e.name]
		if !ok || !e.dependency().Kind.IsVersioned() {
			continue
		}
		var (
			es []edit
			cs []model.DependencyChange
		)
		switch d.format {
		case model.FormatCargo:
			es, cs = rewriteCargoEntry(e, target)
		case model.FormatNPM:
			es, cs = rewriteNPMEntry(e, target)
		}
		edits = append(edits, es...)
		changes = append(changes, cs...)
	}
	if len(edits) == 0 {
		return nil, nil
	}
	if err := d.apply(edits); err != nil {
		return nil, err
	}
	return changes, nil
}

// apply splices edits into the content and re-parses it. The content is
// restored if the edited bytes no longer parse.
func (d *Document) apply(edits []edit) error {
	prevData, prevLayout, prevDesc := d.data, d.layout, d.desc
	d.data = splice(d.data, edits)
	if err := d.parse(); err != nil {
		d.data, d.layout, d.desc = prevData, prevLayout, prevDesc
		return err
	}
	return nil
}

func (d *Document) parse() error {
	var (
		l   *layout
		err error
	)
	switch d.format {
	case model.FormatCargo:
		l, err = parseCargo(d.data)
	case model.FormatNPM:
		l, err = parseNPM(d.data)
	default:
		return fmt.Errorf("%w: unsupported descriptor format %q", model.ErrParse, d.format)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", d.path, err)
	}
	if l.name == nil || l.name.value == "" {
		return fmt.Errorf("%w: %s: missing package name", model.ErrParse, d.path)
	}
	if l.versionInherited {
		return fmt.Errorf("%w: %s: package version is inherited from the workspace root", model.ErrParse, d.path)
	}
	if l.version == nil {
		return fmt.Errorf("%w: %s: missing package version", model.ErrParse, d.path)
	}

	desc := model.Descriptor{
		Name:    l.name.value,
		Version: l.version.value,
		Format:  d.format,
	}
	for _, e := range l.entries {
		desc.Dependencies = append(desc.Dependencies, e.dependency())
	}
	d.layout, d.desc = l, desc
	return nil
}

// edit replaces data[start:end] with text.
type edit struct {
	start, end int
	text       string
}

// splice applies edits to a copy of data. Edits are applied from the end
// of the buffer so earlier offsets stay valid; an edit overlapping one
// already applied is dropped.
func splice(data []byte, edits []edit) []byte {
	sorted := append([]edit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].start > sorted[j].start })

	out := append([]byte(nil), data...)
	limit := len(out)
	for _, e := range sorted {
		if e.start < 0 || e.end > limit || e.start > e.end {
			continue
		}
		out = append(out[:e.start], append([]byte(e.text), out[e.end:]...)...)
		limit = e.start
	}
	return out
}
