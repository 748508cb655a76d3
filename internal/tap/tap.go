// Package tap loads the formula files of a Homebrew tap directory.
package tap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
)

// FormulaDir is the conventional sub-directory holding formula files.
const FormulaDir = "Formula"

// ErrNotFound is returned when a formula or package is not in the tap.
var ErrNotFound = errors.New("formula not found")

// LoadError records a formula file that could not be parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Package groups the descriptors that share a base name.
type Package struct {
	Name        string
	Descriptors []*formula.Descriptor
}

// Current returns the unversioned descriptor, or the highest version when
// the package only has versioned files.
func (p *Package) Current() *formula.Descriptor {
	var best *formula.Descriptor
	for _, d := range p.Descriptors {
		if !formula.IsVersioned(d.Name) {
			return d
		}
		if best == nil || formula.CompareVersions(d.Version, best.Version) > 0 {
			best = d
		}
	}
	return best
}

// Tap is a loaded tap directory.
type Tap struct {
	Root        string
	Dir         string
	Descriptors []*formula.Descriptor
	Errors      []*LoadError
}

// Load reads every *.rb file under root/Formula, or directly under root
// when there is no Formula directory. Files that fail to parse are
// collected in Errors rather than aborting the load.
func Load(root string) (*Tap, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open tap: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tap %s is not a directory", root)
	}

	dir := filepath.Join(root, FormulaDir)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		dir = root
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.rb"))
	if err != nil {
		return nil, fmt.Errorf("failed to list formulae: %w", err)
	}
	sort.Strings(paths)

	t := &Tap{Root: root, Dir: dir}
	for _, path := range paths {
		d, err := formula.ParseFile(path)
		if err != nil {
			t.Errors = append(t.Errors, &LoadError{Path: path, Err: err})
			continue
		}
		t.Descriptors = append(t.Descriptors, d)
	}
	return t, nil
}

// Packages groups descriptors by base name, sorted by package name.
func (t *Tap) Packages() []*Package {
	byName := make(map[string]*Package)
	var names []string
	for _, d := range t.Descriptors {
		name := d.Package()
		p, ok := byName[name]
		if !ok {
			p = &Package{Name: name}
			byName[name] = p
			names = append(names, name)
		}
		p.Descriptors = append(p.Descriptors, d)
	}
	sort.Strings(names)

	packages := make([]*Package, 0, len(names))
	for _, name := range names {
		packages = append(packages, byName[name])
	}
	return packages
}

// Lookup finds a descriptor by formula name ("outlyer@0.1.0") or by package
// name, in which case the package's current descriptor is returned.
func (t *Tap) Lookup(name string) (*formula.Descriptor, error) {
	for _, d := range t.Descriptors {
		if d.Name == name {
			return d, nil
		}
	}
	for _, p := range t.Packages() {
		if p.Name == name {
			return p.Current(), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

// Select returns the descriptors named in names, or all when names is empty.
func (t *Tap) Select(names []string) ([]*formula.Descriptor, error) {
	if len(names) == 0 {
		return t.Descriptors, nil
	}
	var out []*formula.Descriptor
	for _, name := range names {
		d, err := t.Lookup(name)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// FormulaPath returns where the formula called name lives in this tap.
func (t *Tap) FormulaPath(name string) string {
	return filepath.Join(t.Dir, formula.FileName(name))
}

// RelPath returns path relative to the tap root with forward slashes.
func (t *Tap) RelPath(path string) string {
	rel, err := filepath.Rel(t.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Write renders d into the tap, replacing any file of the same name
// atomically, and records it in the loaded set.
func (t *Tap) Write(d *formula.Descriptor) (string, error) {
	path := t.FormulaPath(d.Name)

	tmp, err := os.CreateTemp(t.Dir, "."+d.Name+"-*.rb.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(formula.Render(d)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write %s: %w", d.Name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to replace %s: %w", path, err)
	}

	written := *d
	written.Path = path
	t.replace(&written)
	return path, nil
}

func (t *Tap) replace(d *formula.Descriptor) {
	for i, existing := range t.Descriptors {
		if existing.Name == d.Name {
			t.Descriptors[i] = d
			return
		}
	}
	t.Descriptors = append(t.Descriptors, d)
	sort.Slice(t.Descriptors, func(i, j int) bool {
		return strings.Compare(t.Descriptors[i].Name, t.Descriptors[j].Name) < 0
	})
}
