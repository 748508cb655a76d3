package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
)

// ErrExists is returned when creating a formula whose file already exists.
var ErrExists = errors.New("formula already exists")

// Fields are the inputs for a first release of a package.
type Fields struct {
	Description string
	Homepage    string
	URL         string
	// Version defaults to the single version found in URL.
	Version string
	SHA256  string
	// Binary defaults to the formula's base name. "src=>dst" renames.
	Binary string
}

// New scaffolds the first descriptor of a package.
func New(name string, f Fields) (*formula.Descriptor, error) {
	if name == "" {
		return nil, fmt.Errorf("formula name is required")
	}
	if f.URL == "" {
		return nil, fmt.Errorf("%s: url is required", name)
	}

	version := strings.TrimPrefix(f.Version, "v")
	if version == "" {
		found := formula.URLVersions(f.URL)
		if len(found) != 1 {
			return nil, fmt.Errorf("%s: cannot infer version from %s; pass one explicitly", name, f.URL)
		}
		version = found[0]
	}

	binary := f.Binary
	if binary == "" {
		binary = formula.BaseName(name)
	}
	target := formula.InstallTarget{Source: binary, Name: path.Base(binary)}
	if src, dst, ok := strings.Cut(binary, "=>"); ok {
		target = formula.InstallTarget{Source: strings.TrimSpace(src), Name: strings.TrimSpace(dst)}
	}

	return &formula.Descriptor{
		Name:        name,
		ClassName:   formula.ClassName(name),
		Description: f.Description,
		Homepage:    f.Homepage,
		URL:         f.URL,
		Version:     version,
		SHA256:      strings.ToLower(f.SHA256),
		Binaries:    []formula.InstallTarget{target},
	}, nil
}

// Create writes d as a new formula after checking its artifact the same way
// Cut does. It refuses to overwrite an existing file.
func (c *Cutter) Create(ctx context.Context, d *formula.Descriptor, dryRun bool) (*Result, error) {
	file := c.tap.FormulaPath(d.Name)
	if _, err := os.Stat(file); err == nil {
		return nil, fmt.Errorf("%s: %w", file, ErrExists)
	}

	if err := c.check(ctx, d); err != nil {
		return nil, err
	}

	res := &Result{Descriptor: d}
	if dryRun {
		return res, nil
	}
	return c.Apply(res)
}
