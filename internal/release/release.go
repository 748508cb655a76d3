// Package release cuts new release descriptors from existing ones.
package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tapkeeper/internal/fetch"
	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/lint"
	"github.com/blackwell-systems/tapkeeper/internal/tap"
)

var (
	// ErrNotNewer is returned when the requested version does not advance
	// the package.
	ErrNotNewer = errors.New("version is not newer than the current release")

	// ErrURLUnchanged is returned when the new descriptor would point at
	// the previous artifact.
	ErrURLUnchanged = errors.New("release URL would not change")

	// ErrChecksumMismatch is returned when a supplied checksum does not
	// match the downloaded artifact.
	ErrChecksumMismatch = errors.New("checksum does not match artifact")

	// ErrMissingBinary is returned when the artifact lacks an install source.
	ErrMissingBinary = errors.New("artifact does not contain binary")

	// ErrInvalid is returned when the new descriptor fails lint.
	ErrInvalid = errors.New("descriptor has lint errors")
)

// Verifier checks a descriptor against its artifact.
type Verifier interface {
	Verify(ctx context.Context, d *formula.Descriptor) *fetch.Verification
}

// Options adjusts how a release is cut.
type Options struct {
	// URL overrides the artifact URL. By default the previous URL is
	// reused with the old version replaced by the new one.
	URL string
	// SHA256 is trusted when set and no Verifier is available.
	SHA256       string
	KeepPrevious bool
	DryRun       bool
}

// Result describes a cut release.
type Result struct {
	Descriptor *formula.Descriptor
	Previous   *formula.Descriptor
	// Kept is the versioned copy of the previous release, if one was made.
	Kept  *formula.Descriptor
	Paths []string
}

// Next derives the descriptor for version from prev. The checksum is taken
// from opts and may still be empty.
func Next(prev *formula.Descriptor, version string, opts Options) (*formula.Descriptor, error) {
	version = strings.TrimPrefix(version, "v")
	if formula.CompareVersions(version, prev.Version) <= 0 {
		return nil, fmt.Errorf("%s %s is not after %s: %w", prev.Name, version, prev.Version, ErrNotNewer)
	}

	url := opts.URL
	if url == "" {
		url = strings.ReplaceAll(prev.URL, prev.Version, version)
	}
	if url == prev.URL {
		return nil, fmt.Errorf("%s: %w", prev.Name, ErrURLUnchanged)
	}

	next := &formula.Descriptor{
		Name:        prev.Name,
		ClassName:   prev.ClassName,
		Description: prev.Description,
		Homepage:    prev.Homepage,
		URL:         url,
		Version:     version,
		SHA256:      strings.ToLower(opts.SHA256),
		Binaries:    append([]formula.InstallTarget(nil), prev.Binaries...),
	}
	if next.ClassName == "" {
		next.ClassName = formula.ClassName(next.Name)
	}
	return next, nil
}

// Kept returns the versioned copy of d that keeps it installable as
// name@version once a newer release replaces it.
func Kept(d *formula.Descriptor) *formula.Descriptor {
	k := *d
	k.Name = formula.VersionedName(d.Name, d.Version)
	k.ClassName = formula.ClassName(k.Name)
	k.Binaries = append([]formula.InstallTarget(nil), d.Binaries...)
	k.Unrecognized = nil
	k.Path = ""
	return &k
}

// Cutter writes new releases into a tap.
type Cutter struct {
	tap      *tap.Tap
	verifier Verifier
	logger   zerolog.Logger

	// Linter, when set, rejects descriptors with error-level issues
	// before anything is written.
	Linter *lint.Linter
}

// NewCutter creates a Cutter. verifier may be nil, in which case every
// release needs an explicit checksum.
func NewCutter(t *tap.Tap, verifier Verifier, logger zerolog.Logger) *Cutter {
	return &Cutter{tap: t, verifier: verifier, logger: logger}
}

// Cut replaces the current formula called name with a release of version.
func (c *Cutter) Cut(ctx context.Context, name, version string, opts Options) (*Result, error) {
	prev, err := c.tap.Lookup(name)
	if err != nil {
		return nil, err
	}
	if formula.IsVersioned(prev.Name) {
		return nil, fmt.Errorf("%s is a versioned formula; bump %s instead", prev.Name, prev.Package())
	}

	next, err := Next(prev, version, opts)
	if err != nil {
		return nil, err
	}

	if err := c.check(ctx, next); err != nil {
		return nil, err
	}

	res := &Result{Descriptor: next, Previous: prev}
	if opts.KeepPrevious {
		kept := Kept(prev)
		if _, err := os.Stat(c.tap.FormulaPath(kept.Name)); err == nil {
			c.logger.Info().Str("formula", kept.Name).Msg("versioned formula already present")
		} else {
			res.Kept = kept
		}
	}

	if opts.DryRun {
		return res, nil
	}
	return c.Apply(res)
}

// Apply writes a checked result into the tap: the kept copy of the
// previous release first, then the new descriptor. Cut and Create call it
// unless asked for a dry run, so a dry-run result can be applied after
// confirmation without fetching the artifact again.
func (c *Cutter) Apply(res *Result) (*Result, error) {
	if len(res.Paths) > 0 {
		return nil, fmt.Errorf("%s: release already written", res.Descriptor.Name)
	}
	if res.Kept != nil {
		path, err := c.tap.Write(res.Kept)
		if err != nil {
			return nil, err
		}
		res.Paths = append(res.Paths, path)
	}
	path, err := c.tap.Write(res.Descriptor)
	if err != nil {
		return nil, err
	}
	res.Paths = append(res.Paths, path)

	event := c.logger.Info().Str("formula", res.Descriptor.Name).Str("to", res.Descriptor.Version)
	if res.Previous != nil {
		event = event.Str("from", res.Previous.Version)
	}
	event.Msg("release written")
	return res, nil
}

// check fills in or confirms the checksum and makes sure the artifact
// carries every install source.
func (c *Cutter) check(ctx context.Context, d *formula.Descriptor) error {
	if c.verifier == nil {
		if d.SHA256 == "" {
			return fmt.Errorf("%s %s: no checksum given and downloads are disabled", d.Name, d.Version)
		}
		return c.lint(d)
	}

	v := c.verifier.Verify(ctx, d)
	if v.Err != nil {
		return fmt.Errorf("failed to fetch %s: %w", d.URL, v.Err)
	}
	if d.SHA256 == "" {
		d.SHA256 = v.Digest
	} else if !v.ChecksumOK {
		return fmt.Errorf("%s: expected %s, got %s: %w", d.URL, d.SHA256, v.Digest, ErrChecksumMismatch)
	}
	if len(v.MissingBinaries) > 0 {
		return fmt.Errorf("%s: %s: %w", d.URL, strings.Join(v.MissingBinaries, ", "), ErrMissingBinary)
	}
	return c.lint(d)
}

func (c *Cutter) lint(d *formula.Descriptor) error {
	if c.Linter == nil {
		return nil
	}
	var msgs []string
	for _, is := range c.Linter.Descriptor(d) {
		if is.Severity == lint.SeverityError {
			msgs = append(msgs, fmt.Sprintf("[%s] %s", is.Rule, is.Message))
		}
	}
	if len(msgs) > 0 {
		return fmt.Errorf("%s %s: %s: %w", d.Name, d.Version, strings.Join(msgs, "; "), ErrInvalid)
	}
	return nil
}
