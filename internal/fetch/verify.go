package fetch

import (
	"context"
	"errors"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
)

// Verification is the outcome of checking one descriptor against the
// artifact its URL serves.
type Verification struct {
	Descriptor      *formula.Descriptor
	Digest          string
	Size            int64
	ChecksumOK      bool
	Archive         bool
	MissingBinaries []string
	Err             error
}

// OK reports whether the artifact matched in every respect.
func (v *Verification) OK() bool {
	return v.Err == nil && v.ChecksumOK && len(v.MissingBinaries) == 0
}

// Verify downloads d's artifact, compares its digest to d.SHA256 and checks
// that every install source is present. An artifact that is not an archive
// must itself be the single install source.
func (c *Client) Verify(ctx context.Context, d *formula.Descriptor) *Verification {
	v := &Verification{Descriptor: d}

	a, err := c.Fetch(ctx, d.URL)
	if err != nil {
		v.Err = err
		return v
	}
	defer a.Remove()

	v.Digest = a.SHA256
	v.Size = a.Size
	v.ChecksumOK = strings.EqualFold(a.SHA256, d.SHA256)

	entries, err := Entries(a.Path)
	switch {
	case errors.Is(err, ErrNotArchive):
		for _, b := range d.Binaries {
			if path.Base(b.Source) != path.Base(a.Path) {
				v.MissingBinaries = append(v.MissingBinaries, b.Source)
			}
		}
		return v
	case err != nil:
		v.Err = err
		return v
	}

	v.Archive = true
	for _, b := range d.Binaries {
		if !hasEntry(entries, b.Source) {
			v.MissingBinaries = append(v.MissingBinaries, b.Source)
		}
	}

	c.logger.Debug().
		Str("formula", d.Name).
		Bool("checksum_ok", v.ChecksumOK).
		Strs("missing", v.MissingBinaries).
		Msg("verified artifact")
	return v
}

// VerifyAll verifies ds concurrently, at most Workers at a time. Results are
// returned in the order of ds.
func (c *Client) VerifyAll(ctx context.Context, ds []*formula.Descriptor) []*Verification {
	results := make([]*Verification, len(ds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)
	for i, d := range ds {
		g.Go(func() error {
			results[i] = c.Verify(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// hasEntry matches an install source ("outlyer" or "bin/outlyer") against
// archive entries, allowing for a leading top-level directory.
func hasEntry(entries []string, source string) bool {
	for _, e := range entries {
		if e == source || strings.HasSuffix(e, "/"+source) || path.Base(e) == path.Base(source) {
			return true
		}
	}
	return false
}
