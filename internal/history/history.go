// Package history reads the publication order of formulae from the git
// history of a tap.
package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/lint"
	"github.com/blackwell-systems/tapkeeper/internal/tap"
)

// ErrNotRepository is returned when the tap is not inside a git repository.
var ErrNotRepository = errors.New("tap is not a git repository")

// Revision is a formula file as it was at one commit.
type Revision struct {
	Commit     string
	When       time.Time
	Descriptor *formula.Descriptor
}

// Repo wraps the git repository that holds a tap.
type Repo struct {
	repo   *git.Repository
	root   string
	logger zerolog.Logger
}

// Open finds the git repository containing dir, searching parent
// directories the way git does.
func Open(dir string, logger zerolog.Logger) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNotRepository
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}

	return &Repo{
		repo:   repo,
		root:   resolve(wt.Filesystem.Root()),
		logger: logger,
	}, nil
}

// Root returns the worktree root.
func (r *Repo) Root() string {
	return r.root
}

// RelPath converts an on-disk path into the slash-separated path git uses.
func (r *Repo) RelPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(r.root, resolve(abs))
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the repository", path)
	}
	return filepath.ToSlash(rel), nil
}

// Revisions returns every committed version of the file at relPath, oldest
// first. Consecutive commits that leave the release unchanged (a desc edit,
// say) collapse into the earliest one. Revisions that do not parse are
// skipped.
func (r *Repo) Revisions(ctx context.Context, relPath string) ([]Revision, error) {
	iter, err := r.repo.Log(&git.LogOptions{FileName: &relPath})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// No commits yet.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read log for %s: %w", relPath, err)
	}
	defer iter.Close()

	name := strings.TrimSuffix(filepath.Base(relPath), ".rb")

	var newestFirst []Revision
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := c.File(relPath)
		if err != nil {
			// Deleted in this commit.
			if errors.Is(err, object.ErrFileNotFound) {
				return nil
			}
			return fmt.Errorf("failed to read %s at %s: %w", relPath, c.Hash, err)
		}
		contents, err := f.Contents()
		if err != nil {
			return fmt.Errorf("failed to read %s at %s: %w", relPath, c.Hash, err)
		}

		d, err := formula.Parse(strings.NewReader(contents))
		if err != nil {
			r.logger.Debug().
				Str("file", relPath).
				Str("commit", c.Hash.String()[:7]).
				Err(err).
				Msg("skipping unparseable revision")
			return nil
		}
		d.Name = name
		d.Path = relPath

		newestFirst = append(newestFirst, Revision{
			Commit:     c.Hash.String(),
			When:       c.Committer.When,
			Descriptor: d,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	var revs []Revision
	for i := len(newestFirst) - 1; i >= 0; i-- {
		rev := newestFirst[i]
		if n := len(revs); n > 0 && revs[n-1].Descriptor.SameRelease(rev.Descriptor) {
			continue
		}
		revs = append(revs, rev)
	}
	return revs, nil
}

// PublicationOrder returns, per package, the releases of all its formula
// files merged in commit order. A release kept as name@version is counted
// once. A revert inside one file is a new entry, so a downgrade stays
// visible to the monotonic rule.
func (r *Repo) PublicationOrder(ctx context.Context, t *tap.Tap) (map[string][]*formula.Descriptor, error) {
	order := make(map[string][]*formula.Descriptor)

	for _, pkg := range t.Packages() {
		var revs []Revision
		for _, d := range pkg.Descriptors {
			rel, err := r.RelPath(d.Path)
			if err != nil {
				return nil, err
			}
			fileRevs, err := r.Revisions(ctx, rel)
			if err != nil {
				return nil, err
			}
			// An uncommitted edit is the newest release.
			if n := len(fileRevs); n == 0 || !fileRevs[n-1].Descriptor.SameRelease(d) {
				fileRevs = append(fileRevs, Revision{When: time.Now(), Descriptor: d})
			}
			revs = append(revs, fileRevs...)
		}

		sort.SliceStable(revs, func(i, j int) bool {
			return revs[i].When.Before(revs[j].When)
		})

		var seq []*formula.Descriptor
		for _, rev := range revs {
			if keptCopy(seq, rev.Descriptor) {
				continue
			}
			seq = append(seq, rev.Descriptor)
		}
		order[pkg.Name] = seq

		r.logger.Debug().
			Str("package", pkg.Name).
			Int("releases", len(seq)).
			Msg("publication order from history")
	}
	return order, nil
}

// Order returns the publication order of t from git history, or from the
// files at HEAD when the tap is not in a repository. The second result is
// "history" or "files".
func Order(ctx context.Context, t *tap.Tap, logger zerolog.Logger) (map[string][]*formula.Descriptor, string, error) {
	repo, err := Open(t.Root, logger)
	if errors.Is(err, ErrNotRepository) {
		logger.Debug().Str("tap", t.Root).Msg("tap is not a git repository")
		return lint.HeadOrder(t.Descriptors), "files", nil
	}
	if err != nil {
		return nil, "", err
	}
	order, err := repo.PublicationOrder(ctx, t)
	if err != nil {
		return nil, "", err
	}
	return order, "history", nil
}

// keptCopy reports whether d lives in a versioned file and repeats a
// release already in seq.
func keptCopy(seq []*formula.Descriptor, d *formula.Descriptor) bool {
	if !formula.IsVersioned(d.Name) {
		return false
	}
	for _, seen := range seq {
		if seen.SameRelease(d) {
			return true
		}
	}
	return false
}

func resolve(path string) string {
	if p, err := filepath.EvalSymlinks(path); err == nil {
		return p
	}
	return path
}
