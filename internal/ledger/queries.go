package ledger

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
)

const releaseColumns = `id, package, formula, version, url, sha256, binaries, published_at, superseded_by`

type scanner interface {
	Scan(dest ...any) error
}

// Publish records d as published at the given time.
//
// Publishing a release that is already recorded unchanged is a no-op. A
// recorded version can never be re-published with different content
// (ErrImmutable), and a new version must be greater than the package's
// latest (ErrNotNewer).
func (l *Ledger) Publish(d *formula.Descriptor, at time.Time) (Result, error) {
	binaries, err := json.Marshal(d.Binaries)
	if err != nil {
		return ResultUnchanged, fmt.Errorf("failed to marshal binaries: %w", err)
	}
	pkg := d.Package()

	tx, err := l.db.Begin()
	if err != nil {
		return ResultUnchanged, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanRelease(tx.QueryRow(
		`SELECT `+releaseColumns+` FROM releases WHERE package = ? AND version = ?`,
		pkg, d.Version,
	))
	switch {
	case err == nil:
		old, _ := json.Marshal(existing.Binaries)
		if existing.URL == d.URL && existing.SHA256 == d.SHA256 && string(old) == string(binaries) {
			return ResultUnchanged, nil
		}
		return ResultUnchanged, fmt.Errorf("%s %s: %w", pkg, d.Version, ErrImmutable)
	case !errors.Is(err, sql.ErrNoRows):
		return ResultUnchanged, wrap(err, "failed to look up %s %s", pkg, d.Version)
	}

	latest, err := scanRelease(tx.QueryRow(
		`SELECT `+releaseColumns+` FROM releases WHERE package = ? ORDER BY id DESC LIMIT 1`,
		pkg,
	))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ResultUnchanged, wrap(err, "failed to get latest release of %s", pkg)
	}
	if err == nil && formula.CompareVersions(d.Version, latest.Version) <= 0 {
		return ResultUnchanged, fmt.Errorf("%s %s after %s: %w", pkg, d.Version, latest.Version, ErrNotNewer)
	}

	_, err = tx.Exec(`
		INSERT INTO releases (package, formula, version, url, sha256, binaries, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, pkg, d.Name, d.Version, d.URL, d.SHA256, string(binaries), at.UTC().Format(time.RFC3339))
	if err != nil {
		return ResultUnchanged, wrap(err, "failed to insert release %s %s", pkg, d.Version)
	}

	if latest != nil {
		_, err = tx.Exec(
			`UPDATE releases SET superseded_by = ? WHERE id = ? AND superseded_by IS NULL`,
			d.Version, latest.ID,
		)
		if err != nil {
			return ResultUnchanged, wrap(err, "failed to supersede %s %s", pkg, latest.Version)
		}
	}

	if err := tx.Commit(); err != nil {
		return ResultUnchanged, fmt.Errorf("failed to commit release: %w", err)
	}
	return ResultPublished, nil
}

// Latest returns the most recent release of pkg.
func (l *Ledger) Latest(pkg string) (*Release, error) {
	r, err := scanRelease(l.db.QueryRow(
		`SELECT `+releaseColumns+` FROM releases WHERE package = ? ORDER BY id DESC LIMIT 1`,
		pkg,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", pkg, ErrNotFound)
	}
	if err != nil {
		return nil, wrap(err, "failed to get latest release of %s", pkg)
	}
	return r, nil
}

// Releases returns every release of pkg in publication order.
func (l *Ledger) Releases(pkg string) ([]*Release, error) {
	return l.queryReleases(
		`SELECT `+releaseColumns+` FROM releases WHERE package = ? ORDER BY id`,
		pkg,
	)
}

// Superseded returns the releases of pkg that a later version replaced.
func (l *Ledger) Superseded(pkg string) ([]*Release, error) {
	return l.queryReleases(
		`SELECT `+releaseColumns+` FROM releases WHERE package = ? AND superseded_by IS NOT NULL ORDER BY id`,
		pkg,
	)
}

// Packages returns the names of all packages with at least one release.
func (l *Ledger) Packages() ([]string, error) {
	rows, err := l.db.Query(`SELECT DISTINCT package FROM releases ORDER BY package`)
	if err != nil {
		return nil, wrap(err, "failed to list packages")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating packages: %w", err)
	}
	return names, nil
}

// Order returns, per package, the recorded releases as descriptors in
// publication order.
func (l *Ledger) Order() (map[string][]*formula.Descriptor, error) {
	pkgs, err := l.Packages()
	if err != nil {
		return nil, err
	}

	order := make(map[string][]*formula.Descriptor, len(pkgs))
	for _, pkg := range pkgs {
		releases, err := l.Releases(pkg)
		if err != nil {
			return nil, err
		}
		for _, r := range releases {
			order[pkg] = append(order[pkg], r.Descriptor())
		}
	}
	return order, nil
}

func (l *Ledger) queryReleases(query string, args ...any) ([]*Release, error) {
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, wrap(err, "failed to query releases")
	}
	defer rows.Close()

	var releases []*Release
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		releases = append(releases, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating releases: %w", err)
	}
	return releases, nil
}

func scanRelease(row scanner) (*Release, error) {
	var r Release
	var binaries, publishedAt string
	var supersededBy sql.NullString

	err := row.Scan(
		&r.ID,
		&r.Package,
		&r.Formula,
		&r.Version,
		&r.URL,
		&r.SHA256,
		&binaries,
		&publishedAt,
		&supersededBy,
	)
	if err != nil {
		return nil, err
	}

	r.PublishedAt, err = time.Parse(time.RFC3339, publishedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse published_at for %s %s: %w", r.Package, r.Version, err)
	}
	if err := json.Unmarshal([]byte(binaries), &r.Binaries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal binaries for %s %s: %w", r.Package, r.Version, err)
	}
	r.SupersededBy = supersededBy.String
	return &r, nil
}
