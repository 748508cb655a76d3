package ledger

// Rows in releases are only ever inserted, and superseded_by is only ever
// set once, from NULL.
const schema = `
CREATE TABLE IF NOT EXISTS releases (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    package TEXT NOT NULL,
    formula TEXT NOT NULL,
    version TEXT NOT NULL,
    url TEXT NOT NULL,
    sha256 TEXT NOT NULL,
    binaries TEXT NOT NULL,
    published_at TEXT NOT NULL,
    superseded_by TEXT,
    UNIQUE (package, version)
);

CREATE INDEX IF NOT EXISTS idx_releases_package ON releases(package);

CREATE TRIGGER IF NOT EXISTS releases_no_delete
BEFORE DELETE ON releases
BEGIN
    SELECT RAISE(ABORT, 'releases are append-only');
END;
`
