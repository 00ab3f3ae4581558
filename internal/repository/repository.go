package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/vcscompare/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revisions (
    rev INTEGER PRIMARY KEY,
    author TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at TEXT NOT NULL -- RFC3339
);

CREATE TABLE IF NOT EXISTS nodes (
    path TEXT NOT NULL,
    rev INTEGER NOT NULL,
    kind TEXT NOT NULL, -- file, dir or none for a deletion
    checksum TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    props TEXT NOT NULL DEFAULT '{}',
    copyfrom_path TEXT NOT NULL DEFAULT '',
    copyfrom_rev INTEGER NOT NULL DEFAULT -1,
    PRIMARY KEY (path, rev)
);

CREATE INDEX IF NOT EXISTS idx_nodes_rev ON nodes(rev);

CREATE TABLE IF NOT EXISTS contents (
    checksum TEXT PRIMARY KEY,
    data BLOB NOT NULL
);
`

const contentCacheSize = 256

var (
	ErrNodeNotFound   = errors.New("node not found")
	ErrPathExists     = errors.New("path already exists")
	ErrNotDirectory   = errors.New("parent is not a directory")
	ErrNoSuchRevision = errors.New("no such revision")
	ErrEmptyCommit    = errors.New("commit has no operations")
)

// Head selects the youngest revision wherever a revision number is accepted
const Head int64 = -1

// Repository is a versioned tree of files and directories stored in SQLite.
// Every commit creates a new global revision.
type Repository struct {
	db       *sqlx.DB
	uuid     string
	contents *lru.Cache[string, []byte]
}

// Open opens or creates the repository database at path. ":memory:" creates
// a throwaway repository.
func Open(path string) (*Repository, error) {
	database, err := db.NewSqliteDB(
		db.WithPath(path),
		db.WithMaxOpenConns(1),
		db.WithSchema(schema),
	)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}

	contents, err := lru.New[string, []byte](contentCacheSize)
	if err != nil {
		database.Close()
		return nil, err
	}

	r := &Repository{db: database, contents: contents}
	if err := r.init(); err != nil {
		database.Close()
		return nil, err
	}
	if err := r.loadUUID(); err != nil {
		database.Close()
		return nil, err
	}
	return r, nil
}

// init creates revision 0 with an empty root directory
func (r *Repository) init() error {
	var count int
	if err := r.db.Get(&count, "SELECT COUNT(*) FROM revisions"); err != nil {
		return fmt.Errorf("count revisions: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO revisions (rev, author, message, created_at) VALUES (0, '', 'initial', ?)",
		time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("create revision 0: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO nodes (path, rev, kind) VALUES ('', 0, ?)", string(KindDir)); err != nil {
		return fmt.Errorf("create root: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES ('uuid', ?)", uuid.New().String()); err != nil {
		return fmt.Errorf("create uuid: %w", err)
	}

	slog.Debug("repository initialized")
	return tx.Commit()
}

func (r *Repository) loadUUID() error {
	if err := r.db.Get(&r.uuid, "SELECT value FROM meta WHERE key = 'uuid'"); err != nil {
		return fmt.Errorf("read repository uuid: %w", err)
	}
	return nil
}

// UUID identifies the repository across servers and copies of its database
func (r *Repository) UUID() string {
	return r.uuid
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Youngest returns the latest revision number
func (r *Repository) Youngest(ctx context.Context) (int64, error) {
	var rev int64
	if err := r.db.GetContext(ctx, &rev, "SELECT COALESCE(MAX(rev), 0) FROM revisions"); err != nil {
		return 0, fmt.Errorf("youngest revision: %w", err)
	}
	return rev, nil
}

// ResolveRev maps Head to the youngest revision and validates numbered revisions
func (r *Repository) ResolveRev(ctx context.Context, rev int64) (int64, error) {
	youngest, err := r.Youngest(ctx)
	if err != nil {
		return 0, err
	}
	if rev < 0 {
		return youngest, nil
	}
	if rev > youngest {
		return 0, fmt.Errorf("%w: %d (youngest is %d)", ErrNoSuchRevision, rev, youngest)
	}
	return rev, nil
}

// Log returns the metadata of a revision
func (r *Repository) Log(ctx context.Context, rev int64) (*Revision, error) {
	rev, err := r.ResolveRev(ctx, rev)
	if err != nil {
		return nil, err
	}

	var dbRev dbRevision
	if err := r.db.GetContext(ctx, &dbRev, "SELECT rev, author, message, created_at FROM revisions WHERE rev = ?", rev); err != nil {
		return nil, fmt.Errorf("log %d: %w", rev, err)
	}
	return dbRev.toRevision()
}
