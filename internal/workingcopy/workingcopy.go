package workingcopy

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/vcscompare/internal/db"
	"github.com/openmined/vcscompare/internal/utils"
)

const (
	MetaDir    = ".vcs"
	IgnoreFile = ".vcsignore"
	dbFile     = "wc.db"
	lockFile   = "wc.lock"
)

var (
	ErrNotWorkingCopy     = errors.New("not a working copy")
	ErrWorkingCopyLocked  = errors.New("working copy locked by another process")
	ErrAlreadyWorkingCopy = errors.New("directory is already a working copy")
	ErrLocalModifications = errors.New("working copy has local modifications")
	ErrNotVersioned       = errors.New("path is not under version control")
	ErrAlreadyVersioned   = errors.New("path is already under version control")
	ErrOutsideWorkingCopy = errors.New("path is outside the working copy")
)

// Info identifies the repository location a working copy was checked out from
type Info struct {
	// RootURL is the base url of the repository server
	RootURL string `db:"root_url"`
	// RepoPath is the repository path of the working copy root
	RepoPath string `db:"repo_path"`
	UUID     string `db:"uuid"`
}

// WorkingCopy is a local checkout of a repository subtree. Its metadata lives
// in the .vcs directory at the root. An open working copy holds an exclusive
// lock until Close.
type WorkingCopy struct {
	root   string
	info   Info
	db     *sqlx.DB
	flock  *flock.Flock
	ignore *ignoreList
}

// Find returns the working copy root containing p
func Find(p string) (string, error) {
	abs, err := utils.ResolvePath(p)
	if err != nil {
		return "", err
	}

	for dir := abs; ; dir = filepath.Dir(dir) {
		if utils.FileExists(filepath.Join(dir, MetaDir, dbFile)) {
			return dir, nil
		}
		if filepath.Dir(dir) == dir {
			return "", fmt.Errorf("%w: %s", ErrNotWorkingCopy, abs)
		}
	}
}

// Open opens the working copy containing p and locks it
func Open(p string) (*WorkingCopy, error) {
	root, err := Find(p)
	if err != nil {
		return nil, err
	}

	wc, err := open(root)
	if err != nil {
		return nil, err
	}

	if err := wc.db.Get(&wc.info, "SELECT root_url, repo_path, uuid FROM wc_info WHERE id = 1"); err != nil {
		wc.Close()
		return nil, fmt.Errorf("read working copy info: %w", err)
	}

	slog.Debug("working copy open", "root", root, "url", wc.URL(""))
	return wc, nil
}

// create initializes the metadata of a new working copy at root
func create(root string, info Info) (*WorkingCopy, error) {
	if utils.FileExists(filepath.Join(root, MetaDir, dbFile)) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyWorkingCopy, root)
	}

	wc, err := open(root)
	if err != nil {
		return nil, err
	}

	if _, err := wc.db.Exec(
		"INSERT INTO wc_info (id, root_url, repo_path, uuid) VALUES (1, ?, ?, ?)",
		info.RootURL, info.RepoPath, info.UUID,
	); err != nil {
		wc.Close()
		return nil, fmt.Errorf("write working copy info: %w", err)
	}
	wc.info = info
	return wc, nil
}

func open(root string) (*WorkingCopy, error) {
	metaDir := filepath.Join(root, MetaDir)
	if err := utils.EnsureDir(metaDir); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", metaDir, err)
	}

	lock := flock.New(filepath.Join(metaDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock working copy: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrWorkingCopyLocked, root)
	}

	database, err := db.NewSqliteDB(
		db.WithPath(filepath.Join(metaDir, dbFile)),
		db.WithMaxOpenConns(1),
		db.WithSchema(schema),
	)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("open working copy db: %w", err)
	}

	ignore, err := newIgnoreList(root)
	if err != nil {
		database.Close()
		lock.Unlock()
		return nil, err
	}

	return &WorkingCopy{
		root:   root,
		db:     database,
		flock:  lock,
		ignore: ignore,
	}, nil
}

// Close releases the database and the lock
func (wc *WorkingCopy) Close() error {
	err := wc.db.Close()
	if wc.flock.Locked() {
		if uerr := wc.flock.Unlock(); uerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to unlock working copy: %w", uerr))
		}
	}
	return err
}

func (wc *WorkingCopy) Root() string {
	return wc.root
}

func (wc *WorkingCopy) Info() Info {
	return wc.info
}

// RelPath converts a local path to a slash separated path relative to the root
func (wc *WorkingCopy) RelPath(p string) (string, error) {
	abs, err := utils.ResolvePath(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(wc.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkingCopy, p)
	}
	rel = utils.NormPath(filepath.ToSlash(rel))
	if isMetaPath(rel) {
		return "", fmt.Errorf("%w: %s is working copy metadata", ErrOutsideWorkingCopy, p)
	}
	return rel, nil
}

// LocalPath converts a relative path to an absolute local path
func (wc *WorkingCopy) LocalPath(rel string) string {
	rel = utils.NormPath(rel)
	if rel == "" {
		return wc.root
	}
	return filepath.Join(wc.root, filepath.FromSlash(rel))
}

// RepoPath returns the repository path of a relative path
func (wc *WorkingCopy) RepoPath(rel string) string {
	return joinRepoPath(wc.info.RepoPath, rel)
}

// URL returns the repository url of a relative path
func (wc *WorkingCopy) URL(rel string) string {
	return RepoURL(wc.info.RootURL, wc.RepoPath(rel))
}

// RepoURL builds the url of a repository path on the server at rootURL
func RepoURL(rootURL, repoPath string) string {
	u, err := url.Parse(strings.TrimRight(rootURL, "/"))
	if err != nil {
		return strings.TrimRight(rootURL, "/") + "/" + repoPath
	}
	u.Path = path.Join("/", u.Path, repoPath)
	if u.Path == "/" {
		u.Path = ""
	}
	u.RawPath = ""
	return u.String()
}

// SplitURL splits a repository url into the server root url and the path of
// the node in the repository
func SplitURL(rawURL string) (rootURL string, repoPath string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("invalid repository url %q", rawURL)
	}
	return u.Scheme + "://" + u.Host, utils.NormPath(u.Path), nil
}

// RepoPathOf returns the repository path addressed by location on the server
// at rootURL
func RepoPathOf(rootURL, location string) (string, error) {
	root, base, err := SplitURL(rootURL)
	if err != nil {
		return "", err
	}
	locRoot, p, err := SplitURL(location)
	if err != nil {
		return "", err
	}
	if locRoot != root || !utils.IsSubPath(base, p) {
		return "", fmt.Errorf("%s is not a location on %s", location, rootURL)
	}
	return p, nil
}

func joinRepoPath(base, rel string) string {
	rel = utils.NormPath(rel)
	switch {
	case base == "":
		return rel
	case rel == "":
		return base
	default:
		return base + "/" + rel
	}
}

func isMetaPath(rel string) bool {
	return rel == MetaDir || strings.HasPrefix(rel, MetaDir+"/")
}

// relParent returns the parent of a relative path, "" for top level entries
func relParent(rel string) string {
	i := strings.LastIndex(rel, "/")
	if i < 0 {
		return ""
	}
	return rel[:i]
}
