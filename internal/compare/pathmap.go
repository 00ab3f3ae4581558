package compare

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrOutsideRoot = errors.New("path is outside the comparison root")
)

// ResourceTree resolves local paths to existing nodes
type ResourceTree interface {
	Lookup(localPath string) (NodeKind, bool)
}

// FSTree looks nodes up on the local filesystem
type FSTree struct{}

func (FSTree) Lookup(localPath string) (NodeKind, bool) {
	info, err := os.Lstat(localPath)
	if err != nil {
		return NodeNone, false
	}
	if info.IsDir() {
		return NodeDir, true
	}
	return NodeFile, true
}

// PathMapper converts backend paths into identities relative to a comparison root
type PathMapper struct {
	root      string
	localRoot string
	tree      ResourceTree
}

// NewPathMapper returns a mapper for raw paths under rootLocation, a local path
// or a repository URL. Identities are built under localRoot. When the root is a
// single file its parent becomes the search root.
func NewPathMapper(rootLocation, localRoot string, rootIsFile bool, tree ResourceTree) *PathMapper {
	root := normalizeLocation(rootLocation)
	localRoot = filepath.Clean(localRoot)
	if rootIsFile {
		root = parentLocation(root)
		localRoot = filepath.Dir(localRoot)
	}
	if tree == nil {
		tree = FSTree{}
	}
	return &PathMapper{
		root:      root,
		localRoot: localRoot,
		tree:      tree,
	}
}

// Root returns the normalized search root
func (m *PathMapper) Root() string {
	return m.root
}

// Resolve maps raw to an identity. kind is used for placeholder identities.
func (m *PathMapper) Resolve(raw string, kind NodeKind) (Identity, error) {
	loc := normalizeLocation(raw)
	if loc != m.root && !strings.HasPrefix(loc, strings.TrimSuffix(m.root, "/")+"/") {
		return Identity{}, fmt.Errorf("%w: %s not under %s", ErrOutsideRoot, raw, m.root)
	}

	rel := strings.TrimPrefix(loc[len(m.root):], "/")
	localPath := m.localRoot
	if rel != "" {
		localPath = filepath.Join(m.localRoot, filepath.FromSlash(rel))
	}

	if k, ok := m.tree.Lookup(localPath); ok {
		return Identity{Path: localPath, Kind: k}, nil
	}
	return Identity{Path: localPath, Kind: kind, Placeholder: true}, nil
}

// normalizeLocation decodes URLs and converts local paths to forward slashes,
// dropping any trailing separator.
func normalizeLocation(loc string) string {
	if isURL(loc) {
		u, err := url.Parse(loc)
		if err == nil {
			p := path.Clean("/" + u.Path)
			if p == "/" {
				p = ""
			}
			return u.Scheme + "://" + u.Host + p
		}
		return strings.TrimRight(loc, "/")
	}

	loc = filepath.ToSlash(filepath.Clean(loc))
	if len(loc) > 1 {
		loc = strings.TrimRight(loc, "/")
	}
	return loc
}

func parentLocation(loc string) string {
	start := 0
	if i := strings.Index(loc, "://"); i >= 0 {
		start = i + 3
	}
	i := strings.LastIndex(loc[start:], "/")
	if i < 0 {
		return loc
	}
	if start+i == 0 {
		return "/"
	}
	return loc[:start+i]
}

func isURL(loc string) bool {
	return strings.Contains(loc, "://")
}

// JoinLocation appends a slash separated relative path to a URL or local path
func JoinLocation(base, rel string) string {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return base
	}
	if isURL(base) {
		return strings.TrimRight(base, "/") + "/" + rel
	}
	return filepath.Join(base, filepath.FromSlash(rel))
}
