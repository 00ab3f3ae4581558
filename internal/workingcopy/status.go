package workingcopy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/vcscompare/internal/reposdk"
	"github.com/openmined/vcscompare/internal/utils"
)

type StatusKind string

const (
	StatusNone        StatusKind = "none"
	StatusNormal      StatusKind = "normal"
	StatusUnversioned StatusKind = "unversioned"
	StatusAdded       StatusKind = "added"
	StatusMissing     StatusKind = "missing"
	StatusDeleted     StatusKind = "deleted"
	StatusReplaced    StatusKind = "replaced"
	StatusModified    StatusKind = "modified"
	StatusObstructed  StatusKind = "obstructed"
)

// StatusEntry describes one path found by a status scan
type StatusEntry struct {
	RelPath   string
	LocalPath string
	URL       string
	Kind      Kind
	Text      StatusKind
	Props     StatusKind
	RepoText  StatusKind
	RepoProps StatusKind
	// Revision is the base revision, -1 for paths without one
	Revision   int64
	ChangedRev int64
}

// HasLocalChange is true for scheduled or modified content and properties
func (e *StatusEntry) HasLocalChange() bool {
	switch e.Text {
	case StatusAdded, StatusDeleted, StatusModified, StatusReplaced:
		return true
	}
	return e.Props == StatusModified
}

func (e *StatusEntry) HasRemoteChange() bool {
	return (e.RepoText != StatusNone && e.RepoText != StatusNormal) ||
		(e.RepoProps != StatusNone && e.RepoProps != StatusNormal)
}

type StatusOptions struct {
	Recursive bool
	// Remote compares base nodes with the youngest revision when set
	Remote RepoClient
}

// Status scans the subtree at rel. Entries are sorted by path.
func (wc *WorkingCopy) Status(ctx context.Context, rel string, opts StatusOptions) iter.Seq2[*StatusEntry, error] {
	return func(yield func(*StatusEntry, error) bool) {
		entries, err := wc.status(ctx, utils.NormPath(rel), opts)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (wc *WorkingCopy) status(ctx context.Context, rel string, opts StatusOptions) ([]*StatusEntry, error) {
	nodes, err := wc.Nodes(ctx, rel, opts.Recursive)
	if err != nil {
		return nil, err
	}

	if len(nodes) == 0 {
		info, err := os.Lstat(wc.LocalPath(rel))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrNotVersioned, rel)
		}
		return []*StatusEntry{wc.unversionedEntry(rel, info.IsDir())}, nil
	}

	entries := make([]*StatusEntry, 0, len(nodes))
	byPath := make(map[string]*StatusEntry, len(nodes))
	base := make(map[string]*Node, len(nodes))
	versioned := mapset.NewThreadUnsafeSet[string]()

	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := wc.nodeStatus(n)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		byPath[n.RelPath] = e
		base[n.RelPath] = n
		versioned.Add(n.RelPath)
	}

	unversioned, err := wc.scanUnversioned(rel, opts.Recursive, versioned)
	if err != nil {
		return nil, err
	}
	for _, e := range unversioned {
		entries = append(entries, e)
		byPath[e.RelPath] = e
	}

	if opts.Remote != nil {
		added, err := wc.remoteStatus(ctx, opts.Remote, rel, nodes[0], opts.Recursive, base, byPath)
		if err != nil {
			return nil, err
		}
		entries = append(entries, added...)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })
	return entries, nil
}

func (wc *WorkingCopy) nodeStatus(n *Node) (*StatusEntry, error) {
	e := &StatusEntry{
		RelPath:    n.RelPath,
		LocalPath:  wc.LocalPath(n.RelPath),
		URL:        wc.URL(n.RelPath),
		Kind:       n.Kind,
		Text:       StatusNormal,
		Props:      StatusNormal,
		RepoText:   StatusNone,
		RepoProps:  StatusNone,
		Revision:   n.Revision,
		ChangedRev: n.ChangedRev,
	}

	if !propsEqual(n.WorkingProps, n.Props) && n.Schedule != ScheduleAdd {
		e.Props = StatusModified
	}

	switch n.Schedule {
	case ScheduleDelete:
		e.Text = StatusDeleted
		return e, nil
	case ScheduleAdd:
		e.Text = StatusAdded
	}

	info, err := os.Lstat(e.LocalPath)
	if errors.Is(err, fs.ErrNotExist) {
		e.Text = StatusMissing
		return e, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", n.RelPath, err)
	}

	if diskKind(info) != n.Kind {
		e.Text = StatusObstructed
		return e, nil
	}

	if n.Schedule == ScheduleNormal && n.Kind == KindFile {
		if info.Size() != n.Size {
			e.Text = StatusModified
			return e, nil
		}
		sum, err := utils.FileHash(e.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", n.RelPath, err)
		}
		if sum != n.Checksum {
			e.Text = StatusModified
		}
	}
	return e, nil
}

// scanUnversioned walks the disk below rel for paths without a node. It does
// not descend into unversioned or ignored directories.
func (wc *WorkingCopy) scanUnversioned(rel string, recursive bool, versioned mapset.Set[string]) ([]*StatusEntry, error) {
	var entries []*StatusEntry

	start := wc.LocalPath(rel)
	if !utils.DirExists(start) {
		return nil, nil
	}

	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == start {
			return nil
		}

		r, err := filepath.Rel(wc.root, p)
		if err != nil {
			return err
		}
		r = filepath.ToSlash(r)

		if versioned.Contains(r) {
			if d.IsDir() && !recursive {
				return filepath.SkipDir
			}
			return nil
		}

		if !wc.ignore.ShouldIgnore(r, d.IsDir()) {
			entries = append(entries, wc.unversionedEntry(r, d.IsDir()))
		}
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", start, err)
	}
	return entries, nil
}

func (wc *WorkingCopy) unversionedEntry(rel string, isDir bool) *StatusEntry {
	kind := KindFile
	if isDir {
		kind = KindDir
	}
	return &StatusEntry{
		RelPath:    rel,
		LocalPath:  wc.LocalPath(rel),
		URL:        wc.URL(rel),
		Kind:       kind,
		Text:       StatusUnversioned,
		Props:      StatusNone,
		RepoText:   StatusNone,
		RepoProps:  StatusNone,
		Revision:   -1,
		ChangedRev: -1,
	}
}

// remoteStatus fills the repository status of base nodes from the youngest
// tree and returns entries for paths only the repository has
func (wc *WorkingCopy) remoteStatus(ctx context.Context, client RepoClient, rel string, root *Node, recursive bool, base map[string]*Node, byPath map[string]*StatusEntry) ([]*StatusEntry, error) {
	head := make(map[string]*reposdk.Node)

	tree, err := client.Tree(ctx, root.RepoPath, "HEAD", recursive)
	switch {
	case reposdk.IsNotFound(err):
	case err != nil:
		return nil, fmt.Errorf("fetch tree %s: %w", root.RepoPath, err)
	default:
		for _, rn := range tree.Nodes {
			head[joinRepoPath(rel, utils.RelPath(root.RepoPath, rn.Path))] = rn
		}
	}

	for p, e := range byPath {
		rn, ok := head[p]
		n := base[p]
		if n == nil || n.Schedule == ScheduleAdd {
			if ok && e.Text == StatusUnversioned {
				e.RepoText = StatusAdded
			}
			continue
		}
		if !ok {
			e.RepoText = StatusDeleted
			continue
		}
		e.RepoText = StatusNormal
		e.RepoProps = StatusNormal
		if Kind(rn.Kind) != n.Kind {
			e.RepoText = StatusReplaced
			continue
		}
		if rn.Kind == reposdk.NodeKindFile && rn.Checksum != n.Checksum {
			e.RepoText = StatusModified
		}
		if !propsEqual(rn.Props, n.Props) {
			e.RepoProps = StatusModified
		}
	}

	var added []*StatusEntry
	for p, rn := range head {
		if _, ok := byPath[p]; ok {
			continue
		}
		added = append(added, &StatusEntry{
			RelPath:    p,
			LocalPath:  wc.LocalPath(p),
			URL:        wc.URL(p),
			Kind:       Kind(rn.Kind),
			Text:       StatusNone,
			Props:      StatusNone,
			RepoText:   StatusAdded,
			RepoProps:  StatusNone,
			Revision:   -1,
			ChangedRev: rn.Rev,
		})
	}
	return added, nil
}

func diskKind(info fs.FileInfo) Kind {
	if info.IsDir() {
		return KindDir
	}
	return KindFile
}
