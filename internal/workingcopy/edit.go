package workingcopy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/openmined/vcscompare/internal/utils"
)

// Add schedules an unversioned path for addition. Directories are added with
// every non-ignored path below them. Returns the added paths.
func (wc *WorkingCopy) Add(ctx context.Context, rel string) ([]string, error) {
	rel = utils.NormPath(rel)
	if rel == "" {
		return nil, fmt.Errorf("%w: working copy root", ErrAlreadyVersioned)
	}

	if _, err := getNode(ctx, wc.db, rel); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyVersioned, rel)
	} else if !errors.Is(err, ErrNotVersioned) {
		return nil, err
	}

	parent, err := getNode(ctx, wc.db, relParent(rel))
	if err != nil {
		return nil, fmt.Errorf("parent of %q: %w", rel, err)
	}
	if parent.Schedule == ScheduleDelete || parent.Kind != KindDir {
		return nil, fmt.Errorf("%w: parent of %q is not a versioned directory", ErrNotVersioned, rel)
	}

	root := wc.LocalPath(rel)
	if _, err := os.Lstat(root); err != nil {
		return nil, fmt.Errorf("add %q: %w", rel, err)
	}

	var added []*Node
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		r, err := wc.RelPath(p)
		if err != nil {
			return err
		}
		if r != rel && wc.ignore.ShouldIgnore(r, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		kind := KindFile
		if d.IsDir() {
			kind = KindDir
		}
		added = append(added, &Node{
			RelPath:    r,
			RepoPath:   wc.RepoPath(r),
			Kind:       kind,
			Revision:   -1,
			ChangedRev: -1,
			Schedule:   ScheduleAdd,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	tx, err := wc.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	paths := make([]string, 0, len(added))
	for _, n := range added {
		if err := putNode(ctx, tx, n); err != nil {
			return nil, err
		}
		paths = append(paths, n.RelPath)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	slog.Debug("add", "path", rel, "count", len(paths))
	return paths, nil
}

// Remove schedules a versioned path and everything below it for deletion and
// removes it from disk. Paths that were only scheduled for addition are
// forgotten and left on disk. Returns the affected paths.
func (wc *WorkingCopy) Remove(ctx context.Context, rel string) ([]string, error) {
	rel = utils.NormPath(rel)
	if rel == "" {
		return nil, errors.New("cannot remove the working copy root")
	}

	node, err := getNode(ctx, wc.db, rel)
	if err != nil {
		return nil, err
	}

	if node.Schedule == ScheduleAdd {
		nodes, err := listNodes(ctx, wc.db, rel)
		if err != nil {
			return nil, err
		}
		if err := deleteNodes(ctx, wc.db, rel); err != nil {
			return nil, err
		}
		return nodePaths(nodes), nil
	}

	nodes, err := listNodes(ctx, wc.db, rel)
	if err != nil {
		return nil, err
	}

	tx, err := wc.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, n := range nodes {
		if n.Schedule == ScheduleAdd {
			if err := deleteNodes(ctx, tx, n.RelPath); err != nil {
				return nil, err
			}
			continue
		}
		n.Schedule = ScheduleDelete
		if err := putNode(ctx, tx, n); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if err := os.RemoveAll(wc.LocalPath(rel)); err != nil {
		return nil, fmt.Errorf("remove %s: %w", rel, err)
	}

	slog.Debug("remove", "path", rel, "count", len(nodes))
	return nodePaths(nodes), nil
}

// PropSet sets a property on a versioned path. An empty value deletes it.
func (wc *WorkingCopy) PropSet(ctx context.Context, rel, name, value string) error {
	rel = utils.NormPath(rel)
	if name == "" {
		return errors.New("property name is required")
	}

	node, err := getNode(ctx, wc.db, rel)
	if err != nil {
		return err
	}
	if node.Schedule == ScheduleDelete {
		return fmt.Errorf("%q is scheduled for deletion", rel)
	}

	props := make(map[string]string, len(node.WorkingProps)+1)
	for k, v := range node.WorkingProps {
		props[k] = v
	}
	if value == "" {
		delete(props, name)
	} else {
		props[name] = value
	}
	node.WorkingProps = props

	return putNode(ctx, wc.db, node)
}

func nodePaths(nodes []*Node) []string {
	paths := make([]string, len(nodes))
	for i, n := range nodes {
		paths[i] = n.RelPath
	}
	sort.Strings(paths)
	return paths
}
