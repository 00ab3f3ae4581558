package workingcopy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/openmined/vcscompare/internal/reposdk"
	"github.com/openmined/vcscompare/internal/utils"
	"golang.org/x/sync/errgroup"
)

const fetchConcurrency = 4

// RepoClient is the part of the repository api a working copy needs
type RepoClient interface {
	Info(ctx context.Context) (*reposdk.Info, error)
	Tree(ctx context.Context, path string, rev string, recursive bool) (*reposdk.Tree, error)
	File(ctx context.Context, path string, rev string) (*reposdk.File, error)
}

// Checkout creates a working copy of the directory at rawURL in dir. A
// negative rev checks out the youngest revision.
func Checkout(ctx context.Context, client RepoClient, rawURL string, dir string, rev int64) (*WorkingCopy, error) {
	rootURL, repoPath, err := SplitURL(rawURL)
	if err != nil {
		return nil, err
	}

	root, err := utils.ResolvePath(dir)
	if err != nil {
		return nil, err
	}

	info, err := client.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository info: %w", err)
	}

	tree, err := client.Tree(ctx, repoPath, reposdk.FormatRev(rev), true)
	if err != nil {
		return nil, fmt.Errorf("fetch tree %s: %w", rawURL, err)
	}
	if len(tree.Nodes) == 0 || tree.Nodes[0].Kind != reposdk.NodeKindDir {
		return nil, fmt.Errorf("%s is not a directory", rawURL)
	}

	if err := utils.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", root, err)
	}

	wc, err := create(root, Info{RootURL: rootURL, RepoPath: repoPath, UUID: info.UUID})
	if err != nil {
		return nil, err
	}

	nodes, bytes, err := wc.fetch(ctx, client, "", tree)
	if err != nil {
		wc.Close()
		return nil, err
	}

	slog.Info("checkout", "url", rawURL, "root", root, "rev", tree.Rev, "nodes", nodes, "size", humanize.Bytes(uint64(bytes)))
	return wc, nil
}

// Update brings the subtree at rel to rev. It refuses to touch a subtree
// with local modifications. A negative rev updates to the youngest revision.
// Returns the revision the subtree is at afterwards.
func (wc *WorkingCopy) Update(ctx context.Context, client RepoClient, rel string, rev int64) (int64, error) {
	rel = utils.NormPath(rel)
	node, err := getNode(ctx, wc.db, rel)
	if err != nil {
		return 0, err
	}
	if node.Schedule != ScheduleNormal {
		return 0, fmt.Errorf("%w: %q is scheduled for %s", ErrLocalModifications, rel, node.Schedule)
	}

	for entry, err := range wc.Status(ctx, rel, StatusOptions{Recursive: true}) {
		if err != nil {
			return 0, err
		}
		if entry.HasLocalChange() {
			return 0, fmt.Errorf("%w: %s is %s", ErrLocalModifications, entry.RelPath, entry.Text)
		}
	}

	tree, err := client.Tree(ctx, node.RepoPath, reposdk.FormatRev(rev), true)
	if reposdk.IsNotFound(err) {
		// gone in the target revision
		if err := wc.removeLocal(ctx, rel); err != nil {
			return 0, err
		}
		info, err := client.Info(ctx)
		if err != nil {
			return 0, err
		}
		if rev < 0 {
			rev = info.Youngest
		}
		slog.Info("update removed", "path", rel, "rev", rev)
		return rev, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fetch tree %s: %w", node.RepoPath, err)
	}

	nodes, bytes, err := wc.fetch(ctx, client, rel, tree)
	if err != nil {
		return 0, err
	}

	slog.Info("update", "path", rel, "rev", tree.Rev, "nodes", nodes, "size", humanize.Bytes(uint64(bytes)))
	return tree.Rev, nil
}

// fetch makes the subtree at rel match tree. Files whose base checksum
// already matches are not downloaded again. Returns the number of nodes and
// bytes written.
func (wc *WorkingCopy) fetch(ctx context.Context, client RepoClient, rel string, tree *reposdk.Tree) (int, int64, error) {
	existing, err := listNodes(ctx, wc.db, rel)
	if err != nil {
		return 0, 0, err
	}
	local := make(map[string]*Node, len(existing))
	for _, n := range existing {
		local[n.RelPath] = n
	}

	rootRepoPath := tree.Nodes[0].Path
	remote := make(map[string]*reposdk.Node, len(tree.Nodes))
	for _, rn := range tree.Nodes {
		remote[joinRepoPath(rel, utils.RelPath(rootRepoPath, rn.Path))] = rn
	}

	// deepest first so files go before their directories
	stale := make([]string, 0)
	for p, n := range local {
		if rn, ok := remote[p]; !ok || Kind(rn.Kind) != n.Kind {
			stale = append(stale, p)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(stale)))
	for _, p := range stale {
		if err := os.RemoveAll(wc.LocalPath(p)); err != nil {
			return 0, 0, fmt.Errorf("remove %s: %w", p, err)
		}
		delete(local, p)
	}

	paths := make([]string, 0, len(remote))
	for p := range remote {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var downloads []string
	for _, p := range paths {
		rn := remote[p]
		if rn.Kind == reposdk.NodeKindDir {
			if err := utils.EnsureDir(wc.LocalPath(p)); err != nil {
				return 0, 0, fmt.Errorf("failed to create directory %s: %w", p, err)
			}
			continue
		}
		if n, ok := local[p]; ok && n.Checksum == rn.Checksum && utils.FileExists(wc.LocalPath(p)) {
			continue
		}
		if _, ok := local[p]; !ok && utils.FileExists(wc.LocalPath(p)) {
			return 0, 0, fmt.Errorf("obstructed: unversioned %s is in the way", p)
		}
		downloads = append(downloads, p)
	}

	var written int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(fetchConcurrency)
	sizes := make([]int64, len(downloads))
	for i, p := range downloads {
		eg.Go(func() error {
			rn := remote[p]
			file, err := client.File(egCtx, rn.Path, reposdk.FormatRev(tree.Rev))
			if err != nil {
				return fmt.Errorf("fetch %s: %w", rn.Path, err)
			}
			if file.Checksum != "" && file.Checksum != rn.Checksum {
				return fmt.Errorf("fetch %s: checksum mismatch", rn.Path)
			}
			if err := utils.WriteFileAtomic(wc.LocalPath(p), file.Content, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", p, err)
			}
			sizes[i] = int64(len(file.Content))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, 0, err
	}
	for _, s := range sizes {
		written += s
	}

	tx, err := wc.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	for _, p := range stale {
		if err := deleteNodes(ctx, tx, p); err != nil {
			return 0, 0, err
		}
	}
	for _, p := range paths {
		rn := remote[p]
		if err := putNode(ctx, tx, &Node{
			RelPath:      p,
			RepoPath:     rn.Path,
			Kind:         Kind(rn.Kind),
			Revision:     tree.Rev,
			ChangedRev:   rn.Rev,
			Checksum:     rn.Checksum,
			Size:         rn.Size,
			Props:        rn.Props,
			WorkingProps: rn.Props,
			Schedule:     ScheduleNormal,
		}); err != nil {
			return 0, 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit working copy nodes: %w", err)
	}
	return len(paths), written, nil
}

// removeLocal deletes a subtree from disk and from the metadata
func (wc *WorkingCopy) removeLocal(ctx context.Context, rel string) error {
	if rel == "" {
		return errors.New("cannot remove the working copy root")
	}
	if err := os.RemoveAll(wc.LocalPath(rel)); err != nil {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return deleteNodes(ctx, wc.db, rel)
}
