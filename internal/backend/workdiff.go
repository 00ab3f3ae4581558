package backend

import (
	"context"
	"fmt"
	"os"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/vcscompare/internal/compare"
	"github.com/openmined/vcscompare/internal/reposdk"
	"github.com/openmined/vcscompare/internal/utils"
	"github.com/openmined/vcscompare/internal/workingcopy"
)

// workingDiff compares the base of the working copy below from.Location with
// the repository tree at to. Additions and deletions of nodes that are
// locally touched or absent on disk are reported from the working copy side,
// so added and deleted are swapped for them.
func (c *Conn) workingDiff(ctx context.Context, from, to compare.Ref) ([]*compare.DiffEntry, error) {
	rel, err := c.wc.RelPath(from.Location)
	if err != nil {
		return nil, err
	}
	toPath, err := c.repoPath(to.Location)
	if err != nil {
		return nil, err
	}
	toRev, err := revParam(to.Revision)
	if err != nil {
		return nil, err
	}

	nodes, err := c.wc.Nodes(ctx, rel, true)
	if err != nil {
		return nil, err
	}
	base := make(map[string]*workingcopy.Node, len(nodes))
	for _, n := range nodes {
		if n.Schedule == workingcopy.ScheduleAdd {
			continue
		}
		base[utils.RelPath(rel, n.RelPath)] = n
	}

	target := make(map[string]*reposdk.Node)
	tree, err := c.sdk.Tree(ctx, toPath, toRev, true)
	switch {
	case reposdk.IsNotFound(err):
	case err != nil:
		return nil, fmt.Errorf("fetch tree %s: %w", to, err)
	default:
		for _, rn := range tree.Nodes {
			target[utils.RelPath(toPath, rn.Path)] = rn
		}
	}
	if len(base) == 0 && len(target) == 0 {
		return nil, fmt.Errorf("%w: %s", workingcopy.ErrNotVersioned, from.Location)
	}

	touched := mapset.NewThreadUnsafeSet[string]()
	for e, err := range c.wc.Status(ctx, rel, workingcopy.StatusOptions{Recursive: true}) {
		if err != nil {
			return nil, err
		}
		if e.HasLocalChange() {
			touched.Add(utils.RelPath(rel, e.RelPath))
		}
	}

	entries := make([]*compare.DiffEntry, 0)
	emit := func(p string, kind compare.NodeKind, text, props compare.ChangeKind) {
		local := c.wc.LocalPath(joinRel(rel, p))
		if text == compare.ChangeAdded || text == compare.ChangeDeleted {
			if _, err := os.Lstat(local); err != nil || touched.Contains(p) {
				text = text.Invert()
			}
		}
		entries = append(entries, &compare.DiffEntry{
			FromPath: local,
			ToPath:   compare.JoinLocation(to.Location, p),
			Kind:     kind,
			TextKind: text,
			PropKind: props,
		})
	}

	for p, n := range base {
		rn, ok := target[p]
		switch {
		case !ok:
			emit(p, compare.NodeKind(n.Kind), compare.ChangeDeleted, compare.ChangeNone)
		case workingcopy.Kind(rn.Kind) != n.Kind:
			emit(p, compare.NodeKind(rn.Kind), compare.ChangeReplaced, compare.ChangeNone)
		default:
			text, props := compare.ChangeNone, compare.ChangeNone
			if rn.Kind == reposdk.NodeKindFile && rn.Checksum != n.Checksum {
				text = compare.ChangeModified
			}
			if !propsEqual(n.Props, rn.Props) {
				props = compare.ChangeModified
			}
			if text != compare.ChangeNone || props != compare.ChangeNone {
				emit(p, compare.NodeKind(rn.Kind), text, props)
			}
		}
	}
	for p, rn := range target {
		if _, ok := base[p]; !ok {
			emit(p, compare.NodeKind(rn.Kind), compare.ChangeAdded, compare.ChangeNone)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].FromPath < entries[j].FromPath })
	return entries, nil
}

func joinRel(base, rel string) string {
	switch {
	case base == "":
		return rel
	case rel == "":
		return base
	default:
		return base + "/" + rel
	}
}

func propsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
