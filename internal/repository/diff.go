package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/openmined/vcscompare/internal/utils"
)

// DiffStatus summarizes the differences between the tree at fromPath@fromRev
// and the tree at toPath@toRev. Items are sorted by their path relative to
// the compared roots. Descendants of added and deleted directories are listed
// individually.
func (r *Repository) DiffStatus(ctx context.Context, fromPath string, fromRev int64, toPath string, toRev int64) ([]*DiffItem, error) {
	fromRev, err := r.ResolveRev(ctx, fromRev)
	if err != nil {
		return nil, err
	}
	toRev, err = r.ResolveRev(ctx, toRev)
	if err != nil {
		return nil, err
	}
	fromPath = utils.NormPath(fromPath)
	toPath = utils.NormPath(toPath)

	fromTree, err := treeAt(ctx, r.db, fromPath, fromRev)
	if err != nil {
		return nil, err
	}
	toTree, err := treeAt(ctx, r.db, toPath, toRev)
	if err != nil {
		return nil, err
	}
	if len(fromTree) == 0 && len(toTree) == 0 {
		return nil, fmt.Errorf("%w: %s@%d and %s@%d", ErrNodeNotFound, fromPath, fromRev, toPath, toRev)
	}

	return diffTrees(relIndex(fromPath, fromTree), relIndex(toPath, toTree)), nil
}

func relIndex(root string, nodes []*Node) map[string]*Node {
	index := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		index[utils.RelPath(root, n.Path)] = n
	}
	return index
}

func diffTrees(from, to map[string]*Node) []*DiffItem {
	items := make([]*DiffItem, 0)

	for rel, src := range from {
		dst, ok := to[rel]
		if !ok {
			items = append(items, &DiffItem{Path: rel, Kind: src.Kind, Text: ChangeDeleted, Props: ChangeNone})
			continue
		}
		if item := compareNodes(rel, src, dst); item != nil {
			items = append(items, item)
		}
	}

	for rel, dst := range to {
		if _, ok := from[rel]; ok {
			continue
		}
		items = append(items, &DiffItem{Path: rel, Kind: dst.Kind, Text: ChangeAdded, Props: ChangeNone})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items
}

func compareNodes(rel string, src, dst *Node) *DiffItem {
	if src.Kind != dst.Kind {
		return &DiffItem{Path: rel, Kind: dst.Kind, Text: ChangeReplaced, Props: ChangeNone}
	}

	item := &DiffItem{Path: rel, Kind: dst.Kind, Text: ChangeNone, Props: ChangeNone}
	if dst.Kind == KindFile && src.Checksum != dst.Checksum {
		item.Text = ChangeModified
	}
	if !propsEqual(src.Props, dst.Props) {
		item.Props = ChangeModified
	}
	if item.Text == ChangeNone && item.Props == ChangeNone {
		return nil
	}
	return item
}
