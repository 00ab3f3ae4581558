package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/vcscompare/internal/utils"
)

const nodeColumns = "n.path, n.rev, n.kind, n.checksum, n.size, n.props, n.copyfrom_path, n.copyfrom_rev"

// Stat returns the node at path in rev
func (r *Repository) Stat(ctx context.Context, path string, rev int64) (*Node, error) {
	rev, err := r.ResolveRev(ctx, rev)
	if err != nil {
		return nil, err
	}
	path = utils.NormPath(path)

	node, err := nodeAt(ctx, r.db, path, rev)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("%w: %s@%d", ErrNodeNotFound, path, rev)
	}
	return node, nil
}

// Tree returns the node at path and its descendants in rev, sorted by path.
// Without recursion only the immediate children are returned.
func (r *Repository) Tree(ctx context.Context, path string, rev int64, recursive bool) ([]*Node, error) {
	rev, err := r.ResolveRev(ctx, rev)
	if err != nil {
		return nil, err
	}
	path = utils.NormPath(path)

	nodes, err := treeAt(ctx, r.db, path, rev)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s@%d", ErrNodeNotFound, path, rev)
	}
	if recursive {
		return nodes, nil
	}

	out := nodes[:0]
	for _, n := range nodes {
		if rel := utils.RelPath(path, n.Path); !strings.Contains(rel, "/") {
			out = append(out, n)
		}
	}
	return out, nil
}

// Content returns the content of the file at path in rev
func (r *Repository) Content(ctx context.Context, path string, rev int64) ([]byte, *Node, error) {
	node, err := r.Stat(ctx, path, rev)
	if err != nil {
		return nil, nil, err
	}
	if node.Kind != KindFile {
		return nil, nil, fmt.Errorf("%s is a %s", node.Path, node.Kind)
	}

	if data, ok := r.contents.Get(node.Checksum); ok {
		return data, node, nil
	}

	var data []byte
	if err := r.db.GetContext(ctx, &data, "SELECT data FROM contents WHERE checksum = ?", node.Checksum); err != nil {
		return nil, nil, fmt.Errorf("read content %s: %w", node.Checksum, err)
	}
	r.contents.Add(node.Checksum, data)
	return data, node, nil
}

// CopySource returns the path and revision a node was copied from, or nil
func (r *Repository) CopySource(ctx context.Context, path string, rev int64) (*Node, error) {
	node, err := r.Stat(ctx, path, rev)
	if err != nil {
		return nil, err
	}
	if !node.HasCopySource() {
		return nil, nil
	}
	return r.Stat(ctx, node.CopyFromPath, node.CopyFromRev)
}

// nodeAt returns the live node at path in rev, or nil
func nodeAt(ctx context.Context, q sqlx.QueryerContext, path string, rev int64) (*Node, error) {
	var row dbNode
	err := sqlx.GetContext(ctx, q, &row,
		"SELECT "+nodeColumns+" FROM nodes n WHERE n.path = ? AND n.rev <= ? ORDER BY n.rev DESC LIMIT 1",
		path, rev,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query node %s@%d: %w", path, rev, err)
	}
	if Kind(row.Kind) == KindNone {
		return nil, nil
	}
	return row.toNode()
}

// treeAt returns the live nodes at or below path in rev
func treeAt(ctx context.Context, q sqlx.QueryerContext, path string, rev int64) ([]*Node, error) {
	var rows []dbNode
	err := sqlx.SelectContext(ctx, q, &rows, `
SELECT `+nodeColumns+` FROM nodes n
JOIN (
    SELECT path, MAX(rev) AS rev FROM nodes
    WHERE rev <= ? AND (path = ? OR ? = '' OR path LIKE ? ESCAPE '\')
    GROUP BY path
) latest ON n.path = latest.path AND n.rev = latest.rev
WHERE n.kind != 'none'
ORDER BY n.path`,
		rev, path, path, likePrefix(path),
	)
	if err != nil {
		return nil, fmt.Errorf("query tree %s@%d: %w", path, rev, err)
	}

	nodes := make([]*Node, 0, len(rows))
	for i := range rows {
		n, err := rows[i].toNode()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	// the requested path itself must be live
	if len(nodes) > 0 && nodes[0].Path != path {
		return nil, nil
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	return nodes, nil
}

func likePrefix(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(path) + "/%"
}
