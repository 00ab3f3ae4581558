package repository

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/vcscompare/internal/utils"
)

// Commit applies all operations of req atomically as a new revision and
// returns its number
func (r *Repository) Commit(ctx context.Context, req *CommitRequest) (int64, error) {
	if req == nil || len(req.Ops) == 0 {
		return 0, ErrEmptyCommit
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	var youngest int64
	if err := tx.GetContext(ctx, &youngest, "SELECT COALESCE(MAX(rev), 0) FROM revisions"); err != nil {
		return 0, fmt.Errorf("youngest revision: %w", err)
	}
	rev := youngest + 1

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO revisions (rev, author, message, created_at) VALUES (?, ?, ?, ?)",
		rev, req.Author, req.Message, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return 0, fmt.Errorf("create revision %d: %w", rev, err)
	}

	c := &committer{tx: tx, rev: rev}
	for i, op := range req.Ops {
		if err := c.apply(ctx, op); err != nil {
			return 0, fmt.Errorf("op %d (%s %s): %w", i, op.Type, op.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit revision %d: %w", rev, err)
	}

	slog.Debug("committed", "rev", rev, "author", req.Author, "ops", len(req.Ops), "bytes", c.bytes)
	return rev, nil
}

type committer struct {
	tx    *sqlx.Tx
	rev   int64
	bytes int
}

func (c *committer) apply(ctx context.Context, op Op) error {
	p := utils.NormPath(op.Path)
	if p == "" && op.Type != OpPropSet {
		return fmt.Errorf("cannot %s the repository root", op.Type)
	}

	switch op.Type {
	case OpPut:
		return c.put(ctx, p, op.Content, op.Props)
	case OpMkdir:
		return c.mkdir(ctx, p, op.Props)
	case OpDelete:
		return c.delete(ctx, p)
	case OpCopy:
		return c.copy(ctx, utils.NormPath(op.FromPath), op.FromRev, p)
	case OpPropSet:
		return c.propset(ctx, p, op.Props)
	default:
		return fmt.Errorf("unknown operation %q", op.Type)
	}
}

func (c *committer) put(ctx context.Context, p string, content []byte, props map[string]string) error {
	if err := c.ensureParents(ctx, path.Dir(p)); err != nil {
		return err
	}

	existing, err := nodeAt(ctx, c.tx, p, c.rev)
	if err != nil {
		return err
	}

	node := &Node{Path: p, Kind: KindFile, Props: props, CopyFromRev: -1}
	if existing != nil {
		if existing.Kind != KindFile {
			return fmt.Errorf("%w: %s is a directory", ErrPathExists, p)
		}
		if props == nil {
			node.Props = existing.Props
		}
		node.CopyFromPath = existing.CopyFromPath
		node.CopyFromRev = existing.CopyFromRev
	}

	node.Checksum = utils.BytesHash(content)
	node.Size = int64(len(content))
	if _, err := c.tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO contents (checksum, data) VALUES (?, ?)", node.Checksum, content,
	); err != nil {
		return fmt.Errorf("store content: %w", err)
	}
	c.bytes += len(content)

	return c.write(ctx, node)
}

func (c *committer) mkdir(ctx context.Context, p string, props map[string]string) error {
	if err := c.ensureParents(ctx, path.Dir(p)); err != nil {
		return err
	}

	existing, err := nodeAt(ctx, c.tx, p, c.rev)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrPathExists, p)
	}

	return c.write(ctx, &Node{Path: p, Kind: KindDir, Props: props, CopyFromRev: -1})
}

func (c *committer) delete(ctx context.Context, p string) error {
	nodes, err := treeAt(ctx, c.tx, p, c.rev)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, p)
	}

	for _, n := range nodes {
		if err := c.write(ctx, &Node{Path: n.Path, Kind: KindNone, CopyFromRev: -1}); err != nil {
			return err
		}
	}
	return nil
}

func (c *committer) copy(ctx context.Context, from string, fromRev int64, to string) error {
	if fromRev < 0 || fromRev >= c.rev {
		fromRev = c.rev - 1
	}
	if utils.IsSubPath(from, to) {
		return fmt.Errorf("cannot copy %s into itself", from)
	}

	nodes, err := treeAt(ctx, c.tx, from, fromRev)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s@%d", ErrNodeNotFound, from, fromRev)
	}

	existing, err := nodeAt(ctx, c.tx, to, c.rev)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrPathExists, to)
	}
	if err := c.ensureParents(ctx, path.Dir(to)); err != nil {
		return err
	}

	for _, n := range nodes {
		rel := utils.RelPath(from, n.Path)
		copied := *n
		copied.Path = to
		if rel != "" {
			copied.Path = to + "/" + rel
		}
		copied.CopyFromPath = n.Path
		copied.CopyFromRev = fromRev
		if err := c.write(ctx, &copied); err != nil {
			return err
		}
	}
	return nil
}

// propset merges props into the node's properties. An empty value removes
// the property.
func (c *committer) propset(ctx context.Context, p string, props map[string]string) error {
	existing, err := nodeAt(ctx, c.tx, p, c.rev)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, p)
	}

	merged := make(map[string]string, len(existing.Props)+len(props))
	for k, v := range existing.Props {
		merged[k] = v
	}
	for k, v := range props {
		if v == "" {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	node := *existing
	node.Props = merged
	return c.write(ctx, &node)
}

// ensureParents creates every missing directory on the way to dir
func (c *committer) ensureParents(ctx context.Context, dir string) error {
	dir = utils.NormPath(dir)
	if dir == "" {
		return nil
	}

	parts := strings.Split(dir, "/")
	for i := range parts {
		p := strings.Join(parts[:i+1], "/")
		node, err := nodeAt(ctx, c.tx, p, c.rev)
		if err != nil {
			return err
		}
		if node == nil {
			if err := c.write(ctx, &Node{Path: p, Kind: KindDir, CopyFromRev: -1}); err != nil {
				return err
			}
			continue
		}
		if node.Kind != KindDir {
			return fmt.Errorf("%w: %s", ErrNotDirectory, p)
		}
	}
	return nil
}

func (c *committer) write(ctx context.Context, n *Node) error {
	props, err := encodeProps(n.Props)
	if err != nil {
		return fmt.Errorf("encode props of %s: %w", n.Path, err)
	}
	_, err = c.tx.ExecContext(ctx, `
INSERT OR REPLACE INTO nodes (path, rev, kind, checksum, size, props, copyfrom_path, copyfrom_rev)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.Path, c.rev, string(n.Kind), n.Checksum, n.Size, props, n.CopyFromPath, n.CopyFromRev,
	)
	if err != nil {
		return fmt.Errorf("write node %s@%d: %w", n.Path, c.rev, err)
	}
	return nil
}
