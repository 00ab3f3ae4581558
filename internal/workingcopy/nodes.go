package workingcopy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS wc_info (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    root_url TEXT NOT NULL,
    repo_path TEXT NOT NULL,
    uuid TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS wc_nodes (
    relpath TEXT PRIMARY KEY,
    repo_path TEXT NOT NULL,
    kind TEXT NOT NULL,
    revision INTEGER NOT NULL, -- base revision, -1 for added nodes
    changed_rev INTEGER NOT NULL,
    checksum TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    props TEXT NOT NULL DEFAULT '{}',
    working_props TEXT NOT NULL DEFAULT '{}',
    schedule TEXT NOT NULL DEFAULT 'normal'
);
`

type Kind string

const (
	KindNone Kind = "none"
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

type Schedule string

const (
	ScheduleNormal Schedule = "normal"
	ScheduleAdd    Schedule = "add"
	ScheduleDelete Schedule = "delete"
)

// Node is the recorded state of a versioned path
type Node struct {
	RelPath  string `json:"relpath"`
	RepoPath string `json:"repo_path"`
	Kind     Kind   `json:"kind"`
	// Revision is the base revision, -1 for nodes scheduled for addition
	Revision int64 `json:"revision"`
	// ChangedRev is the revision the node was last changed in
	ChangedRev   int64             `json:"changed_rev"`
	Checksum     string            `json:"checksum,omitempty"`
	Size         int64             `json:"size"`
	Props        map[string]string `json:"props,omitempty"`
	WorkingProps map[string]string `json:"working_props,omitempty"`
	Schedule     Schedule          `json:"schedule"`
}

type dbNode struct {
	RelPath      string `db:"relpath"`
	RepoPath     string `db:"repo_path"`
	Kind         string `db:"kind"`
	Revision     int64  `db:"revision"`
	ChangedRev   int64  `db:"changed_rev"`
	Checksum     string `db:"checksum"`
	Size         int64  `db:"size"`
	Props        string `db:"props"`
	WorkingProps string `db:"working_props"`
	Schedule     string `db:"schedule"`
}

func (d *dbNode) toNode() (*Node, error) {
	n := &Node{
		RelPath:    d.RelPath,
		RepoPath:   d.RepoPath,
		Kind:       Kind(d.Kind),
		Revision:   d.Revision,
		ChangedRev: d.ChangedRev,
		Checksum:   d.Checksum,
		Size:       d.Size,
		Schedule:   Schedule(d.Schedule),
	}
	if err := decodeProps(d.Props, &n.Props); err != nil {
		return nil, fmt.Errorf("decode props of %s: %w", d.RelPath, err)
	}
	if err := decodeProps(d.WorkingProps, &n.WorkingProps); err != nil {
		return nil, fmt.Errorf("decode working props of %s: %w", d.RelPath, err)
	}
	return n, nil
}

func decodeProps(raw string, out *map[string]string) error {
	if raw == "" || raw == "{}" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

func encodeProps(props map[string]string) (string, error) {
	if len(props) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(data), nil
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

const nodeColumns = "relpath, repo_path, kind, revision, changed_rev, checksum, size, props, working_props, schedule"

// Node returns the recorded node of a relative path
func (wc *WorkingCopy) Node(ctx context.Context, rel string) (*Node, error) {
	return getNode(ctx, wc.db, rel)
}

// Nodes returns the node at rel and its descendants sorted by path. Without
// recursion only the immediate children are included.
func (wc *WorkingCopy) Nodes(ctx context.Context, rel string, recursive bool) ([]*Node, error) {
	nodes, err := listNodes(ctx, wc.db, rel)
	if err != nil {
		return nil, err
	}
	if recursive {
		return nodes, nil
	}

	out := nodes[:0]
	for _, n := range nodes {
		if n.RelPath == rel || relParent(n.RelPath) == rel {
			out = append(out, n)
		}
	}
	return out, nil
}

func getNode(ctx context.Context, q sqlx.QueryerContext, rel string) (*Node, error) {
	var row dbNode
	err := sqlx.GetContext(ctx, q, &row, "SELECT "+nodeColumns+" FROM wc_nodes WHERE relpath = ?", rel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotVersioned, rel)
	}
	if err != nil {
		return nil, fmt.Errorf("query node %q: %w", rel, err)
	}
	return row.toNode()
}

func listNodes(ctx context.Context, q sqlx.QueryerContext, rel string) ([]*Node, error) {
	var rows []dbNode
	err := sqlx.SelectContext(ctx, q, &rows,
		"SELECT "+nodeColumns+` FROM wc_nodes
WHERE relpath = ? OR ? = '' OR relpath LIKE ? ESCAPE '\'
ORDER BY relpath`,
		rel, rel, likePrefix(rel),
	)
	if err != nil {
		return nil, fmt.Errorf("query nodes %q: %w", rel, err)
	}

	nodes := make([]*Node, 0, len(rows))
	for i := range rows {
		n, err := rows[i].toNode()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func putNode(ctx context.Context, e sqlx.ExecerContext, n *Node) error {
	props, err := encodeProps(n.Props)
	if err != nil {
		return err
	}
	workingProps, err := encodeProps(n.WorkingProps)
	if err != nil {
		return err
	}
	if n.Schedule == "" {
		n.Schedule = ScheduleNormal
	}

	_, err = e.ExecContext(ctx, `
INSERT OR REPLACE INTO wc_nodes (`+nodeColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.RelPath, n.RepoPath, string(n.Kind), n.Revision, n.ChangedRev,
		n.Checksum, n.Size, props, workingProps, string(n.Schedule),
	)
	if err != nil {
		return fmt.Errorf("write node %q: %w", n.RelPath, err)
	}
	return nil
}

func deleteNodes(ctx context.Context, e sqlx.ExecerContext, rel string) error {
	_, err := e.ExecContext(ctx,
		`DELETE FROM wc_nodes WHERE relpath = ? OR ? = '' OR relpath LIKE ? ESCAPE '\'`,
		rel, rel, likePrefix(rel),
	)
	if err != nil {
		return fmt.Errorf("delete nodes %q: %w", rel, err)
	}
	return nil
}

func likePrefix(rel string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(rel) + "/%"
}
