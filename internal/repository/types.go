package repository

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Kind is the kind of a node
type Kind string

const (
	KindNone Kind = "none"
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// Change describes how a node differs between two trees
type Change string

const (
	ChangeNone     Change = "none"
	ChangeAdded    Change = "added"
	ChangeDeleted  Change = "deleted"
	ChangeModified Change = "modified"
	ChangeReplaced Change = "replaced"
)

// Node is a file or directory at a revision
type Node struct {
	Path string `json:"path"`
	// Rev is the revision the node was last changed in
	Rev          int64             `json:"created_rev"`
	Kind         Kind              `json:"kind"`
	Checksum     string            `json:"checksum,omitempty"`
	Size         int64             `json:"size"`
	Props        map[string]string `json:"props,omitempty"`
	CopyFromPath string            `json:"copyfrom_path,omitempty"`
	CopyFromRev  int64             `json:"copyfrom_rev"`
}

// HasCopySource returns true when the node was copied from another path
func (n *Node) HasCopySource() bool {
	return n.CopyFromPath != "" && n.CopyFromRev >= 0
}

// Revision is the metadata of a commit
type Revision struct {
	Rev       int64     `json:"rev"`
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// DiffItem is a node that differs between two trees. Path is relative to the
// compared roots.
type DiffItem struct {
	Path  string `json:"path"`
	Kind  Kind   `json:"kind"`
	Text  Change `json:"text"`
	Props Change `json:"props"`
}

// OpType is the type of a commit operation
type OpType string

const (
	OpPut     OpType = "put"
	OpMkdir   OpType = "mkdir"
	OpDelete  OpType = "delete"
	OpCopy    OpType = "copy"
	OpPropSet OpType = "propset"
)

// Op is a single change within a commit
type Op struct {
	Type    OpType            `json:"type"`
	Path    string            `json:"path"`
	Content []byte            `json:"content,omitempty"`
	Props   map[string]string `json:"props,omitempty"`
	// FromPath and FromRev are the source of a copy
	FromPath string `json:"from_path,omitempty"`
	FromRev  int64  `json:"from_rev,omitempty"`
}

type CommitRequest struct {
	Author  string `json:"author"`
	Message string `json:"message"`
	Ops     []Op   `json:"ops"`
}

// dbNode is used for scanning nodes where props are stored as JSON text
type dbNode struct {
	Path         string `db:"path"`
	Rev          int64  `db:"rev"`
	Kind         string `db:"kind"`
	Checksum     string `db:"checksum"`
	Size         int64  `db:"size"`
	Props        string `db:"props"`
	CopyFromPath string `db:"copyfrom_path"`
	CopyFromRev  int64  `db:"copyfrom_rev"`
}

func (d *dbNode) toNode() (*Node, error) {
	n := &Node{
		Path:         d.Path,
		Rev:          d.Rev,
		Kind:         Kind(d.Kind),
		Checksum:     d.Checksum,
		Size:         d.Size,
		CopyFromPath: d.CopyFromPath,
		CopyFromRev:  d.CopyFromRev,
	}
	if d.Props != "" && d.Props != "{}" {
		if err := json.Unmarshal([]byte(d.Props), &n.Props); err != nil {
			return nil, fmt.Errorf("decode props of %s@%d: %w", d.Path, d.Rev, err)
		}
	}
	return n, nil
}

type dbRevision struct {
	Rev       int64  `db:"rev"`
	Author    string `db:"author"`
	Message   string `db:"message"`
	CreatedAt string `db:"created_at"`
}

func (d *dbRevision) toRevision() (*Revision, error) {
	createdAt, err := time.Parse(time.RFC3339, d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse revision %d timestamp: %w", d.Rev, err)
	}
	return &Revision{
		Rev:       d.Rev,
		Author:    d.Author,
		Message:   d.Message,
		CreatedAt: createdAt,
	}, nil
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
