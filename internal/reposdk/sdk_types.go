package reposdk

import "time"

type NodeKind string

const (
	NodeKindNone NodeKind = "none"
	NodeKindFile NodeKind = "file"
	NodeKindDir  NodeKind = "dir"
)

type Change string

const (
	ChangeNone     Change = "none"
	ChangeAdded    Change = "added"
	ChangeDeleted  Change = "deleted"
	ChangeModified Change = "modified"
	ChangeReplaced Change = "replaced"
)

type Info struct {
	Version  string `json:"version"`
	UUID     string `json:"uuid"`
	APILevel int    `json:"api_level"`
	Youngest int64  `json:"youngest"`
}

type Node struct {
	Path         string            `json:"path"`
	Rev          int64             `json:"created_rev"`
	Kind         NodeKind          `json:"kind"`
	Checksum     string            `json:"checksum,omitempty"`
	Size         int64             `json:"size"`
	Props        map[string]string `json:"props,omitempty"`
	CopyFromPath string            `json:"copyfrom_path,omitempty"`
	CopyFromRev  int64             `json:"copyfrom_rev"`
}

type Tree struct {
	Rev   int64   `json:"rev"`
	Nodes []*Node `json:"nodes"`
}

type DiffItem struct {
	Path  string   `json:"path"`
	Kind  NodeKind `json:"kind"`
	Text  Change   `json:"text"`
	Props Change   `json:"props"`
}

type Diff struct {
	FromRev int64       `json:"from_rev"`
	ToRev   int64       `json:"to_rev"`
	Items   []*DiffItem `json:"items"`
}

type CopySource struct {
	Source *Node `json:"source"`
	Rev    int64 `json:"rev"`
}

type LogEntry struct {
	Rev       int64     `json:"rev"`
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type File struct {
	Rev      int64
	Checksum string
	Content  []byte
}

// DiffParams selects the two trees to compare. An empty or HEAD revision
// selects the youngest revision.
type DiffParams struct {
	FromPath string
	FromRev  string
	ToPath   string
	ToRev    string
}

type OpType string

const (
	OpPut     OpType = "put"
	OpMkdir   OpType = "mkdir"
	OpDelete  OpType = "delete"
	OpCopy    OpType = "copy"
	OpPropSet OpType = "propset"
)

type Op struct {
	Type     OpType            `json:"type"`
	Path     string            `json:"path"`
	Content  []byte            `json:"content,omitempty"`
	Props    map[string]string `json:"props,omitempty"`
	FromPath string            `json:"from_path,omitempty"`
	FromRev  int64             `json:"from_rev,omitempty"`
}

type CommitParams struct {
	Author  string `json:"author"`
	Message string `json:"message"`
	Ops     []Op   `json:"ops"`
}

type CommitResult struct {
	Rev int64 `json:"rev"`
}
