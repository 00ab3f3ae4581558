package compare

import (
	"context"
	"iter"
)

// APILevel is the compatibility level reported by a backend
type APILevel int

const (
	// APILevelLegacy backends can only diff two repository references
	APILevelLegacy APILevel = 1
	// APILevelWorkingDiff backends can diff the working copy against a repository reference
	APILevelWorkingDiff APILevel = 2
)

func (l APILevel) String() string {
	switch l {
	case APILevelLegacy:
		return "legacy"
	case APILevelWorkingDiff:
		return "working-diff"
	default:
		return "unknown"
	}
}

// StatusKind is the status of a node in the working copy or in the repository
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
	StatusConflicted  StatusKind = "conflicted"
	StatusIgnored     StatusKind = "ignored"
	StatusObstructed  StatusKind = "obstructed"
)

// isLocalChange returns true for the statuses that are reported as local modifications
func (s StatusKind) isLocalChange() bool {
	switch s {
	case StatusAdded, StatusModified, StatusDeleted, StatusReplaced, StatusConflicted:
		return true
	default:
		return false
	}
}

// isChanged returns true for anything but none and normal
func (s StatusKind) isChanged() bool {
	return s != "" && s != StatusNone && s != StatusNormal
}

func (s StatusKind) textChange() ChangeKind {
	switch s {
	case StatusAdded:
		return ChangeAdded
	case StatusDeleted:
		return ChangeDeleted
	case StatusModified, StatusConflicted:
		return ChangeModified
	case StatusReplaced:
		return ChangeReplaced
	case StatusUnversioned:
		return ChangeUnversioned
	default:
		return ChangeNone
	}
}

func (s StatusKind) propChange() ChangeKind {
	switch s {
	case StatusModified, StatusConflicted:
		return ChangeModified
	default:
		return ChangeNone
	}
}

// StatusEntry is a single node reported by a working copy status scan
type StatusEntry struct {
	Path           string
	URL            string
	Kind           NodeKind
	TextStatus     StatusKind
	PropStatus     StatusKind
	RepoTextStatus StatusKind
	RepoPropStatus StatusKind
	// Revision is the base revision of the node
	Revision Revision
	// LastChanged is the revision the node was last changed in
	LastChanged Revision
}

// HasLocalChange returns true when the text or the properties were changed locally
func (e *StatusEntry) HasLocalChange() bool {
	return e.TextStatus.isLocalChange() || e.PropStatus == StatusModified || e.PropStatus == StatusConflicted
}

// HasRemoteChange returns true when the repository reports a change for the node
func (e *StatusEntry) HasRemoteChange() bool {
	return e.RepoTextStatus.isChanged() || e.RepoPropStatus.isChanged()
}

// DiffEntry is a single node reported by a diff-status between two references.
// FromPath and ToPath are full locations: URLs for repository references and
// local paths for the working copy.
type DiffEntry struct {
	FromPath string
	ToPath   string
	Kind     NodeKind
	TextKind ChangeKind
	PropKind ChangeKind
}

// StatusOptions control a status scan
type StatusOptions struct {
	Recursive bool
	// Remote augments the scan with the repository status of every node
	Remote bool
}

// Backend is the version control system the engine talks to
type Backend interface {
	// APILevel reports which diff operations are available
	APILevel() APILevel
	// Status scans the working copy rooted at path
	Status(ctx context.Context, path string, opts StatusOptions) iter.Seq2[*StatusEntry, error]
	// DiffStatus summarizes the changes between two references. A from reference
	// with the WORKING revision denotes the working copy at its location.
	DiffStatus(ctx context.Context, from, to Ref) iter.Seq2[*DiffEntry, error]
	// CopySource returns the copy-from ancestor of ref, or nil when it has none
	CopySource(ctx context.Context, ref Ref) (*Ref, error)
}

// Conn is a backend connection held for the duration of one reconciliation
type Conn interface {
	Backend
	Close() error
}

// Connector opens backend connections
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to a Connector
type ConnectorFunc func(ctx context.Context) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) {
	return f(ctx)
}
