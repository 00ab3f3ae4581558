// Package compare reconciles the local and remote change sets of a working copy
// resource against a target repository revision.
package compare

import (
	"fmt"
	"path/filepath"
)

// NodeKind is the kind of a versioned node
type NodeKind string

const (
	NodeNone NodeKind = "none"
	NodeFile NodeKind = "file"
	NodeDir  NodeKind = "dir"
)

// ChangeKind describes how the text or the properties of a node changed
type ChangeKind string

const (
	ChangeNone        ChangeKind = "none"
	ChangeAdded       ChangeKind = "added"
	ChangeDeleted     ChangeKind = "deleted"
	ChangeModified    ChangeKind = "modified"
	ChangeReplaced    ChangeKind = "replaced"
	ChangeUnversioned ChangeKind = "unversioned"
)

// Invert swaps added and deleted. Every other kind is returned unchanged.
func (k ChangeKind) Invert() ChangeKind {
	switch k {
	case ChangeAdded:
		return ChangeDeleted
	case ChangeDeleted:
		return ChangeAdded
	default:
		return k
	}
}

// Resource is a working copy file or folder together with its live state
type Resource struct {
	// Path is the absolute local path
	Path string
	Kind NodeKind
	// URL is the repository location the resource is checked out from
	URL string
	// Revision is the base revision of the resource
	Revision Revision
	// Exists is true when the resource exists at URL in the repository
	Exists bool
}

// Request is the input of a single reconciliation
type Request struct {
	Resource Resource
	// Target is the repository resource compared against. An empty location
	// defaults to the resource URL.
	Target   Ref
	Progress ProgressFunc
}

func (r *Request) normalize() error {
	if r.Resource.Path == "" {
		return fmt.Errorf("resource path is required")
	}
	r.Resource.Path = filepath.Clean(r.Resource.Path)
	if r.Resource.Kind == "" {
		r.Resource.Kind = NodeDir
	}
	if r.Target.Location == "" {
		r.Target.Location = r.Resource.URL
	}
	if r.Target.Revision.Kind == RevUnspecified {
		r.Target.Revision = Head
	}
	if r.Target.Peg.Kind == RevUnspecified {
		r.Target.Peg = r.Target.Revision
	}
	return nil
}

// Identity is a resource resolved relative to the comparison root. Two change
// entries describe the same resource when their identities share the same Path.
type Identity struct {
	Path string
	Kind NodeKind
	// Placeholder is set when no local node exists for the path
	Placeholder bool
}

// ChangeEntry is one normalized change handed to the compare builder
type ChangeEntry struct {
	Identity     Identity   `json:"-" yaml:"-"`
	PreviousPath string     `json:"previous_path" yaml:"previous_path"`
	NextPath     string     `json:"next_path" yaml:"next_path"`
	NodeKind     NodeKind   `json:"node_kind" yaml:"node_kind"`
	TextKind     ChangeKind `json:"text" yaml:"text"`
	PropKind     ChangeKind `json:"props" yaml:"props"`
	// Revision is the pass that reported a remote change
	Revision Revision `json:"revision" yaml:"revision"`
}

func (c *ChangeEntry) String() string {
	return fmt.Sprintf("%s %s (%s -> %s)", c.TextKind, c.Identity.Path, c.PreviousPath, c.NextPath)
}

// Result holds the two change lists of a reconciliation
type Result struct {
	Local    []*ChangeEntry `json:"local" yaml:"local"`
	Remote   []*ChangeEntry `json:"remote" yaml:"remote"`
	Strategy Strategy       `json:"strategy" yaml:"strategy"`
	Ancestor Ref            `json:"ancestor" yaml:"ancestor"`
	// Revisions lists the comparison revisions in discovery order
	Revisions []int64 `json:"revisions,omitempty" yaml:"revisions,omitempty"`
}

// IsEmpty returns true when neither list contains changes
func (r *Result) IsEmpty() bool {
	return len(r.Local) == 0 && len(r.Remote) == 0
}
