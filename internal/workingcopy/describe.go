package workingcopy

import (
	"context"
	"errors"
	"os"
)

// Description is what the working copy knows about a local path
type Description struct {
	LocalPath string
	RelPath   string
	URL       string
	Kind      Kind
	// Revision is the base revision, -1 when the path has none
	Revision int64
	// Exists is true when the path exists in the repository at its base revision
	Exists bool
}

// Describe reports the kind, url and base revision of a local path
func (wc *WorkingCopy) Describe(ctx context.Context, localPath string) (*Description, error) {
	rel, err := wc.RelPath(localPath)
	if err != nil {
		return nil, err
	}

	d := &Description{
		LocalPath: wc.LocalPath(rel),
		RelPath:   rel,
		URL:       wc.URL(rel),
		Kind:      KindNone,
		Revision:  -1,
	}
	if info, err := os.Lstat(d.LocalPath); err == nil {
		d.Kind = diskKind(info)
	}

	node, err := getNode(ctx, wc.db, rel)
	if errors.Is(err, ErrNotVersioned) {
		return d, nil
	}
	if err != nil {
		return nil, err
	}

	if d.Kind == KindNone {
		d.Kind = node.Kind
	}
	if node.Schedule != ScheduleAdd {
		d.Revision = node.Revision
		d.Exists = true
	}
	return d, nil
}
