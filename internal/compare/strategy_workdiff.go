package compare

import (
	"context"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
)

// workingDiff gathers remote changes with a single diff of the working copy
// against the target.
type workingDiff struct {
	conn     Backend
	req      *Request
	ancestor Ref
	tree     ResourceTree
	track    *tracker
	log      *slog.Logger
}

func (s *workingDiff) run(ctx context.Context) (*Result, error) {
	res := &Result{
		Strategy: StrategyWorkingDiff,
		Ancestor: s.ancestor,
	}
	root := s.req.Resource
	if root.Revision.IsNumber() {
		res.Revisions = []int64{root.Revision.Number}
	}

	if err := s.track.step(ctx, "status", 0.1); err != nil {
		return nil, err
	}

	mapper := NewPathMapper(root.Path, root.Path, root.Kind == NodeFile, s.tree)
	localChanged := mapset.NewThreadUnsafeSet[string]()

	for entry, err := range s.conn.Status(ctx, root.Path, StatusOptions{Recursive: true}) {
		if err != nil {
			return nil, fmt.Errorf("status %s: %w", root.Path, err)
		}
		if !entry.HasLocalChange() {
			continue
		}

		id, err := mapper.Resolve(entry.Path, entry.Kind)
		if err != nil {
			s.log.Debug("status entry skipped", "path", entry.Path, "error", err)
			continue
		}
		localChanged.Add(id.Path)
		res.Local = append(res.Local, localEntry(entry, id))
	}

	if err := s.track.step(ctx, "diff working", 0.5); err != nil {
		return nil, err
	}

	from := Ref{Location: root.Path, Peg: Working, Revision: Working}
	emitted := mapset.NewThreadUnsafeSet[string]()

	for d, err := range s.conn.DiffStatus(ctx, from, s.req.Target) {
		if err != nil {
			return nil, fmt.Errorf("diff %s %s: %w", from, s.req.Target, err)
		}

		id, err := mapper.Resolve(d.FromPath, d.Kind)
		if err != nil {
			s.log.Debug("diff entry skipped", "path", d.FromPath, "error", err)
			continue
		}
		if !emitted.Add(id.Path) {
			continue
		}

		// the working diff reports locally touched or absent nodes from the
		// working copy side, the reverse of ancestor -> target
		text := d.TextKind
		if localChanged.Contains(id.Path) || id.Placeholder {
			text = text.Invert()
		}

		res.Remote = append(res.Remote, &ChangeEntry{
			Identity:     id,
			PreviousPath: previousPath(s.ancestor, root.Path, id),
			NextPath:     normalizeLocation(d.ToPath),
			NodeKind:     d.Kind,
			TextKind:     text,
			PropKind:     d.PropKind,
			Revision:     root.Revision,
		})
	}

	return res, nil
}
