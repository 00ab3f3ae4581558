package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
)

// revisionDiff gathers remote changes with one repository diff per candidate
// revision. Resources whose base revision differs from the root revision are
// pinned to their own revision so each remote change is reported in exactly
// one pass.
type revisionDiff struct {
	conn     Backend
	req      *Request
	ancestor Ref
	tree     ResourceTree
	track    *tracker
	log      *slog.Logger
}

func (s *revisionDiff) run(ctx context.Context) (*Result, error) {
	res := &Result{
		Strategy: StrategyRevisionDiff,
		Ancestor: s.ancestor,
	}
	root := s.req.Resource

	revs := NewRevisionSet()
	pins := NewRevisionPins()
	// base revisions of nodes checked out at a revision other than the root's
	bases := make(map[string]int64)
	if root.Revision.IsNumber() {
		revs.Add(root.Revision.Number)
	}

	if err := s.track.step(ctx, "status", 0.1); err != nil {
		return nil, err
	}

	statusMapper := NewPathMapper(root.Path, root.Path, false, s.tree)
	for entry, err := range s.conn.Status(ctx, root.Path, StatusOptions{Recursive: true, Remote: true}) {
		if err != nil {
			return nil, fmt.Errorf("status %s: %w", root.Path, err)
		}

		localChange := entry.HasLocalChange()
		mixed := entry.Revision.IsNumber() && entry.Revision != root.Revision
		remoteCandidate := mixed && entry.HasRemoteChange()
		if !localChange && !mixed {
			continue
		}

		id, err := statusMapper.Resolve(entry.Path, entry.Kind)
		if err != nil {
			s.log.Debug("status entry skipped", "path", entry.Path, "error", err)
			continue
		}

		if localChange {
			res.Local = append(res.Local, localEntry(entry, id))
		}
		if mixed {
			bases[id.Path] = entry.Revision.Number
		}
		if remoteCandidate && pins.Pin(id.Path, entry.Revision.Number) {
			revs.Add(entry.Revision.Number)
		}
	}

	res.Revisions = revs.Values()
	s.log.Debug("revision candidates", "revisions", res.Revisions, "pinned", pins.Len())

	if s.req.Target.Revision.Kind == RevBase {
		return res, nil
	}

	diffMapper := NewPathMapper(root.URL, root.Path, false, s.tree)
	emitted := mapset.NewThreadUnsafeSet[string]()

	for i, rev := range res.Revisions {
		fraction := 0.3 + 0.6*float64(i)/float64(len(res.Revisions))
		if err := s.track.step(ctx, fmt.Sprintf("diff r%d", rev), fraction); err != nil {
			return nil, err
		}

		from := Ref{Location: root.URL, Peg: Rev(rev), Revision: Rev(rev)}
		for d, err := range s.conn.DiffStatus(ctx, from, s.req.Target) {
			if err != nil {
				return nil, fmt.Errorf("diff %s %s: %w", from, s.req.Target, err)
			}

			id, err := diffMapper.Resolve(d.FromPath, d.Kind)
			if err != nil {
				s.log.Debug("diff entry skipped", "path", d.FromPath, "error", err)
				continue
			}

			// unpinned resources belong to the pass of their base revision, which
			// is the root revision unless the node was updated on its own. A node
			// whose base revision is not a pass has no remote change to report.
			owner, pinned := pins.Lookup(id.Path)
			if !pinned {
				owner = root.Revision.Number
				if base, ok := bases[id.Path]; ok {
					owner = base
				}
			}
			if owner != rev || !emitted.Add(id.Path) {
				continue
			}

			res.Remote = append(res.Remote, &ChangeEntry{
				Identity:     id,
				PreviousPath: previousPath(s.ancestor, root.Path, id),
				NextPath:     normalizeLocation(d.ToPath),
				NodeKind:     d.Kind,
				TextKind:     d.TextKind,
				PropKind:     d.PropKind,
				Revision:     Rev(rev),
			})
		}
	}

	return res, nil
}

func localEntry(entry *StatusEntry, id Identity) *ChangeEntry {
	return &ChangeEntry{
		Identity:     id,
		PreviousPath: entry.URL,
		NextPath:     entry.Path,
		NodeKind:     entry.Kind,
		TextKind:     entry.TextStatus.textChange(),
		PropKind:     entry.PropStatus.propChange(),
		Revision:     entry.Revision,
	}
}

// isCanceled reports whether err was caused by cancellation
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
