package compare

import (
	"context"
	"iter"
	"sync/atomic"
)

// fakeBackend serves a fixed status and diff dataset
type fakeBackend struct {
	level      APILevel
	status     []*StatusEntry
	diffs      map[string][]*DiffEntry // keyed by from revision
	copySource map[string]*Ref
	statusErr  error
	diffErr    error

	statusCalls []StatusOptions
	diffCalls   []Ref
	closed      atomic.Int32
	onDiff      func(from Ref)
}

func (f *fakeBackend) APILevel() APILevel {
	return f.level
}

func (f *fakeBackend) Status(ctx context.Context, path string, opts StatusOptions) iter.Seq2[*StatusEntry, error] {
	f.statusCalls = append(f.statusCalls, opts)
	return func(yield func(*StatusEntry, error) bool) {
		if f.statusErr != nil {
			yield(nil, f.statusErr)
			return
		}
		for _, e := range f.status {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (f *fakeBackend) DiffStatus(ctx context.Context, from, to Ref) iter.Seq2[*DiffEntry, error] {
	f.diffCalls = append(f.diffCalls, from)
	if f.onDiff != nil {
		f.onDiff(from)
	}
	return func(yield func(*DiffEntry, error) bool) {
		if f.diffErr != nil {
			yield(nil, f.diffErr)
			return
		}
		for _, d := range f.diffs[from.Revision.String()] {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func (f *fakeBackend) CopySource(ctx context.Context, ref Ref) (*Ref, error) {
	return f.copySource[ref.Location], nil
}

func (f *fakeBackend) Close() error {
	f.closed.Add(1)
	return nil
}

func (f *fakeBackend) connector() Connector {
	return ConnectorFunc(func(ctx context.Context) (Conn, error) {
		return f, nil
	})
}

// mapTree is an in-memory ResourceTree
type mapTree map[string]NodeKind

func (t mapTree) Lookup(localPath string) (NodeKind, bool) {
	k, ok := t[localPath]
	return k, ok
}
