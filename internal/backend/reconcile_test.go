package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/vcscompare/internal/compare"
	"github.com/openmined/vcscompare/internal/repository"
	"github.com/openmined/vcscompare/internal/workingcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mixedCheckout builds a working copy with sub at r2 while the root stays at
// r1, then commits r3 and makes local changes
func mixedCheckout(t *testing.T, f *fixture) string {
	t.Helper()
	ctx := context.Background()

	f.commit(t,
		put("trunk/a.txt", "alpha"),
		put("trunk/b.txt", "bravo"),
		put("trunk/sub/c.txt", "charlie"),
		put("trunk/sub/d.txt", "delta"),
	)
	wc, err := workingcopy.Checkout(ctx, f.sdk, f.url+"/trunk", filepath.Join(t.TempDir(), "wc"), 1)
	require.NoError(t, err)
	defer wc.Close()

	r2 := f.commit(t, put("trunk/sub/c.txt", "charlie v2"))
	_, err = wc.Update(ctx, f.sdk, "sub", r2)
	require.NoError(t, err)

	f.commit(t,
		put("trunk/a.txt", "alpha v3"),
		put("trunk/sub/d.txt", "delta v3"),
		put("trunk/e.txt", "echo"),
		repository.Op{Type: repository.OpPropSet, Path: "trunk/sub/c.txt", Props: map[string]string{"k": "v"}},
	)

	_, err = wc.Remove(ctx, "b.txt")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(wc.LocalPath("local.txt"), []byte("local"), 0o644))
	_, err = wc.Add(ctx, "local.txt")
	require.NoError(t, err)

	return wc.Root()
}

func TestReconcile_StrategiesAgree(t *testing.T) {
	f := newFixture(t)
	root := mixedCheckout(t, f)
	head := compare.Ref{Revision: compare.Head}

	legacy := reconcile(t, root, head, compare.APILevelLegacy)
	working := reconcile(t, root, head, compare.APILevelWorkingDiff)

	assert.Equal(t, compare.StrategyRevisionDiff, legacy.Strategy)
	assert.Equal(t, compare.StrategyWorkingDiff, working.Strategy)
	assert.Equal(t, []int64{1, 2}, legacy.Revisions)
	assert.Equal(t, []int64{1}, working.Revisions)

	trunk := f.url + "/trunk"
	assert.Equal(t, compare.Ref{Location: trunk, Peg: compare.Rev(1), Revision: compare.Rev(1)}, legacy.Ancestor)
	assert.Equal(t, legacy.Ancestor, working.Ancestor)

	wantLocal := []change{
		{Path: filepath.Join(root, "b.txt"), Previous: trunk + "/b.txt", Next: filepath.Join(root, "b.txt"), Kind: compare.NodeFile, Text: compare.ChangeDeleted, Props: compare.ChangeNone},
		{Path: filepath.Join(root, "local.txt"), Previous: trunk + "/local.txt", Next: filepath.Join(root, "local.txt"), Kind: compare.NodeFile, Text: compare.ChangeAdded, Props: compare.ChangeNone},
	}
	assert.Equal(t, wantLocal, changes(legacy.Local))
	assert.Equal(t, wantLocal, changes(working.Local))

	wantRemote := []change{
		{Path: filepath.Join(root, "a.txt"), Previous: trunk + "/a.txt", Next: trunk + "/a.txt", Kind: compare.NodeFile, Text: compare.ChangeModified, Props: compare.ChangeNone},
		{Path: filepath.Join(root, "e.txt"), Previous: trunk + "/e.txt", Next: trunk + "/e.txt", Kind: compare.NodeFile, Text: compare.ChangeAdded, Props: compare.ChangeNone},
		{Path: filepath.Join(root, "sub", "c.txt"), Previous: trunk + "/sub/c.txt", Next: trunk + "/sub/c.txt", Kind: compare.NodeFile, Text: compare.ChangeNone, Props: compare.ChangeModified},
		{Path: filepath.Join(root, "sub", "d.txt"), Previous: trunk + "/sub/d.txt", Next: trunk + "/sub/d.txt", Kind: compare.NodeFile, Text: compare.ChangeModified, Props: compare.ChangeNone},
	}
	assert.Equal(t, wantRemote, changes(legacy.Remote))
	assert.Equal(t, wantRemote, changes(working.Remote))

	// pinned entries are reported by the pass of their own revision
	for _, e := range legacy.Remote {
		want := compare.Rev(1)
		if filepath.Dir(e.Identity.Path) == filepath.Join(root, "sub") {
			want = compare.Rev(2)
		}
		assert.Equal(t, want, e.Revision, e.Identity.Path)
	}
}

func TestReconcile_UpdatedNodeWithoutRemoteChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.commit(t, put("trunk/a.txt", "alpha"), put("trunk/b.txt", "bravo"))
	wc, err := workingcopy.Checkout(ctx, f.sdk, f.url+"/trunk", filepath.Join(t.TempDir(), "wc"), 1)
	require.NoError(t, err)

	r2 := f.commit(t, put("trunk/b.txt", "bravo v2"))
	_, err = wc.Update(ctx, f.sdk, "b.txt", r2)
	require.NoError(t, err)
	root := wc.Root()
	require.NoError(t, wc.Close())

	for _, level := range []compare.APILevel{compare.APILevelLegacy, compare.APILevelWorkingDiff} {
		t.Run(level.String(), func(t *testing.T) {
			res := reconcile(t, root, compare.Ref{Revision: compare.Head}, level)
			assert.Empty(t, res.Local)
			assert.Empty(t, res.Remote, "b.txt is already at the latest revision")
			if level == compare.APILevelLegacy {
				assert.Equal(t, []int64{1}, res.Revisions)
			}
		})
	}
}

func TestReconcile_Base(t *testing.T) {
	f := newFixture(t)
	root := mixedCheckout(t, f)

	res := reconcile(t, root, compare.Ref{Revision: compare.Base}, compare.APILevelWorkingDiff)
	assert.Equal(t, compare.StrategyRevisionDiff, res.Strategy)
	assert.Len(t, res.Local, 2)
	assert.Empty(t, res.Remote)
}

func TestReconcile_CopiedResource(t *testing.T) {
	f := newFixture(t)
	r1 := f.commit(t, put("trunk/a.txt", "alpha"))
	f.commit(t, repository.Op{Type: repository.OpCopy, FromPath: "trunk", FromRev: r1, Path: "branches/b"})
	root := f.checkout(t, f.url+"/branches/b", nil)
	f.commit(t, put("branches/b/a.txt", "alpha on branch"))

	for _, level := range []compare.APILevel{compare.APILevelLegacy, compare.APILevelWorkingDiff} {
		t.Run(level.String(), func(t *testing.T) {
			res := reconcile(t, root, compare.Ref{Revision: compare.Head}, level)
			assert.Equal(t, f.url+"/trunk", res.Ancestor.Location)
			assert.Equal(t, compare.Rev(r1), res.Ancestor.Revision)

			require.Len(t, res.Remote, 1)
			assert.Equal(t, f.url+"/trunk/a.txt", res.Remote[0].PreviousPath)
			assert.Equal(t, f.url+"/branches/b/a.txt", res.Remote[0].NextPath)
			assert.Equal(t, compare.ChangeModified, res.Remote[0].TextKind)
		})
	}
}

func TestReconcile_Unversioned(t *testing.T) {
	f := newFixture(t)
	f.commit(t, put("trunk/a.txt", "alpha"))
	root := f.checkout(t, f.url+"/trunk", nil)

	p := filepath.Join(root, "new.txt")
	require.NoError(t, os.WriteFile(p, []byte("n"), 0o644))

	res := reconcile(t, p, compare.Ref{Revision: compare.Head}, compare.APILevelWorkingDiff)
	require.Len(t, res.Local, 1)
	assert.Equal(t, compare.ChangeUnversioned, res.Local[0].TextKind)
	assert.Equal(t, p, res.Local[0].NextPath)
	assert.Empty(t, res.Remote)
}

func TestReconcile_SingleFile(t *testing.T) {
	f := newFixture(t)
	f.commit(t, put("trunk/a.txt", "alpha"), put("trunk/b.txt", "bravo"))
	root := f.checkout(t, f.url+"/trunk", nil)
	f.commit(t, put("trunk/a.txt", "alpha v2"), put("trunk/b.txt", "bravo v2"))

	for _, level := range []compare.APILevel{compare.APILevelLegacy, compare.APILevelWorkingDiff} {
		t.Run(level.String(), func(t *testing.T) {
			p := filepath.Join(root, "a.txt")
			res := reconcile(t, p, compare.Ref{Revision: compare.Head}, level)
			require.Len(t, res.Remote, 1)
			assert.Equal(t, p, res.Remote[0].Identity.Path)
			assert.Equal(t, compare.ChangeModified, res.Remote[0].TextKind)
		})
	}
}

func TestReconcile_Canceled(t *testing.T) {
	f := newFixture(t)
	f.commit(t, put("trunk/a.txt", "alpha"))
	root := f.checkout(t, f.url+"/trunk", nil)

	res, err := Describe(context.Background(), root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := compare.NewReconciler(newConnector(t, root, 0))
	_, err = r.Reconcile(ctx, &compare.Request{
		Resource: *res,
		Progress: func(step string, _ float64) {
			if step == "status" {
				cancel()
			}
		},
	})
	assert.True(t, errors.Is(err, context.Canceled))

	// the connection was closed and the lock released
	conn, err := newConnector(t, root, 0).Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}
