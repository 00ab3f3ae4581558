package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	r1 := commit(t, repo,
		Op{Type: OpPut, Path: "trunk/keep.txt", Content: []byte("k")},
		Op{Type: OpPut, Path: "trunk/mod.txt", Content: []byte("m")},
		Op{Type: OpPut, Path: "trunk/props.txt", Content: []byte("p")},
		Op{Type: OpPut, Path: "trunk/gone/x.txt", Content: []byte("x")},
		Op{Type: OpPut, Path: "trunk/swap", Content: []byte("s")},
	)
	r2 := commit(t, repo,
		Op{Type: OpPut, Path: "trunk/mod.txt", Content: []byte("m2")},
		Op{Type: OpPropSet, Path: "trunk/props.txt", Props: map[string]string{"k": "v"}},
		Op{Type: OpDelete, Path: "trunk/gone"},
		Op{Type: OpDelete, Path: "trunk/swap"},
		Op{Type: OpMkdir, Path: "trunk/swap"},
		Op{Type: OpPut, Path: "trunk/new/y.txt", Content: []byte("y")},
	)

	items, err := repo.DiffStatus(ctx, "trunk", r1, "trunk", r2)
	require.NoError(t, err)

	assert.Equal(t, []*DiffItem{
		{Path: "gone", Kind: KindDir, Text: ChangeDeleted, Props: ChangeNone},
		{Path: "gone/x.txt", Kind: KindFile, Text: ChangeDeleted, Props: ChangeNone},
		{Path: "mod.txt", Kind: KindFile, Text: ChangeModified, Props: ChangeNone},
		{Path: "new", Kind: KindDir, Text: ChangeAdded, Props: ChangeNone},
		{Path: "new/y.txt", Kind: KindFile, Text: ChangeAdded, Props: ChangeNone},
		{Path: "props.txt", Kind: KindFile, Text: ChangeNone, Props: ChangeModified},
		{Path: "swap", Kind: KindDir, Text: ChangeReplaced, Props: ChangeNone},
	}, items)

	// reversed direction swaps added and deleted
	items, err = repo.DiffStatus(ctx, "trunk", r2, "trunk", r1)
	require.NoError(t, err)
	assert.Equal(t, ChangeAdded, items[0].Text)
	assert.Equal(t, ChangeDeleted, items[3].Text)
}

func TestDiffStatus_AcrossPaths(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	r1 := commit(t, repo, Op{Type: OpPut, Path: "trunk/a.txt", Content: []byte("a")})
	commit(t, repo, Op{Type: OpCopy, FromPath: "trunk", FromRev: r1, Path: "branches/b"})
	r3 := commit(t, repo, Op{Type: OpPut, Path: "branches/b/a.txt", Content: []byte("b")})

	items, err := repo.DiffStatus(ctx, "trunk", r1, "branches/b", r3)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a.txt", items[0].Path)
	assert.Equal(t, ChangeModified, items[0].Text)
}

func TestDiffStatus_Unchanged(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	commit(t, repo, Op{Type: OpPut, Path: "a", Content: []byte("a")})
	commit(t, repo, Op{Type: OpPut, Path: "a", Content: []byte("a")})

	items, err := repo.DiffStatus(ctx, "", 1, "", 2)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDiffStatus_Missing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	r1 := commit(t, repo, Op{Type: OpPut, Path: "a", Content: []byte("a")})

	items, err := repo.DiffStatus(ctx, "a", 0, "a", r1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ChangeAdded, items[0].Text)
	assert.Equal(t, "", items[0].Path)

	_, err = repo.DiffStatus(ctx, "nope", 0, "nope", r1)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}
