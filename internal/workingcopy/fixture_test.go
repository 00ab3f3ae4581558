package workingcopy

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/vcscompare/internal/reposdk"
	"github.com/openmined/vcscompare/internal/repository"
	"github.com/openmined/vcscompare/internal/server"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo *repository.Repository
	sdk  *reposdk.RepoSDK
	url  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	srv, err := server.New(&server.Config{DBPath: filepath.Join(t.TempDir(), "repo.db")})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop(context.Background())
	})

	sdk, err := reposdk.New(&reposdk.Config{BaseURL: ts.URL, RetryCount: -1})
	require.NoError(t, err)
	t.Cleanup(sdk.Close)

	return &fixture{repo: srv.Repository(), sdk: sdk, url: ts.URL}
}

func (f *fixture) commit(t *testing.T, ops ...repository.Op) int64 {
	t.Helper()
	rev, err := f.repo.Commit(context.Background(), &repository.CommitRequest{Author: "test", Message: "test", Ops: ops})
	require.NoError(t, err)
	return rev
}

func put(p, content string) repository.Op {
	return repository.Op{Type: repository.OpPut, Path: p, Content: []byte(content)}
}

// checkout commits a small trunk and checks it out at HEAD
func (f *fixture) checkout(t *testing.T) *WorkingCopy {
	t.Helper()
	f.commit(t,
		put("trunk/a.txt", "alpha"),
		put("trunk/b.txt", "bravo"),
		put("trunk/sub/c.txt", "charlie"),
	)

	wc, err := Checkout(context.Background(), f.sdk, f.url+"/trunk", filepath.Join(t.TempDir(), "wc"), -1)
	require.NoError(t, err)
	t.Cleanup(func() { wc.Close() })
	return wc
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func collectStatus(t *testing.T, wc *WorkingCopy, rel string, opts StatusOptions) map[string]*StatusEntry {
	t.Helper()
	out := make(map[string]*StatusEntry)
	for e, err := range wc.Status(context.Background(), rel, opts) {
		require.NoError(t, err)
		out[e.RelPath] = e
	}
	return out
}

func removeFile(p string) error {
	return os.Remove(p)
}
