package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/vcscompare/internal/reposdk"
	"github.com/openmined/vcscompare/internal/repository"
	"github.com/openmined/vcscompare/internal/server"
	"github.com/openmined/vcscompare/internal/workingcopy"
	"github.com/spf13/cobra"
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

// checkout commits a small trunk at r1 and returns the root of a working
// copy checked out from it
func (f *fixture) checkout(t *testing.T) string {
	t.Helper()
	f.commit(t,
		put("trunk/a.txt", "alpha"),
		put("trunk/b.txt", "bravo"),
		put("trunk/sub/c.txt", "charlie"),
	)

	wc, err := workingcopy.Checkout(context.Background(), f.sdk, f.url+"/trunk", filepath.Join(t.TempDir(), "wc"), -1)
	require.NoError(t, err)
	root := wc.Root()
	require.NoError(t, wc.Close())
	return root
}

// isolateConfig keeps tests away from config files in the real home
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("VCSCOMPARE_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.json"))
}

// execute runs a fresh command tree with the given subcommand
func execute(t *testing.T, sub *cobra.Command, args ...string) (string, error) {
	t.Helper()
	isolateConfig(t)

	root := &cobra.Command{Use: "vcscompare", SilenceUsage: true, SilenceErrors: true}
	addPersistentFlags(root)
	root.AddCommand(sub)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}
