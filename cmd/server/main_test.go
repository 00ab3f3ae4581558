package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openmined/vcscompare/internal/repository"
	"github.com/openmined/vcscompare/internal/server"
	"github.com/openmined/vcscompare/internal/server/auth"
	"github.com/openmined/vcscompare/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes a fresh command tree against the repository at dbPath
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--db", dbPath, "--config", filepath.Join(t.TempDir(), "none.yaml")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func openRepo(t *testing.T, dbPath string) *repository.Repository {
	t.Helper()
	repo, err := repository.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("VCSCOMPARE_HTTP_ADDR", ":8080")
	t.Setenv("VCSCOMPARE_HTTP_CERT_FILE", "test-cert.pem")
	t.Setenv("VCSCOMPARE_HTTP_KEY_FILE", "test-key.pem")
	t.Setenv("VCSCOMPARE_HTTP_RATE_LIMIT", "10-M")
	t.Setenv("VCSCOMPARE_DB_PATH", "/tmp/test.db")
	t.Setenv("VCSCOMPARE_API_LEVEL", "1")

	t.Setenv("VCSCOMPARE_AUTH_ENABLED", "true")
	t.Setenv("VCSCOMPARE_AUTH_TOKEN_ISSUER", "test-issuer")
	t.Setenv("VCSCOMPARE_AUTH_TOKEN_SECRET", "test-secret")
	t.Setenv("VCSCOMPARE_AUTH_TOKEN_EXPIRY", "1h")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}))

	cfg, err := loadConfig(cmd)
	assert.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "test-cert.pem", cfg.HTTP.CertFile)
	assert.Equal(t, "test-key.pem", cfg.HTTP.KeyFile)
	assert.Equal(t, "10-M", cfg.HTTP.RateLimit)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, 1, cfg.APILevel)
	assert.Equal(t, true, cfg.Auth.Enabled)
	assert.Equal(t, "test-issuer", cfg.Auth.TokenIssuer)
	assert.Equal(t, "test-secret", cfg.Auth.TokenSecret)
	assert.Equal(t, 1*time.Hour, cfg.Auth.TokenExpiry)
}

func TestLoadConfigYAML(t *testing.T) {
	dummyConfig := `
db_path: /data/repo.db
http:
  cert_file: test-cert.pem
  key_file: test-key.pem

auth:
  enabled: true
  token_issuer: test-issuer
  token_secret: test-secret
  token_expiry: 5m
`
	dummyConfigFile := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(dummyConfigFile, []byte(dummyConfig), 0o644))

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", dummyConfigFile}))

	cfg, err := loadConfig(cmd)
	assert.NoError(t, err)

	assert.Equal(t, server.DefaultAddr, cfg.HTTP.Addr)
	assert.Equal(t, "/data/repo.db", cfg.DBPath)
	assert.Equal(t, "test-cert.pem", cfg.HTTP.CertFile)
	assert.Equal(t, "test-key.pem", cfg.HTTP.KeyFile)
	assert.Equal(t, true, cfg.Auth.Enabled)
	assert.Equal(t, "test-issuer", cfg.Auth.TokenIssuer)
	assert.Equal(t, 5*time.Minute, cfg.Auth.TokenExpiry)
}

func TestLoadConfigJSON(t *testing.T) {
	dummyConfig := `
{
	"http": {
		"addr": "localhost:38080",
		"rate_limit": "5-S"
	},
	"api_level": 1
}
`
	dummyConfigFile := filepath.Join(t.TempDir(), "server.json")
	require.NoError(t, os.WriteFile(dummyConfigFile, []byte(dummyConfig), 0o644))

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", dummyConfigFile, "--db", "/flag/repo.db"}))

	cfg, err := loadConfig(cmd)
	assert.NoError(t, err)

	assert.Equal(t, "localhost:38080", cfg.HTTP.Addr)
	assert.Equal(t, "5-S", cfg.HTTP.RateLimit)
	assert.Equal(t, "/flag/repo.db", cfg.DBPath)
	assert.Equal(t, 1, cfg.APILevel)
	assert.Equal(t, false, cfg.Auth.Enabled)
}

func TestImportCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "repo.db")
	src := t.TempDir()
	for p, content := range map[string]string{
		"a.txt":           "alpha",
		"sub/c.txt":       "charlie",
		"build/out.bin":   "binary",
		"sub/deep/d.log":  "log",
		"empty/.keep":     "",
		"sub/deep/e.txt":  "echo",
		"sub/build/f.txt": "foxtrot",
	} {
		full := filepath.Join(src, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	out, err := run(t, dbPath, "import", src, "trunk", "-m", "initial import", "-e", "build", "-e", "**/*.log")
	require.NoError(t, err)
	assert.Equal(t, "Committed revision 1.\n", out)

	repo := openRepo(t, dbPath)
	nodes, err := repo.Tree(context.Background(), "trunk", 1, true)
	require.NoError(t, err)

	var paths []string
	for _, n := range nodes {
		paths = append(paths, n.Path)
	}
	assert.Equal(t, []string{
		"trunk",
		"trunk/a.txt",
		"trunk/empty",
		"trunk/empty/.keep",
		"trunk/sub",
		"trunk/sub/build",
		"trunk/sub/build/f.txt",
		"trunk/sub/c.txt",
		"trunk/sub/deep",
		"trunk/sub/deep/e.txt",
	}, paths)

	content, _, err := repo.Content(context.Background(), "trunk/sub/c.txt", 1)
	require.NoError(t, err)
	assert.Equal(t, "charlie", string(content))

	rev, err := repo.Log(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "initial import", rev.Message)
}

func TestImportCommand_Errors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "repo.db")

	_, err := run(t, dbPath, "import", filepath.Join(t.TempDir(), "missing"), "trunk")
	assert.ErrorContains(t, err, "is not a directory")

	_, err = run(t, dbPath, "import", t.TempDir(), "trunk", "-e", "[")
	assert.ErrorContains(t, err, "invalid exclude pattern")

	_, err = run(t, dbPath, "import", t.TempDir(), "")
	assert.ErrorContains(t, err, "nothing to import")
}

func TestAdminCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "repo.db")
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("alpha"), 0o644))

	steps := [][]string{
		{"import", src, "trunk"},
		{"mkdir", "branches", "tags"},
		{"cp", "trunk@1", "branches/feature"},
		{"propset", "owner", "alice", "branches/feature/a.txt"},
		{"rm", "tags"},
	}
	for i, args := range steps {
		out, err := run(t, dbPath, args...)
		require.NoError(t, err, args)
		assert.Equal(t, fmt.Sprintf("Committed revision %d.\n", i+1), out)
	}

	repo := openRepo(t, dbPath)
	ctx := context.Background()

	branch, err := repo.Stat(ctx, "branches/feature", 3)
	require.NoError(t, err)
	assert.Equal(t, "trunk", branch.CopyFromPath)
	assert.Equal(t, int64(1), branch.CopyFromRev)

	node, err := repo.Stat(ctx, "branches/feature/a.txt", -1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"owner": "alice"}, node.Props)

	_, err = repo.Stat(ctx, "tags", -1)
	assert.ErrorIs(t, err, repository.ErrNodeNotFound)

	_, err = repo.Stat(ctx, "tags", 2)
	assert.NoError(t, err)
}

func TestSplitPeg(t *testing.T) {
	tests := []struct {
		in      string
		path    string
		rev     int64
		wantErr bool
	}{
		{in: "trunk", path: "trunk", rev: -1},
		{in: "trunk@3", path: "trunk", rev: 3},
		{in: "trunk@r7", path: "trunk", rev: 7},
		{in: "trunk@head", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, rev, err := splitPeg(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.path, p)
			assert.Equal(t, tt.rev, rev)
		})
	}
}

func TestTokenCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "repo.db")

	_, err := run(t, dbPath, "token", "alice")
	assert.ErrorIs(t, err, auth.ErrAuthDisabled)

	t.Setenv("VCSCOMPARE_AUTH_ENABLED", "true")
	t.Setenv("VCSCOMPARE_AUTH_TOKEN_ISSUER", "test-issuer")
	t.Setenv("VCSCOMPARE_AUTH_TOKEN_SECRET", "test-secret")

	out, err := run(t, dbPath, "token", "alice")
	require.NoError(t, err)

	claims, err := auth.ParseClaims(strings.TrimSpace(out), "test-secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "test-issuer", claims.Issuer)
}

func TestServeCommand(t *testing.T) {
	port, err := utils.GetFreePort()
	require.NoError(t, err)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--bind", addr,
		"--db", filepath.Join(t.TempDir(), "repo.db"),
		"--config", filepath.Join(t.TempDir(), "none.yaml"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
