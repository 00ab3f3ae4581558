package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/vcscompare/internal/repository"
	"github.com/openmined/vcscompare/internal/server/auth"
	"github.com/openmined/vcscompare/internal/server/handlers/api"
	"github.com/openmined/vcscompare/internal/server/handlers/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	repo *repository.Repository
	auth *auth.AuthService
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()

	config := &Config{
		DBPath: filepath.Join(t.TempDir(), "repo.db"),
		HTTP:   HTTPConfig{RateLimit: DefaultRateLimit},
	}
	if mutate != nil {
		mutate(config)
	}

	srv, err := New(config)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop(context.Background())
	})

	return &testServer{Server: ts, repo: srv.Repository(), auth: srv.auth}
}

func (ts *testServer) commit(t *testing.T, ops ...repository.Op) int64 {
	t.Helper()
	rev, err := ts.repo.Commit(context.Background(), &repository.CommitRequest{Author: "test", Ops: ops})
	require.NoError(t, err)
	return rev
}

func getJSON(t *testing.T, url string, token string, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "defaults", config: Config{DBPath: "x.db"}},
		{name: "missing db", config: Config{}, wantErr: "db_path"},
		{name: "cert without key", config: Config{DBPath: "x.db", HTTP: HTTPConfig{CertFile: "c"}}, wantErr: "cert_file"},
		{name: "bad api level", config: Config{DBPath: "x.db", APILevel: 3}, wantErr: "api_level"},
		{name: "auth without secret", config: Config{DBPath: "x.db", Auth: auth.Config{Enabled: true, TokenIssuer: "i"}}, wantErr: "token_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultAddr, tt.config.HTTP.Addr)
			assert.Equal(t, DefaultAPILevel, tt.config.APILevel)
		})
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	var body map[string]string
	status := getJSON(t, ts.URL+"/healthz", "", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestInfo(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.APILevel = 1 })
	ts.commit(t, repository.Op{Type: repository.OpMkdir, Path: "trunk"})

	var info repo.InfoResponse
	status := getJSON(t, ts.URL+"/api/v1/info", "", &info)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, info.APILevel)
	assert.Equal(t, int64(1), info.Youngest)
	assert.Equal(t, ts.repo.UUID(), info.UUID)
}

func TestNodeAndTree(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.commit(t,
		repository.Op{Type: repository.OpPut, Path: "trunk/a.txt", Content: []byte("a")},
		repository.Op{Type: repository.OpPut, Path: "trunk/sub/b.txt", Content: []byte("b")},
	)

	var node repository.Node
	status := getJSON(t, ts.URL+"/api/v1/node?path=trunk/a.txt&rev=HEAD", "", &node)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, repository.KindFile, node.Kind)

	var tree repo.TreeResponse
	status = getJSON(t, ts.URL+"/api/v1/tree?path=trunk&recursive=true", "", &tree)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), tree.Rev)
	assert.Len(t, tree.Nodes, 4)

	status = getJSON(t, ts.URL+"/api/v1/tree?path=trunk", "", &tree)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, tree.Nodes, 3)
}

func TestNode_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		query  string
		status int
		code   string
	}{
		{name: "missing", query: "path=nope", status: http.StatusNotFound, code: api.CodeNodeNotFound},
		{name: "future revision", query: "path=&rev=7", status: http.StatusNotFound, code: api.CodeNoSuchRevision},
		{name: "bad revision", query: "path=&rev=abc", status: http.StatusBadRequest, code: api.CodeInvalidRequest},
		{name: "negative revision", query: "path=&rev=-3", status: http.StatusBadRequest, code: api.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apiErr api.APIError
			status := getJSON(t, ts.URL+"/api/v1/node?"+tt.query, "", &apiErr)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestFile(t *testing.T) {
	ts := newTestServer(t, nil)
	rev := ts.commit(t, repository.Op{Type: repository.OpPut, Path: "a.txt", Content: []byte("hello")})

	resp, err := http.Get(ts.URL + "/api/v1/file?path=a.txt")
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", buf.String())
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "1", resp.Header.Get(repo.HeaderNodeRev))
	assert.NotEmpty(t, resp.Header.Get(repo.HeaderNodeChecksum))
	assert.Equal(t, int64(1), rev)
}

func TestDiffAndCopySource(t *testing.T) {
	ts := newTestServer(t, nil)
	r1 := ts.commit(t, repository.Op{Type: repository.OpPut, Path: "trunk/a.txt", Content: []byte("a")})
	r2 := ts.commit(t, repository.Op{Type: repository.OpCopy, FromPath: "trunk", FromRev: r1, Path: "branches/b"})
	r3 := ts.commit(t, repository.Op{Type: repository.OpPut, Path: "trunk/a.txt", Content: []byte("a2")})

	var diff repo.DiffResponse
	status := getJSON(t, ts.URL+"/api/v1/diff?from_path=trunk&from_rev=1&to_path=trunk&to_rev=HEAD", "", &diff)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, r1, diff.FromRev)
	assert.Equal(t, r3, diff.ToRev)
	require.Len(t, diff.Items, 1)
	assert.Equal(t, repository.ChangeModified, diff.Items[0].Text)

	var src repo.CopySourceResponse
	status = getJSON(t, fmt.Sprintf("%s/api/v1/copysource?path=branches/b&rev=%d", ts.URL, r2), "", &src)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, src.Source)
	assert.Equal(t, "trunk", src.Source.Path)
	assert.Equal(t, r1, src.Source.Rev)
	assert.Equal(t, r1, src.Rev)

	status = getJSON(t, ts.URL+"/api/v1/copysource?path=trunk", "", &src)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, src.Source)
}

func TestCommit(t *testing.T) {
	ts := newTestServer(t, nil)

	body, err := json.Marshal(&repository.CommitRequest{
		Author:  "alice",
		Message: "add file",
		Ops:     []repository.Op{{Type: repository.OpPut, Path: "a.txt", Content: []byte("a")}},
	})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/api/v1/commit", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var res repo.CommitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), res.Rev)

	var entry repository.Revision
	status := getJSON(t, ts.URL+"/api/v1/log?rev=1", "", &entry)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", entry.Author)

	// mkdir over an existing file conflicts
	body, _ = json.Marshal(&repository.CommitRequest{Ops: []repository.Op{{Type: repository.OpMkdir, Path: "a.txt"}}})
	resp2, err := http.Post(ts.URL+"/api/v1/commit", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp2.Body.Close()

	var apiErr api.APIError
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&apiErr))
	assert.Equal(t, http.StatusConflict, resp2.StatusCode)
	assert.Equal(t, api.CodePathExists, apiErr.Code)
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, func(c *Config) {
		c.Auth = auth.Config{Enabled: true, TokenIssuer: "test", TokenSecret: "secret", TokenExpiry: time.Hour}
	})

	var apiErr api.APIError
	status := getJSON(t, ts.URL+"/api/v1/info", "", &apiErr)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, api.CodeAuthInvalidCredentials, apiErr.Code)

	status = getJSON(t, ts.URL+"/api/v1/info", "garbage", &apiErr)
	assert.Equal(t, http.StatusUnauthorized, status)

	token, err := ts.auth.IssueToken("alice")
	require.NoError(t, err)

	var info repo.InfoResponse
	status = getJSON(t, ts.URL+"/api/v1/info", token, &info)
	assert.Equal(t, http.StatusOK, status)

	// health stays public
	status = getJSON(t, ts.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.HTTP.RateLimit = "2-M" })

	for range 2 {
		assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", "", nil))
	}

	var apiErr api.APIError
	status := getJSON(t, ts.URL+"/healthz", "", &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, api.CodeRateLimited, apiErr.Code)
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	var apiErr api.APIError
	status := getJSON(t, ts.URL+"/nope", "", &apiErr)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, api.CodeNotFound, apiErr.Code)
}

func TestBadRateLimit(t *testing.T) {
	_, err := New(&Config{DBPath: filepath.Join(t.TempDir(), "r.db"), HTTP: HTTPConfig{RateLimit: "lots"}})
	assert.ErrorContains(t, err, "rate limiter")
}
