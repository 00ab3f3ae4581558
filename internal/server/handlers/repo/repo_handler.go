package repo

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vcscompare/internal/repository"
	"github.com/openmined/vcscompare/internal/server/handlers/api"
	"github.com/openmined/vcscompare/internal/utils"
	"github.com/openmined/vcscompare/internal/version"
)

const (
	HeaderNodeRev      = "X-Node-Rev"
	HeaderNodeChecksum = "X-Node-Checksum"
)

type RepoHandler struct {
	repo     *repository.Repository
	apiLevel int
}

func New(repo *repository.Repository, apiLevel int) *RepoHandler {
	return &RepoHandler{repo: repo, apiLevel: apiLevel}
}

func (h *RepoHandler) Info(ctx *gin.Context) {
	youngest, err := h.repo.Youngest(ctx)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &InfoResponse{
		Version:  version.Version,
		UUID:     h.repo.UUID(),
		APILevel: h.apiLevel,
		Youngest: youngest,
	})
}

func (h *RepoHandler) Node(ctx *gin.Context) {
	var req NodeRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	rev, ok := bindRev(ctx, req.Rev)
	if !ok {
		return
	}

	node, err := h.repo.Stat(ctx, req.Path, rev)
	if err != nil {
		abortWithRepoError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, node)
}

func (h *RepoHandler) Tree(ctx *gin.Context) {
	var req TreeRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	rev, ok := bindRev(ctx, req.Rev)
	if !ok {
		return
	}

	rev, err := h.repo.ResolveRev(ctx, rev)
	if err != nil {
		abortWithRepoError(ctx, err)
		return
	}

	nodes, err := h.repo.Tree(ctx, req.Path, rev, req.Recursive)
	if err != nil {
		abortWithRepoError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &TreeResponse{Rev: rev, Nodes: nodes})
}

func (h *RepoHandler) File(ctx *gin.Context) {
	var req NodeRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	rev, ok := bindRev(ctx, req.Rev)
	if !ok {
		return
	}

	data, node, err := h.repo.Content(ctx, req.Path, rev)
	if err != nil {
		abortWithRepoError(ctx, err)
		return
	}

	ctx.Header(HeaderNodeRev, strconv.FormatInt(node.Rev, 10))
	ctx.Header(HeaderNodeChecksum, node.Checksum)
	ctx.Data(http.StatusOK, utils.DetectContentType(node.Path), data)
}

func (h *RepoHandler) Diff(ctx *gin.Context) {
	var req DiffRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	fromRev, ok := bindRev(ctx, req.FromRev)
	if !ok {
		return
	}
	toRev, ok := bindRev(ctx, req.ToRev)
	if !ok {
		return
	}

	fromRev, err := h.repo.ResolveRev(ctx, fromRev)
	if err != nil {
		abortWithRepoError(ctx, err)
		return
	}
	toRev, err = h.repo.ResolveRev(ctx, toRev)
	if err != nil {
		abortWithRepoError(ctx, err)
		return
	}

	items, err := h.repo.DiffStatus(ctx, req.FromPath, fromRev, req.ToPath, toRev)
	if err != nil {
		abortWithRepoError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &DiffResponse{FromRev: fromRev, ToRev: toRev, Items: items})
}

func (h *RepoHandler) CopySource(ctx *gin.Context) {
	var req NodeRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	rev, ok := bindRev(ctx, req.Rev)
	if !ok {
		return
	}

	node, err := h.repo.Stat(ctx, req.Path, rev)
	if err != nil {
		abortWithRepoError(ctx, err)
		return
	}
	if !node.HasCopySource() {
		ctx.PureJSON(http.StatusOK, &CopySourceResponse{})
		return
	}

	src, err := h.repo.CopySource(ctx, req.Path, rev)
	if err != nil {
		abortWithRepoError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &CopySourceResponse{Source: src, Rev: node.CopyFromRev})
}

func (h *RepoHandler) Log(ctx *gin.Context) {
	rev, ok := bindRev(ctx, ctx.Query("rev"))
	if !ok {
		return
	}

	entry, err := h.repo.Log(ctx, rev)
	if err != nil {
		abortWithRepoError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, entry)
}

func (h *RepoHandler) Commit(ctx *gin.Context) {
	var req repository.CommitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	// an authenticated caller is always the author
	if user := ctx.GetString("user"); user != "" {
		req.Author = user
	}

	rev, err := h.repo.Commit(ctx, &req)
	if err != nil {
		abortWithRepoError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &CommitResponse{Rev: rev})
}

// bindRev parses a revision query value. Empty and HEAD select the youngest
// revision.
func bindRev(ctx *gin.Context, value string) (int64, bool) {
	rev, err := ParseRev(value)
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return 0, false
	}
	return rev, true
}

func ParseRev(value string) (int64, error) {
	if value == "" || strings.EqualFold(value, "HEAD") {
		return repository.Head, nil
	}
	rev, err := strconv.ParseInt(value, 10, 64)
	if err != nil || rev < 0 {
		return 0, fmt.Errorf("invalid revision %q", value)
	}
	return rev, nil
}

func abortWithRepoError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNodeNotFound):
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeNodeNotFound, err)
	case errors.Is(err, repository.ErrNoSuchRevision):
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeNoSuchRevision, err)
	case errors.Is(err, repository.ErrPathExists):
		api.AbortWithError(ctx, http.StatusConflict, api.CodePathExists, err)
	case errors.Is(err, repository.ErrNotDirectory):
		api.AbortWithError(ctx, http.StatusConflict, api.CodeNotDirectory, err)
	case errors.Is(err, repository.ErrEmptyCommit):
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
	default:
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
	}
}
