package repo

import "github.com/openmined/vcscompare/internal/repository"

type InfoResponse struct {
	Version  string `json:"version"`
	UUID     string `json:"uuid"`
	APILevel int    `json:"api_level"`
	Youngest int64  `json:"youngest"`
}

type NodeRequest struct {
	Path string `form:"path"`
	Rev  string `form:"rev"`
}

type TreeRequest struct {
	Path      string `form:"path"`
	Rev       string `form:"rev"`
	Recursive bool   `form:"recursive"`
}

type TreeResponse struct {
	Rev   int64              `json:"rev"`
	Nodes []*repository.Node `json:"nodes"`
}

type DiffRequest struct {
	FromPath string `form:"from_path"`
	FromRev  string `form:"from_rev"`
	ToPath   string `form:"to_path"`
	ToRev    string `form:"to_rev"`
}

type DiffResponse struct {
	FromRev int64                  `json:"from_rev"`
	ToRev   int64                  `json:"to_rev"`
	Items   []*repository.DiffItem `json:"items"`
}

// CopySourceResponse holds the node a path was copied from and the revision
// it was copied at. Source is nil for paths without a copy source.
type CopySourceResponse struct {
	Source *repository.Node `json:"source"`
	Rev    int64            `json:"rev"`
}

type CommitResponse struct {
	Rev int64 `json:"rev"`
}
