package reposdk

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/vcscompare/internal/version"
)

const (
	v1Info       = "/api/v1/info"
	v1Node       = "/api/v1/node"
	v1Tree       = "/api/v1/tree"
	v1File       = "/api/v1/file"
	v1Diff       = "/api/v1/diff"
	v1CopySource = "/api/v1/copysource"
	v1Log        = "/api/v1/log"
	v1Commit     = "/api/v1/commit"

	HeaderNodeRev      = "X-Node-Rev"
	HeaderNodeChecksum = "X-Node-Checksum"
)

// RepoSDK is the client for the repository api
type RepoSDK struct {
	client  *req.Client
	baseURL string
}

// New creates a new RepoSDK client
func New(config *Config) (*RepoSDK, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := req.C().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetUserAgent(version.UserAgent()).
		SetCommonRetryCount(config.RetryCount).
		SetCommonRetryBackoffInterval(100*time.Millisecond, 2*time.Second).
		SetCommonRetryCondition(func(resp *req.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
		}).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if config.AccessToken != "" {
		client.SetCommonBearerAuthToken(config.AccessToken)
	}

	return &RepoSDK{
		client:  client,
		baseURL: config.BaseURL,
	}, nil
}

func (s *RepoSDK) BaseURL() string {
	return s.baseURL
}

// Close releases idle connections
func (s *RepoSDK) Close() {
	s.client.GetClient().CloseIdleConnections()
}

func (s *RepoSDK) Info(ctx context.Context) (info *Info, err error) {
	res, err := s.client.R().
		SetContext(ctx).
		SetSuccessResult(&info).
		Get(v1Info)

	if err := handleAPIError(res, err, "info"); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *RepoSDK) Node(ctx context.Context, path string, rev string) (node *Node, err error) {
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		SetQueryParam("rev", rev).
		SetSuccessResult(&node).
		Get(v1Node)

	if err := handleAPIError(res, err, "node"); err != nil {
		return nil, err
	}
	return node, nil
}

func (s *RepoSDK) Tree(ctx context.Context, path string, rev string, recursive bool) (tree *Tree, err error) {
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		SetQueryParam("rev", rev).
		SetQueryParam("recursive", strconv.FormatBool(recursive)).
		SetSuccessResult(&tree).
		Get(v1Tree)

	if err := handleAPIError(res, err, "tree"); err != nil {
		return nil, err
	}
	return tree, nil
}

func (s *RepoSDK) File(ctx context.Context, path string, rev string) (*File, error) {
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		SetQueryParam("rev", rev).
		Get(v1File)

	if err := handleAPIError(res, err, "file"); err != nil {
		return nil, err
	}

	nodeRev, err := strconv.ParseInt(res.GetHeader(HeaderNodeRev), 10, 64)
	if err != nil {
		return nil, &APIError{Code: CodeUnknownError, Message: "missing node revision header"}
	}

	return &File{
		Rev:      nodeRev,
		Checksum: res.GetHeader(HeaderNodeChecksum),
		Content:  res.Bytes(),
	}, nil
}

func (s *RepoSDK) Diff(ctx context.Context, params *DiffParams) (diff *Diff, err error) {
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"from_path": params.FromPath,
			"from_rev":  params.FromRev,
			"to_path":   params.ToPath,
			"to_rev":    params.ToRev,
		}).
		SetSuccessResult(&diff).
		Get(v1Diff)

	if err := handleAPIError(res, err, "diff"); err != nil {
		return nil, err
	}
	return diff, nil
}

// CopySource returns the node path@rev was copied from and the revision it was
// copied at, or nil
func (s *RepoSDK) CopySource(ctx context.Context, path string, rev string) (*CopySource, error) {
	var src *CopySource
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		SetQueryParam("rev", rev).
		SetSuccessResult(&src).
		Get(v1CopySource)

	if err := handleAPIError(res, err, "copy source"); err != nil {
		return nil, err
	}
	if src == nil || src.Source == nil {
		return nil, nil
	}
	return src, nil
}

func (s *RepoSDK) Log(ctx context.Context, rev string) (entry *LogEntry, err error) {
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("rev", rev).
		SetSuccessResult(&entry).
		Get(v1Log)

	if err := handleAPIError(res, err, "log"); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *RepoSDK) Commit(ctx context.Context, params *CommitParams) (result *CommitResult, err error) {
	res, err := s.client.R().
		SetContext(ctx).
		SetBody(params).
		SetRetryCount(0).
		SetSuccessResult(&result).
		Post(v1Commit)

	if err := handleAPIError(res, err, "commit"); err != nil {
		return nil, err
	}
	return result, nil
}

// FormatRev renders a revision number for the query api. Negative numbers
// select HEAD.
func FormatRev(rev int64) string {
	if rev < 0 {
		return "HEAD"
	}
	return strconv.FormatInt(rev, 10)
}
