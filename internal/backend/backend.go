// Package backend connects the compare engine to a working copy and the
// repository server it was checked out from.
package backend

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/vcscompare/internal/compare"
	"github.com/openmined/vcscompare/internal/reposdk"
	"github.com/openmined/vcscompare/internal/workingcopy"
)

// Connector opens a Conn per reconciliation
type Connector struct {
	config *Config
}

func NewConnector(config *Config) (*Connector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Connector{config: config}, nil
}

// Connect opens and locks the working copy and connects to its repository
func (c *Connector) Connect(ctx context.Context) (compare.Conn, error) {
	wc, err := workingcopy.Open(c.config.Path)
	if err != nil {
		return nil, err
	}

	conn, err := newConn(ctx, wc, c.config)
	if err != nil {
		wc.Close()
		return nil, err
	}
	return conn, nil
}

// Conn is a compare.Backend over one locked working copy
type Conn struct {
	wc       *workingcopy.WorkingCopy
	sdk      *reposdk.RepoSDK
	apiLevel compare.APILevel
	sources  *lru.Cache[string, *compare.Ref]
}

func newConn(ctx context.Context, wc *workingcopy.WorkingCopy, config *Config) (*Conn, error) {
	sdk, err := reposdk.New(&reposdk.Config{
		BaseURL:     wc.Info().RootURL,
		AccessToken: config.AccessToken,
		Timeout:     config.Timeout,
		RetryCount:  config.RetryCount,
	})
	if err != nil {
		return nil, err
	}

	info, err := sdk.Info(ctx)
	if err != nil {
		sdk.Close()
		return nil, fmt.Errorf("repository info: %w", err)
	}
	if uuid := wc.Info().UUID; uuid != "" && info.UUID != uuid {
		sdk.Close()
		return nil, fmt.Errorf("repository %s is not the one the working copy was checked out from", wc.Info().RootURL)
	}

	level := compare.APILevel(info.APILevel)
	if config.APILevel > 0 {
		level = config.APILevel
	}

	sources, err := lru.New[string, *compare.Ref](config.CacheSize)
	if err != nil {
		sdk.Close()
		return nil, err
	}

	slog.Debug("backend connected", "root", wc.Root(), "server", info.Version, "apiLevel", level, "youngest", info.Youngest)
	return &Conn{wc: wc, sdk: sdk, apiLevel: level, sources: sources}, nil
}

func (c *Conn) APILevel() compare.APILevel {
	return c.apiLevel
}

func (c *Conn) Close() error {
	c.sdk.Close()
	return c.wc.Close()
}

// Status scans the working copy below path, a local path
func (c *Conn) Status(ctx context.Context, path string, opts compare.StatusOptions) iter.Seq2[*compare.StatusEntry, error] {
	return func(yield func(*compare.StatusEntry, error) bool) {
		rel, err := c.wc.RelPath(path)
		if err != nil {
			yield(nil, err)
			return
		}

		wopts := workingcopy.StatusOptions{Recursive: opts.Recursive}
		if opts.Remote {
			wopts.Remote = c.sdk
		}

		for e, err := range c.wc.Status(ctx, rel, wopts) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(statusEntry(e), nil) {
				return
			}
		}
	}
}

// DiffStatus diffs two repository references, or the working copy at
// from.Location against to when from has the WORKING revision
func (c *Conn) DiffStatus(ctx context.Context, from, to compare.Ref) iter.Seq2[*compare.DiffEntry, error] {
	return func(yield func(*compare.DiffEntry, error) bool) {
		var (
			entries []*compare.DiffEntry
			err     error
		)
		if from.Revision.Kind == compare.RevWorking {
			entries, err = c.workingDiff(ctx, from, to)
		} else {
			entries, err = c.repoDiff(ctx, from, to)
		}
		if err != nil {
			yield(nil, err)
			return
		}
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// repoDiff sends only the operative revisions. The repository addresses nodes
// by path and revision, so pegs are not traced to earlier locations.
func (c *Conn) repoDiff(ctx context.Context, from, to compare.Ref) ([]*compare.DiffEntry, error) {
	fromPath, err := c.repoPath(from.Location)
	if err != nil {
		return nil, err
	}
	fromRev, err := revParam(from.Revision)
	if err != nil {
		return nil, err
	}
	toPath, err := c.repoPath(to.Location)
	if err != nil {
		return nil, err
	}
	toRev, err := revParam(to.Revision)
	if err != nil {
		return nil, err
	}

	diff, err := c.sdk.Diff(ctx, &reposdk.DiffParams{
		FromPath: fromPath,
		FromRev:  fromRev,
		ToPath:   toPath,
		ToRev:    toRev,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*compare.DiffEntry, 0, len(diff.Items))
	for _, item := range diff.Items {
		entries = append(entries, &compare.DiffEntry{
			FromPath: compare.JoinLocation(from.Location, item.Path),
			ToPath:   compare.JoinLocation(to.Location, item.Path),
			Kind:     compare.NodeKind(item.Kind),
			TextKind: compare.ChangeKind(item.Text),
			PropKind: compare.ChangeKind(item.Props),
		})
	}
	return entries, nil
}

// CopySource returns the location ref was copied from. Lookups are cached for
// the lifetime of the connection.
func (c *Conn) CopySource(ctx context.Context, ref compare.Ref) (*compare.Ref, error) {
	key := ref.String()
	if src, ok := c.sources.Get(key); ok {
		return src, nil
	}

	p, err := c.repoPath(ref.Location)
	if err != nil {
		return nil, err
	}
	rev, err := revParam(ref.Revision)
	if err != nil {
		return nil, err
	}

	res, err := c.sdk.CopySource(ctx, p, rev)
	if err != nil {
		return nil, err
	}

	var src *compare.Ref
	if res != nil {
		src = &compare.Ref{
			Location: workingcopy.RepoURL(c.wc.Info().RootURL, res.Source.Path),
			Peg:      compare.Rev(res.Rev),
			Revision: compare.Rev(res.Rev),
		}
	}
	c.sources.Add(key, src)
	return src, nil
}

// Describe returns the resource at a local path
func (c *Conn) Describe(ctx context.Context, localPath string) (*compare.Resource, error) {
	d, err := c.wc.Describe(ctx, localPath)
	if err != nil {
		return nil, err
	}
	return resource(d), nil
}

// Describe opens the working copy containing localPath just long enough to
// describe it
func Describe(ctx context.Context, localPath string) (*compare.Resource, error) {
	wc, err := workingcopy.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer wc.Close()

	d, err := wc.Describe(ctx, localPath)
	if err != nil {
		return nil, err
	}
	return resource(d), nil
}

func (c *Conn) repoPath(location string) (string, error) {
	return workingcopy.RepoPathOf(c.wc.Info().RootURL, location)
}

func revParam(rev compare.Revision) (string, error) {
	switch rev.Kind {
	case compare.RevNumber:
		return reposdk.FormatRev(rev.Number), nil
	case compare.RevHead, compare.RevUnspecified:
		return "HEAD", nil
	default:
		return "", fmt.Errorf("%s is not a repository revision", rev)
	}
}

func statusEntry(e *workingcopy.StatusEntry) *compare.StatusEntry {
	return &compare.StatusEntry{
		Path:           e.LocalPath,
		URL:            e.URL,
		Kind:           compare.NodeKind(e.Kind),
		TextStatus:     compare.StatusKind(e.Text),
		PropStatus:     compare.StatusKind(e.Props),
		RepoTextStatus: compare.StatusKind(e.RepoText),
		RepoPropStatus: compare.StatusKind(e.RepoProps),
		Revision:       revision(e.Revision),
		LastChanged:    revision(e.ChangedRev),
	}
}

func resource(d *workingcopy.Description) *compare.Resource {
	kind := compare.NodeKind(d.Kind)
	if d.Kind == workingcopy.KindNone {
		kind = compare.NodeFile
	}
	return &compare.Resource{
		Path:     d.LocalPath,
		Kind:     kind,
		URL:      d.URL,
		Revision: revision(d.Revision),
		Exists:   d.Exists,
	}
}

func revision(n int64) compare.Revision {
	if n < 0 {
		return compare.Revision{}
	}
	return compare.Rev(n)
}

var (
	_ compare.Conn      = (*Conn)(nil)
	_ compare.Connector = (*Connector)(nil)
)
