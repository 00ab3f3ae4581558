package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mattn/go-isatty"
	"github.com/openmined/vcscompare/internal/backend"
	"github.com/openmined/vcscompare/internal/compare"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCompareCmd())
}

func newCompareCmd() *cobra.Command {
	var rev string
	var targetURL string
	var includes []string
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "compare [PATH]",
		Short: "List local and remote changes of a working copy path against a revision",
		Long: `List the local changes of a working copy path and the changes the
repository made between its base and the target revision.

The target revision is HEAD by default. BASE lists local changes only.
--url compares against another repository location, for example a branch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			for _, p := range includes {
				if !doublestar.ValidatePattern(p) {
					return fmt.Errorf("invalid include pattern %q", p)
				}
			}

			target, err := compare.ParseRevision(rev)
			if err != nil {
				return err
			}

			localPath, err := resolveTarget(argOrEmpty(args))
			if err != nil {
				return err
			}

			resource, err := backend.Describe(cmd.Context(), localPath)
			if err != nil {
				return err
			}

			connector, err := backend.NewConnector(&backend.Config{
				Path:        localPath,
				AccessToken: cfg.Token,
				APILevel:    compare.APILevel(cfg.APILevel),
			})
			if err != nil {
				return err
			}

			req := &compare.Request{
				Resource: *resource,
				Target:   compare.Ref{Location: targetURL, Peg: target, Revision: target},
			}
			sink := &resultWriter{
				w:        cmd.OutOrStdout(),
				format:   cfg.Format,
				includes: includes,
				resource: *resource,
			}
			reconciler := compare.NewReconciler(connector)

			if cfg.Format == formatText && !noProgress && isatty.IsTerminal(os.Stderr.Fd()) {
				var result *compare.Result
				err = runWithProgress(cmd.Context(), "comparing", func(ctx context.Context, progress compare.ProgressFunc) error {
					req.Progress = progress
					res, err := reconciler.Reconcile(ctx, req)
					result = res
					return err
				})
				if err == nil {
					err = sink.BuildCompare(cmd.Context(), result)
				}
			} else {
				req.Progress = func(step string, fraction float64) {
					slog.Debug("compare progress", "step", step, "fraction", fraction)
				}
				err = reconciler.Compare(cmd.Context(), req, sink)
			}

			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&rev, "revision", "r", "HEAD", "target revision (number, HEAD or BASE)")
	cmd.Flags().StringVar(&targetURL, "url", "", "compare against this repository location instead of the path's own url")
	cmd.Flags().StringArrayVarP(&includes, "include", "i", nil, "only list changes whose path matches this glob (repeatable)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not render a progress bar")
	return cmd
}

// resultWriter renders a reconciliation result
type resultWriter struct {
	w        io.Writer
	format   string
	includes []string
	resource compare.Resource
}

func (r *resultWriter) BuildCompare(ctx context.Context, result *compare.Result) error {
	filtered := *result
	filtered.Local = r.filter(result.Local)
	filtered.Remote = r.filter(result.Remote)

	if r.format != formatText {
		return writeStructured(r.w, r.format, &filtered)
	}
	r.writeText(&filtered)
	return nil
}

// base is the directory change paths are shown relative to
func (r *resultWriter) base() string {
	if r.resource.Kind == compare.NodeFile {
		return filepath.Dir(r.resource.Path)
	}
	return r.resource.Path
}

func (r *resultWriter) rel(e *compare.ChangeEntry) string {
	rel, err := filepath.Rel(r.base(), e.Identity.Path)
	if err != nil {
		return e.Identity.Path
	}
	return filepath.ToSlash(rel)
}

func (r *resultWriter) filter(entries []*compare.ChangeEntry) []*compare.ChangeEntry {
	out := make([]*compare.ChangeEntry, 0, len(entries))
	for _, e := range entries {
		if r.included(r.rel(e)) {
			out = append(out, e)
		}
	}
	return out
}

func (r *resultWriter) included(rel string) bool {
	if len(r.includes) == 0 {
		return true
	}
	for _, p := range r.includes {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

var changeCodes = map[compare.ChangeKind]string{
	compare.ChangeAdded:       "A",
	compare.ChangeDeleted:     "D",
	compare.ChangeModified:    "M",
	compare.ChangeReplaced:    "R",
	compare.ChangeUnversioned: "?",
}

func changeCode(k compare.ChangeKind) string {
	if c, ok := changeCodes[k]; ok {
		return c
	}
	return " "
}

func (r *resultWriter) writeText(result *compare.Result) {
	w := r.w
	fmt.Fprintf(w, "%s %s\n", gray.Render("compare "), r.resource.Path)
	if result.Ancestor.Valid() {
		fmt.Fprintf(w, "%s %s\n", gray.Render("ancestor"), result.Ancestor)
	}
	if result.Strategy != 0 {
		fmt.Fprintf(w, "%s %s %v\n", gray.Render("strategy"), result.Strategy, result.Revisions)
	}

	fmt.Fprintf(w, "\n%s (%d)\n", cyan.Render("local changes"), len(result.Local))
	for _, e := range result.Local {
		fmt.Fprintf(w, "  %s%s  %s\n", styleCode(changeCode(e.TextKind)), styleCode(changeCode(e.PropKind)), r.rel(e))
	}

	fmt.Fprintf(w, "\n%s (%d)\n", cyan.Render("remote changes"), len(result.Remote))
	for _, e := range result.Remote {
		fmt.Fprintf(w, "  %s%s  %s  %s\n", styleCode(changeCode(e.TextKind)), styleCode(changeCode(e.PropKind)), r.rel(e), gray.Render(e.NextPath))
	}
}
