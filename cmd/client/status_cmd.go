package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/openmined/vcscompare/internal/workingcopy"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

type statusView struct {
	Path      string                 `json:"path" yaml:"path"`
	Kind      workingcopy.Kind       `json:"kind" yaml:"kind"`
	Text      workingcopy.StatusKind `json:"text" yaml:"text"`
	Props     workingcopy.StatusKind `json:"props" yaml:"props"`
	RepoText  workingcopy.StatusKind `json:"repo_text,omitempty" yaml:"repo_text,omitempty"`
	RepoProps workingcopy.StatusKind `json:"repo_props,omitempty" yaml:"repo_props,omitempty"`
	Revision  int64                  `json:"revision" yaml:"revision"`
}

func newStatusCmd() *cobra.Command {
	var remote bool
	var verbose bool
	var depthEmpty bool

	cmd := &cobra.Command{
		Use:     "status [PATH]",
		Aliases: []string{"st"},
		Short:   "Show the status of working copy paths",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			wc, rel, err := openWorkingCopy(argOrEmpty(args))
			if err != nil {
				return err
			}
			defer wc.Close()

			opts := workingcopy.StatusOptions{Recursive: !depthEmpty}
			if remote {
				sdk, err := newSDK(cfg, wc.Info().RootURL)
				if err != nil {
					return err
				}
				defer sdk.Close()
				opts.Remote = sdk
			}

			var views []*statusView
			for e, err := range wc.Status(cmd.Context(), rel, opts) {
				if err != nil {
					return err
				}
				if !verbose && !isInteresting(e) {
					continue
				}
				views = append(views, &statusView{
					Path:      e.RelPath,
					Kind:      e.Kind,
					Text:      e.Text,
					Props:     e.Props,
					RepoText:  repoStatus(e.RepoText),
					RepoProps: repoStatus(e.RepoProps),
					Revision:  e.Revision,
				})
			}

			if cfg.Format != formatText {
				if views == nil {
					views = []*statusView{}
				}
				return writeStructured(cmd.OutOrStdout(), cfg.Format, views)
			}
			writeStatusText(cmd.OutOrStdout(), views, remote)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&remote, "show-updates", "u", false, "compare with the youngest repository revision")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show unchanged paths too")
	cmd.Flags().BoolVarP(&depthEmpty, "non-recursive", "N", false, "only the path and its immediate children")
	return cmd
}

func isInteresting(e *workingcopy.StatusEntry) bool {
	return e.Text != workingcopy.StatusNormal || e.Props == workingcopy.StatusModified || e.HasRemoteChange()
}

func repoStatus(s workingcopy.StatusKind) workingcopy.StatusKind {
	if s == workingcopy.StatusNone {
		return ""
	}
	return s
}

var statusCodes = map[workingcopy.StatusKind]string{
	workingcopy.StatusAdded:       "A",
	workingcopy.StatusDeleted:     "D",
	workingcopy.StatusModified:    "M",
	workingcopy.StatusReplaced:    "R",
	workingcopy.StatusUnversioned: "?",
	workingcopy.StatusMissing:     "!",
	workingcopy.StatusObstructed:  "~",
}

func statusCode(s workingcopy.StatusKind) string {
	if c, ok := statusCodes[s]; ok {
		return c
	}
	return " "
}

func writeStatusText(w io.Writer, views []*statusView, remote bool) {
	for _, v := range views {
		var b strings.Builder
		b.WriteString(styleCode(statusCode(v.Text)))
		b.WriteString(styleCode(statusCode(v.Props)))
		if remote {
			if (v.RepoText != "" && v.RepoText != workingcopy.StatusNormal) || v.RepoProps == workingcopy.StatusModified {
				b.WriteString("  " + yellow.Render("*"))
			} else {
				b.WriteString("   ")
			}
			rev := ""
			if v.Revision >= 0 {
				rev = fmt.Sprint(v.Revision)
			}
			b.WriteString(fmt.Sprintf(" %6s", rev))
		}
		p := v.Path
		if p == "" {
			p = "."
		}
		b.WriteString("   " + p)
		fmt.Fprintln(w, b.String())
	}
}

func styleCode(code string) string {
	switch code {
	case "A":
		return green.Render(code)
	case "D", "!", "~":
		return red.Render(code)
	case "M", "R":
		return cyan.Render(code)
	case "?":
		return gray.Render(code)
	default:
		return code
	}
}
