package main

import (
	"fmt"
	"path"

	"github.com/openmined/vcscompare/internal/compare"
	"github.com/openmined/vcscompare/internal/reposdk"
	"github.com/openmined/vcscompare/internal/workingcopy"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCheckoutCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newPropSetCmd())
}

// parseRev parses a -r flag. Empty and HEAD select the youngest revision.
func parseRev(s string) (int64, error) {
	rev, err := compare.ParseRevision(s)
	if err != nil {
		return 0, err
	}
	switch rev.Kind {
	case compare.RevUnspecified, compare.RevHead:
		return -1, nil
	case compare.RevNumber:
		return rev.Number, nil
	default:
		return 0, fmt.Errorf("%s is not a repository revision", rev)
	}
}

func newCheckoutCmd() *cobra.Command {
	var rev string

	cmd := &cobra.Command{
		Use:     "checkout URL [DIR]",
		Aliases: []string{"co"},
		Short:   "Check out a directory of the repository",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			revNum, err := parseRev(rev)
			if err != nil {
				return err
			}

			rootURL, repoPath, err := workingcopy.SplitURL(args[0])
			if err != nil {
				return err
			}

			dir := path.Base("/" + repoPath)
			if len(args) == 2 {
				dir = args[1]
			}

			sdk, err := newSDK(cfg, rootURL)
			if err != nil {
				return err
			}
			defer sdk.Close()

			wc, err := workingcopy.Checkout(cmd.Context(), sdk, args[0], dir, revNum)
			if err != nil {
				return err
			}
			defer wc.Close()

			root, err := wc.Node(cmd.Context(), "")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Checked out %s at revision %d\n", green.Render(wc.Root()), root.Revision)
			return nil
		},
	}

	cmd.Flags().StringVarP(&rev, "revision", "r", "", "revision to check out (default HEAD)")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var rev string

	cmd := &cobra.Command{
		Use:     "update [PATH]",
		Aliases: []string{"up"},
		Short:   "Bring a working copy path to a revision",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			revNum, err := parseRev(rev)
			if err != nil {
				return err
			}

			wc, rel, err := openWorkingCopy(argOrEmpty(args))
			if err != nil {
				return err
			}
			defer wc.Close()

			return withSDK(cfg, wc, func(sdk *reposdk.RepoSDK) error {
				at, err := wc.Update(cmd.Context(), sdk, rel, revNum)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s to revision %d\n", green.Render(wc.LocalPath(rel)), at)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&rev, "revision", "r", "", "revision to update to (default HEAD)")
	return cmd
}

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add PATH...",
		Short: "Schedule unversioned paths for addition",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachPath(args, func(wc *workingcopy.WorkingCopy, rel string) error {
				added, err := wc.Add(cmd.Context(), rel)
				if err != nil {
					return err
				}
				for _, p := range added {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", green.Render("A"), p)
				}
				return nil
			})
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm PATH...",
		Aliases: []string{"remove", "delete"},
		Short:   "Schedule versioned paths for deletion",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachPath(args, func(wc *workingcopy.WorkingCopy, rel string) error {
				removed, err := wc.Remove(cmd.Context(), rel)
				if err != nil {
					return err
				}
				for _, p := range removed {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", red.Render("D"), p)
				}
				return nil
			})
		},
	}
}

func newPropSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "propset NAME VALUE PATH",
		Aliases: []string{"ps"},
		Short:   "Set a property on a versioned path. An empty value deletes it.",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachPath(args[2:], func(wc *workingcopy.WorkingCopy, rel string) error {
				if err := wc.PropSet(cmd.Context(), rel, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "property '%s' set on '%s'\n", args[0], rel)
				return nil
			})
		},
	}
}

// eachPath opens the working copy of every path in turn
func eachPath(paths []string, fn func(wc *workingcopy.WorkingCopy, rel string) error) error {
	for _, p := range paths {
		wc, rel, err := openWorkingCopy(p)
		if err != nil {
			return err
		}
		err = fn(wc, rel)
		wc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
