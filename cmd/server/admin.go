package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/openmined/vcscompare/internal/repository"
	"github.com/openmined/vcscompare/internal/server/auth"
	"github.com/openmined/vcscompare/internal/utils"
	"github.com/spf13/cobra"
)

// openRepository opens the configured repository database for an admin command
func openRepository(cmd *cobra.Command) (*repository.Repository, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureParent(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return repository.Open(cfg.DBPath)
}

// commit runs ops as one revision and reports it
func commit(cmd *cobra.Command, ops ...repository.Op) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return err
	}
	defer repo.Close()
	return commitTo(cmd, repo, ops...)
}

func commitTo(cmd *cobra.Command, repo *repository.Repository, ops ...repository.Op) error {
	author, _ := cmd.Flags().GetString("author")
	message, _ := cmd.Flags().GetString("message")

	rev, err := repo.Commit(cmd.Context(), &repository.CommitRequest{
		Author:  author,
		Message: message,
		Ops:     ops,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Committed revision %d.\n", rev)
	return nil
}

func addCommitFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("message", "m", "", "commit message")
	cmd.Flags().String("author", "admin", "commit author")
}

func newImportCmd() *cobra.Command {
	var excludes []string

	cmd := &cobra.Command{
		Use:   "import DIR REPO_PATH",
		Short: "Commit the contents of a local directory below a repository path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range excludes {
				if !doublestar.ValidatePattern(p) {
					return fmt.Errorf("invalid exclude pattern %q", p)
				}
			}

			src, err := utils.ResolvePath(args[0])
			if err != nil {
				return err
			}
			if !utils.DirExists(src) {
				return fmt.Errorf("%s is not a directory", src)
			}
			dest := utils.NormPath(args[1])

			repo, err := openRepository(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			ops, size, err := importOps(cmd, repo, src, dest, excludes)
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				return errors.New("nothing to import")
			}

			slog.Info("import", "src", src, "dest", dest, "ops", len(ops), "size", humanize.Bytes(uint64(size)))
			return commitTo(cmd, repo, ops...)
		},
	}

	cmd.Flags().StringArrayVarP(&excludes, "exclude", "e", nil, "skip paths matching this glob (repeatable)")
	addCommitFlags(cmd)
	return cmd
}

// importOps walks src and returns the ops that create its tree below dest
func importOps(cmd *cobra.Command, repo *repository.Repository, src, dest string, excludes []string) ([]repository.Op, int64, error) {
	var ops []repository.Op
	var size int64

	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}

		if rel != "" && excluded(excludes, rel) {
			slog.Debug("import skip", "path", rel)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := path.Join(dest, rel)
		switch {
		case d.IsDir():
			if target == "" {
				return nil
			}
			_, err := repo.Stat(cmd.Context(), target, -1)
			if errors.Is(err, repository.ErrNodeNotFound) {
				ops = append(ops, repository.Op{Type: repository.OpMkdir, Path: target})
				return nil
			}
			return err
		case d.Type().IsRegular():
			content, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			size += int64(len(content))
			ops = append(ops, repository.Op{Type: repository.OpPut, Path: target, Content: content})
		}
		return nil
	})
	return ops, size, err
}

func excluded(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func newMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir REPO_PATH...",
		Short: "Create directories in the repository",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := make([]repository.Op, 0, len(args))
			for _, p := range args {
				ops = append(ops, repository.Op{Type: repository.OpMkdir, Path: p})
			}
			return commit(cmd, ops...)
		},
	}
	addCommitFlags(cmd)
	return cmd
}

// splitPeg splits path@rev. A missing rev copies from the youngest revision.
func splitPeg(s string) (string, int64, error) {
	i := strings.LastIndex(s, "@")
	if i < 0 {
		return s, -1, nil
	}
	var rev int64
	if _, err := fmt.Sscanf(strings.TrimPrefix(s[i+1:], "r"), "%d", &rev); err != nil || rev < 0 {
		return "", 0, fmt.Errorf("invalid revision in %q", s)
	}
	return s[:i], rev, nil
}

func newCopyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cp FROM[@REV] TO",
		Short: "Copy a repository path, for example to create a branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, rev, err := splitPeg(args[0])
			if err != nil {
				return err
			}
			return commit(cmd, repository.Op{Type: repository.OpCopy, Path: args[1], FromPath: from, FromRev: rev})
		},
	}
	addCommitFlags(cmd)
	return cmd
}

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm REPO_PATH...",
		Short: "Delete repository paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := make([]repository.Op, 0, len(args))
			for _, p := range args {
				ops = append(ops, repository.Op{Type: repository.OpDelete, Path: p})
			}
			return commit(cmd, ops...)
		},
	}
	addCommitFlags(cmd)
	return cmd
}

func newPropSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "propset NAME VALUE REPO_PATH",
		Short: "Set a property on a repository path",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commit(cmd, repository.Op{
				Type:  repository.OpPropSet,
				Path:  args[2],
				Props: map[string]string{args[0]: args[1]},
			})
		},
	}
	addCommitFlags(cmd)
	return cmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token SUBJECT",
		Short: "Issue an access token for the configured auth secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Auth.Validate(); err != nil {
				return err
			}

			token, err := auth.NewAuthService(&cfg.Auth).IssueToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	return cmd
}
