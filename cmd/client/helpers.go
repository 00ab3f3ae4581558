package main

import (
	"os"

	"github.com/openmined/vcscompare/internal/reposdk"
	"github.com/openmined/vcscompare/internal/utils"
	"github.com/openmined/vcscompare/internal/workingcopy"
)

func newSDK(cfg *Config, rootURL string) (*reposdk.RepoSDK, error) {
	return reposdk.New(&reposdk.Config{
		BaseURL:     rootURL,
		AccessToken: cfg.Token,
	})
}

// openWorkingCopy opens the working copy containing target and returns it
// with the path of target relative to its root
func openWorkingCopy(target string) (*workingcopy.WorkingCopy, string, error) {
	abs, err := resolveTarget(target)
	if err != nil {
		return nil, "", err
	}
	wc, err := workingcopy.Open(abs)
	if err != nil {
		return nil, "", err
	}
	rel, err := wc.RelPath(abs)
	if err != nil {
		wc.Close()
		return nil, "", err
	}
	return wc, rel, nil
}

func resolveTarget(target string) (string, error) {
	if target == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return wd, nil
	}
	return utils.ResolvePath(target)
}

func argOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// withSDK runs fn with an sdk for the repository the working copy was
// checked out from
func withSDK(cfg *Config, wc *workingcopy.WorkingCopy, fn func(sdk *reposdk.RepoSDK) error) error {
	sdk, err := newSDK(cfg, wc.Info().RootURL)
	if err != nil {
		return err
	}
	defer sdk.Close()
	return fn(sdk)
}
