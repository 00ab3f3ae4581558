package workingcopy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

var defaultIgnoreLines = []string{
	MetaDir + "/",
	"*.swp",
	"*.swo",
	"*~",
	".DS_Store",
	"Thumbs.db",
}

// ignoreList decides which unversioned paths status skips. Versioned paths are
// never ignored.
type ignoreList struct {
	ignore *gitignore.GitIgnore
}

func newIgnoreList(root string) (*ignoreList, error) {
	lines := append([]string{}, defaultIgnoreLines...)

	data, err := os.ReadFile(filepath.Join(root, IgnoreFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", IgnoreFile, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}

	return &ignoreList{ignore: gitignore.CompileIgnoreLines(lines...)}, nil
}

// ShouldIgnore matches a slash separated path relative to the root
func (l *ignoreList) ShouldIgnore(rel string, isDir bool) bool {
	if isMetaPath(rel) {
		return true
	}
	if isDir && l.ignore.MatchesPath(rel+"/") {
		return true
	}
	return l.ignore.MatchesPath(rel)
}
