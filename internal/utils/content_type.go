package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

// textExts are served as plain text regardless of the system mime table
var textExts = map[string]bool{
	".md":   true,
	".txt":  true,
	".yaml": true,
	".yml":  true,
	".toml": true,
	".go":   true,
	".mod":  true,
	".sum":  true,
}

// DetectContentType guesses the content type of a versioned file from its path
func DetectContentType(p string) string {
	ext := strings.ToLower(filepath.Ext(p))
	if textExts[ext] {
		return "text/plain; charset=utf-8"
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}
