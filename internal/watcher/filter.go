package watcher

import (
	"path/filepath"
	"strings"
)

// MetadataDir is the hidden directory exempt from the hidden-entry rule.
const MetadataDir = ".myvc"

var textExtensions = map[string]bool{
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cc": true, ".hh": true,
	".py": true, ".js": true, ".ts": true, ".html": true, ".css": true, ".json": true,
	".txt": true, ".md": true, ".xml": true, ".yaml": true, ".yml": true, ".java": true,
	".go": true, ".rs": true, ".rb": true, ".php": true, ".sh": true, ".bash": true,
	".zsh": true, ".fish": true,
}

var tempSuffixes = []string{".tmp", ".swp", "~"}

// skipName reports whether a directory entry name is hidden or temporary.
func skipName(name string) bool {
	if strings.HasPrefix(name, ".") && name != MetadataDir {
		return true
	}
	for _, suffix := range tempSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// isTextName reports whether a file name has an allow-listed extension.
// extra extends the built-in list; entries include the leading dot.
func isTextName(name string, extra map[string]bool) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return textExtensions[ext] || extra[ext]
}

// inScope reports whether every component of a root-relative path passes
// the hidden and temporary name rules.
func inScope(rel string) bool {
	if rel == "." || rel == "" {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if skipName(part) {
			return false
		}
	}
	return true
}
