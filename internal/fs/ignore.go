package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// IgnoreFileName is the per-project ignore file read from the project root.
const IgnoreFileName = ".myvcignore"

// defaultIgnorePatterns are always applied regardless of config or .myvcignore.
// The metadata directory is excluded so the store's own writes never reach
// the watch table.
var defaultIgnorePatterns = []string{".myvc/**"}

// ignorePattern is a compiled ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	glob      glob.Glob
	matchPath bool // true = match against relative path; false = match against basename only
}

// IgnoreMatcher checks relative paths against a set of glob patterns.
// Patterns without '/' match against the basename only. Patterns with '/'
// match against the full relative path, and "**" crosses directories.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings plus the
// default patterns. Blank lines, lines starting with '#', and patterns that
// fail to compile are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range append(append([]string{}, defaultIgnorePatterns...), rawPatterns...) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		g, err := glob.Compile(raw, '/')
		if err != nil {
			continue
		}
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			glob:      g,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the given relative path should be ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		if p.matchPath {
			if p.glob.Match(normalized) {
				return true
			}
		} else if p.glob.Match(basename) {
			return true
		}
	}
	return false
}

// MatchDir reports whether everything below the relative directory path is
// ignored, so a walk can skip it entirely.
func (m *IgnoreMatcher) MatchDir(relativePath string) bool {
	normalized := filepath.ToSlash(relativePath)
	return m.Match(relativePath) || m.Match(normalized+"/")
}

// Patterns returns the raw patterns in effect, defaults first.
func (m *IgnoreMatcher) Patterns() []string {
	out := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		out[i] = p.pattern
	}
	return out
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}

// LoadIgnoreMatcher combines configured patterns with the project's ignore file.
func LoadIgnoreMatcher(root string, configured []string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	return NewIgnoreMatcher(append(append([]string{}, configured...), fromFile...)), nil
}
