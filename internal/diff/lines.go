package diff

import "strings"

// SplitLines splits content on '\n'. Empty content has zero lines; otherwise
// content with n separators has n+1 lines, so a trailing '\n' yields a final
// empty line and the terminator is diffed like any other line.
func SplitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	return strings.Split(string(content), "\n")
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n"))
}
