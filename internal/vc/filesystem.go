package vc

import "io/fs"

// FilesystemManager abstracts file access so the versioning layer and the
// Service can be tested without touching the real filesystem.
type FilesystemManager interface {
	// Resolve makes rawPath absolute, stats it, and rejects anything that is
	// not a regular file or directory.
	Resolve(rawPath string) (*Path, error)

	// Stat returns fresh file info for path.
	Stat(path string) (fs.FileInfo, error)

	// ReadFile returns the full content of path.
	ReadFile(path string) ([]byte, error)

	// WriteFile atomically replaces path with data.
	WriteFile(path string, data []byte) error

	// IsIgnored reports whether relPath (relative to the project root)
	// matches a configured ignore pattern.
	IsIgnored(relPath string) bool
}
