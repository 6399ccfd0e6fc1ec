package vc

import "io/fs"

// Path represents a validated filesystem path with cached metadata.
// Path objects are created by FilesystemManager.Resolve, which makes the path
// absolute and stats it.
type Path struct {
	absPath string
	isDir   bool
	info    fs.FileInfo
}

// NewPath creates a Path from its components.
// This is primarily for use by FilesystemManager implementations.
func NewPath(absPath string, isDir bool, info fs.FileInfo) *Path {
	return &Path{
		absPath: absPath,
		isDir:   isDir,
		info:    info,
	}
}

func (p *Path) String() string { return p.absPath }

func (p *Path) IsDir() bool { return p.isDir }

// Info returns the file info cached when the path was resolved.
func (p *Path) Info() fs.FileInfo { return p.info }
