package docchat

import (
	"io/fs"
	"path/filepath"
)

// Path is a local file or directory selected for upload. FilesystemManager
// implementations build it after checking the path exists, so the stat
// result taken at that moment travels with it.
type Path struct {
	abs   string
	isDir bool
	info  fs.FileInfo
}

// NewPath wraps an absolute path and its stat result.
func NewPath(abs string, isDir bool, info fs.FileInfo) *Path {
	return &Path{abs: abs, isDir: isDir, info: info}
}

func (p *Path) String() string { return p.abs }

// Name is the base name the backend indexes the file under.
func (p *Path) Name() string { return filepath.Base(p.abs) }

func (p *Path) IsDir() bool { return p.isDir }

// Info returns the stat result captured when the path was resolved.
func (p *Path) Info() fs.FileInfo { return p.info }
