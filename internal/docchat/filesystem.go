package docchat

import (
	"io"
	"io/fs"
)

// FilesystemManager is the uploader's view of the local disk.
type FilesystemManager interface {
	// Resolve makes rawPath absolute and stats it. Symlinks and special
	// files are rejected.
	Resolve(rawPath string) (*Path, error)

	Open(path *Path) (io.ReadCloser, error)

	// Stat re-reads file info; staging compares it with path.Info() to
	// catch files modified while being hashed.
	Stat(path *Path) (fs.FileInfo, error)

	// FindFiles lists the regular files under a directory that a folder
	// upload would send, honouring ignore rules.
	FindFiles(path *Path, recursive bool) ([]*Path, error)

	// DetectMIME sniffs a file's content type.
	DetectMIME(path *Path) (string, error)
}
