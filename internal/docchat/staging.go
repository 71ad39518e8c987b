package docchat

import "io"

// StagedFile is a file queued for upload. Content is captured at staging
// time, so later edits to the source do not affect what is uploaded.
type StagedFile struct {
	Name     string `json:"name"` // base name; the backend keys documents by it
	Path     string `json:"path"` // absolute source path
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mime_type"`
}

// UploadFunc is called by ProcessNext with the staged content of one file.
type UploadFunc func(content io.Reader, file StagedFile) error

// StagingArea holds a batch of files between selection and upload.
// Implementations are safe for concurrent use.
type StagingArea interface {
	// Stage captures a file's content and queues it. Returns ErrDuplicateFile
	// when a file with the same name is already queued.
	Stage(path *Path) (*StagedFile, error)

	// Files returns the queued files in staging order.
	Files() ([]StagedFile, error)

	// OpenContent returns the staged content of a queued file.
	OpenContent(file StagedFile) (io.ReadCloser, error)

	// Unstage removes a queued file by name. Unknown names are ignored.
	Unstage(name string) error

	// ProcessNext removes the first queued file and calls fn with its content.
	// The file is dequeued whether or not fn succeeds; fn's error is returned.
	// Returns nil without calling fn when the queue is empty.
	ProcessNext(fn UploadFunc) error

	// Count returns the number of queued files.
	Count() (int, error)

	// Size returns the total size of staged content in bytes.
	Size() (int64, error)

	// Clear empties the queue and releases all staged content.
	Clear() error
}
