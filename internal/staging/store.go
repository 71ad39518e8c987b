package staging

import (
	"io"

	"docchat/internal/docchat"
)

// stagingStore abstracts the storage mechanics for a staging area.
// Implementations handle content storage and queue management.
// Concurrency is managed by the caller (stagingArea.mu), so stores
// do not need to be safe for concurrent use.
type stagingStore interface {
	// StoreContent reads from r and stores it under checksum. The content's
	// SHA-256 must match checksum. Stores that already hold the checksum
	// drain r and keep the existing copy. Returns the content size.
	StoreContent(checksum string, r io.Reader) (int64, error)

	// HasContent reports whether content with the checksum is stored.
	HasContent(checksum string) bool

	// RemoveContent removes stored content by checksum (best-effort).
	RemoveContent(checksum string)

	// OpenContent returns a reader for stored content by checksum.
	OpenContent(checksum string) (io.ReadCloser, error)

	// ContentSize returns total bytes of all stored content.
	ContentSize() (int64, error)

	// Append adds a file to the end of the queue.
	Append(file docchat.StagedFile) error

	// List returns the queue in order.
	List() ([]docchat.StagedFile, error)

	// Remove deletes the queued file with the given name.
	// Returns the removed file (nil if absent) and the number of remaining
	// queued files referencing the same checksum, so the caller can decide
	// whether to call RemoveContent.
	Remove(name string) (removed *docchat.StagedFile, checksumRefsRemaining int, err error)

	// Reset empties the queue and removes all content.
	Reset() error
}
