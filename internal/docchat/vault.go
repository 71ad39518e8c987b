package docchat

import "io"

// Vault stores exported chat transcripts.
// All operations use io.Reader/io.Writer for streaming.
type Vault interface {
	// PutTranscript stores a transcript for an owner's chat session.
	// Storing the same session again replaces the previous export.
	// size is the number of bytes that will be read from r.
	PutTranscript(ownerID, sessionID string, r io.Reader, size int64) error

	// GetTranscript retrieves a transcript and writes it to w.
	GetTranscript(ownerID, sessionID string, w io.Writer) error

	// ListTranscripts returns the session IDs exported for an owner, sorted.
	ListTranscripts(ownerID string) ([]string, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
