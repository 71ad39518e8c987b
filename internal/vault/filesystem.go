package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docchat/internal/docchat"
)

const transcriptExt = ".md"

// FileSystemVault is a filesystem-based implementation of the Vault interface.
// It stores transcripts as Markdown files in a directory structure:
//
//	<root>/
//	  <ownerID>/
//	    <sessionID>.md
type FileSystemVault struct {
	name string
	root string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	// Create directory structure
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	return &FileSystemVault{
		name: name,
		root: root,
	}, nil
}

// ownerDir returns the directory holding an owner's transcripts.
// IDs are used as path elements, so separators are rejected.
func (v *FileSystemVault) ownerDir(ownerID string) (string, error) {
	if err := validateID(ownerID); err != nil {
		return "", err
	}
	return filepath.Join(v.root, ownerID), nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid id: %q", id)
	}
	return nil
}

// PutTranscript stores a transcript, replacing any previous export of the session.
func (v *FileSystemVault) PutTranscript(ownerID, sessionID string, r io.Reader, size int64) error {
	dir, err := v.ownerDir(ownerID)
	if err != nil {
		return err
	}
	if err := validateID(sessionID); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create owner directory: %w", err)
	}
	return v.writeFile(filepath.Join(dir, sessionID+transcriptExt), r, size)
}

// GetTranscript retrieves a transcript and writes it to w.
func (v *FileSystemVault) GetTranscript(ownerID, sessionID string, w io.Writer) error {
	dir, err := v.ownerDir(ownerID)
	if err != nil {
		return err
	}
	if err := validateID(sessionID); err != nil {
		return err
	}
	return v.readFile(filepath.Join(dir, sessionID+transcriptExt), w, fmt.Sprintf("transcript not found: %s", sessionID))
}

// ListTranscripts returns the exported session IDs for an owner, sorted.
func (v *FileSystemVault) ListTranscripts(ownerID string) ([]string, error) {
	dir, err := v.ownerDir(ownerID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("reading owner directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, transcriptExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, transcriptExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// ValidateSetup verifies that the vault directory is accessible.
func (v *FileSystemVault) ValidateSetup() error {
	// Check that root directory exists and is a directory
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	// Copy data to temp file
	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Verify size
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// readFile reads from the specified path and writes to w.
func (v *FileSystemVault) readFile(srcPath string, w io.Writer, notFoundMsg string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s", notFoundMsg)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	return nil
}

// Compile-time check that FileSystemVault implements docchat.Vault interface
var _ docchat.Vault = (*FileSystemVault)(nil)
