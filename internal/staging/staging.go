// Package staging implements the upload staging queue.
package staging

import (
	"fmt"
	"io"
	"sync"

	"docchat/internal/docchat"
)

// stagingArea implements docchat.StagingArea using a pluggable stagingStore
// for the storage mechanics. All shared algorithm logic lives here.
type stagingArea struct {
	fsmgr   docchat.FilesystemManager
	store   stagingStore
	maxSize int64
	mu      sync.Mutex
}

var _ docchat.StagingArea = (*stagingArea)(nil)

// Stage captures a file for upload.
func (s *stagingArea) Stage(path *docchat.Path) (*docchat.StagedFile, error) {
	info1 := path.Info()
	if path.IsDir() {
		return nil, fmt.Errorf("cannot stage directory: %s", path)
	}

	// 1. Sniff the type and hash the content outside the lock
	mimeType, err := s.fsmgr.DetectMIME(path)
	if err != nil {
		return nil, fmt.Errorf("detecting mime type: %w", err)
	}

	reader, err := s.fsmgr.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	checksum, size, err := checksumReader(reader)
	reader.Close()
	if err != nil {
		return nil, fmt.Errorf("hashing file: %w", err)
	}

	file := docchat.StagedFile{
		Name:     path.Name(),
		Path:     path.String(),
		Checksum: checksum,
		Size:     size,
		MIMEType: mimeType,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 2. Reject names already in the batch
	queued, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("reading queue: %w", err)
	}
	for _, q := range queued {
		if q.Name == file.Name {
			return nil, fmt.Errorf("%s: %w", file.Name, docchat.ErrDuplicateFile)
		}
	}

	// 3. Check size limit; shared content is only counted once
	existed := s.store.HasContent(checksum)
	if !existed {
		contentSize, err := s.store.ContentSize()
		if err != nil {
			return nil, fmt.Errorf("getting current size: %w", err)
		}
		if contentSize+size > s.maxSize {
			return nil, fmt.Errorf("staging area full: would exceed max size of %d bytes", s.maxSize)
		}
	}

	// 4. Store content, verifying it still matches the hash
	reader, err = s.fsmgr.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	_, err = s.store.StoreContent(checksum, reader)
	reader.Close()
	if err != nil {
		return nil, fmt.Errorf("storing content: %w", err)
	}

	// 5. Re-stat to validate file hasn't changed
	info2, err := s.fsmgr.Stat(path)
	if err == nil {
		err = validateStatUnchanged(info1, info2)
	}
	if err != nil {
		if !existed {
			s.store.RemoveContent(checksum)
		}
		return nil, fmt.Errorf("file changed during staging: %w", err)
	}

	// 6. Add to queue
	if err := s.store.Append(file); err != nil {
		if !existed {
			s.store.RemoveContent(checksum)
		}
		return nil, fmt.Errorf("adding to queue: %w", err)
	}

	return &file, nil
}

func (s *stagingArea) Files() ([]docchat.StagedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.List()
}

func (s *stagingArea) OpenContent(file docchat.StagedFile) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.OpenContent(file.Checksum)
}

func (s *stagingArea) Unstage(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(name)
}

// remove dequeues a file and drops its content when nothing else references it.
// Caller holds s.mu.
func (s *stagingArea) remove(name string) error {
	removed, remaining, err := s.store.Remove(name)
	if err != nil {
		return err
	}
	if removed != nil && remaining == 0 {
		s.store.RemoveContent(removed.Checksum)
	}
	return nil
}

// ProcessNext dequeues the first staged file and calls fn with its content.
// The file is removed even if fn fails, so a failed upload never blocks
// the rest of the batch.
func (s *stagingArea) ProcessNext(fn docchat.UploadFunc) error {
	s.mu.Lock()
	queued, err := s.store.List()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if len(queued) == 0 {
		s.mu.Unlock()
		return nil
	}

	file := queued[0]
	reader, err := s.store.OpenContent(file.Checksum)
	s.mu.Unlock()
	if err != nil {
		s.mu.Lock()
		s.remove(file.Name)
		s.mu.Unlock()
		return fmt.Errorf("content not found: %s", file.Checksum)
	}

	// Call the upload function outside the lock
	fnErr := fn(reader, file)
	reader.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.remove(file.Name); err != nil {
		return fmt.Errorf("dequeueing %s: %w", file.Name, err)
	}
	return fnErr
}

// Count returns the number of staged files in the queue.
func (s *stagingArea) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queued, err := s.store.List()
	if err != nil {
		return 0, err
	}
	return len(queued), nil
}

// Size returns the total size of staged content in bytes.
func (s *stagingArea) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ContentSize()
}

func (s *stagingArea) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Reset()
}
