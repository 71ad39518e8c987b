package staging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"docchat/internal/docchat"
)

// fileSystemStore keeps staged content on disk so a large batch does not
// sit in memory.
//
// Directory structure:
//
//	<staging_dir>/
//	  queue.json    (ordered list of staged files)
//	  files/
//	    <checksum>  (staged content)
type fileSystemStore struct {
	queuePath string
	filesDir  string
}

// NewFileSystemStagingArea creates a filesystem-based staging area.
// maxSize is the maximum total size in bytes; must be positive.
func NewFileSystemStagingArea(fsmgr docchat.FilesystemManager, stagingDir string, maxSize int64) (docchat.StagingArea, error) {
	filesDir := filepath.Join(stagingDir, "files")

	// Create directory structure
	if err := os.MkdirAll(filesDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	return &stagingArea{
		fsmgr: fsmgr,
		store: &fileSystemStore{
			queuePath: filepath.Join(stagingDir, "queue.json"),
			filesDir:  filesDir,
		},
		maxSize: maxSize,
	}, nil
}

func (f *fileSystemStore) contentPath(checksum string) string {
	return filepath.Join(f.filesDir, checksum)
}

func (f *fileSystemStore) StoreContent(checksum string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(f.filesDir, ".staging-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := verifyingCopy(tmp, r, checksum)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}

	if f.HasContent(checksum) {
		return n, nil
	}
	if err := os.Rename(tmpPath, f.contentPath(checksum)); err != nil {
		return 0, fmt.Errorf("moving staged content: %w", err)
	}
	return n, nil
}

func (f *fileSystemStore) HasContent(checksum string) bool {
	_, err := os.Stat(f.contentPath(checksum))
	return err == nil
}

func (f *fileSystemStore) RemoveContent(checksum string) {
	os.Remove(f.contentPath(checksum))
}

func (f *fileSystemStore) OpenContent(checksum string) (io.ReadCloser, error) {
	file, err := os.Open(f.contentPath(checksum))
	if err != nil {
		return nil, fmt.Errorf("content not found: %s", checksum)
	}
	return file, nil
}

func (f *fileSystemStore) ContentSize() (int64, error) {
	entries, err := os.ReadDir(f.filesDir)
	if err != nil {
		return 0, fmt.Errorf("reading staging directory: %w", err)
	}
	var total int64
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name()[0] == '.' {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

func (f *fileSystemStore) readQueue() ([]docchat.StagedFile, error) {
	data, err := os.ReadFile(f.queuePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading queue: %w", err)
	}
	var queue []docchat.StagedFile
	if err := json.Unmarshal(data, &queue); err != nil {
		return nil, fmt.Errorf("parsing queue: %w", err)
	}
	return queue, nil
}

func (f *fileSystemStore) writeQueue(queue []docchat.StagedFile) error {
	data, err := json.MarshalIndent(queue, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding queue: %w", err)
	}
	tmp := f.queuePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing queue: %w", err)
	}
	if err := os.Rename(tmp, f.queuePath); err != nil {
		return fmt.Errorf("replacing queue: %w", err)
	}
	return nil
}

func (f *fileSystemStore) Append(file docchat.StagedFile) error {
	queue, err := f.readQueue()
	if err != nil {
		return err
	}
	return f.writeQueue(append(queue, file))
}

func (f *fileSystemStore) List() ([]docchat.StagedFile, error) {
	return f.readQueue()
}

func (f *fileSystemStore) Remove(name string) (*docchat.StagedFile, int, error) {
	queue, err := f.readQueue()
	if err != nil {
		return nil, 0, err
	}
	var removed *docchat.StagedFile
	kept := make([]docchat.StagedFile, 0, len(queue))
	for _, q := range queue {
		if removed == nil && q.Name == name {
			q := q
			removed = &q
			continue
		}
		kept = append(kept, q)
	}
	if removed == nil {
		return nil, 0, nil
	}
	if err := f.writeQueue(kept); err != nil {
		return nil, 0, err
	}
	return removed, countRefs(kept, removed.Checksum), nil
}

func (f *fileSystemStore) Reset() error {
	if err := os.RemoveAll(f.filesDir); err != nil {
		return fmt.Errorf("removing staged content: %w", err)
	}
	if err := os.Remove(f.queuePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing queue: %w", err)
	}
	if err := os.MkdirAll(f.filesDir, 0700); err != nil {
		return fmt.Errorf("recreating staging directory: %w", err)
	}
	return nil
}
