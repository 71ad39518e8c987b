package staging

import (
	"bytes"
	"fmt"
	"io"

	"docchat/internal/docchat"
)

// memoryStore holds staged content and the queue in memory.
type memoryStore struct {
	content map[string][]byte
	queue   []docchat.StagedFile
}

// NewMemoryStagingArea creates a staging area that keeps everything in memory.
// maxSize is the maximum total size in bytes; must be positive.
func NewMemoryStagingArea(fsmgr docchat.FilesystemManager, maxSize int64) docchat.StagingArea {
	return &stagingArea{
		fsmgr:   fsmgr,
		store:   &memoryStore{content: make(map[string][]byte)},
		maxSize: maxSize,
	}
}

func (m *memoryStore) StoreContent(checksum string, r io.Reader) (int64, error) {
	var buf bytes.Buffer
	n, err := verifyingCopy(&buf, r, checksum)
	if err != nil {
		return 0, err
	}
	if _, ok := m.content[checksum]; !ok {
		m.content[checksum] = buf.Bytes()
	}
	return n, nil
}

func (m *memoryStore) HasContent(checksum string) bool {
	_, ok := m.content[checksum]
	return ok
}

func (m *memoryStore) RemoveContent(checksum string) {
	delete(m.content, checksum)
}

func (m *memoryStore) OpenContent(checksum string) (io.ReadCloser, error) {
	data, ok := m.content[checksum]
	if !ok {
		return nil, fmt.Errorf("content not found: %s", checksum)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) ContentSize() (int64, error) {
	var total int64
	for _, data := range m.content {
		total += int64(len(data))
	}
	return total, nil
}

func (m *memoryStore) Append(file docchat.StagedFile) error {
	m.queue = append(m.queue, file)
	return nil
}

func (m *memoryStore) List() ([]docchat.StagedFile, error) {
	out := make([]docchat.StagedFile, len(m.queue))
	copy(out, m.queue)
	return out, nil
}

func (m *memoryStore) Remove(name string) (*docchat.StagedFile, int, error) {
	var removed *docchat.StagedFile
	kept := m.queue[:0]
	for _, f := range m.queue {
		if removed == nil && f.Name == name {
			f := f
			removed = &f
			continue
		}
		kept = append(kept, f)
	}
	m.queue = kept
	if removed == nil {
		return nil, 0, nil
	}
	return removed, countRefs(m.queue, removed.Checksum), nil
}

func (m *memoryStore) Reset() error {
	m.queue = nil
	m.content = make(map[string][]byte)
	return nil
}

func countRefs(queue []docchat.StagedFile, checksum string) int {
	n := 0
	for _, f := range queue {
		if f.Checksum == checksum {
			n++
		}
	}
	return n
}
