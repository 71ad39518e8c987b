package vault

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"docchat/internal/docchat"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It stores all transcripts in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name        string
	transcripts map[string]map[string][]byte // ownerID -> sessionID -> transcript
	mu          sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:        name,
		transcripts: make(map[string]map[string][]byte),
	}
}

// PutTranscript stores a transcript, replacing any previous export of the session.
func (m *MemoryVault) PutTranscript(ownerID, sessionID string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	owned, ok := m.transcripts[ownerID]
	if !ok {
		owned = make(map[string][]byte)
		m.transcripts[ownerID] = owned
	}
	owned[sessionID] = data
	return nil
}

// GetTranscript retrieves a transcript and writes it to w.
func (m *MemoryVault) GetTranscript(ownerID, sessionID string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.transcripts[ownerID][sessionID]
	if !ok {
		return fmt.Errorf("transcript not found: %s", sessionID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}

	return nil
}

// ListTranscripts returns the exported session IDs for an owner, sorted.
func (m *MemoryVault) ListTranscripts(ownerID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.transcripts[ownerID]))
	for id := range m.transcripts[ownerID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements docchat.Vault interface
var _ docchat.Vault = (*MemoryVault)(nil)
