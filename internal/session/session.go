// Package session persists the signed-in identity session between runs.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"docchat/internal/config"
	"docchat/internal/docchat"
	"docchat/internal/model"
)

// FileStore keeps the session as a sealed JSON file. The refresh token is a
// long-lived credential, so it never touches disk in plaintext.
type FileStore struct {
	path   string
	sealer docchat.Sealer
	mu     sync.Mutex
}

var _ docchat.SessionStore = (*FileStore)(nil)

// NewFileStore creates a FileStore at path, sealing with sealer.
func NewFileStore(path string, sealer docchat.Sealer) *FileStore {
	return &FileStore{path: path, sealer: sealer}
}

func (s *FileStore) Load() (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening session file: %w", err)
	}
	defer f.Close()

	var plain bytes.Buffer
	if err := s.sealer.Open(f, &plain); err != nil {
		return nil, fmt.Errorf("unsealing session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(plain.Bytes(), &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &sess, nil
}

func (s *FileStore) Save(sess *model.Session) error {
	if sess == nil {
		return s.Clear()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sealer.Setup(); err != nil {
		return fmt.Errorf("setting up session key: %w", err)
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	// Write to a temp file and rename so a crash never leaves a torn session.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := s.sealer.Seal(bytes.NewReader(data), tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("sealing session: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting session file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp session file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// MemoryStore keeps the session in process only.
type MemoryStore struct {
	mu      sync.Mutex
	session *model.Session
}

var _ docchat.SessionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, nil
	}
	cp := *s.session
	return &cp, nil
}

func (s *MemoryStore) Save(sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess == nil {
		s.session = nil
		return nil
	}
	cp := *sess
	s.session = &cp
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

// NewSessionStoreFromConfig creates a SessionStore from configuration.
func NewSessionStoreFromConfig(cfg config.SessionConfig, sealer docchat.Sealer) (docchat.SessionStore, error) {
	switch cfg.Type {
	case "file", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file session store requires path to be set")
		}
		if sealer == nil {
			return nil, fmt.Errorf("file session store requires a sealer")
		}
		return NewFileStore(cfg.Path, sealer), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session type: %q", cfg.Type)
	}
}
