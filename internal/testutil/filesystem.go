package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"docchat/internal/docchat"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
// Safe for concurrent use.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

// AddFile adds a file to the mock filesystem. Parent directories are created.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.files[path] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     now,
	}
	for dir := filepath.Dir(path); dir != "/" && dir != "."; dir = filepath.Dir(dir) {
		if _, ok := m.files[dir]; !ok {
			m.files[dir] = &MockFile{Permissions: 0755, ModTime: now, IsDirectory: true}
		}
	}
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{
		Permissions: 0755,
		ModTime:     time.Now(),
		IsDirectory: true,
	}
}

func (m *MockFilesystemManager) lookup(absPath string) (*MockFile, fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[absPath]
	if !ok {
		return nil, nil, fmt.Errorf("file not found: %s", absPath)
	}
	return file, &mockFileInfo{
		name:    filepath.Base(absPath),
		size:    int64(len(file.Content)),
		mode:    file.Permissions,
		modTime: file.ModTime,
		isDir:   file.IsDirectory,
	}, nil
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*docchat.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}
	file, info, err := m.lookup(absPath)
	if err != nil {
		return nil, err
	}
	return docchat.NewPath(absPath, file.IsDirectory, info), nil
}

func (m *MockFilesystemManager) Open(path *docchat.Path) (io.ReadCloser, error) {
	file, _, err := m.lookup(path.String())
	if err != nil {
		return nil, err
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path.String())
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) Stat(path *docchat.Path) (fs.FileInfo, error) {
	_, info, err := m.lookup(path.String())
	return info, err
}

// FindFiles returns the regular files under path, sorted by path.
// Files whose base name starts with "." are treated as ignored.
func (m *MockFilesystemManager) FindFiles(path *docchat.Path, recursive bool) ([]*docchat.Path, error) {
	if !path.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", path.String())
	}
	prefix := path.String() + "/"

	m.mu.Lock()
	var names []string
	for name, file := range m.files {
		if file.IsDirectory || !strings.HasPrefix(name, prefix) {
			continue
		}
		rel := strings.TrimPrefix(name, prefix)
		if !recursive && strings.Contains(rel, "/") {
			continue
		}
		if strings.HasPrefix(filepath.Base(name), ".") {
			continue
		}
		names = append(names, name)
	}
	m.mu.Unlock()

	sort.Strings(names)
	paths := make([]*docchat.Path, 0, len(names))
	for _, name := range names {
		p, err := m.Resolve(name)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// DetectMIME sniffs content with net/http's detector.
func (m *MockFilesystemManager) DetectMIME(path *docchat.Path) (string, error) {
	file, _, err := m.lookup(path.String())
	if err != nil {
		return "", err
	}
	return http.DetectContentType(file.Content), nil
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ docchat.FilesystemManager = (*MockFilesystemManager)(nil)
