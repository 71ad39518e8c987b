package staging

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"docchat/internal/docchat"
)

// mockFSMgr is a minimal filesystem mock for staging tests.
type mockFSMgr struct {
	mu    sync.Mutex
	files map[string]*mockEntry
}

type mockEntry struct {
	content []byte
	mode    fs.FileMode
	modTime time.Time
}

func newMockFSMgr() *mockFSMgr {
	return &mockFSMgr{files: make(map[string]*mockEntry)}
}

func (m *mockFSMgr) addFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &mockEntry{content: content, mode: 0644, modTime: time.Now()}
}

func (m *mockFSMgr) entry(path string) (*mockEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("not found: %s", path)
	}
	return e, nil
}

func (m *mockFSMgr) Resolve(rawPath string) (*docchat.Path, error) {
	absPath, _ := filepath.Abs(rawPath)
	e, err := m.entry(absPath)
	if err != nil {
		return nil, err
	}
	info := &mockFileInfo{name: filepath.Base(absPath), entry: e}
	return docchat.NewPath(absPath, false, info), nil
}

func (m *mockFSMgr) Open(path *docchat.Path) (io.ReadCloser, error) {
	e, err := m.entry(path.String())
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(e.content)), nil
}

func (m *mockFSMgr) Stat(path *docchat.Path) (fs.FileInfo, error) {
	e, err := m.entry(path.String())
	if err != nil {
		return nil, err
	}
	return &mockFileInfo{name: filepath.Base(path.String()), entry: e}, nil
}

func (m *mockFSMgr) FindFiles(path *docchat.Path, recursive bool) ([]*docchat.Path, error) {
	return nil, nil
}

func (m *mockFSMgr) DetectMIME(path *docchat.Path) (string, error) {
	return "text/plain; charset=utf-8", nil
}

type mockFileInfo struct {
	name  string
	entry *mockEntry
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return int64(len(m.entry.content)) }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.entry.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.entry.modTime }
func (m *mockFileInfo) IsDir() bool        { return false }
func (m *mockFileInfo) Sys() any           { return m.entry }

var _ docchat.FilesystemManager = (*mockFSMgr)(nil)

// helpers

func newTestSA(t *testing.T) (docchat.StagingArea, *mockFSMgr) {
	t.Helper()
	fsmgr := newMockFSMgr()
	return NewMemoryStagingArea(fsmgr, 10*1024*1024), fsmgr
}

func stageFile(t *testing.T, sa docchat.StagingArea, fsmgr *mockFSMgr, fullPath string, content []byte) *docchat.StagedFile {
	t.Helper()
	fsmgr.addFile(fullPath, content)
	path, err := fsmgr.Resolve(fullPath)
	if err != nil {
		t.Fatalf("resolve %s: %v", fullPath, err)
	}
	file, err := sa.Stage(path)
	if err != nil {
		t.Fatalf("stage %s: %v", fullPath, err)
	}
	return file
}

// Tests

func TestStagingArea_Stage(t *testing.T) {
	t.Run("stages a file and increments count", func(t *testing.T) {
		sa, fsmgr := newTestSA(t)
		file := stageFile(t, sa, fsmgr, "/home/user/docs/file.txt", []byte("hello"))

		if file.Name != "file.txt" {
			t.Errorf("Name = %q, want %q", file.Name, "file.txt")
		}
		if file.Checksum == "" {
			t.Error("Checksum is empty")
		}
		if file.MIMEType != "text/plain; charset=utf-8" {
			t.Errorf("MIMEType = %q", file.MIMEType)
		}

		count, err := sa.Count()
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if count != 1 {
			t.Errorf("Count() = %d, want 1", count)
		}
	})

	t.Run("size reflects staged content", func(t *testing.T) {
		sa, fsmgr := newTestSA(t)
		stageFile(t, sa, fsmgr, "/home/user/docs/file.txt", []byte("hello"))

		size, err := sa.Size()
		if err != nil {
			t.Fatalf("Size() error = %v", err)
		}
		if size != 5 {
			t.Errorf("Size() = %d, want 5", size)
		}
	})

	t.Run("deduplicates identical content", func(t *testing.T) {
		sa, fsmgr := newTestSA(t)
		content := []byte("same content")
		stageFile(t, sa, fsmgr, "/home/user/docs/a.txt", content)
		stageFile(t, sa, fsmgr, "/home/user/docs/b.txt", content)

		count, _ := sa.Count()
		if count != 2 {
			t.Errorf("Count() = %d, want 2", count)
		}

		size, _ := sa.Size()
		if size != int64(len(content)) {
			t.Errorf("Size() = %d, want %d (deduped)", size, len(content))
		}
	})

	t.Run("rejects duplicate name", func(t *testing.T) {
		sa, fsmgr := newTestSA(t)
		stageFile(t, sa, fsmgr, "/home/user/docs/report.pdf", []byte("one"))

		fsmgr.addFile("/home/user/other/report.pdf", []byte("two"))
		path, _ := fsmgr.Resolve("/home/user/other/report.pdf")
		_, err := sa.Stage(path)
		if !errors.Is(err, docchat.ErrDuplicateFile) {
			t.Errorf("Stage() error = %v, want ErrDuplicateFile", err)
		}
	})
}

func TestStagingArea_Files(t *testing.T) {
	sa, fsmgr := newTestSA(t)
	stageFile(t, sa, fsmgr, "/docs/b.txt", []byte("b"))
	stageFile(t, sa, fsmgr, "/docs/a.txt", []byte("a"))

	files, err := sa.Files()
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	if len(files) != 2 || files[0].Name != "b.txt" || files[1].Name != "a.txt" {
		t.Fatalf("Files() = %+v, want staging order", files)
	}

	rc, err := sa.OpenContent(files[1])
	if err != nil {
		t.Fatalf("OpenContent() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "a" {
		t.Errorf("content = %q, want %q", data, "a")
	}
}

func TestStagingArea_Unstage(t *testing.T) {
	t.Run("removes file and its content", func(t *testing.T) {
		sa, fsmgr := newTestSA(t)
		stageFile(t, sa, fsmgr, "/docs/a.txt", []byte("hello"))

		if err := sa.Unstage("a.txt"); err != nil {
			t.Fatalf("Unstage() error = %v", err)
		}
		count, _ := sa.Count()
		size, _ := sa.Size()
		if count != 0 || size != 0 {
			t.Errorf("Count() = %d, Size() = %d, want 0, 0", count, size)
		}
	})

	t.Run("keeps content shared by another file", func(t *testing.T) {
		sa, fsmgr := newTestSA(t)
		stageFile(t, sa, fsmgr, "/docs/a.txt", []byte("shared"))
		stageFile(t, sa, fsmgr, "/docs/b.txt", []byte("shared"))

		if err := sa.Unstage("a.txt"); err != nil {
			t.Fatalf("Unstage() error = %v", err)
		}
		size, _ := sa.Size()
		if size != 6 {
			t.Errorf("Size() = %d, want 6", size)
		}
	})

	t.Run("unknown name is ignored", func(t *testing.T) {
		sa, _ := newTestSA(t)
		if err := sa.Unstage("missing.txt"); err != nil {
			t.Errorf("Unstage() error = %v", err)
		}
	})
}

func TestStagingArea_ProcessNext(t *testing.T) {
	t.Run("processes and removes on success", func(t *testing.T) {
		sa, fsmgr := newTestSA(t)
		stageFile(t, sa, fsmgr, "/docs/file.txt", []byte("hello"))

		var gotName, gotContent string
		err := sa.ProcessNext(func(content io.Reader, file docchat.StagedFile) error {
			gotName = file.Name
			data, _ := io.ReadAll(content)
			gotContent = string(data)
			return nil
		})
		if err != nil {
			t.Fatalf("ProcessNext() error = %v", err)
		}
		if gotName != "file.txt" || gotContent != "hello" {
			t.Errorf("got (%q, %q), want (%q, %q)", gotName, gotContent, "file.txt", "hello")
		}

		count, _ := sa.Count()
		if count != 0 {
			t.Errorf("Count() after process = %d, want 0", count)
		}
	})

	t.Run("dequeues on callback error", func(t *testing.T) {
		sa, fsmgr := newTestSA(t)
		stageFile(t, sa, fsmgr, "/docs/file.txt", []byte("hello"))
		stageFile(t, sa, fsmgr, "/docs/next.txt", []byte("world"))

		err := sa.ProcessNext(func(content io.Reader, file docchat.StagedFile) error {
			return fmt.Errorf("simulated failure")
		})
		if err == nil || err.Error() != "simulated failure" {
			t.Fatalf("ProcessNext() error = %v, want simulated failure", err)
		}

		files, _ := sa.Files()
		if len(files) != 1 || files[0].Name != "next.txt" {
			t.Errorf("Files() after failed process = %+v, want [next.txt]", files)
		}
	})

	t.Run("empty queue returns no error", func(t *testing.T) {
		sa, _ := newTestSA(t)

		err := sa.ProcessNext(func(content io.Reader, file docchat.StagedFile) error {
			t.Fatal("callback should not be called on empty queue")
			return nil
		})
		if err != nil {
			t.Fatalf("ProcessNext() error = %v", err)
		}
	})
}

func TestStagingArea_SizeLimit(t *testing.T) {
	fsmgr := newMockFSMgr()
	sa := NewMemoryStagingArea(fsmgr, 10) // 10 bytes max

	// Stage a small file that fits
	stageFile(t, sa, fsmgr, "/docs/small.txt", []byte("hi"))

	// Stage a file that would exceed the limit
	fsmgr.addFile("/docs/big.txt", []byte("this is way too big"))
	path, _ := fsmgr.Resolve("/docs/big.txt")
	_, err := sa.Stage(path)
	if err == nil {
		t.Fatal("expected error when exceeding size limit")
	}
	if !strings.Contains(err.Error(), "staging area full") {
		t.Errorf("error = %v, want 'staging area full'", err)
	}
}

func TestStagingArea_Clear(t *testing.T) {
	sa, fsmgr := newTestSA(t)
	stageFile(t, sa, fsmgr, "/docs/a.txt", []byte("a"))
	stageFile(t, sa, fsmgr, "/docs/b.txt", []byte("b"))

	if err := sa.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	count, _ := sa.Count()
	size, _ := sa.Size()
	if count != 0 || size != 0 {
		t.Errorf("Count() = %d, Size() = %d, want 0, 0", count, size)
	}
}

func TestFileSystemStagingArea(t *testing.T) {
	dir := t.TempDir()
	fsmgr := newMockFSMgr()
	sa, err := NewFileSystemStagingArea(fsmgr, dir, 1024)
	if err != nil {
		t.Fatalf("NewFileSystemStagingArea() error = %v", err)
	}

	stageFile(t, sa, fsmgr, "/docs/a.txt", []byte("alpha"))
	stageFile(t, sa, fsmgr, "/docs/b.txt", []byte("beta"))

	// A second area over the same directory sees the persisted queue.
	reopened, err := NewFileSystemStagingArea(fsmgr, dir, 1024)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	files, err := reopened.Files()
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("Files() = %d entries, want 2", len(files))
	}

	size, _ := reopened.Size()
	if size != 9 {
		t.Errorf("Size() = %d, want 9", size)
	}

	var got []string
	for {
		count, _ := reopened.Count()
		if count == 0 {
			break
		}
		err := reopened.ProcessNext(func(content io.Reader, file docchat.StagedFile) error {
			data, _ := io.ReadAll(content)
			got = append(got, file.Name+"="+string(data))
			return nil
		})
		if err != nil {
			t.Fatalf("ProcessNext() error = %v", err)
		}
	}
	if strings.Join(got, ",") != "a.txt=alpha,b.txt=beta" {
		t.Errorf("processed = %v", got)
	}
	size, _ = reopened.Size()
	if size != 0 {
		t.Errorf("Size() after processing = %d, want 0", size)
	}
}

func TestValidateStatUnchanged(t *testing.T) {
	now := time.Now()

	baseInfo := func() *mockFileInfo {
		return &mockFileInfo{
			name:  "test",
			entry: &mockEntry{content: make([]byte, 100), mode: 0644, modTime: now},
		}
	}

	t.Run("identical stats pass", func(t *testing.T) {
		if err := validateStatUnchanged(baseInfo(), baseInfo()); err != nil {
			t.Errorf("expected nil, got: %v", err)
		}
	})

	t.Run("size change detected", func(t *testing.T) {
		info2 := baseInfo()
		info2.entry = &mockEntry{content: make([]byte, 200), mode: 0644, modTime: now}
		if err := validateStatUnchanged(baseInfo(), info2); err == nil {
			t.Error("expected error for size change")
		}
	})

	t.Run("mode change detected", func(t *testing.T) {
		info2 := baseInfo()
		info2.entry = &mockEntry{content: make([]byte, 100), mode: 0755, modTime: now}
		if err := validateStatUnchanged(baseInfo(), info2); err == nil {
			t.Error("expected error for mode change")
		}
	})

	t.Run("mtime change detected", func(t *testing.T) {
		info2 := baseInfo()
		info2.entry = &mockEntry{content: make([]byte, 100), mode: 0644, modTime: now.Add(time.Hour)}
		if err := validateStatUnchanged(baseInfo(), info2); err == nil {
			t.Error("expected error for mtime change")
		}
	})
}
