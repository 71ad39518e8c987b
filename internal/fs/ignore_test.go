package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Parallel()
	m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.log", "!keep.log", "drafts/", "/top.txt", "a/b", "[", "!"})

	want := []ignoreRule{
		{glob: "*.log"},
		{glob: "keep.log", negate: true},
		{glob: "drafts", dirOnly: true},
		{glob: "top.txt", anchored: true},
		{glob: "a/b", anchored: true},
	}
	if len(m.rules) != len(want) {
		t.Fatalf("expected %d rules, got %d: %+v", len(want), len(m.rules), m.rules)
	}
	for i, r := range want {
		if m.rules[i] != r {
			t.Errorf("rule %d = %+v, want %+v", i, m.rules[i], r)
		}
	}
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		isDir    bool
		want     bool
	}{
		{name: "basename glob in root", patterns: []string{"*.log"}, path: "app.log", want: true},
		{name: "basename glob in subdirectory", patterns: []string{"*.log"}, path: filepath.Join("sub", "app.log"), want: true},
		{name: "basename glob other extension", patterns: []string{"*.log"}, path: "app.pdf", want: false},
		{name: "anchored path matches", patterns: []string{"build/output"}, path: filepath.Join("build", "output"), want: true},
		{name: "anchored path wrong parent", patterns: []string{"build/output"}, path: filepath.Join("src", "output"), want: false},
		{name: "leading slash anchors to root", patterns: []string{"/notes.txt"}, path: "notes.txt", want: true},
		{name: "leading slash ignores nested", patterns: []string{"/notes.txt"}, path: filepath.Join("sub", "notes.txt"), want: false},
		{name: "directory rule matches directory", patterns: []string{"drafts/"}, path: "drafts", isDir: true, want: true},
		{name: "directory rule skips file", patterns: []string{"drafts/"}, path: "drafts", want: false},
		{name: "negation re-includes", patterns: []string{"*.csv", "!summary.csv"}, path: "summary.csv", want: false},
		{name: "negation leaves others ignored", patterns: []string{"*.csv", "!summary.csv"}, path: "raw.csv", want: true},
		{name: "last rule wins", patterns: []string{"!summary.csv", "*.csv"}, path: "summary.csv", want: true},
		{name: "office lock file", patterns: defaultIgnorePatterns, path: "~$report.docx", want: true},
		{name: "git directory", patterns: defaultIgnorePatterns, path: ".git", isDir: true, want: true},
		{name: "ignore file itself", patterns: defaultIgnorePatterns, path: IgnoreFileName, want: true},
		{name: "default keeps documents", patterns: defaultIgnorePatterns, path: "report.docx", want: false},
		{name: "question mark wildcard", patterns: []string{"?.txt"}, path: "ab.txt", want: false},
		{name: "no patterns", patterns: nil, path: "anything.txt", want: false},
		{name: "empty path", patterns: []string{"*"}, path: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			if got := m.Match(tt.path, tt.isDir); got != tt.want {
				t.Errorf("Match(%q, %v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("returns raw lines", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), IgnoreFileName)
		if err := os.WriteFile(path, []byte("*.tmp\n# scratch\n\n!keep.tmp\ndrafts/\n"), 0644); err != nil {
			t.Fatalf("writing ignore file: %v", err)
		}

		lines, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if len(lines) != 5 {
			t.Fatalf("expected 5 lines, got %d", len(lines))
		}
		if m := NewIgnoreMatcher(lines); len(m.rules) != 3 {
			t.Errorf("expected 3 rules, got %d", len(m.rules))
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		lines, err := ParseIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil || lines != nil {
			t.Errorf("ParseIgnoreFile() = %v, %v; want nil, nil", lines, err)
		}
	})
}
