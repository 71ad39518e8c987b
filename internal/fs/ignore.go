package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// defaultIgnorePatterns are applied before config and .dcignore patterns,
// so either can re-include a default with "!".
var defaultIgnorePatterns = []string{
	IgnoreFileName,
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	".git/",
	"~$*",     // Office lock files
	".~lock*", // LibreOffice lock files
}

type ignoreRule struct {
	glob     string
	negate   bool
	dirOnly  bool
	anchored bool // glob is matched against the whole relative path
}

// IgnoreMatcher decides which paths a folder upload skips. Rules follow a
// subset of .gitignore: "#" comments, "!" re-includes, a trailing "/"
// matches directories only, and a pattern containing "/" is matched
// against the path relative to the upload root instead of the basename.
// The last matching rule wins.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher parses raw pattern lines. Malformed globs are dropped.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, line := range lines {
		if r, ok := parseIgnoreRule(line); ok {
			m.rules = append(m.rules, r)
		}
	}
	return m
}

func parseIgnoreRule(line string) (ignoreRule, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ignoreRule{}, false
	}

	var r ignoreRule
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimLeft(line, "/")
	}
	if strings.Contains(line, "/") {
		r.anchored = true
	}
	if line == "" {
		return ignoreRule{}, false
	}
	if _, err := filepath.Match(line, ""); err != nil {
		return ignoreRule{}, false
	}
	r.glob = line
	return r, true
}

// Match reports whether relativePath, relative to the upload root, is ignored.
func (m *IgnoreMatcher) Match(relativePath string, isDir bool) bool {
	if relativePath == "" {
		return false
	}
	normalized := filepath.ToSlash(relativePath)
	base := filepath.Base(relativePath)

	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		subject := base
		if r.anchored {
			subject = normalized
		}
		if ok, _ := filepath.Match(r.glob, subject); ok {
			ignored = !r.negate
		}
	}
	return ignored
}

// ParseIgnoreFile returns the lines of a .dcignore file, or nil when the
// file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
