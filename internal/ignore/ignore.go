// Package ignore matches paths against gitignore-syntax patterns.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultPatterns are skipped by file discovery regardless of configuration.
var DefaultPatterns = []string{
	".git/",
	".warden/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	".venv/",
	"dist/",
	"build/",
}

// Matcher reports whether a slash-separated relative path is ignored.
type Matcher struct {
	patterns []gitignore.Pattern
	matcher  gitignore.Matcher
}

// New compiles patterns written in gitignore syntax.
func New(patterns []string) *Matcher {
	m := &Matcher{}
	m.Add(patterns...)
	return m
}

// Add appends patterns; blank lines and comments are dropped.
func (m *Matcher) Add(patterns ...string) {
	for _, p := range patterns {
		p = strings.TrimRight(p, "\r")
		if strings.TrimSpace(p) == "" || strings.HasPrefix(p, "#") {
			continue
		}
		m.patterns = append(m.patterns, gitignore.ParsePattern(p, nil))
	}
	m.matcher = gitignore.NewMatcher(m.patterns)
}

// AddFile appends the patterns of an ignore file. A missing file is not an error.
func (m *Matcher) AddFile(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	m.Add(lines...)
	return nil
}

// Empty reports whether no pattern was added.
func (m *Matcher) Empty() bool {
	return m == nil || len(m.patterns) == 0
}

// Match reports whether relPath (or one of its parent folders) is ignored.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	if m.Empty() {
		return false
	}
	parts := split(relPath)
	if len(parts) == 0 {
		return false
	}
	// A pattern such as "vendor/" only matches the folder itself, so parents are checked too.
	for i := 1; i < len(parts); i++ {
		if m.matcher.Match(parts[:i], true) {
			return true
		}
	}
	return m.matcher.Match(parts, isDir)
}

func split(relPath string) []string {
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")
	if relPath == "" || relPath == "." {
		return nil
	}
	return strings.Split(relPath, "/")
}

// ForProject builds the discovery matcher: defaults, .gitignore and .wardenignore at root, then extra patterns.
func ForProject(root string, extra []string) (*Matcher, error) {
	m := New(DefaultPatterns)
	for _, name := range []string{".gitignore", ".wardenignore"} {
		if err := m.AddFile(filepath.Join(root, name)); err != nil {
			return nil, err
		}
	}
	m.Add(extra...)
	return m, nil
}
