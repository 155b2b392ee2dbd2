package git

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ChangeSet lists files touched since a base revision, relative to the
// scanned folder with forward slashes.
type ChangeSet struct {
	Base  string
	Head  string
	files map[string]struct{}
}

// NewChangeSet builds a change set from scan-relative paths.
func NewChangeSet(base, head string, paths ...string) *ChangeSet {
	c := &ChangeSet{Base: base, Head: head, files: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		c.files[filepath.ToSlash(p)] = struct{}{}
	}
	return c
}

// Contains reports whether a scan-relative path changed.
func (c *ChangeSet) Contains(relPath string) bool {
	if c == nil {
		return true
	}
	_, ok := c.files[path.Clean(filepath.ToSlash(relPath))]
	return ok
}

// Len returns the number of changed files.
func (c *ChangeSet) Len() int {
	if c == nil {
		return 0
	}
	return len(c.files)
}

// Files returns the changed paths.
func (c *ChangeSet) Files() []string {
	out := make([]string, 0, c.Len())
	for f := range c.files {
		out = append(out, f)
	}
	return out
}

// DetectChanges collects the files that differ between baseRev and HEAD plus
// uncommitted worktree changes. An empty baseRev only looks at the worktree.
func DetectChanges(sourceFolder, baseRev string) (*ChangeSet, error) {
	repo, info, err := open(sourceFolder)
	if err != nil {
		return nil, err
	}

	cs := &ChangeSet{Base: baseRev, files: make(map[string]struct{})}
	add := func(repoPath string) {
		if repoPath == "" {
			return
		}
		if info.Subfolder != "" {
			prefix := info.Subfolder + "/"
			if !strings.HasPrefix(repoPath, prefix) {
				return
			}
			repoPath = strings.TrimPrefix(repoPath, prefix)
		}
		cs.files[repoPath] = struct{}{}
	}

	cs.Head = info.Commit

	if baseRev != "" {
		changed, err := committedChanges(repo, baseRev)
		if err != nil {
			return nil, err
		}
		for _, p := range changed {
			add(p)
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read worktree status: %w", err)
	}
	for p, st := range status {
		if st.Staging == git.Unmodified && st.Worktree == git.Unmodified {
			continue
		}
		add(p)
	}
	return cs, nil
}

func committedChanges(repo *git.Repository, baseRev string) ([]string, error) {
	baseHash, err := repo.ResolveRevision(plumbing.Revision(baseRev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base revision %q: %w", baseRev, err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	baseTree, err := treeOf(repo, *baseHash)
	if err != nil {
		return nil, fmt.Errorf("failed to load base tree: %w", err)
	}
	headTree, err := treeOf(repo, head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to load head tree: %w", err)
	}

	changes, err := object.DiffTree(baseTree, headTree)
	if err != nil {
		return nil, fmt.Errorf("failed to compute diff: %w", err)
	}

	var out []string
	for _, ch := range changes {
		// deleted files have nothing left to scan
		if ch.To.Name == "" {
			continue
		}
		out = append(out, ch.To.Name)
	}
	return out, nil
}

func treeOf(repo *git.Repository, hash plumbing.Hash) (*object.Tree, error) {
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, err
	}
	return commit.Tree()
}
