package git

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Repository is the git context of a scan target, recorded in the run report.
type Repository struct {
	Root      string `json:"root"`
	Subfolder string `json:"subfolder,omitempty"` // scan target relative to Root, slash separated
	Branch    string `json:"branch,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Remote    string `json:"remote,omitempty"`
}

// Inspect describes the worktree enclosing target.
func Inspect(target string) (*Repository, error) {
	_, info, err := open(target)
	return info, err
}

// open finds the worktree enclosing target, walking up parent folders.
func open(target string) (*git.Repository, *Repository, error) {
	if target == "" {
		return nil, nil, fmt.Errorf("scan target is empty")
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, nil, err
	}

	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil, ErrNotRepository
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open repository for %q: %w", target, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		// bare repositories have nothing to scan
		return nil, nil, ErrNotRepository
	}

	info := &Repository{Root: filepath.Clean(wt.Filesystem.Root())}
	if rel, ok := relative(info.Root, abs); ok && rel != "." {
		info.Subfolder = filepath.ToSlash(rel)
	}

	if head, err := repo.Head(); err == nil {
		if head.Name().IsBranch() {
			info.Branch = head.Name().Short()
		}
		info.Commit = head.Hash().String()
	}
	if remote, err := repo.Remote("origin"); err == nil && len(remote.Config().URLs) > 0 {
		info.Remote = redactRemote(remote.Config().URLs[0])
	}
	return repo, info, nil
}

// relative resolves symlinks on both sides so temp folders and mounted
// checkouts compare equal.
func relative(root, target string) (string, bool) {
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}
	if t, err := filepath.EvalSymlinks(target); err == nil {
		target = t
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return rel, true
}

// redactRemote drops credentials embedded in an origin URL; run reports are uploaded.
func redactRemote(raw string) string {
	raw = strings.TrimSuffix(raw, ".git")
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		// scp-like remotes such as git@host:org/repo carry no secret
		return raw
	}
	u.User = nil
	return u.String()
}
