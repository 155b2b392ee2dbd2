package git

import "errors"

// ErrNotRepository is returned when no enclosing git worktree is found.
// Callers fall back to a full, non-incremental scan.
var ErrNotRepository = errors.New("scan target is not inside a git worktree")
