package pipeline

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/frames"
	"github.com/scan-io-git/warden/internal/git"
	"github.com/scan-io-git/warden/internal/ignore"
	"github.com/scan-io-git/warden/internal/triage"
	"github.com/scan-io-git/warden/pkg/shared/files"
)

// MaxFileBytes bounds the size of files read during discovery.
const MaxFileBytes = 1 << 20

// Discover walks root, drops ignored, oversized and binary files and builds
// CodeFiles with slash-separated paths relative to root. Files absent from
// changes are marked unchanged.
func Discover(root string, ignored *ignore.Matcher, changes *git.ChangeSet, logger hclog.Logger) ([]*frames.CodeFile, error) {
	var out []*frames.CodeFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := files.RelativeSlashPath(root, path)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || ignored.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignored.Match(rel, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > MaxFileBytes {
			logger.Debug("file too large, skipped", "file", rel, "size", info.Size())
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", rel, err)
		}
		if isBinary(data) {
			return nil
		}

		f := frames.NewCodeFile(rel, string(data), frames.DetectLanguage(rel))
		f.SetContext(triage.DetectContext(rel))
		if changes != nil && !changes.Contains(rel) {
			f.MarkUnchanged(true)
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover files under %q: %w", root, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func isBinary(data []byte) bool {
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}
