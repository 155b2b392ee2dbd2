package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/warden/internal/frames"
	"github.com/scan-io-git/warden/internal/git"
	"github.com/scan-io-git/warden/internal/ignore"
)

func writeTree(t *testing.T, tree map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range tree {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestDiscover(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":                "package main\n",
		"internal/db/db.go":      "package db\n",
		"internal/db/db_test.go": "package db\n",
		"vendor/lib/lib.go":      "package lib\n",
		".git/HEAD":              "ref: refs/heads/main\n",
		"assets/logo.png":        "\x89PNG\x00\x00",
		"docs/README.md":         "# docs\n",
	})

	files, err := Discover(root, ignore.New([]string{"vendor/"}), git.NewChangeSet("main", "HEAD", "main.go"), hclog.NewNullLogger())
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"docs/README.md", "internal/db/db.go", "internal/db/db_test.go", "main.go"}, paths)

	byPath := map[string]*frames.CodeFile{}
	for _, f := range files {
		byPath[f.Path] = f
	}
	assert.Equal(t, "go", byPath["main.go"].Language)
	assert.False(t, byPath["main.go"].Unchanged())
	assert.True(t, byPath["internal/db/db.go"].Unchanged())
	assert.Equal(t, frames.ContextTest, byPath["internal/db/db_test.go"].Context())
	assert.Equal(t, frames.ContextDocumentation, byPath["docs/README.md"].Context())
}

func TestDiscoverWithoutChangeSet(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": "print(1)\n"})
	files, err := Discover(root, nil, nil, hclog.NewNullLogger())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.False(t, files[0].Unchanged())
	assert.Equal(t, int64(9), files[0].Size)
}
