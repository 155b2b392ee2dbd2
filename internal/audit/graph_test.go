package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/warden/internal/frames"
)

const exportedGraph = `{
  "nodes": {
    "api.Save":   {"kind": "function", "file_path": "api/db.go", "line": 4},
    "api.Store":  {"fqn": "api.Store", "kind": "class", "file_path": "api/db.go", "line": 1},
    "web.Handle": {"kind": "function", "file_path": "web/h.go", "line": 8}
  },
  "edges": [
    {"source": "api.Save", "target": "sql.Exec", "relation": "CALLS"},
    {"source": "web.Handle", "target": "api.Save", "relation": "CALLS"}
  ]
}`

func TestFileGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte(exportedGraph), 0o644))

	g, err := FileGraph{Path: path}.BuildGraph(context.Background(), []*frames.CodeFile{frames.NewCodeFile("api/db.go", "package api", "go")})
	require.NoError(t, err)

	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "api.Save", g.Nodes["api.Save"].FQN)
	assert.Equal(t, 4, g.Nodes["api.Save"].Line)
	assert.Equal(t, []Edge{{Source: "api.Save", Target: "sql.Exec", Relation: RelationCalls}}, g.Edges)
}

func TestFileGraphErrors(t *testing.T) {
	_, err := FileGraph{Path: filepath.Join(t.TempDir(), "absent.json")}.BuildGraph(context.Background(), nil)
	assert.ErrorContains(t, err, "failed to load code graph")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FileGraph{Path: "unused"}.BuildGraph(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
