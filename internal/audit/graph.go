// Package audit confirms code graph relations against an external
// language-server bridge behind a circuit breaker.
package audit

import (
	"context"
	"fmt"

	"github.com/scan-io-git/warden/internal/frames"
	"github.com/scan-io-git/warden/pkg/shared/files"
)

// Relation is the kind of a code graph edge.
type Relation string

const (
	RelationCalls      Relation = "CALLS"
	RelationInherits   Relation = "INHERITS"
	RelationImplements Relation = "IMPLEMENTS"
	RelationImports    Relation = "IMPORTS"
)

// SymbolKind classifies a graph node.
type SymbolKind string

const (
	KindModule   SymbolKind = "module"
	KindClass    SymbolKind = "class"
	KindFunction SymbolKind = "function"
	KindMethod   SymbolKind = "method"
)

// Node is one symbol of the code graph.
type Node struct {
	FQN      string     `json:"fqn"`
	Kind     SymbolKind `json:"kind"`
	FilePath string     `json:"file_path"`
	Line     int        `json:"line"`
	IsTest   bool       `json:"is_test"`
}

// Edge links two symbols by fully qualified name.
type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Relation Relation `json:"relation"`
}

// CodeGraph is produced during analysis by a graph provider.
type CodeGraph struct {
	Nodes map[string]Node `json:"nodes"`
	Edges []Edge          `json:"edges"`
}

// AddNode registers a node under its FQN.
func (g *CodeGraph) AddNode(n Node) {
	if g.Nodes == nil {
		g.Nodes = make(map[string]Node)
	}
	g.Nodes[n.FQN] = n
}

// FileGraph serves a code graph exported as JSON by an external indexer.
// Only nodes of the scanned files are kept, with the edges leaving them.
type FileGraph struct {
	Path string
}

func (g FileGraph) BuildGraph(ctx context.Context, list []*frames.CodeFile) (*CodeGraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var full CodeGraph
	if err := files.LoadJSON(g.Path, &full); err != nil {
		return nil, fmt.Errorf("failed to load code graph: %w", err)
	}

	scanned := make(map[string]bool, len(list))
	for _, f := range list {
		scanned[f.Path] = true
	}

	out := &CodeGraph{Nodes: make(map[string]Node)}
	for fqn, n := range full.Nodes {
		if n.FQN == "" {
			n.FQN = fqn
		}
		if scanned[n.FilePath] {
			out.AddNode(n)
		}
	}
	for _, e := range full.Edges {
		if _, ok := out.Nodes[e.Source]; ok {
			out.Edges = append(out.Edges, e)
		}
	}
	return out, nil
}
