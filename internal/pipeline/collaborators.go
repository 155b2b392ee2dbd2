package pipeline

import (
	"context"

	"github.com/scan-io-git/warden/internal/audit"
	"github.com/scan-io-git/warden/internal/findings"
	"github.com/scan-io-git/warden/internal/frames"
	"github.com/scan-io-git/warden/internal/triage"
)

// ProjectMetrics is computed during analysis from the discovered files.
type ProjectMetrics struct {
	Files     int                        `json:"files"`
	Lines     int                        `json:"lines"`
	Bytes     int64                      `json:"bytes"`
	Languages map[string]int             `json:"languages"`
	Contexts  map[frames.FileContext]int `json:"contexts"`
}

func (m ProjectMetrics) lookup(path string) (interface{}, bool) {
	head, rest, nested := cutPath(path)
	switch head {
	case "files":
		return m.Files, !nested
	case "lines":
		return m.Lines, !nested
	case "bytes":
		return m.Bytes, !nested
	case "languages":
		if nested {
			n, ok := m.Languages[rest]
			return n, ok
		}
		return m.Languages, m.Languages != nil
	case "contexts":
		if nested {
			n, ok := m.Contexts[frames.FileContext(rest)]
			return n, ok
		}
		return m.Contexts, m.Contexts != nil
	}
	return nil, false
}

// TaintPath is a source to sink flow reported by an analyzer.
type TaintPath struct {
	Source   string `json:"source"`
	Sink     string `json:"sink"`
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
}

// AnalysisReport is what an Analyzer contributes to the context.
type AnalysisReport struct {
	QualityMetrics map[string]interface{}
	TaintPaths     []TaintPath
}

// Fortification is a hardening suggestion for a finding.
type Fortification struct {
	FindingID  string `json:"finding_id"`
	FilePath   string `json:"file_path"`
	Suggestion string `json:"suggestion"`
}

// CleaningSuggestion is a code hygiene suggestion.
type CleaningSuggestion struct {
	FilePath   string `json:"file_path"`
	Line       int    `json:"line"`
	Suggestion string `json:"suggestion"`
}

// Analyzer computes quality metrics and taint paths.
type Analyzer interface {
	Analyze(ctx context.Context, files []*frames.CodeFile) (AnalysisReport, error)
}

// GraphProvider builds the code graph used by the LSP diagnostics phase.
type GraphProvider interface {
	BuildGraph(ctx context.Context, files []*frames.CodeFile) (*audit.CodeGraph, error)
}

// Classifier picks the frames to run among the available ones.
type Classifier interface {
	Classify(ctx context.Context, files []*frames.CodeFile, available []frames.Frame) (selected []string, reasoning string, err error)
}

// Verifier drops false positives.
type Verifier interface {
	Verify(ctx context.Context, list []findings.Finding) ([]findings.Finding, error)
}

// Fortifier proposes fixes for findings.
type Fortifier interface {
	Fortify(ctx context.Context, list []findings.Finding, files []*frames.CodeFile) ([]Fortification, error)
}

// Cleaner proposes hygiene improvements.
type Cleaner interface {
	Clean(ctx context.Context, files []*frames.CodeFile) ([]CleaningSuggestion, error)
}

// Collaborators are optional external services. Nil members fall back to defaults or no-ops.
type Collaborators struct {
	Scorer     triage.Scorer
	Analyzer   Analyzer
	Graph      GraphProvider
	Classifier Classifier
	Verifier   Verifier
	Fortifier  Fortifier
	Cleaner    Cleaner
}
