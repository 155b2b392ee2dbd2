// Package triage assigns cost lanes to files and filters files per frame.
package triage

import (
	"context"
	"path"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/frames"
)

// Score thresholds mapping a 0-10 risk score onto lanes.
const (
	FastLaneMaxScore   = 3.5
	MiddleLaneMaxScore = 7.5
)

// singleTierProviders are slow CLI or local providers without a cheap fast tier.
var singleTierProviders = map[string]bool{
	"claude_code": true,
	"codex":       true,
	"ollama":      true,
}

var safeExtensions = map[string]bool{
	".md": true, ".rst": true, ".txt": true, ".json": true, ".yaml": true, ".yml": true,
	".toml": true, ".ini": true, ".cfg": true, ".css": true, ".scss": true, ".svg": true,
	".lock": true, ".csv": true, ".html": true,
}

var riskyMarkers = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey", "private_key",
	"exec(", "eval(", "subprocess", "os.system", "select ", "insert into", "crypto",
	"jwt", "auth", "session", "cookie", "deserialize", "pickle",
}

// Score is what an external scorer returns for one file.
type Score struct {
	Value     float64
	Reasoning string
}

// Scorer rates files, typically with an LLM. It is an external collaborator.
type Scorer interface {
	Score(ctx context.Context, files []*frames.CodeFile) (map[string]Score, error)
}

// Decision records why a file got its lane.
type Decision struct {
	Path      string      `json:"path"`
	Lane      frames.Lane `json:"lane"`
	Score     float64     `json:"score"`
	Reason    string      `json:"reason"`
	Heuristic bool        `json:"heuristic"`
}

// Options tune the router.
type Options struct {
	HeuristicOnly bool // forced bypass, e.g. single-tier provider
	SafeMaxBytes  int  // files at most this size without risky markers are safe
}

// Router assigns lanes in the Triage phase.
type Router struct {
	scorer Scorer
	opts   Options
	logger hclog.Logger
}

func NewRouter(scorer Scorer, opts Options, logger hclog.Logger) *Router {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Router{scorer: scorer, opts: opts, logger: logger}
}

// IsSingleTierProvider reports providers that trigger the heuristic bypass.
func IsSingleTierProvider(provider string) bool {
	return singleTierProviders[strings.ToLower(strings.TrimSpace(provider))]
}

// LaneForScore maps a risk score onto a lane.
func LaneForScore(score float64) frames.Lane {
	switch {
	case score <= FastLaneMaxScore:
		return frames.FastLane
	case score <= MiddleLaneMaxScore:
		return frames.MiddleLane
	default:
		return frames.DeepLane
	}
}

// Assign sets a lane on every file and returns the decisions keyed by path.
func (r *Router) Assign(ctx context.Context, files []*frames.CodeFile) map[string]Decision {
	decisions := make(map[string]Decision, len(files))
	bypass := r.scorer == nil || r.opts.HeuristicOnly
	if bypass {
		r.logger.Debug("triage heuristic bypass active", "files", len(files), "scorer", r.scorer != nil)
	}

	var toScore []*frames.CodeFile
	for _, f := range files {
		if IsHeuristicSafe(f, r.opts.SafeMaxBytes) {
			decisions[f.Path] = r.decide(f, frames.FastLane, 0, "Heuristic: Safe file type/content", true)
			continue
		}
		if bypass {
			decisions[f.Path] = r.decide(f, frames.MiddleLane, 0, "Heuristic bypass: default middle lane", true)
			continue
		}
		toScore = append(toScore, f)
	}

	if len(toScore) == 0 {
		return decisions
	}

	scores, err := r.scorer.Score(ctx, toScore)
	if err != nil {
		r.logger.Warn("triage scorer failed, falling back to middle lane", "files", len(toScore), "error", err)
	}
	for _, f := range toScore {
		s, ok := scores[f.Path]
		if !ok {
			decisions[f.Path] = r.decide(f, frames.MiddleLane, 0, "No score returned, default middle lane", true)
			continue
		}
		decisions[f.Path] = r.decide(f, LaneForScore(s.Value), s.Value, s.Reasoning, false)
	}
	return decisions
}

func (r *Router) decide(f *frames.CodeFile, lane frames.Lane, score float64, reason string, heuristic bool) Decision {
	f.SetLane(lane)
	return Decision{Path: f.Path, Lane: lane, Score: score, Reason: reason, Heuristic: heuristic}
}

// IsHeuristicSafe reports files that never need more than the fast lane.
func IsHeuristicSafe(f *frames.CodeFile, maxBytes int) bool {
	switch f.Context() {
	case frames.ContextDocumentation, frames.ContextConfiguration, frames.ContextGenerated, frames.ContextTest:
		return true
	}
	if safeExtensions[strings.ToLower(path.Ext(f.Path))] {
		return true
	}
	if strings.TrimSpace(f.Content) == "" {
		return true
	}
	if maxBytes > 0 && f.Size <= int64(maxBytes) {
		lower := strings.ToLower(f.Content)
		for _, marker := range riskyMarkers {
			if strings.Contains(lower, marker) {
				return false
			}
		}
		return true
	}
	return false
}

// DetectContext classifies a slash-separated relative path.
func DetectContext(p string) frames.FileContext {
	lower := strings.ToLower(p)
	base := path.Base(lower)
	ext := path.Ext(base)
	dirs := strings.Split(path.Dir(lower), "/")

	hasDir := func(names ...string) bool {
		for _, d := range dirs {
			for _, n := range names {
				if d == n {
					return true
				}
			}
		}
		return false
	}

	switch {
	case strings.Contains(base, ".pb.") || strings.HasSuffix(base, "_generated.go") || strings.Contains(base, ".gen.") || hasDir("generated", "__generated__"):
		return frames.ContextGenerated
	case strings.HasSuffix(base, "_test.go") || strings.HasPrefix(base, "test_") || strings.HasSuffix(strings.TrimSuffix(base, ext), "_test") ||
		strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") || base == "conftest.py" || hasDir("test", "tests", "__tests__", "testdata", "spec"):
		return frames.ContextTest
	case hasDir("example", "examples", "sample", "samples", "demo", "demos"):
		return frames.ContextExample
	case ext == ".md" || ext == ".rst" || ext == ".txt" || hasDir("docs", "doc", "documentation"):
		return frames.ContextDocumentation
	case ext == ".yaml" || ext == ".yml" || ext == ".toml" || ext == ".ini" || ext == ".cfg" || ext == ".json" || base == "dockerfile" || base == "makefile":
		return frames.ContextConfiguration
	}
	return frames.ContextProduction
}
