package triage

import (
	"github.com/scan-io-git/warden/internal/frames"
	"github.com/scan-io-git/warden/internal/ignore"
)

// FilterSummary counts what the per-frame filters removed.
type FilterSummary struct {
	Total           int `json:"total"`
	Ignored         int `json:"ignored"`
	ContextFiltered int `json:"context_filtered"`
	LaneFiltered    int `json:"lane_filtered"`
	Kept            int `json:"kept"`
}

// AsMetadata renders the summary for FrameResult metadata.
func (s FilterSummary) AsMetadata() map[string]interface{} {
	return map[string]interface{}{
		"total":            s.Total,
		"ignored":          s.Ignored,
		"context_filtered": s.ContextFiltered,
		"lane_filtered":    s.LaneFiltered,
		"kept":             s.Kept,
	}
}

// excludedContexts are dropped unless test files are explicitly included.
var excludedContexts = map[frames.FileContext]bool{
	frames.ContextTest:          true,
	frames.ContextExample:       true,
	frames.ContextDocumentation: true,
}

// FilterForFrame applies frame ignore patterns, the production-context filter
// and the minimum lane of the frame, in that order.
func FilterForFrame(files []*frames.CodeFile, spec frames.Spec, includeTestFiles bool, ignored *ignore.Matcher) ([]*frames.CodeFile, FilterSummary) {
	summary := FilterSummary{Total: len(files)}
	kept := make([]*frames.CodeFile, 0, len(files))

	for _, f := range files {
		if ignored.Match(f.Path, false) {
			summary.Ignored++
			continue
		}
		if !(includeTestFiles || spec.IncludeTestFiles) && excludedContexts[f.Context()] {
			summary.ContextFiltered++
			continue
		}
		if f.Lane() < spec.MinimumTriageLane {
			summary.LaneFiltered++
			continue
		}
		kept = append(kept, f)
	}

	summary.Kept = len(kept)
	return kept, summary
}
