package pipeline

import (
	"time"

	"github.com/scan-io-git/warden/internal/audit"
	"github.com/scan-io-git/warden/internal/baseline"
	"github.com/scan-io-git/warden/internal/findings"
	"github.com/scan-io-git/warden/internal/frames"
)

// Report is the JSON document saved as the run artifact.
type Report struct {
	Run             *Run                      `json:"run"`
	DurationSeconds float64                   `json:"duration_seconds"`
	ExitCode        int                       `json:"exit_code"`
	SelectedFrames  []string                  `json:"selected_frames"`
	Reasoning       string                    `json:"classification_reasoning,omitempty"`
	Frames          []frames.FrameResult      `json:"frames"`
	Findings        []findings.Finding        `json:"findings"`
	NewFindings     []findings.Finding        `json:"new_findings"`
	KnownFindings   int                       `json:"known_findings"`
	BySeverity      map[findings.Severity]int `json:"by_severity"`
	Metrics         ProjectMetrics            `json:"project_metrics"`
	Audit           *audit.Validation         `json:"audit_validation,omitempty"`
	DebtUpdates     []baseline.DebtUpdate     `json:"debt_updates,omitempty"`
	Fortifications  []Fortification           `json:"fortifications,omitempty"`
	Cleaning        []CleaningSuggestion      `json:"cleaning_suggestions,omitempty"`
	Errors          []string                  `json:"errors,omitempty"`
	Warnings        []string                  `json:"warnings,omitempty"`
}

// BuildReport snapshots a finished context.
func BuildReport(pc *Context, exitCode int) Report {
	all := pc.Findings()
	fresh := pc.NewFindings()
	r := Report{
		Run:            pc.Run,
		ExitCode:       exitCode,
		SelectedFrames: pc.SelectedFrames(),
		Reasoning:      pc.ClassificationReasoning(),
		Frames:         pc.FrameResults(),
		Findings:       all,
		NewFindings:    fresh,
		KnownFindings:  len(pc.KnownFindings()),
		BySeverity:     findings.CountBySeverity(fresh),
		Metrics:        pc.ProjectMetrics(),
		DebtUpdates:    pc.DebtUpdates(),
		Fortifications: pc.Fortifications(),
		Cleaning:       pc.CleaningSuggestions(),
		Errors:         pc.Errors(),
		Warnings:       pc.Warnings(),
	}
	if v, ok := pc.AuditValidation(); ok {
		r.Audit = &v
	}
	if pc.Run != nil && !pc.Run.CompletedAt.IsZero() {
		r.DurationSeconds = pc.Run.CompletedAt.Sub(pc.Run.StartedAt).Round(time.Millisecond).Seconds()
	}
	return r
}
