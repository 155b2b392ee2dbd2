package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/warden/internal/audit"
	"github.com/scan-io-git/warden/internal/findings"
	"github.com/scan-io-git/warden/internal/frames"
	errs "github.com/scan-io-git/warden/pkg/shared/errors"
)

func TestContextLookupUsesPresence(t *testing.T) {
	pc := newTestContext(nil)

	_, ok := pc.Lookup(FieldFindings)
	assert.False(t, ok, "unset field must be absent")

	pc.SetFindings(nil)
	v, ok := pc.Lookup(FieldFindings)
	require.True(t, ok, "an empty list is still present")
	assert.Empty(t, v)
	assert.True(t, pc.Has(FieldFindings))

	pc.SetProjectMetrics(ProjectMetrics{Files: 3, Languages: map[string]int{"go": 3}})
	v, ok = pc.Lookup("project_metrics.languages.go")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	_, ok = pc.Lookup("project_metrics.languages.rust")
	assert.False(t, ok)

	pc.SetQualityMetrics(map[string]interface{}{"complexity": map[string]interface{}{"max": 12}})
	v, ok = pc.Lookup("quality_metrics.complexity.max")
	require.True(t, ok)
	assert.Equal(t, 12, v)

	_, ok = pc.Lookup(FieldCodeGraph)
	assert.False(t, ok)
	pc.SetCodeGraph(&audit.CodeGraph{})
	_, ok = pc.Lookup(FieldCodeGraph)
	assert.True(t, ok)

	_, ok = pc.Lookup("unknown_field")
	assert.False(t, ok)
}

func TestContextFrameResultsLookup(t *testing.T) {
	pc := newTestContext(nil)
	assert.False(t, pc.Has(FieldFrameResults))

	pc.RecordFrameResult(frames.FrameResult{FrameID: "security", Status: frames.StatusPassed})
	assert.True(t, pc.Has(FieldFrameResults))

	v, ok := pc.Lookup("frame_results.security")
	require.True(t, ok)
	assert.Equal(t, "security", v.(frames.FrameResult).FrameID)
}

func TestRecordFrameResultCounters(t *testing.T) {
	pc := newTestContext(nil)
	pc.RecordFrameResult(frames.FrameResult{FrameID: "a", Status: frames.StatusPassed})
	pc.RecordFrameResult(frames.FrameResult{FrameID: "b", Status: frames.StatusWarning})
	pc.RecordFrameResult(frames.FrameResult{FrameID: "c", Status: frames.StatusTimeout})
	pc.RecordFrameResult(frames.Skipped("d", "D", "no files", nil))
	pc.StoreFrameResult(frames.FrameResult{FrameID: GlobalRulesFrameID, Status: frames.StatusFailed})

	assert.Equal(t, 3, pc.Run.FramesExecuted)
	assert.Equal(t, 2, pc.Run.FramesPassed)
	assert.Equal(t, 1, pc.Run.FramesFailed)
	assert.Len(t, pc.FrameResults(), 5)
	assert.Equal(t, "a", pc.FrameResults()[0].FrameID)
}

func TestNewFindingsWithoutBaseline(t *testing.T) {
	pc := newTestContext(nil)
	list := []findings.Finding{findings.New("r", findings.SeverityHigh, "m", "a.go", 1)}
	pc.SetFindings(list)
	assert.Equal(t, list, pc.NewFindings())

	pc.SetBaselineSplit([]findings.Finding{}, list, nil)
	assert.Empty(t, pc.NewFindings())
	assert.Len(t, pc.KnownFindings(), 1)
}

func TestRunStatusIsMonotonic(t *testing.T) {
	run := &Run{Status: StatusRunning}
	run.SetStatus(StatusFailed)
	run.SetStatus(StatusCompleted)
	assert.Equal(t, StatusFailed, run.Status)

	run = &Run{Status: StatusRunning}
	run.SetStatus(StatusCompletedWithFailures)
	run.SetStatus(StatusCompleted)
	assert.Equal(t, StatusCompleted, run.Status)
}

type fakeUsage struct{ usage audit.Usage }

func (f fakeUsage) Usage() audit.Usage { return f.usage }

func TestStatusFinalizer(t *testing.T) {
	tests := []struct {
		name    string
		results []frames.FrameResult
		errors  []string
		want    RunStatus
		exit    int
	}{
		{
			name:    "clean",
			results: []frames.FrameResult{{FrameID: "a", Status: frames.StatusPassed}, {FrameID: "b", Status: frames.StatusWarning}},
			want:    StatusCompleted,
			exit:    errs.ExitCodeClean,
		},
		{
			name:    "blocker failure",
			results: []frames.FrameResult{{FrameID: "security", Status: frames.StatusFailed, IsBlocker: true}},
			want:    StatusFailed,
			exit:    errs.ExitCodePolicyFailure,
		},
		{
			name:    "non blocker failure",
			results: []frames.FrameResult{{FrameID: "style", Status: frames.StatusFailed}},
			want:    StatusCompletedWithFailures,
			exit:    errs.ExitCodePolicyFailure,
		},
		{
			name:    "pipeline error",
			results: []frames.FrameResult{{FrameID: "a", Status: frames.StatusPassed}},
			errors:  []string{"analysis failed"},
			want:    StatusFailed,
			exit:    errs.ExitCodePipelineError,
		},
		{
			name:    "skips only",
			results: []frames.FrameResult{frames.Skipped("a", "A", "no files", nil)},
			want:    StatusCompleted,
			exit:    errs.ExitCodeClean,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := newTestContext(nil)
			for _, r := range tt.results {
				pc.RecordFrameResult(r)
			}
			for _, e := range tt.errors {
				pc.AddError(e)
			}
			f := NewStatusFinalizer(map[string]UsageReporter{"audit": fakeUsage{audit.Usage{Requests: 4}}}, hclog.NewNullLogger())
			f.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

			assert.Equal(t, tt.want, f.Finalize(pc))
			assert.Equal(t, tt.want, pc.Run.Status)
			assert.Equal(t, 4, pc.Run.ExternalUsage["audit"].Requests)
			assert.False(t, pc.Run.CompletedAt.IsZero())
			assert.Equal(t, tt.exit, ExitCode(pc, nil))
		})
	}
}

func TestExitCodeBlockerFinding(t *testing.T) {
	pc := newTestContext(nil)
	pc.RecordFrameResult(frames.FrameResult{FrameID: "a", Status: frames.StatusWarning})
	blocker := findings.New("r", findings.SeverityHigh, "m", "a.go", 1)
	blocker.IsBlocker = true
	pc.SetFindings([]findings.Finding{blocker})
	assert.Equal(t, errs.ExitCodePolicyFailure, ExitCode(pc, nil))

	pc.SetBaselineSplit([]findings.Finding{}, []findings.Finding{blocker}, nil)
	assert.Equal(t, errs.ExitCodeClean, ExitCode(pc, nil))

	assert.Equal(t, errs.ExitCodePipelineError, ExitCode(pc, errors.New("boom")))
	assert.Equal(t, errs.ExitCodePipelineError, ExitCode(nil, nil))
}
