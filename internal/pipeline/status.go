package pipeline

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/audit"
	errs "github.com/scan-io-git/warden/pkg/shared/errors"
)

// UsageReporter is implemented by external services that count their calls.
type UsageReporter interface {
	Usage() audit.Usage
}

// StatusFinalizer computes the terminal status of a run.
type StatusFinalizer struct {
	services map[string]UsageReporter
	logger   hclog.Logger
	now      func() time.Time
}

func NewStatusFinalizer(services map[string]UsageReporter, logger hclog.Logger) *StatusFinalizer {
	return &StatusFinalizer{services: services, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Finalize sets the run status from errors and frame outcomes:
// errors or a blocker failure give FAILED, other failures give
// COMPLETED_WITH_FAILURES. A run already FAILED stays FAILED.
func (s *StatusFinalizer) Finalize(pc *Context) RunStatus {
	run := pc.Run
	errors := pc.Errors()
	if len(errors) > 0 {
		s.logger.Warn("pipeline has errors", "count", len(errors), "first", errors[0])
	}

	var blockerFailures, otherFailures []string
	for _, r := range pc.FrameResults() {
		if !r.Status.IsFailure() {
			continue
		}
		if r.IsBlocker {
			blockerFailures = append(blockerFailures, r.FrameID)
		} else {
			otherFailures = append(otherFailures, r.FrameID)
		}
	}

	switch {
	case len(errors) > 0 || len(blockerFailures) > 0:
		run.SetStatus(StatusFailed)
	case len(otherFailures) > 0:
		run.SetStatus(StatusCompletedWithFailures)
	default:
		run.SetStatus(StatusCompleted)
	}
	run.CompletedAt = s.now()

	for name, svc := range s.services {
		if svc == nil {
			continue
		}
		if run.ExternalUsage == nil {
			run.ExternalUsage = make(map[string]audit.Usage)
		}
		run.ExternalUsage[name] = svc.Usage()
	}

	s.logger.Info("pipeline finished", "run", run.ID, "status", run.Status,
		"executed", run.FramesExecuted, "passed", run.FramesPassed, "failed", run.FramesFailed,
		"blocker_failures", blockerFailures)
	return run.Status
}

// ExitCode maps the outcome of a run onto the CLI contract: 1 for pipeline
// errors, 2 for policy failures, 0 otherwise.
func ExitCode(pc *Context, runErr error) int {
	if runErr != nil || pc == nil {
		return errs.ExitCodePipelineError
	}
	if len(pc.Errors()) > 0 {
		return errs.ExitCodePipelineError
	}
	for _, r := range pc.FrameResults() {
		if r.Status.IsFailure() {
			return errs.ExitCodePolicyFailure
		}
	}
	for _, f := range pc.NewFindings() {
		if f.IsBlocker {
			return errs.ExitCodePolicyFailure
		}
	}
	return errs.ExitCodeClean
}
