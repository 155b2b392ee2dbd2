package pipeline

import (
	"context"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/frames"
	"github.com/scan-io-git/warden/pkg/shared"
)

// Execution strategies of the validation phase.
const (
	StrategySequential = "sequential"
	StrategyParallel   = "parallel"
	StrategyFailFast   = "fail_fast"
	StrategyPipeline   = "pipeline"
)

type frameFunc func(f frames.Frame) frames.FrameResult

// scheduler runs frames according to a strategy. Frame results reach the
// context through the runner, so the scheduler only decides ordering.
type scheduler struct {
	strategy string
	limit    int
	requires map[string][]string
	logger   hclog.Logger
}

func (s *scheduler) run(ctx context.Context, list []frames.Frame, run frameFunc) {
	switch s.strategy {
	case StrategyParallel:
		s.parallel(ctx, list, run)
	case StrategyFailFast:
		s.failFast(ctx, list, run)
	case StrategyPipeline:
		s.pipeline(ctx, list, run)
	default:
		s.sequential(ctx, list, run)
	}
}

func (s *scheduler) sequential(ctx context.Context, list []frames.Frame, run frameFunc) {
	for _, f := range list {
		if ctx.Err() != nil {
			return
		}
		run(f)
	}
}

func (s *scheduler) parallel(ctx context.Context, list []frames.Frame, run frameFunc) {
	limit := s.limit
	if limit < 1 {
		limit = 1
	}
	shared.ForEachWithBoundedGoroutines(limit, list, func(_ int, f frames.Frame) {
		if ctx.Err() != nil {
			return
		}
		run(f)
	})
}

// failFast stops after the first blocker failure.
func (s *scheduler) failFast(ctx context.Context, list []frames.Frame, run frameFunc) {
	for i, f := range list {
		if ctx.Err() != nil {
			return
		}
		res := run(f)
		if res.IsBlocker && res.Status.IsFailure() {
			s.logger.Info("stopping on blocker failure", "frame", f.ID(), "remaining", len(list)-i-1)
			return
		}
	}
}

// pipeline runs frames in waves once every required frame of the selection
// has completed. Frames left waiting on something that can never complete are
// run anyway so the dependency checker records them as skipped.
func (s *scheduler) pipeline(ctx context.Context, list []frames.Frame, run frameFunc) {
	completed := make(map[string]bool, len(list))
	pending := append([]frames.Frame(nil), list...)

	for len(pending) > 0 {
		if ctx.Err() != nil {
			return
		}
		var ready, waiting []frames.Frame
		for _, f := range pending {
			if s.dependenciesMet(f.ID(), completed) {
				ready = append(ready, f)
			} else {
				waiting = append(waiting, f)
			}
		}

		if len(ready) == 0 {
			ids := make([]string, 0, len(waiting))
			for _, f := range waiting {
				ids = append(ids, f.ID())
			}
			sort.Strings(ids)
			s.logger.Error("frame dependency deadlock", "pending", ids)
			s.sequential(ctx, waiting, run)
			return
		}

		s.parallel(ctx, ready, run)
		for _, f := range ready {
			completed[f.ID()] = true
		}
		pending = waiting
	}
}

func (s *scheduler) dependenciesMet(frameID string, completed map[string]bool) bool {
	for _, dep := range s.requires[frameID] {
		if !completed[dep] {
			return false
		}
	}
	return true
}
