package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/audit"
	"github.com/scan-io-git/warden/internal/baseline"
	"github.com/scan-io-git/warden/internal/cache"
	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/events"
	"github.com/scan-io-git/warden/internal/frames"
	"github.com/scan-io-git/warden/internal/metrics"
	"github.com/scan-io-git/warden/internal/rules"
	"github.com/scan-io-git/warden/internal/triage"
	errs "github.com/scan-io-git/warden/pkg/shared/errors"
)

// Closer is released once the run is over, whatever its outcome.
type Closer interface {
	Close() error
}

// CloserFunc adapts a function to Closer.
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }

// Options wire an Orchestrator. Only Config and Registry are required.
type Options struct {
	Config        *config.Config
	Registry      *frames.Registry
	Rules         *rules.Set
	Executor      *rules.Executor
	Cache         *cache.FindingsCache
	Baseline      *baseline.Manager
	Audit         *audit.ResilientService
	Collaborators Collaborators
	Emitter       events.Emitter
	Metrics       *metrics.Collector
	Closers       map[string]Closer
	Logger        hclog.Logger
}

// Orchestrator runs every phase of a pipeline over a set of files.
type Orchestrator struct {
	cfg       *config.Config
	registry  *frames.Registry
	rules     *rules.Set
	executor  *rules.Executor
	cache     *cache.FindingsCache
	baseline  *baseline.Manager
	audit     *audit.ResilientService
	collab    Collaborators
	router    *triage.Router
	runner    *FrameRunner
	finalizer *StatusFinalizer
	emitter   events.Emitter
	metrics   *metrics.Collector
	closers   map[string]Closer
	logger    hclog.Logger
}

func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.Discard
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	executor := opts.Executor
	if executor == nil {
		executor = rules.NewExecutor("", nil, logger.Named("rules"))
	}

	services := map[string]UsageReporter{}
	if opts.Audit != nil {
		services["audit"] = opts.Audit
	}

	return &Orchestrator{
		cfg:      cfg,
		registry: opts.Registry,
		rules:    opts.Rules,
		executor: executor,
		cache:    opts.Cache,
		baseline: opts.Baseline,
		audit:    opts.Audit,
		collab:   opts.Collaborators,
		router: triage.NewRouter(opts.Collaborators.Scorer, triage.Options{
			HeuristicOnly: cfg.Triage.HeuristicOnly || triage.IsSingleTierProvider(cfg.Pipeline.LLMProvider),
			SafeMaxBytes:  cfg.Triage.SafeMaxBytes,
		}, logger.Named("triage")),
		runner: NewFrameRunner(cfg, RunnerOptions{
			Rules:    opts.Rules,
			Executor: executor,
			Cache:    opts.Cache,
			Emitter:  emitter,
			Metrics:  opts.Metrics,
		}, logger.Named("frames")),
		finalizer: NewStatusFinalizer(services, logger),
		emitter:   emitter,
		metrics:   opts.Metrics,
		closers:   opts.Closers,
		logger:    logger,
	}
}

// Execute runs all phases under the pipeline timeout. The returned context is
// always finalized; the error is non-nil only for a pipeline timeout or a
// cancelled parent context.
func (o *Orchestrator) Execute(ctx context.Context, run *Run, root string, files []*frames.CodeFile, manualFrames []string) (*Context, error) {
	pc := NewContext(run, root, files)
	defer o.cleanup()
	timeout := config.SetThen(o.cfg.Pipeline.Timeout, config.DefaultPipelineTimeout)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	o.logger.Info("pipeline started", "run", run.ID, "files", len(files), "strategy", o.cfg.Pipeline.Strategy, "timeout", timeout)

	err := o.runPhases(runCtx, pc, manualFrames)
	if err == nil && runCtx.Err() != nil {
		err = runCtx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = &errs.PipelineTimeoutError{Timeout: timeout, Phase: string(pc.CurrentPhase())}
	}
	if err != nil {
		o.logger.Error("pipeline aborted", "phase", pc.CurrentPhase(), "error", err)
		pc.AddError(err.Error())
	}

	o.finalize(pc)
	return pc, err
}

func (o *Orchestrator) finalize(pc *Context) {
	pc.setPhase(PhaseFinalize)
	start := time.Now()
	o.emitter.Emit(events.Progress(events.PhaseStarted, map[string]interface{}{"phase": string(PhaseFinalize)}))

	status := o.finalizer.Finalize(pc)
	if err := o.cache.Flush(); err != nil {
		o.logger.Warn("failed to persist findings cache", "error", err)
	}

	o.metrics.RecordPhase(string(PhaseFinalize), time.Since(start))
	o.emitter.Emit(events.Progress(events.PhaseCompleted, map[string]interface{}{
		"phase":    string(PhaseFinalize),
		"duration": time.Since(start).Seconds(),
	}))
	o.emitter.Emit(events.Result(events.PipelineCompleted, map[string]interface{}{
		"run_id":          pc.Run.ID,
		"status":          string(status),
		"frames_executed": pc.Run.FramesExecuted,
		"frames_passed":   pc.Run.FramesPassed,
		"frames_failed":   pc.Run.FramesFailed,
		"findings":        len(pc.Findings()),
		"new_findings":    len(pc.NewFindings()),
	}))
}

// cleanup releases external handles. Failures are logged and swallowed.
func (o *Orchestrator) cleanup() {
	for name, c := range o.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			o.logger.Warn("cleanup failed", "error", &errs.CleanupError{Component: name, Err: err})
		}
	}
}
