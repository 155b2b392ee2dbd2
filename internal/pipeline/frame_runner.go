package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/cache"
	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/events"
	"github.com/scan-io-git/warden/internal/findings"
	"github.com/scan-io-git/warden/internal/frames"
	"github.com/scan-io-git/warden/internal/ignore"
	"github.com/scan-io-git/warden/internal/metrics"
	"github.com/scan-io-git/warden/internal/rules"
	"github.com/scan-io-git/warden/internal/suppression"
	"github.com/scan-io-git/warden/internal/triage"
	errs "github.com/scan-io-git/warden/pkg/shared/errors"
)

const (
	// ChunkSize is the number of files handed to a batch-capable frame at once.
	ChunkSize = 5

	fileTimeoutMax      = 300 * time.Second
	fileTimeoutLocalMin = 120 * time.Second
	fileBytesPerSecond  = 15000

	SkipReasonNoFiles         = "no files after triage filtering"
	FailureReasonPreRuleBlock = "pre_rules_blocker_violation"
)

var localProviders = map[string]bool{
	"ollama":      true,
	"claude_code": true,
	"codex":       true,
}

// FileTimeout scales the per-file budget with the file size, bounded by floor and 300s.
func FileTimeout(size int64, floor time.Duration) time.Duration {
	scaled := time.Duration(float64(size) / fileBytesPerSecond * float64(time.Second))
	if scaled > fileTimeoutMax {
		scaled = fileTimeoutMax
	}
	if scaled < floor {
		return floor
	}
	return scaled
}

// fileTimeoutFloor raises the floor for local LLM providers unless it was set explicitly.
func fileTimeoutFloor(p config.Pipeline) time.Duration {
	floor := config.SetThen(p.FileTimeoutMin, config.DefaultFileTimeoutMin)
	if os.Getenv("WARDEN_FILE_TIMEOUT_MIN") != "" {
		return floor
	}
	if localProviders[strings.ToLower(p.LLMProvider)] && floor < fileTimeoutLocalMin {
		return fileTimeoutLocalMin
	}
	return floor
}

// FrameRunner drives the lifecycle of a single frame.
type FrameRunner struct {
	cfg          *config.Config
	rules        *rules.Set
	executor     *rules.Executor
	cache        *cache.FindingsCache
	suppressions *suppression.Matcher
	deps         *DependencyChecker
	emitter      events.Emitter
	metrics      *metrics.Collector
	logger       hclog.Logger

	chunkSize    int
	frameTimeout time.Duration
	fileFloor    time.Duration
}

// RunnerOptions carries the collaborators of a FrameRunner. Nil members are allowed.
type RunnerOptions struct {
	Rules    *rules.Set
	Executor *rules.Executor
	Cache    *cache.FindingsCache
	Emitter  events.Emitter
	Metrics  *metrics.Collector
}

func NewFrameRunner(cfg *config.Config, opts RunnerOptions, logger hclog.Logger) *FrameRunner {
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.Discard
	}
	executor := opts.Executor
	if executor == nil {
		executor = rules.NewExecutor("", nil, logger)
	}
	return &FrameRunner{
		cfg:          cfg,
		rules:        opts.Rules,
		executor:     executor,
		cache:        opts.Cache,
		suppressions: suppression.NewMatcher(cfg.Suppression),
		deps:         NewDependencyChecker(logger),
		emitter:      emitter,
		metrics:      opts.Metrics,
		logger:       logger,
		chunkSize:    ChunkSize,
		frameTimeout: config.SetThen(cfg.Pipeline.FrameTimeout, config.DefaultFrameTimeout),
		fileFloor:    fileTimeoutFloor(cfg.Pipeline),
	}
}

// execution accumulates the outcome of the frame body.
type execution struct {
	findings     []findings.Finding
	filesScanned int
	cachedFiles  int
	errors       int
	timeouts     int
	messages     []string
}

func (e *execution) fail(err error, count int) {
	e.errors += count
	e.messages = append(e.messages, err.Error())
}

// Run executes frame over files and records the result in the context.
func (r *FrameRunner) Run(ctx context.Context, pc *Context, frame frames.Frame, files []*frames.CodeFile) frames.FrameResult {
	start := time.Now()
	id, name := frame.ID(), frame.Name()
	fc := r.cfg.FrameSettings(id)
	spec := frames.EffectiveSpec(frame, fc)

	if err := r.deps.Check(pc, id, spec, fc); err != nil {
		return r.finish(pc, r.deps.SkipResult(id, name, err), start)
	}

	kept, summary := triage.FilterForFrame(files, spec, r.cfg.Pipeline.IncludeTestFiles, ignore.New(fc.Ignore))
	if len(kept) == 0 {
		r.logger.Info("frame skipped, no files left", "frame", id, "total", summary.Total)
		return r.finish(pc, frames.Skipped(id, name, SkipReasonNoFiles, map[string]interface{}{
			"batch_filter": summary.AsMetadata(),
		}), start)
	}

	if c, ok := frame.(frames.Configurable); ok {
		if err := c.Configure(fc.Settings); err != nil {
			r.logger.Error("frame configuration rejected", "frame", id, "error", err)
			return r.finish(pc, frames.FrameResult{
				FrameID:   id,
				FrameName: name,
				Status:    frames.StatusError,
				Metadata:  map[string]interface{}{"errors": []string{err.Error()}},
			}, start)
		}
	}
	if a, ok := frame.(frames.ProjectContextAware); ok {
		a.SetProjectContext(pc.ProjectContext(r.cfg.IsCI()))
	}

	pre, post, onFail := r.rules.ForFrame(id)
	if spec.OnFail != "" {
		onFail = spec.OnFail
	}

	var preViolations []rules.Violation
	if len(pre) > 0 {
		r.logger.Debug("running pre rules", "frame", id, "rules", len(pre))
		preViolations = r.executor.Execute(ctx, pre, kept)
		if rules.HasBlockerViolations(preViolations) && onFail == "stop" {
			blockErr := &errs.RuleBlockerViolationError{FrameID: id, Stage: "pre", Violations: len(preViolations)}
			r.logger.Error("frame stopped", "frame", id, "error", blockErr)
			list := rules.ConvertAll(preViolations)
			tagFrame(list, id)
			return r.finish(pc, frames.FrameResult{
				FrameID:     id,
				FrameName:   name,
				Status:      frames.StatusFailed,
				IsBlocker:   true,
				IssuesFound: len(list),
				Findings:    list,
				Metadata: map[string]interface{}{
					"failure_reason": FailureReasonPreRuleBlock,
					"files_scanned":  0,
				},
			}, start)
		}
	}

	r.emitter.Emit(events.Progress(events.FrameStarted, map[string]interface{}{
		"frame_id":   id,
		"frame_name": name,
		"files":      len(kept),
	}))

	exec := r.execute(ctx, frame, spec, kept)

	if c, ok := frame.(frames.Cleanable); ok {
		if err := c.Cleanup(ctx); err != nil {
			r.logger.Warn("frame cleanup failed", "error", &errs.CleanupError{Component: "frame " + id, Err: err})
		}
	}

	list := exec.findings
	tagFrame(list, id)

	list, frameSuppressed := suppression.ApplyFrameRules(list, fc.Suppressions)
	list, globalSuppressed := r.suppressions.Apply(list, sourcesOf(kept))

	status := statusFor(list, exec)
	coverage := Coverage(kept, list)

	extra := rules.ConvertAll(preViolations)
	if len(post) > 0 {
		postViolations := r.executor.Execute(ctx, post, kept)
		if rules.HasBlockerViolations(postViolations) && onFail == "stop" {
			r.logger.Error("post rules found blocker violations", "frame", id, "violations", len(postViolations))
		}
		extra = append(extra, rules.ConvertAll(postViolations)...)
	}
	tagFrame(extra, id)
	list = append(list, extra...)

	meta := map[string]interface{}{
		"files_scanned":    exec.filesScanned,
		"execution_errors": exec.errors,
		"coverage":         coverage,
		"findings_found":   len(list),
		"cached_files":     exec.cachedFiles,
		"suppressed":       frameSuppressed + globalSuppressed,
		"batch_filter":     summary.AsMetadata(),
	}
	if len(exec.messages) > 0 {
		meta["errors"] = exec.messages
	}

	return r.finish(pc, frames.FrameResult{
		FrameID:     id,
		FrameName:   name,
		Status:      status,
		IssuesFound: len(list),
		IsBlocker:   spec.IsBlocker && status == frames.StatusFailed,
		Findings:    list,
		Metadata:    meta,
	}, start)
}

// finish stamps the duration, stores the result and reports it.
func (r *FrameRunner) finish(pc *Context, res frames.FrameResult, start time.Time) frames.FrameResult {
	res.Duration = time.Since(start)
	if res.Findings == nil {
		res.Findings = []findings.Finding{}
	}
	pc.RecordFrameResult(res)

	r.metrics.RecordFrame(res.FrameID, string(res.Status), res.Duration)
	if len(res.Findings) > 0 {
		bySeverity := make(map[string]int)
		for sev, n := range findings.CountBySeverity(res.Findings) {
			bySeverity[string(sev)] = n
		}
		r.metrics.RecordFindings(res.FrameID, bySeverity)
	}

	data := map[string]interface{}{
		"frame_id":     res.FrameID,
		"frame_name":   res.FrameName,
		"status":       string(res.Status),
		"issues_found": res.IssuesFound,
		"duration":     res.Duration.Seconds(),
	}
	if reason, ok := res.Metadata["skip_reason"]; ok {
		data["skip_reason"] = reason
	}
	r.emitter.Emit(events.Progress(events.FrameCompleted, data))
	r.logger.Info("frame completed", "frame", res.FrameID, "status", res.Status, "findings", res.IssuesFound, "duration", res.Duration)
	return res
}

func (r *FrameRunner) cacheable(frameID string, spec frames.Spec) bool {
	if r.cache == nil {
		return false
	}
	if spec.Cacheable {
		return true
	}
	for _, id := range r.cfg.Cache.CacheableFrames {
		if id == frameID {
			return true
		}
	}
	return false
}

// execute runs the frame body on files that are neither unchanged nor cached.
func (r *FrameRunner) execute(ctx context.Context, frame frames.Frame, spec frames.Spec, files []*frames.CodeFile) *execution {
	id := frame.ID()
	exec := &execution{}
	useCache := r.cacheable(id, spec)

	var pending []*frames.CodeFile
	for _, f := range files {
		if useCache {
			cached, hit := r.cache.Get(id, f.Path, f.Content)
			r.metrics.RecordCache(hit)
			if hit {
				exec.findings = append(exec.findings, cached...)
				exec.cachedFiles++
				continue
			}
		}
		if f.Unchanged() {
			exec.cachedFiles++
			continue
		}
		pending = append(pending, f)
	}
	if exec.cachedFiles > 0 {
		r.logger.Debug("files served without execution", "frame", id, "cached", exec.cachedFiles, "remaining", len(pending))
		r.emitter.Emit(events.Progress(events.ProgressUpdate, map[string]interface{}{
			"frame_id":  id,
			"increment": exec.cachedFiles,
			"details":   fmt.Sprintf("Skipped %d cached files", exec.cachedFiles),
		}))
	}

	if batch, ok := frame.(frames.BatchExecutable); ok {
		r.executeChunks(ctx, id, batch, pending, useCache, exec)
	} else {
		r.executeFiles(ctx, frame, pending, useCache, exec)
	}
	return exec
}

type batchOutcome struct {
	results []frames.FrameResult
	err     error
}

// executeChunks hands files to the frame in chunks, each bounded by the frame timeout.
// A timed out chunk contributes no results and counts each of its files as an error.
func (r *FrameRunner) executeChunks(ctx context.Context, frameID string, batch frames.BatchExecutable, files []*frames.CodeFile, useCache bool, exec *execution) {
	for i := 0; i < len(files); i += r.chunkSize {
		if ctx.Err() != nil {
			exec.fail(ctx.Err(), len(files)-i)
			return
		}
		end := i + r.chunkSize
		if end > len(files) {
			end = len(files)
		}
		chunk := files[i:end]

		chunkCtx, cancel := context.WithTimeout(ctx, r.frameTimeout)
		done := make(chan batchOutcome, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					done <- batchOutcome{err: panicError(p)}
				}
			}()
			results, err := batch.ExecuteBatch(chunkCtx, chunk)
			done <- batchOutcome{results: results, err: err}
		}()

		var out batchOutcome
		select {
		case out = <-done:
		case <-chunkCtx.Done():
			out.err = chunkCtx.Err()
		}
		timedOut := out.err != nil && errors.Is(chunkCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		switch {
		case timedOut:
			r.logger.Warn("frame chunk timed out", "frame", frameID, "files", len(chunk), "timeout", r.frameTimeout)
			r.metrics.RecordChunkTimeout(frameID)
			exec.fail(errs.NewFrameTimeoutError(frameID, fmt.Sprintf("chunk of %d files", len(chunk)), r.frameTimeout), len(chunk))
			exec.timeouts += len(chunk)
		case out.err != nil:
			r.logger.Error("frame batch failed", "frame", frameID, "files", len(chunk), "error", out.err)
			exec.fail(errs.NewFrameExecutionError(frameID, fmt.Sprintf("chunk of %d files", len(chunk)), out.err), 1)
		default:
			var chunkFindings []findings.Finding
			for _, res := range out.results {
				chunkFindings = append(chunkFindings, res.Findings...)
			}
			exec.findings = append(exec.findings, chunkFindings...)
			exec.filesScanned += len(out.results)
			if useCache {
				r.cacheChunk(frameID, chunk, chunkFindings)
			}
		}

		r.emitter.Emit(events.Progress(events.ProgressUpdate, map[string]interface{}{
			"frame_id":  frameID,
			"increment": len(chunk),
		}))
	}
}

func (r *FrameRunner) cacheChunk(frameID string, chunk []*frames.CodeFile, list []findings.Finding) {
	byFile := make(map[string][]findings.Finding, len(chunk))
	for _, f := range list {
		byFile[f.FilePath()] = append(byFile[f.FilePath()], f)
	}
	for _, f := range chunk {
		r.cache.Put(frameID, f.Path, f.Content, byFile[f.Path])
	}
}

type fileOutcome struct {
	result frames.FrameResult
	err    error
}

// executeFiles runs the frame file by file with a size-proportional timeout.
func (r *FrameRunner) executeFiles(ctx context.Context, frame frames.Frame, files []*frames.CodeFile, useCache bool, exec *execution) {
	id := frame.ID()
	for i, f := range files {
		if ctx.Err() != nil {
			exec.fail(ctx.Err(), len(files)-i)
			return
		}
		timeout := FileTimeout(f.Size, r.fileFloor)
		fileCtx, cancel := context.WithTimeout(ctx, timeout)
		done := make(chan fileOutcome, 1)
		go func(f *frames.CodeFile) {
			defer func() {
				if p := recover(); p != nil {
					done <- fileOutcome{err: panicError(p)}
				}
			}()
			res, err := frame.Execute(fileCtx, f)
			done <- fileOutcome{result: res, err: err}
		}(f)

		var out fileOutcome
		select {
		case out = <-done:
		case <-fileCtx.Done():
			out.err = fileCtx.Err()
		}
		timedOut := out.err != nil && errors.Is(fileCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		switch {
		case timedOut:
			r.logger.Warn("frame timed out on file", "frame", id, "file", f.Path, "timeout", timeout, "size", f.Size)
			exec.fail(errs.NewFrameTimeoutError(id, f.Path, timeout), 1)
			exec.timeouts++
		case out.err != nil:
			r.logger.Error("frame failed on file", "frame", id, "file", f.Path, "error", out.err)
			exec.fail(errs.NewFrameExecutionError(id, f.Path, out.err), 1)
		default:
			exec.findings = append(exec.findings, out.result.Findings...)
			exec.filesScanned++
			if useCache {
				r.cache.Put(id, f.Path, f.Content, out.result.Findings)
			}
		}

		r.emitter.Emit(events.Progress(events.ProgressUpdate, map[string]interface{}{
			"frame_id":  id,
			"file":      f.Path,
			"increment": 1,
		}))
	}
}

func panicError(p interface{}) error {
	return fmt.Errorf("frame panicked: %v", p)
}

// statusFor derives the frame status from severities. A body that never
// produced a result reports timeout or error instead.
func statusFor(list []findings.Finding, exec *execution) frames.Status {
	if exec.filesScanned == 0 && exec.cachedFiles == 0 && exec.errors > 0 {
		if exec.timeouts == exec.errors {
			return frames.StatusTimeout
		}
		return frames.StatusError
	}
	status := frames.StatusPassed
	for _, f := range list {
		switch f.Severity {
		case findings.SeverityCritical:
			return frames.StatusFailed
		case findings.SeverityHigh:
			status = frames.StatusWarning
		}
	}
	return status
}

// Coverage is the share of considered files without critical or high findings, in percent.
func Coverage(files []*frames.CodeFile, list []findings.Finding) float64 {
	if len(files) == 0 {
		return 0
	}
	affected := make(map[string]bool)
	for _, f := range list {
		if f.Severity == findings.SeverityCritical || f.Severity == findings.SeverityHigh {
			affected[f.FilePath()] = true
		}
	}
	clean := 0
	for _, f := range files {
		if !affected[f.Path] {
			clean++
		}
	}
	return float64(clean) / float64(len(files)) * 100
}

func tagFrame(list []findings.Finding, frameID string) {
	for i := range list {
		if list[i].FrameID == "" {
			list[i].FrameID = frameID
		}
	}
}

func sourcesOf(files []*frames.CodeFile) map[string]string {
	out := make(map[string]string, len(files))
	for _, f := range files {
		out[f.Path] = f.Content
	}
	return out
}
