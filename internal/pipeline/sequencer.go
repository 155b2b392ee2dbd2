package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scan-io-git/warden/internal/baseline"
	"github.com/scan-io-git/warden/internal/events"
	"github.com/scan-io-git/warden/internal/findings"
	"github.com/scan-io-git/warden/internal/frames"
	"github.com/scan-io-git/warden/internal/rules"
	"github.com/scan-io-git/warden/internal/triage"
)

// GlobalRulesFrameID is the synthetic frame holding global rule violations.
const GlobalRulesFrameID = "global_script_rules"

type phaseFunc func(ctx context.Context, pc *Context) error

// runPhases executes every phase up to Baseline in order. Finalize runs
// separately so that it also covers aborted runs.
func (o *Orchestrator) runPhases(ctx context.Context, pc *Context, manualFrames []string) error {
	steps := map[Phase]phaseFunc{
		PhasePreAnalysis:    o.preAnalysis,
		PhaseTriage:         o.triage,
		PhaseAnalysis:       o.analysis,
		PhaseClassification: o.classification,
		PhaseValidation:     o.validation,
		PhaseLSPDiagnostics: o.lspDiagnostics,
		PhaseVerification:   o.verification,
		PhaseFortification:  o.fortification,
		PhaseCleaning:       o.cleaning,
		PhaseBaseline:       o.applyBaseline,
	}

	for _, phase := range Order {
		if phase == PhaseFinalize {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if reason, skip := o.skipReason(phase, pc, manualFrames); skip {
			if phase == PhaseClassification && reason == SkipManualOverride {
				pc.SetSelectedFrames(manualFrames, ManualSelectionReason)
				o.logger.Info("using manual frame selection", "frames", manualFrames)
			}
			o.logger.Info("phase skipped", "phase", phase, "reason", reason)
			o.emitter.Emit(events.Progress(events.PhaseSkipped, map[string]interface{}{
				"phase":  string(phase),
				"reason": reason,
			}))
			continue
		}

		if field, ok := preconditions[phase]; ok && !pc.Has(field) {
			o.logger.Warn("precondition not met", "phase", phase, "field", field)
			pc.AddWarning(fmt.Sprintf("%s: precondition %s not met", phase, field))
		}

		pc.setPhase(phase)
		start := time.Now()
		o.emitter.Emit(events.Progress(events.PhaseStarted, map[string]interface{}{
			"phase": string(phase),
			"files": len(pc.Files),
		}))

		err := steps[phase](ctx, pc)

		o.metrics.RecordPhase(string(phase), time.Since(start))
		o.emitter.Emit(events.Progress(events.PhaseCompleted, map[string]interface{}{
			"phase":    string(phase),
			"duration": time.Since(start).Seconds(),
		}))

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			o.logger.Error("phase failed", "phase", phase, "error", err)
			pc.AddError(fmt.Sprintf("%s failed: %v", phase, err))
		}
	}
	return nil
}

func (o *Orchestrator) skipReason(phase Phase, pc *Context, manualFrames []string) (string, bool) {
	switch {
	case !o.cfg.PhaseEnabled(string(phase)):
		return SkipDisabledInConfig, true
	case disabledInCI[phase] && o.cfg.IsCI():
		return SkipCIMode, true
	case phase == PhaseClassification && len(manualFrames) > 0:
		return SkipManualOverride, true
	case phase == PhaseLSPDiagnostics && (o.audit == nil || !o.audit.IsAvailable()):
		return SkipNoAuditService, true
	}
	return "", false
}

func (o *Orchestrator) preAnalysis(_ context.Context, pc *Context) error {
	metrics := ProjectMetrics{
		Languages: make(map[string]int),
		Contexts:  make(map[frames.FileContext]int),
	}
	for _, f := range pc.Files {
		if f.Language == "" {
			f.Language = frames.DetectLanguage(f.Path)
		}
		if _, ok := f.Metadata[frames.MetaContext]; !ok {
			f.SetContext(triage.DetectContext(f.Path))
		}
		metrics.Files++
		metrics.Bytes += f.Size
		metrics.Lines += countLines(f.Content)
		if f.Language != "" {
			metrics.Languages[f.Language]++
		}
		metrics.Contexts[f.Context()]++
	}
	pc.SetProjectMetrics(metrics)
	o.logger.Debug("project metrics", "files", metrics.Files, "lines", metrics.Lines, "languages", len(metrics.Languages))
	return nil
}

func (o *Orchestrator) triage(ctx context.Context, pc *Context) error {
	decisions := o.router.Assign(ctx, pc.Files)
	pc.SetTriageDecisions(decisions)

	counts := map[string]int{}
	for _, d := range decisions {
		counts[d.Lane.String()]++
	}
	o.emitter.Emit(events.Progress(events.ProgressUpdate, map[string]interface{}{
		"phase": string(PhaseTriage),
		"lanes": counts,
	}))
	return nil
}

func (o *Orchestrator) analysis(ctx context.Context, pc *Context) error {
	if o.collab.Graph != nil {
		graph, err := o.collab.Graph.BuildGraph(ctx, pc.Files)
		if err != nil {
			pc.AddWarning(fmt.Sprintf("code graph unavailable: %v", err))
		} else if graph != nil {
			pc.SetCodeGraph(graph)
		}
	}
	if o.collab.Analyzer == nil {
		return nil
	}
	report, err := o.collab.Analyzer.Analyze(ctx, pc.Files)
	if err != nil {
		return fmt.Errorf("analyzer failed: %w", err)
	}
	if report.QualityMetrics != nil {
		pc.SetQualityMetrics(report.QualityMetrics)
	}
	if report.TaintPaths != nil {
		pc.SetTaintPaths(report.TaintPaths)
	}
	return nil
}

// enabledFrames returns registered frames not switched off in the configuration.
func (o *Orchestrator) enabledFrames() []frames.Frame {
	var out []frames.Frame
	for _, f := range o.registry.All() {
		fc := o.cfg.FrameSettings(f.ID())
		if fc.Enabled != nil && !*fc.Enabled {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (o *Orchestrator) classification(ctx context.Context, pc *Context) error {
	available := o.enabledFrames()
	if o.collab.Classifier != nil {
		selected, reasoning, err := o.collab.Classifier.Classify(ctx, pc.Files, available)
		if err == nil {
			pc.SetSelectedFrames(selected, reasoning)
			return nil
		}
		o.logger.Warn("classifier failed, selecting every enabled frame", "error", err)
		pc.AddWarning(fmt.Sprintf("classification fell back to all frames: %v", err))
	}
	ids := make([]string, 0, len(available))
	for _, f := range available {
		ids = append(ids, f.ID())
	}
	pc.SetSelectedFrames(ids, "All enabled frames selected")
	return nil
}

// framesToRun resolves the selected ids against the registry, in priority order.
func (o *Orchestrator) framesToRun(pc *Context) []frames.Frame {
	var list []frames.Frame
	for _, id := range pc.SelectedFrames() {
		f, ok := o.registry.Get(id)
		if !ok {
			o.logger.Warn("selected frame is not registered", "frame", id)
			pc.AddWarning(fmt.Sprintf("unknown frame %q", id))
			continue
		}
		list = append(list, f)
	}
	frames.SortByPriority(list)
	return list
}

func (o *Orchestrator) validation(ctx context.Context, pc *Context) error {
	list := o.framesToRun(pc)
	if len(list) == 0 {
		o.logger.Warn("no frames to execute", "selected", pc.SelectedFrames())
	}

	requires := make(map[string][]string, len(list))
	for _, f := range list {
		requires[f.ID()] = frames.EffectiveSpec(f, o.cfg.FrameSettings(f.ID())).RequiresFrames
	}
	s := &scheduler{
		strategy: o.cfg.Pipeline.Strategy,
		limit:    o.cfg.Pipeline.ParallelLimit,
		requires: requires,
		logger:   o.logger,
	}
	s.run(ctx, list, func(f frames.Frame) frames.FrameResult {
		return o.runner.Run(ctx, pc, f, pc.Files)
	})

	o.runGlobalRules(ctx, pc)

	var all []findings.Finding
	for _, r := range pc.FrameResults() {
		all = append(all, r.Findings...)
	}
	pc.SetFindings(all)
	return nil
}

// runGlobalRules applies rules listed under global_rules to every production file.
func (o *Orchestrator) runGlobalRules(ctx context.Context, pc *Context) {
	global := o.rules.Global()
	if len(global) == 0 {
		return
	}
	start := time.Now()
	files, _ := triage.FilterForFrame(pc.Files, frames.Spec{}, o.cfg.Pipeline.IncludeTestFiles, nil)
	violations := o.executor.Execute(ctx, global, files)
	if len(violations) == 0 {
		return
	}
	o.logger.Info("global rules found violations", "count", len(violations))

	list := rules.ConvertAll(violations)
	tagFrame(list, GlobalRulesFrameID)
	pc.StoreFrameResult(frames.FrameResult{
		FrameID:     GlobalRulesFrameID,
		FrameName:   "Global Script Rules",
		Status:      frames.StatusFailed,
		Duration:    time.Since(start),
		IssuesFound: len(list),
		IsBlocker:   rules.HasBlockerViolations(violations),
		Findings:    list,
		Metadata:    map[string]interface{}{"engine": "warden_rules"},
	})
}

func (o *Orchestrator) lspDiagnostics(ctx context.Context, pc *Context) error {
	graph := pc.CodeGraph()
	if graph == nil {
		o.logger.Debug("no code graph, audit skipped")
		return nil
	}
	validation := o.audit.ValidateGraph(ctx, graph)
	pc.SetAuditValidation(validation)
	if !o.audit.IsAvailable() {
		pc.AddWarning("audit service disabled after repeated failures")
	}
	o.logger.Info("audit completed", "confirmed", validation.Confirmed, "unconfirmed", validation.Unconfirmed,
		"errors", validation.Errors, "dead_symbols", len(validation.DeadSymbols))
	return nil
}

func (o *Orchestrator) verification(ctx context.Context, pc *Context) error {
	list := findings.DedupeByLocation(pc.Findings())
	if o.collab.Verifier != nil {
		verified, err := o.collab.Verifier.Verify(ctx, list)
		if err != nil {
			pc.AddWarning(fmt.Sprintf("verification skipped: %v", err))
		} else {
			o.logger.Info("findings verified", "before", len(list), "after", len(verified))
			list = verified
		}
	}
	pc.SetFindings(list)
	return nil
}

func (o *Orchestrator) fortification(ctx context.Context, pc *Context) error {
	if o.collab.Fortifier == nil {
		o.logger.Debug("no fortifier configured")
		return nil
	}
	fixes, err := o.collab.Fortifier.Fortify(ctx, pc.Findings(), pc.Files)
	if err != nil {
		return fmt.Errorf("fortifier failed: %w", err)
	}
	pc.SetFortifications(fixes)
	return nil
}

func (o *Orchestrator) cleaning(ctx context.Context, pc *Context) error {
	if o.collab.Cleaner == nil {
		o.logger.Debug("no cleaner configured")
		return nil
	}
	suggestions, err := o.collab.Cleaner.Clean(ctx, pc.Files)
	if err != nil {
		return fmt.Errorf("cleaner failed: %w", err)
	}
	pc.SetCleaningSuggestions(suggestions)
	return nil
}

// applyBaseline splits findings into new and known and, when configured,
// updates the per-module debt.
func (o *Orchestrator) applyBaseline(_ context.Context, pc *Context) error {
	if o.baseline == nil {
		return nil
	}
	current := pc.Findings()
	fresh, known, err := o.baseline.FilterKnown(current)
	if err != nil {
		pc.AddWarning(fmt.Sprintf("baseline unreadable: %v", err))
		return nil
	}

	var updates []baseline.DebtUpdate
	if o.cfg.Baseline.Update {
		updates, err = o.baseline.UpdateAll(current)
		if err != nil {
			return fmt.Errorf("failed to update baseline: %w", err)
		}
	}
	if fresh == nil {
		fresh = []findings.Finding{}
	}
	if known == nil {
		known = []findings.Finding{}
	}
	pc.SetBaselineSplit(fresh, known, updates)
	o.logger.Info("baseline applied", "new", len(fresh), "known", len(known), "modules_updated", len(updates))
	return nil
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}
