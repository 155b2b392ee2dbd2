package pipeline

import (
	"strings"
	"sync"

	"github.com/scan-io-git/warden/internal/audit"
	"github.com/scan-io-git/warden/internal/baseline"
	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/findings"
	"github.com/scan-io-git/warden/internal/frames"
	"github.com/scan-io-git/warden/internal/triage"
)

// Context fields that can be required by frames or checked as phase preconditions.
const (
	FieldSelectedFrames          = "selected_frames"
	FieldClassificationReasoning = "classification_reasoning"
	FieldFindings                = "findings"
	FieldTriageDecisions         = "triage_decisions"
	FieldProjectMetrics          = "project_metrics"
	FieldQualityMetrics          = "quality_metrics"
	FieldCodeGraph               = "code_graph"
	FieldTaintPaths              = "taint_paths"
	FieldAuditValidation         = "audit_validation"
	FieldFrameResults            = "frame_results"
)

// Context is the shared state of one run. Phases mutate it one at a time;
// frames running concurrently go through the locked setters.
type Context struct {
	mu sync.Mutex

	Run   *Run
	Root  string
	Files []*frames.CodeFile

	currentPhase Phase
	present      map[string]bool

	frameResults map[string]frames.FrameResult
	frameOrder   []string
	findings     []findings.Finding
	errors       []string
	warnings     []string

	selectedFrames          []string
	classificationReasoning string
	triageDecisions         map[string]triage.Decision
	projectMetrics          ProjectMetrics
	qualityMetrics          map[string]interface{}
	codeGraph               *audit.CodeGraph
	taintPaths              []TaintPath
	auditValidation         audit.Validation

	knownFindings  []findings.Finding
	newFindings    []findings.Finding
	debtUpdates    []baseline.DebtUpdate
	fortifications []Fortification
	cleanups       []CleaningSuggestion
}

// NewContext creates the context of a run over the discovered files.
func NewContext(run *Run, root string, files []*frames.CodeFile) *Context {
	return &Context{
		Run:          run,
		Root:         root,
		Files:        files,
		present:      make(map[string]bool),
		frameResults: make(map[string]frames.FrameResult),
	}
}

func (c *Context) mark(field string) { c.present[field] = true }

// Has reports whether a field was ever set during this run.
func (c *Context) Has(field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if field == FieldFrameResults {
		return len(c.frameResults) > 0
	}
	return c.present[field]
}

// Lookup resolves a dot-separated path such as "project_metrics.languages".
// The second value is false when the field was never set or the path does not resolve.
func (c *Context) Lookup(path string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	head, rest, nested := strings.Cut(path, ".")
	if head != FieldFrameResults && !c.present[head] {
		return nil, false
	}

	var value interface{}
	switch head {
	case FieldSelectedFrames:
		value = append([]string(nil), c.selectedFrames...)
	case FieldClassificationReasoning:
		value = c.classificationReasoning
	case FieldFindings:
		value = append([]findings.Finding(nil), c.findings...)
	case FieldTriageDecisions:
		if nested {
			d, ok := c.triageDecisions[rest]
			return d, ok
		}
		value = c.triageDecisions
	case FieldProjectMetrics:
		if nested {
			return c.projectMetrics.lookup(rest)
		}
		value = c.projectMetrics
	case FieldQualityMetrics:
		if nested {
			return config.LookupSetting(c.qualityMetrics, rest)
		}
		value = c.qualityMetrics
	case FieldCodeGraph:
		if c.codeGraph == nil {
			return nil, false
		}
		value = c.codeGraph
	case FieldTaintPaths:
		value = append([]TaintPath(nil), c.taintPaths...)
	case FieldAuditValidation:
		if nested {
			return config.LookupSetting(c.auditValidation.Summary(), rest)
		}
		value = c.auditValidation
	case FieldFrameResults:
		if nested {
			r, ok := c.frameResults[rest]
			return r, ok
		}
		if len(c.frameResults) == 0 {
			return nil, false
		}
		value = len(c.frameResults)
	default:
		return nil, false
	}
	if nested {
		return nil, false
	}
	return value, true
}

// CurrentPhase returns the phase being executed.
func (c *Context) CurrentPhase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPhase
}

func (c *Context) setPhase(p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentPhase = p
}

// AddError records a pipeline error. Any error makes the run FAILED.
func (c *Context) AddError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, msg)
}

// AddWarning records a non-fatal problem.
func (c *Context) AddWarning(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, msg)
}

func (c *Context) Errors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.errors...)
}

func (c *Context) Warnings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.warnings...)
}

// RecordFrameResult stores a frame outcome keyed by frame id and updates the
// run counters. Skips are stored but not counted.
func (c *Context) RecordFrameResult(r frames.FrameResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(r)
	if r.Status == frames.StatusSkipped || c.Run == nil {
		return
	}
	c.Run.FramesExecuted++
	switch {
	case r.Status.IsFailure():
		c.Run.FramesFailed++
	default:
		c.Run.FramesPassed++
	}
}

// StoreFrameResult stores a synthetic result without touching the counters.
func (c *Context) StoreFrameResult(r frames.FrameResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(r)
}

func (c *Context) storeLocked(r frames.FrameResult) {
	if _, exists := c.frameResults[r.FrameID]; !exists {
		c.frameOrder = append(c.frameOrder, r.FrameID)
	}
	c.frameResults[r.FrameID] = r
}

// FrameResult returns the stored result of a frame.
func (c *Context) FrameResult(frameID string) (frames.FrameResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.frameResults[frameID]
	return r, ok
}

// FrameResults returns stored results in the order they were first recorded.
func (c *Context) FrameResults() []frames.FrameResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frames.FrameResult, 0, len(c.frameOrder))
	for _, id := range c.frameOrder {
		out = append(out, c.frameResults[id])
	}
	return out
}

func (c *Context) SetSelectedFrames(ids []string, reasoning string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedFrames = append([]string(nil), ids...)
	c.classificationReasoning = reasoning
	c.mark(FieldSelectedFrames)
	c.mark(FieldClassificationReasoning)
}

func (c *Context) SelectedFrames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.selectedFrames...)
}

func (c *Context) ClassificationReasoning() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classificationReasoning
}

// SetFindings replaces the accumulated findings.
func (c *Context) SetFindings(list []findings.Finding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.findings = append([]findings.Finding{}, list...)
	c.mark(FieldFindings)
}

func (c *Context) Findings() []findings.Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]findings.Finding(nil), c.findings...)
}

func (c *Context) SetTriageDecisions(d map[string]triage.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.triageDecisions = d
	c.mark(FieldTriageDecisions)
}

func (c *Context) TriageDecisions() map[string]triage.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triageDecisions
}

func (c *Context) SetProjectMetrics(m ProjectMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projectMetrics = m
	c.mark(FieldProjectMetrics)
}

func (c *Context) ProjectMetrics() ProjectMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectMetrics
}

func (c *Context) SetQualityMetrics(m map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qualityMetrics = m
	c.mark(FieldQualityMetrics)
}

func (c *Context) SetCodeGraph(g *audit.CodeGraph) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codeGraph = g
	c.mark(FieldCodeGraph)
}

func (c *Context) CodeGraph() *audit.CodeGraph {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codeGraph
}

func (c *Context) SetTaintPaths(p []TaintPath) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taintPaths = append([]TaintPath(nil), p...)
	c.mark(FieldTaintPaths)
}

func (c *Context) TaintPaths() []TaintPath {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TaintPath(nil), c.taintPaths...)
}

func (c *Context) SetAuditValidation(v audit.Validation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auditValidation = v
	c.mark(FieldAuditValidation)
}

// AuditValidation returns the audit summary and whether the LSP phase produced one.
func (c *Context) AuditValidation() (audit.Validation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auditValidation, c.present[FieldAuditValidation]
}

// SetBaselineSplit records which findings were already known to the baseline.
func (c *Context) SetBaselineSplit(fresh, known []findings.Finding, updates []baseline.DebtUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newFindings = fresh
	c.knownFindings = known
	c.debtUpdates = updates
}

// NewFindings returns findings absent from the baseline, or every finding
// when the baseline phase did not run.
func (c *Context) NewFindings() []findings.Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.newFindings == nil && c.knownFindings == nil {
		return append([]findings.Finding(nil), c.findings...)
	}
	return append([]findings.Finding(nil), c.newFindings...)
}

func (c *Context) KnownFindings() []findings.Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]findings.Finding(nil), c.knownFindings...)
}

func (c *Context) DebtUpdates() []baseline.DebtUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]baseline.DebtUpdate(nil), c.debtUpdates...)
}

func (c *Context) SetFortifications(f []Fortification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fortifications = f
}

func (c *Context) Fortifications() []Fortification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Fortification(nil), c.fortifications...)
}

func (c *Context) SetCleaningSuggestions(s []CleaningSuggestion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = s
}

func (c *Context) CleaningSuggestions() []CleaningSuggestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CleaningSuggestion(nil), c.cleanups...)
}

// ProjectContext is what ProjectContextAware frames receive.
func (c *Context) ProjectContext(ciMode bool) frames.ProjectContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return frames.ProjectContext{
		Root:      c.Root,
		Languages: c.projectMetrics.Languages,
		CIMode:    ciMode,
	}
}

func cutPath(path string) (head, rest string, nested bool) {
	return strings.Cut(path, ".")
}
