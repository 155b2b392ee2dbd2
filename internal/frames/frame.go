// Package frames defines the analyzer unit contract and the values exchanged with the pipeline.
package frames

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/findings"
)

// Lane is the triage cost tier of a file.
type Lane int

const (
	FastLane Lane = iota
	MiddleLane
	DeepLane
)

func (l Lane) String() string {
	switch l {
	case FastLane:
		return "fast_lane"
	case DeepLane:
		return "deep_lane"
	default:
		return "middle_lane"
	}
}

// ParseLane accepts both "fast_lane" and "fast" spellings.
func ParseLane(raw string) (Lane, bool) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "_lane") {
	case "fast":
		return FastLane, true
	case "middle":
		return MiddleLane, true
	case "deep":
		return DeepLane, true
	}
	return MiddleLane, false
}

// FileContext classifies what a file is used for.
type FileContext string

const (
	ContextProduction    FileContext = "PRODUCTION"
	ContextTest          FileContext = "TEST"
	ContextExample       FileContext = "EXAMPLE"
	ContextDocumentation FileContext = "DOCUMENTATION"
	ContextConfiguration FileContext = "CONFIGURATION"
	ContextGenerated     FileContext = "GENERATED"
)

// Metadata keys written onto CodeFile by earlier phases.
const (
	MetaLane      = "triage_lane"
	MetaContext   = "file_context"
	MetaAST       = "ast"
	MetaUnchanged = "unchanged"
)

// CodeFile is one scan input. Only metadata is updated after creation.
type CodeFile struct {
	Path     string                 `json:"path"`
	Content  string                 `json:"-"`
	Language string                 `json:"language"`
	Size     int64                  `json:"size"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewCodeFile builds a CodeFile with its size taken from content.
func NewCodeFile(path, content, language string) *CodeFile {
	return &CodeFile{
		Path:     path,
		Content:  content,
		Language: language,
		Size:     int64(len(content)),
		Metadata: make(map[string]interface{}),
	}
}

func (f *CodeFile) set(key string, value interface{}) {
	if f.Metadata == nil {
		f.Metadata = make(map[string]interface{})
	}
	f.Metadata[key] = value
}

// Lane returns the assigned triage lane, middle when none was assigned.
func (f *CodeFile) Lane() Lane {
	if l, ok := f.Metadata[MetaLane].(Lane); ok {
		return l
	}
	return MiddleLane
}

// HasLane reports whether triage assigned a lane.
func (f *CodeFile) HasLane() bool {
	_, ok := f.Metadata[MetaLane].(Lane)
	return ok
}

func (f *CodeFile) SetLane(l Lane) { f.set(MetaLane, l) }

// Context returns the detected file context, PRODUCTION when unknown.
func (f *CodeFile) Context() FileContext {
	if c, ok := f.Metadata[MetaContext].(FileContext); ok {
		return c
	}
	return ContextProduction
}

func (f *CodeFile) SetContext(c FileContext) { f.set(MetaContext, c) }

// Unchanged reports whether incremental detection marked the file as untouched.
func (f *CodeFile) Unchanged() bool {
	v, _ := f.Metadata[MetaUnchanged].(bool)
	return v
}

func (f *CodeFile) MarkUnchanged(v bool) { f.set(MetaUnchanged, v) }

// Status is the outcome of a frame.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// IsFailure reports statuses that count against frames_failed.
func (s Status) IsFailure() bool {
	return s == StatusFailed || s == StatusTimeout || s == StatusError
}

// FrameResult is produced once per frame per run.
type FrameResult struct {
	FrameID     string                 `json:"frame_id"`
	FrameName   string                 `json:"frame_name"`
	Status      Status                 `json:"status"`
	Duration    time.Duration          `json:"duration"`
	IssuesFound int                    `json:"issues_found"`
	IsBlocker   bool                   `json:"is_blocker"`
	Findings    []findings.Finding     `json:"findings"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Skipped builds a skipped result with a reason and extra metadata.
func Skipped(frameID, frameName, reason string, meta map[string]interface{}) FrameResult {
	m := map[string]interface{}{"skip_reason": reason}
	for k, v := range meta {
		m[k] = v
	}
	return FrameResult{
		FrameID:   frameID,
		FrameName: frameName,
		Status:    StatusSkipped,
		Metadata:  m,
	}
}

// Spec carries the static attributes of a frame.
type Spec struct {
	IsBlocker         bool
	MinimumTriageLane Lane
	RequiresFrames    []string
	RequiresConfig    []string
	RequiresContext   []string
	Priority          int    // lower runs first
	OnFail            string // "stop" or "continue" for blocker PRE rules
	Cacheable         bool   // findings depend only on file content
	IncludeTestFiles  bool
}

// Frame is implemented by every analyzer.
type Frame interface {
	ID() string
	Name() string
	Spec() Spec
	Execute(ctx context.Context, file *CodeFile) (FrameResult, error)
}

// BatchExecutable frames accept several files per call.
type BatchExecutable interface {
	ExecuteBatch(ctx context.Context, files []*CodeFile) ([]FrameResult, error)
}

// Cleanable frames release resources once their body finished.
type Cleanable interface {
	Cleanup(ctx context.Context) error
}

// ProjectContext is shared with frames that want project-wide knowledge.
type ProjectContext struct {
	Root      string
	Languages map[string]int
	CIMode    bool
}

// ProjectContextAware frames receive the ProjectContext before execution.
type ProjectContextAware interface {
	SetProjectContext(pc ProjectContext)
}

// Configurable frames receive the settings block of their frame configuration.
type Configurable interface {
	Configure(settings map[string]interface{}) error
}

// EffectiveSpec overlays the frame configuration on the frame's static attributes.
func EffectiveSpec(f Frame, fc config.FrameConfig) Spec {
	spec := f.Spec()
	spec.IsBlocker = config.GetBoolValue(fc, "IsBlocker", spec.IsBlocker)
	if lane, ok := ParseLane(fc.MinimumTriageLane); ok {
		spec.MinimumTriageLane = lane
	}
	if fc.OnFail != "" {
		spec.OnFail = fc.OnFail
	}
	if fc.Priority != 0 {
		spec.Priority = fc.Priority
	}
	if fc.IncludeTestFiles {
		spec.IncludeTestFiles = true
	}
	spec.RequiresFrames = append(append([]string{}, spec.RequiresFrames...), fc.RequiresFrames...)
	spec.RequiresConfig = append(append([]string{}, spec.RequiresConfig...), fc.RequiresConfig...)
	spec.RequiresContext = append(append([]string{}, spec.RequiresContext...), fc.RequiresContext...)
	return spec
}

// Registry holds the frames known to a run.
type Registry struct {
	frames map[string]Frame
}

func NewRegistry() *Registry {
	return &Registry{frames: make(map[string]Frame)}
}

// Register adds or replaces a frame.
func (r *Registry) Register(f Frame) {
	r.frames[f.ID()] = f
}

func (r *Registry) Get(id string) (Frame, bool) {
	if r == nil {
		return nil, false
	}
	f, ok := r.frames[id]
	return f, ok
}

// All returns frames ordered by priority, then id.
func (r *Registry) All() []Frame {
	if r == nil {
		return nil
	}
	out := make([]Frame, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f)
	}
	SortByPriority(out)
	return out
}

// SortByPriority orders frames by ascending priority, then id.
func SortByPriority(list []Frame) {
	sort.SliceStable(list, func(i, j int) bool {
		pi, pj := list[i].Spec().Priority, list[j].Spec().Priority
		if pi != pj {
			return pi < pj
		}
		return list[i].ID() < list[j].ID()
	})
}
