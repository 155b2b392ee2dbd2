// Package pipeline sequences the analysis phases of a run and schedules frames.
package pipeline

// Phase names a pipeline stage. The names double as keys of pipeline.phases in the configuration.
type Phase string

const (
	PhasePreAnalysis    Phase = "pre_analysis"
	PhaseTriage         Phase = "triage"
	PhaseAnalysis       Phase = "analysis"
	PhaseClassification Phase = "classification"
	PhaseValidation     Phase = "validation"
	PhaseLSPDiagnostics Phase = "lsp_diagnostics"
	PhaseVerification   Phase = "verification"
	PhaseFortification  Phase = "fortification"
	PhaseCleaning       Phase = "cleaning"
	PhaseBaseline       Phase = "baseline"
	PhaseFinalize       Phase = "finalize"
)

// Order is the fixed execution order.
var Order = []Phase{
	PhasePreAnalysis,
	PhaseTriage,
	PhaseAnalysis,
	PhaseClassification,
	PhaseValidation,
	PhaseLSPDiagnostics,
	PhaseVerification,
	PhaseFortification,
	PhaseCleaning,
	PhaseBaseline,
	PhaseFinalize,
}

// preconditions maps a phase to the context field it expects to be set.
var preconditions = map[Phase]string{
	PhaseValidation:    FieldSelectedFrames,
	PhaseVerification:  FieldFindings,
	PhaseFortification: FieldFindings,
	PhaseCleaning:      FieldFindings,
}

// disabledInCI lists phases that never run in CI mode.
var disabledInCI = map[Phase]bool{
	PhaseFortification: true,
	PhaseCleaning:      true,
}

// Skip reasons carried by phase_skipped events.
const (
	SkipDisabledInConfig  = "disabled_in_config"
	SkipCIMode            = "ci_mode"
	SkipManualOverride    = "manual_frame_override"
	SkipNoAuditService    = "audit_service_unavailable"
	ManualSelectionReason = "User manually selected frames via CLI"
)

func (p Phase) String() string { return string(p) }
