package errors

import (
	"fmt"
	"time"
)

// Exit codes returned by the CLI.
const (
	ExitCodeClean         = 0
	ExitCodePipelineError = 1
	ExitCodePolicyFailure = 2
)

// DependencyUnmetError reports a frame prerequisite that is not satisfied.
type DependencyUnmetError struct {
	FrameID        string
	DependencyType string // requires_frames, requires_config or requires_context
	Missing        string
}

func (e *DependencyUnmetError) Error() string {
	return fmt.Sprintf("frame %q: %s dependency %q is not satisfied", e.FrameID, e.DependencyType, e.Missing)
}

// NewDependencyUnmetError creates a DependencyUnmetError.
func NewDependencyUnmetError(frameID, dependencyType, missing string) error {
	return &DependencyUnmetError{FrameID: frameID, DependencyType: dependencyType, Missing: missing}
}

// RuleBlockerViolationError is raised when blocker rules stop a frame.
type RuleBlockerViolationError struct {
	FrameID    string
	Stage      string
	Violations int
}

func (e *RuleBlockerViolationError) Error() string {
	return fmt.Sprintf("frame %q stopped by %d blocker violation(s) in %s rules", e.FrameID, e.Violations, e.Stage)
}

// FrameTimeoutError reports a frame, chunk or file exceeding its time budget.
type FrameTimeoutError struct {
	FrameID string
	Target  string
	Timeout time.Duration
}

func (e *FrameTimeoutError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("frame %q timed out after %v", e.FrameID, e.Timeout)
	}
	return fmt.Sprintf("frame %q timed out on %s after %v", e.FrameID, e.Target, e.Timeout)
}

// NewFrameTimeoutError creates a FrameTimeoutError.
func NewFrameTimeoutError(frameID, target string, timeout time.Duration) error {
	return &FrameTimeoutError{FrameID: frameID, Target: target, Timeout: timeout}
}

// FrameExecutionError wraps a failure returned by a frame body.
type FrameExecutionError struct {
	FrameID string
	Target  string
	Err     error
}

func (e *FrameExecutionError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("frame %q failed: %v", e.FrameID, e.Err)
	}
	return fmt.Sprintf("frame %q failed on %s: %v", e.FrameID, e.Target, e.Err)
}

func (e *FrameExecutionError) Unwrap() error {
	return e.Err
}

// NewFrameExecutionError creates a FrameExecutionError.
func NewFrameExecutionError(frameID, target string, err error) error {
	return &FrameExecutionError{FrameID: frameID, Target: target, Err: err}
}

// ExternalServiceError is a failed call to an external analysis service.
type ExternalServiceError struct {
	Service   string
	Operation string
	Err       error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Service, e.Operation, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// NewExternalServiceError creates an ExternalServiceError.
func NewExternalServiceError(service, operation string, err error) error {
	return &ExternalServiceError{Service: service, Operation: operation, Err: err}
}

// PipelineTimeoutError is fatal: the run exceeded its wall-clock budget.
type PipelineTimeoutError struct {
	Timeout time.Duration
	Phase   string
}

func (e *PipelineTimeoutError) Error() string {
	return fmt.Sprintf("pipeline timed out after %v during phase %q", e.Timeout, e.Phase)
}

// CleanupError is logged and never propagated past the orchestrator.
type CleanupError struct {
	Component string
	Err       error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup of %s failed: %v", e.Component, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// CommandError represents a command failure together with the process exit code.
type CommandError struct {
	ExitCode    int
	CommonError string
	Result      interface{}
}

// Error implements the error interface, returning the message from the common error.
func (e *CommandError) Error() string {
	return e.CommonError
}

// NewCommandError creates a new CommandError instance.
func NewCommandError(result interface{}, err error, code int) *CommandError {
	return &CommandError{
		ExitCode:    code,
		CommonError: err.Error(),
		Result:      result,
	}
}
