package pipeline

import (
	"errors"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/frames"
	errs "github.com/scan-io-git/warden/pkg/shared/errors"
)

// Dependency kinds reported in skip metadata.
const (
	DependencyFrames  = "requires_frames"
	DependencyConfig  = "requires_config"
	DependencyContext = "requires_context"
)

// DependencyChecker gates a frame on earlier results, its configuration and the context.
type DependencyChecker struct {
	logger hclog.Logger
}

func NewDependencyChecker(logger hclog.Logger) *DependencyChecker {
	return &DependencyChecker{logger: logger}
}

// Check returns a *DependencyUnmetError for the first unmet requirement, in
// the order frames, config, context.
func (d *DependencyChecker) Check(pc *Context, frameID string, spec frames.Spec, fc config.FrameConfig) error {
	for _, dep := range spec.RequiresFrames {
		if _, ok := pc.FrameResult(dep); !ok {
			return errs.NewDependencyUnmetError(frameID, DependencyFrames, dep)
		}
	}
	for _, path := range spec.RequiresConfig {
		v, ok := config.LookupSetting(fc.Settings, path)
		if !ok || config.IsEmptySetting(v) {
			return errs.NewDependencyUnmetError(frameID, DependencyConfig, path)
		}
	}
	for _, path := range spec.RequiresContext {
		if _, ok := pc.Lookup(path); !ok {
			return errs.NewDependencyUnmetError(frameID, DependencyContext, path)
		}
	}
	return nil
}

// SkipResult turns an unmet dependency into a skipped frame result.
func (d *DependencyChecker) SkipResult(frameID, frameName string, err error) frames.FrameResult {
	var unmet *errs.DependencyUnmetError
	if !errors.As(err, &unmet) {
		return frames.Skipped(frameID, frameName, err.Error(), nil)
	}
	d.logger.Info("frame skipped, dependency not met", "frame", frameID, "type", unmet.DependencyType, "missing", unmet.Missing)
	return frames.Skipped(frameID, frameName, skipReason(unmet), map[string]interface{}{
		"dependency_type":    unmet.DependencyType,
		"missing_dependency": unmet.Missing,
	})
}

func skipReason(e *errs.DependencyUnmetError) string {
	switch e.DependencyType {
	case DependencyFrames:
		return "required frame " + e.Missing + " has not run"
	case DependencyConfig:
		return "missing required config " + e.Missing
	default:
		return "missing required context " + e.Missing
	}
}
