package sarif

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/findings"
	"github.com/scan-io-git/warden/internal/frames"
	"github.com/scan-io-git/warden/pkg/shared/files"
)

const FrameID = "sarif_import"

// ImportFrame reports findings of external scanners that already produced SARIF.
// Settings:
//
//	reports: [path, ...]      required, relative to the project root
//	keep_suppressed: bool     keep results carrying a SARIF suppression
type ImportFrame struct {
	logger hclog.Logger

	mu             sync.Mutex
	reports        []string
	keepSuppressed bool
	root           string
	byPath         map[string][]findings.Finding
	loaded         bool
}

func NewImportFrame(logger hclog.Logger) *ImportFrame {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ImportFrame{logger: logger}
}

func (f *ImportFrame) ID() string   { return FrameID }
func (f *ImportFrame) Name() string { return "SARIF Import" }

func (f *ImportFrame) Spec() frames.Spec {
	return frames.Spec{
		MinimumTriageLane: frames.FastLane,
		RequiresConfig:    []string{"reports"},
		Priority:          50,
	}
}

func (f *ImportFrame) Configure(settings map[string]interface{}) error {
	raw, _ := config.LookupSetting(settings, "reports")
	var reports []string
	switch v := raw.(type) {
	case string:
		reports = []string{v}
	case []interface{}:
		for _, item := range v {
			reports = append(reports, fmt.Sprint(item))
		}
	case []string:
		reports = v
	case nil:
	default:
		return fmt.Errorf("reports must be a list of paths, got %T", raw)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = reports
	f.keepSuppressed = config.SettingString(settings, "keep_suppressed", "false") == "true"
	f.loaded = false
	return nil
}

func (f *ImportFrame) SetProjectContext(pc frames.ProjectContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.root != pc.Root {
		f.loaded = false
	}
	f.root = pc.Root
}

// load indexes every configured report by file path once per configuration.
func (f *ImportFrame) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return nil
	}

	byPath := make(map[string][]findings.Finding)
	for _, p := range f.reports {
		if !filepath.IsAbs(p) {
			p = filepath.Join(f.root, p)
		}
		if err := files.ValidatePath(p); err != nil {
			return fmt.Errorf("sarif report %q: %w", p, err)
		}
		report, err := ReadReport(p, f.logger, f.root, !f.keepSuppressed)
		if err != nil {
			return err
		}
		list := report.ToFindings()
		for _, item := range list {
			byPath[item.FilePath()] = append(byPath[item.FilePath()], item)
		}
		f.logger.Debug("sarif report loaded", "path", p, "findings", len(list))
	}
	f.byPath = byPath
	f.loaded = true
	return nil
}

func (f *ImportFrame) Execute(ctx context.Context, file *frames.CodeFile) (frames.FrameResult, error) {
	if err := ctx.Err(); err != nil {
		return frames.FrameResult{}, err
	}
	if err := f.load(); err != nil {
		return frames.FrameResult{}, err
	}

	f.mu.Lock()
	list := append([]findings.Finding(nil), f.byPath[filepath.ToSlash(file.Path)]...)
	f.mu.Unlock()

	status := frames.StatusPassed
	if len(list) > 0 {
		status = frames.StatusFailed
	}
	return frames.FrameResult{
		FrameID:     FrameID,
		FrameName:   f.Name(),
		Status:      status,
		IssuesFound: len(list),
		Findings:    list,
	}, nil
}
