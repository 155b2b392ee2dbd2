package sarif

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scan-io-git/warden/internal/findings"
	"github.com/scan-io-git/warden/pkg/shared/files"
)

const informationURI = "https://github.com/scan-io-git/warden"

func toSarifLevel(s findings.Severity) string {
	switch s {
	case findings.SeverityCritical, findings.SeverityHigh:
		return "error"
	case findings.SeverityMedium:
		return "warning"
	case findings.SeverityLow:
		return "note"
	default:
		return "none"
	}
}

// BuildReport renders findings as a single-run SARIF 2.1.0 report.
func BuildReport(list []findings.Finding, version string) (*sarif.Report, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI("warden", informationURI)
	if version != "" {
		run.Tool.Driver.SemanticVersion = &version
	}

	sorted := append([]findings.Finding(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
	})

	for _, f := range sorted {
		level := toSarifLevel(f.Severity)
		rule := run.AddRule(f.ID).
			WithDescription(f.Message).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: level})

		region := sarif.NewRegion()
		if line := f.Line(); line > 0 {
			region = region.WithStartLine(line)
		}
		location := sarif.NewLocation().WithPhysicalLocation(
			sarif.NewPhysicalLocation().
				WithArtifactLocation(sarif.NewArtifactLocation().WithUri(f.FilePath())).
				WithRegion(region),
		)

		result := sarif.NewRuleResult(rule.ID).
			WithMessage(sarif.NewTextMessage(f.Message)).
			WithLevel(level).
			WithLocations([]*sarif.Location{location})
		result.Properties = map[string]interface{}{
			"fingerprint": f.Fingerprint(),
			"is_blocker":  f.IsBlocker,
		}
		if f.FrameID != "" {
			result.Properties["frame"] = f.FrameID
		}
		run.AddResult(result)
	}
	report.AddRun(run)
	return report, nil
}

// WriteReport writes the SARIF rendering of list to w.
func WriteReport(w io.Writer, list []findings.Finding, version string) error {
	report, err := BuildReport(list, version)
	if err != nil {
		return err
	}
	return report.PrettyWrite(w)
}

// SaveReport writes the SARIF rendering of list to path.
func SaveReport(path string, list []findings.Finding, version string) error {
	if err := files.CreateFolderIfNotExists(filepath.Dir(path)); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("error writing SARIF report: %w", err)
	}
	defer func() { _ = file.Close() }()
	return WriteReport(file, list, version)
}
