// Package sarif converts between SARIF reports and warden findings.
package sarif

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scan-io-git/warden/internal/findings"
	"github.com/scan-io-git/warden/pkg/shared/files"
)

type Report struct {
	*sarif.Report
	logger       hclog.Logger
	sourceFolder string
}

// ParseReport decodes a SARIF document.
func ParseReport(data []byte) (*sarif.Report, error) {
	var report sarif.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode sarif report: %w", err)
	}
	return &report, nil
}

// remove all results with Suppressions property
func removeSuppressedResults(report *sarif.Report) {
	for _, run := range report.Runs {
		var filteredResults []*sarif.Result
		for _, result := range run.Results {
			if len(result.Suppressions) == 0 {
				filteredResults = append(filteredResults, result)
			}
		}
		run.Results = filteredResults
	}
}

// ReadReport loads a SARIF file. Locations are later made relative to sourceFolder.
func ReadReport(inputPath string, logger hclog.Logger, sourceFolder string, noSuppressions bool) (*Report, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read sarif report %q: %w", inputPath, err)
	}
	sarifReport, err := ParseReport(data)
	if err != nil {
		return nil, err
	}
	if noSuppressions {
		removeSuppressedResults(sarifReport)
	}

	expandedSourceFolder, err := files.ExpandPath(sourceFolder)
	if err != nil {
		return nil, fmt.Errorf("failed to expand source folder: %w", err)
	}
	absPath, err := filepath.Abs(expandedSourceFolder)
	if err != nil {
		return nil, err
	}

	return &Report{Report: sarifReport, logger: logger, sourceFolder: absPath}, nil
}

func rulesOf(run *sarif.Run) map[string]*sarif.ReportingDescriptor {
	rulesMap := map[string]*sarif.ReportingDescriptor{}
	if run.Tool.Driver == nil {
		return rulesMap
	}
	for _, rule := range run.Tool.Driver.Rules {
		if rule != nil {
			rulesMap[rule.ID] = rule
		}
	}
	return rulesMap
}

// EnrichResultsLevelProperty stores the effective level of every result in its
// "Level" property: the result level, then the CodeQL "problem.severity" of the
// rule, then the rule default configuration.
func (r Report) EnrichResultsLevelProperty() {
	for _, run := range r.Runs {
		rulesMap := rulesOf(run)
		for _, result := range run.Results {
			if result.Properties == nil {
				result.Properties = make(map[string]interface{})
			}
			if result.Properties["Level"] != nil {
				continue
			}
			var rule *sarif.ReportingDescriptor
			if result.RuleID != nil {
				rule = rulesMap[*result.RuleID]
			}
			switch {
			case result.Level != nil:
				result.Properties["Level"] = *result.Level
			case rule != nil && rule.Properties["problem.severity"] != nil:
				result.Properties["Level"] = rule.Properties["problem.severity"]
			case rule != nil && rule.DefaultConfiguration != nil && rule.DefaultConfiguration.Level != "":
				result.Properties["Level"] = rule.DefaultConfiguration.Level
			default:
				result.Properties["Level"] = "warning"
			}
		}
	}
}

// severityOf prefers a numeric "security-severity" rule property over the level.
func severityOf(result *sarif.Result, rule *sarif.ReportingDescriptor) findings.Severity {
	if rule != nil {
		if raw, ok := rule.Properties["security-severity"]; ok {
			if score, err := strconv.ParseFloat(fmt.Sprint(raw), 64); err == nil {
				switch {
				case score >= 9:
					return findings.SeverityCritical
				case score >= 7:
					return findings.SeverityHigh
				case score >= 4:
					return findings.SeverityMedium
				case score > 0:
					return findings.SeverityLow
				}
			}
		}
	}
	level, _ := result.Properties["Level"].(string)
	return findings.ParseSeverity(level)
}

// RelativeURI turns an artifact URI into a slash separated path relative to sourceFolder.
func RelativeURI(rawURI, sourceFolder string) string {
	uri := strings.TrimPrefix(rawURI, "file://")
	if unescaped, err := url.PathUnescape(uri); err == nil {
		uri = unescaped
	}
	if filepath.IsAbs(uri) {
		return files.RelativeSlashPath(sourceFolder, uri)
	}
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(uri)), "./")
}

// ExtractRegionFromResult returns start and end line numbers (0 when not present)
// of the first location of a result.
func ExtractRegionFromResult(res *sarif.Result) (int, int) {
	if res == nil || len(res.Locations) == 0 {
		return 0, 0
	}
	loc := res.Locations[0]
	if loc.PhysicalLocation == nil || loc.PhysicalLocation.Region == nil {
		return 0, 0
	}
	start, end := 0, 0
	if loc.PhysicalLocation.Region.StartLine != nil {
		start = *loc.PhysicalLocation.Region.StartLine
	}
	if loc.PhysicalLocation.Region.EndLine != nil {
		end = *loc.PhysicalLocation.Region.EndLine
	}
	return start, end
}

func resultURI(res *sarif.Result) string {
	if len(res.Locations) == 0 {
		return ""
	}
	pl := res.Locations[0].PhysicalLocation
	if pl == nil || pl.ArtifactLocation == nil || pl.ArtifactLocation.URI == nil {
		return ""
	}
	return *pl.ArtifactLocation.URI
}

func resultSnippet(res *sarif.Result) string {
	if len(res.Locations) == 0 {
		return ""
	}
	pl := res.Locations[0].PhysicalLocation
	if pl == nil || pl.Region == nil || pl.Region.Snippet == nil || pl.Region.Snippet.Text == nil {
		return ""
	}
	return strings.TrimSpace(*pl.Region.Snippet.Text)
}

func resultMessage(res *sarif.Result, rule *sarif.ReportingDescriptor) string {
	if res.Message.Text != nil && strings.TrimSpace(*res.Message.Text) != "" {
		return strings.TrimSpace(*res.Message.Text)
	}
	if res.Message.Markdown != nil {
		return strings.TrimSpace(*res.Message.Markdown)
	}
	if rule != nil && rule.ShortDescription != nil && rule.ShortDescription.Text != nil {
		return *rule.ShortDescription.Text
	}
	return ""
}

// ToFindings flattens every result into a finding. Results without a rule id
// or a location are dropped.
func (r Report) ToFindings() []findings.Finding {
	r.EnrichResultsLevelProperty()

	var out []findings.Finding
	for _, run := range r.Runs {
		rulesMap := rulesOf(run)
		tool := ""
		if run.Tool.Driver != nil {
			tool = run.Tool.Driver.Name
		}
		for _, res := range run.Results {
			if res.RuleID == nil || strings.TrimSpace(*res.RuleID) == "" {
				r.logger.Warn("SARIF result missing rule ID, skipping", "tool", tool)
				continue
			}
			uri := resultURI(res)
			if uri == "" {
				r.logger.Warn("SARIF result missing file URI, skipping", "rule_id", *res.RuleID)
				continue
			}
			rule := rulesMap[*res.RuleID]
			line, _ := ExtractRegionFromResult(res)

			f := findings.New(*res.RuleID, severityOf(res, rule), resultMessage(res, rule), RelativeURI(uri, r.sourceFolder), line)
			f.CodeSnippet = resultSnippet(res)
			if rule != nil && rule.FullDescription != nil && rule.FullDescription.Text != nil {
				f.Detail = *rule.FullDescription.Text
			}
			if tool != "" {
				f.Properties = append(f.Properties, findings.Property{Name: "tool", Value: tool})
			}
			out = append(out, f)
		}
	}
	return out
}
