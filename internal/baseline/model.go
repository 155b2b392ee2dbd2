// Package baseline persists accepted findings per module and tracks debt,
// the known findings that have not been fixed yet.
package baseline

import (
	"time"

	"github.com/scan-io-git/warden/internal/findings"
)

// MetaVersion is the layout version written to _meta.json.
const MetaVersion = "2.0"

const (
	metaFile   = "_meta.json"
	rootModule = "root"
)

// DebtItem is a tracked finding, aged from FirstSeen.
type DebtItem struct {
	Fingerprint string            `json:"fingerprint"`
	FirstSeen   time.Time         `json:"first_seen"`
	RuleID      string            `json:"rule_id"`
	FilePath    string            `json:"file_path"`
	Message     string            `json:"message"`
	Severity    findings.Severity `json:"severity"`
}

func debtItemFor(f findings.Finding, seen time.Time) DebtItem {
	return DebtItem{
		Fingerprint: f.Fingerprint(),
		FirstSeen:   seen,
		RuleID:      f.ID,
		FilePath:    f.FilePath(),
		Message:     f.Message,
		Severity:    f.Severity,
	}
}

// ModuleBaseline is the content of .warden/baseline/<module>.json.
type ModuleBaseline struct {
	ModuleName string             `json:"module_name"`
	Findings   []findings.Finding `json:"findings"`
	DebtItems  []DebtItem         `json:"debt_items"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func (m *ModuleBaseline) DebtCount() int {
	return len(m.DebtItems)
}

// Meta is the content of .warden/baseline/_meta.json, rebuilt on every update.
type Meta struct {
	Version            string    `json:"version"`
	Modules            []string  `json:"modules"`
	TotalFindings      int       `json:"total_findings"`
	TotalDebt          int       `json:"total_debt"`
	MigratedFromLegacy bool      `json:"migrated_from_legacy"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type legacyFrameResult struct {
	FrameID  string             `json:"frameId"`
	Findings []findings.Finding `json:"findings"`
}

// Legacy is the single-file .warden/baseline.json layout.
type Legacy struct {
	Findings     []findings.Finding  `json:"findings"`
	FrameResults []legacyFrameResult `json:"frameResults"`
}

// AllFindings merges top-level and per-frame findings, deduplicated by fingerprint.
func (l *Legacy) AllFindings() []findings.Finding {
	all := append([]findings.Finding{}, l.Findings...)
	for _, fr := range l.FrameResults {
		all = append(all, fr.Findings...)
	}
	return findings.Dedupe(all)
}

// DebtUpdate is the outcome of UpdateDebt for one module.
type DebtUpdate struct {
	Module       string `json:"module"`
	NewDebt      int    `json:"new_debt"`
	ResolvedDebt int    `json:"resolved_debt"`
	TotalDebt    int    `json:"total_debt"`
}

// Age levels of the debt report.
const (
	LevelCritical = "critical"
	LevelWarning  = "warning"
	LevelInfo     = "info"
)

// DebtWarning flags a module whose oldest debt crossed an age threshold.
type DebtWarning struct {
	Module  string `json:"module"`
	Level   string `json:"level"`
	AgeDays int    `json:"age_days"`
	Message string `json:"message"`
}

// ModuleDebt summarizes the debt of one module.
type ModuleDebt struct {
	DebtCount         int        `json:"debt_count"`
	OldestDebtAgeDays int        `json:"oldest_debt_age_days"`
	DebtItems         []DebtItem `json:"debt_items"`
}

// DebtReport groups debt by module with age warnings.
type DebtReport struct {
	Modules   map[string]ModuleDebt `json:"modules"`
	Warnings  []DebtWarning         `json:"warnings"`
	TotalDebt int                   `json:"total_debt"`
}

// ModuleStatus is one line of the status output.
type ModuleStatus struct {
	Name     string `json:"name"`
	Findings int    `json:"findings"`
	Debt     int    `json:"debt"`
}

// Status describes what is on disk.
type Status struct {
	Layout        string         `json:"layout"` // module, legacy or none
	Meta          *Meta          `json:"meta,omitempty"`
	Modules       []ModuleStatus `json:"modules,omitempty"`
	LegacyPresent bool           `json:"legacy_present"`
}
