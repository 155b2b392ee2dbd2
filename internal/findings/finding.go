package findings

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Severity is the normalized severity of a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank orders severities, critical being the highest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity normalizes free-form severity names from rules, plugins and SARIF levels.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "blocker":
		return SeverityCritical
	case "high", "error", "major":
		return SeverityHigh
	case "medium", "warning", "moderate":
		return SeverityMedium
	case "low", "note", "minor":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Property is a simple name/value pair used for tags, references, or custom metadata.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Finding is a single reported issue. Treat values as immutable once created.
type Finding struct {
	ID          string   `json:"id"` // rule id
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	Location    string   `json:"location"` // "path:line"
	Detail      string   `json:"detail,omitempty"`
	CodeSnippet string   `json:"code,omitempty"`
	IsBlocker   bool     `json:"is_blocker"`
	FrameID     string   `json:"frame_id,omitempty"`

	Properties []Property `json:"properties,omitempty"`
}

// New builds a finding located at path:line.
func New(ruleID string, severity Severity, message, path string, line int) Finding {
	return Finding{
		ID:       ruleID,
		Severity: severity,
		Message:  message,
		Location: FormatLocation(path, line),
	}
}

// FormatLocation renders the canonical "path:line" location.
func FormatLocation(path string, line int) string {
	if line <= 0 {
		return path
	}
	return fmt.Sprintf("%s:%d", path, line)
}

// ParseLocation splits a "path:line" location. A location without a numeric
// suffix is returned as a path with line 0.
func ParseLocation(location string) (string, int) {
	idx := strings.LastIndex(location, ":")
	if idx <= 0 {
		return location, 0
	}
	line, err := strconv.Atoi(location[idx+1:])
	if err != nil {
		return location, 0
	}
	return location[:idx], line
}

// FilePath returns the path part of the location.
func (f Finding) FilePath() string {
	path, _ := ParseLocation(f.Location)
	return path
}

// Line returns the line part of the location, 0 when unknown.
func (f Finding) Line() int {
	_, line := ParseLocation(f.Location)
	return line
}

// Fingerprint identifies a finding across runs. The code snippet is left out
// so that cosmetic edits around a finding keep its identity.
func (f Finding) Fingerprint() string {
	return Fingerprint(f.ID, f.FilePath(), f.Message)
}

// Fingerprint hashes rule id, file path and message.
func Fingerprint(ruleID, filePath, message string) string {
	sum := sha256.Sum256([]byte(ruleID + ":" + filePath + ":" + message))
	return hex.EncodeToString(sum[:])[:16]
}

// IsSevere reports whether the finding is critical or high.
func (f Finding) IsSevere() bool {
	return f.Severity == SeverityCritical || f.Severity == SeverityHigh
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(list []Finding) map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range list {
		counts[f.Severity]++
	}
	return counts
}

// Dedupe keeps the first finding of every fingerprint, preserving order.
func Dedupe(list []Finding) []Finding {
	seen := make(map[string]struct{}, len(list))
	out := make([]Finding, 0, len(list))
	for _, f := range list {
		fp := f.Fingerprint()
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, f)
	}
	return out
}

// DedupeByLocation keeps one finding per rule id and location. When a spot is
// reported more than once the higher severity wins; order follows the
// first occurrence.
func DedupeByLocation(list []Finding) []Finding {
	index := make(map[string]int, len(list))
	out := make([]Finding, 0, len(list))
	for _, f := range list {
		key := f.ID + "\x00" + f.Location
		if i, ok := index[key]; ok {
			if f.Severity.Rank() > out[i].Severity.Rank() {
				out[i] = f
			}
			continue
		}
		index[key] = len(out)
		out = append(out, f)
	}
	return out
}
