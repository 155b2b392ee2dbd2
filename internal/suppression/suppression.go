// Package suppression decides whether a finding has been silenced.
package suppression

import (
	"path"
	"regexp"
	"strings"

	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/findings"
)

// maxInlineLineLength bounds the lines inspected for inline comments.
const maxInlineLineLength = 4096

var inlinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`#\s*warden-ignore(?:\s*:\s*(.+?))?\s*$`),
	regexp.MustCompile(`//\s*warden-ignore(?:\s*:\s*(.+?))?\s*$`),
	regexp.MustCompile(`/\*\s*warden-ignore(?:\s*:\s*(.+?))?\s*\*/`),
}

// Matcher checks global rules, ignored files, configuration entries and
// inline comments, in that priority order.
type Matcher struct {
	cfg config.Suppression
}

func NewMatcher(cfg config.Suppression) *Matcher {
	return &Matcher{cfg: cfg}
}

// Reason returns why a rule is suppressed at path:line, or "" when it is not.
// source is the file content used for inline comments and may be empty.
func (m *Matcher) Reason(ruleID, filePath string, line int, source string) string {
	if m == nil || !config.GetBoolValue(m.cfg, "Enabled", true) {
		return ""
	}

	for _, rule := range m.cfg.GlobalRules {
		if GlobMatch(rule, ruleID) {
			return "Rule '" + ruleID + "' is globally suppressed"
		}
	}
	if filePath != "" {
		for _, pattern := range m.cfg.IgnoredFiles {
			if GlobMatch(pattern, filePath) {
				return "File '" + filePath + "' is ignored"
			}
		}
	}
	for _, entry := range m.cfg.Entries {
		if !config.GetBoolValue(entry, "Enabled", true) {
			continue
		}
		if !entryMatchesLocation(entry, filePath, line) || !entryMatchesRule(entry, ruleID) {
			continue
		}
		if entry.Reason != "" {
			return entry.Reason
		}
		return "Suppressed by configuration entry '" + entry.ID + "'"
	}
	if rules, ok := InlineRules(source, line); ok {
		if len(rules) == 0 || rules[ruleID] {
			return "Suppressed by inline comment"
		}
	}
	return ""
}

// IsSuppressed is Reason != "".
func (m *Matcher) IsSuppressed(ruleID, filePath string, line int, source string) bool {
	return m.Reason(ruleID, filePath, line, source) != ""
}

func entryMatchesLocation(e config.SuppressionEntry, filePath string, line int) bool {
	if e.File != "" && !GlobMatch(e.File, filePath) {
		return false
	}
	if e.Line > 0 && e.Line != line {
		return false
	}
	return true
}

func entryMatchesRule(e config.SuppressionEntry, ruleID string) bool {
	if len(e.Rules) == 0 {
		return true
	}
	for _, r := range e.Rules {
		if GlobMatch(r, ruleID) {
			return true
		}
	}
	return false
}

// InlineRules parses a warden-ignore comment on the given 1-based line.
// ok is false when no comment is present; an empty set suppresses every rule.
func InlineRules(source string, line int) (map[string]bool, bool) {
	if source == "" || line <= 0 {
		return nil, false
	}
	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return nil, false
	}
	content := lines[line-1]
	if len(content) > maxInlineLineLength {
		return nil, false
	}

	for _, re := range inlinePatterns {
		match := re.FindStringSubmatch(content)
		if match == nil {
			continue
		}
		rules := make(map[string]bool)
		for _, r := range strings.Split(match[1], ",") {
			if r = strings.TrimSpace(r); r != "" {
				rules[r] = true
			}
		}
		return rules, true
	}
	return nil, false
}

// GlobMatch matches shell globs against rule ids and slash paths. A pattern
// without a slash also matches the base name of a path.
func GlobMatch(pattern, value string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" || pattern == value {
		return true
	}
	if ok, _ := path.Match(pattern, value); ok {
		return true
	}
	if strings.Contains(pattern, "**") {
		return doubleStarMatch(pattern, value)
	}
	if !strings.Contains(pattern, "/") && strings.Contains(value, "/") {
		ok, _ := path.Match(pattern, path.Base(value))
		return ok
	}
	// fnmatch semantics: "*" crosses folder boundaries.
	if strings.Contains(pattern, "*") {
		return wildcardMatch(pattern, value)
	}
	return false
}

func doubleStarMatch(pattern, value string) bool {
	parts := strings.SplitN(pattern, "**", 2)
	prefix, suffix := parts[0], strings.TrimPrefix(parts[1], "/")
	if !strings.HasPrefix(value, prefix) {
		return false
	}
	rest := strings.TrimPrefix(value, prefix)
	if suffix == "" {
		return true
	}
	segments := strings.Split(rest, "/")
	for i := range segments {
		if GlobMatch(suffix, strings.Join(segments[i:], "/")) {
			return true
		}
	}
	return false
}

// wildcardMatch matches "*" against any run of characters, including "/".
func wildcardMatch(pattern, value string) bool {
	var re strings.Builder
	re.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			re.WriteString(".*")
		case '?':
			re.WriteString(".")
		default:
			re.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	re.WriteString("$")
	ok, _ := regexp.MatchString(re.String(), value)
	return ok
}

// Apply drops suppressed findings and returns the kept ones with the number removed.
// sources maps file paths to content for inline comments and may be nil.
func (m *Matcher) Apply(list []findings.Finding, sources map[string]string) ([]findings.Finding, int) {
	kept := make([]findings.Finding, 0, len(list))
	for _, f := range list {
		if m.IsSuppressed(f.ID, f.FilePath(), f.Line(), sources[f.FilePath()]) {
			continue
		}
		kept = append(kept, f)
	}
	return kept, len(list) - len(kept)
}

// ApplyFrameRules drops findings matching a frame-local {rule, file} suppression.
// An empty side of a pair matches everything.
func ApplyFrameRules(list []findings.Finding, rules []config.FrameSuppression) ([]findings.Finding, int) {
	if len(rules) == 0 {
		return list, 0
	}
	kept := make([]findings.Finding, 0, len(list))
	for _, f := range list {
		suppressed := false
		for _, r := range rules {
			ruleOK := r.Rule == "" || GlobMatch(r.Rule, f.ID)
			fileOK := r.File == "" || GlobMatch(r.File, f.FilePath())
			if ruleOK && fileOK {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, f)
		}
	}
	return kept, len(list) - len(kept)
}
