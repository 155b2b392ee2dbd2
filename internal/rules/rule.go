// Package rules runs deterministic project rules against scan inputs.
package rules

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/scan-io-git/warden/internal/findings"
)

// DefaultScriptTimeout bounds script rules without an explicit timeout.
const DefaultScriptTimeout = 30 * time.Second

const (
	TypeSecurity   = "security"
	TypeConvention = "convention"
	TypeScript     = "script"
	TypeAI         = "ai"
)

// Rule is one custom rule definition from the rules file.
type Rule struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Category    string     `yaml:"category"`
	Severity    string     `yaml:"severity"`
	IsBlocker   bool       `yaml:"is_blocker"`
	Description string     `yaml:"description"`
	Enabled     *bool      `yaml:"enabled"`
	Type        string     `yaml:"type"`
	Conditions  Conditions `yaml:"conditions"`
	Message     string     `yaml:"message"`
	Language    []string   `yaml:"language"`
	Exceptions  []string   `yaml:"exceptions"`
	ScriptPath  string     `yaml:"script_path"`
	Timeout     int        `yaml:"timeout"` // seconds
	Prompt      string     `yaml:"prompt"`  // ai rules only
}

// IsEnabled treats a missing flag as enabled.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Conditions is the per-type payload of a rule.
type Conditions struct {
	Secrets       *Secrets     `yaml:"secrets"`
	Connections   *Connections `yaml:"connections"`
	Redis         *Redis       `yaml:"redis"`
	API           *API         `yaml:"api"`
	Naming        *Naming      `yaml:"naming"`
	Imports       *Imports     `yaml:"imports"`
	MaxLineLength int          `yaml:"max_line_length"`
}

type Secrets struct {
	Patterns []string `yaml:"patterns"`
}

type Connections struct {
	ForbiddenPatterns []string `yaml:"forbidden_patterns"`
}

type Redis struct {
	KeyPattern string `yaml:"key_pattern"`
}

type API struct {
	RoutePattern string `yaml:"route_pattern"`
}

type Naming struct {
	AsyncMethodSuffix string `yaml:"async_method_suffix"`
}

type Imports struct {
	Forbidden []string `yaml:"forbidden"`
}

// FrameRules binds rules to one frame.
type FrameRules struct {
	PreRules  []string `yaml:"pre_rules"`
	PostRules []string `yaml:"post_rules"`
	OnFail    string   `yaml:"on_fail"`
}

// File is the layout of .warden/rules.yaml.
type File struct {
	Rules       []Rule                `yaml:"rules"`
	GlobalRules []string              `yaml:"global_rules"`
	FrameRules  map[string]FrameRules `yaml:"frame_rules"`
}

// Violation is a rule hit at one location.
type Violation struct {
	RuleID      string
	RuleName    string
	Category    string
	Severity    findings.Severity
	IsBlocker   bool
	File        string
	Line        int
	Message     string
	Suggestion  string
	CodeSnippet string
}

// Set is a loaded rules file indexed by rule id.
type Set struct {
	byID        map[string]Rule
	order       []string
	globalRules []string
	frameRules  map[string]FrameRules
}

// Load reads a rules file. A missing file yields an empty set.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewSet(File{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return NewSet(f)
}

// NewSet validates rule definitions and references.
func NewSet(f File) (*Set, error) {
	s := &Set{
		byID:        make(map[string]Rule, len(f.Rules)),
		globalRules: f.GlobalRules,
		frameRules:  f.FrameRules,
	}
	for i, r := range f.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule #%d has no id", i)
		}
		if _, dup := s.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate rule id %q", r.ID)
		}
		switch r.Type {
		case TypeSecurity, TypeConvention, TypeAI:
		case TypeScript:
			if r.ScriptPath == "" {
				return nil, fmt.Errorf("rule %q has type script but no script_path", r.ID)
			}
		default:
			return nil, fmt.Errorf("rule %q has unsupported type %q", r.ID, r.Type)
		}
		s.byID[r.ID] = r
		s.order = append(s.order, r.ID)
	}

	refs := append([]string{}, f.GlobalRules...)
	for frameID, fr := range f.FrameRules {
		switch fr.OnFail {
		case "", "stop", "continue":
		default:
			return nil, fmt.Errorf("frame_rules %q: unsupported on_fail %q", frameID, fr.OnFail)
		}
		refs = append(refs, fr.PreRules...)
		refs = append(refs, fr.PostRules...)
	}
	for _, id := range refs {
		if _, ok := s.byID[id]; !ok {
			return nil, fmt.Errorf("unknown rule id %q", id)
		}
	}
	return s, nil
}

func (s *Set) resolve(ids []string) []Rule {
	out := make([]Rule, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.byID[id]; ok && r.IsEnabled() {
			out = append(out, r)
		}
	}
	return out
}

// Get returns a rule by id.
func (s *Set) Get(id string) (Rule, bool) {
	if s == nil {
		return Rule{}, false
	}
	r, ok := s.byID[id]
	return r, ok
}

// Enabled returns every enabled rule in file order.
func (s *Set) Enabled() []Rule {
	if s == nil {
		return nil
	}
	return s.resolve(s.order)
}

// Global returns the enabled rules applied to every file outside frames.
func (s *Set) Global() []Rule {
	if s == nil {
		return nil
	}
	return s.resolve(s.globalRules)
}

// ForFrame returns the PRE and POST rules of a frame and its on_fail policy,
// "stop" when unset.
func (s *Set) ForFrame(frameID string) (pre, post []Rule, onFail string) {
	onFail = "stop"
	if s == nil {
		return nil, nil, onFail
	}
	fr, ok := s.frameRules[frameID]
	if !ok {
		return nil, nil, onFail
	}
	if fr.OnFail != "" {
		onFail = fr.OnFail
	}
	return s.resolve(fr.PreRules), s.resolve(fr.PostRules), onFail
}

// HasBlockerViolations reports whether any violation is a blocker.
func HasBlockerViolations(violations []Violation) bool {
	for _, v := range violations {
		if v.IsBlocker {
			return true
		}
	}
	return false
}

// ConvertToFinding maps a violation onto the finding shape used everywhere else.
func ConvertToFinding(v Violation) findings.Finding {
	f := findings.New(v.RuleID, v.Severity, v.Message, v.File, v.Line)
	f.Detail = v.Suggestion
	f.CodeSnippet = v.CodeSnippet
	f.IsBlocker = v.IsBlocker
	if v.Category != "" {
		f.Properties = append(f.Properties, findings.Property{Name: "category", Value: v.Category})
	}
	return f
}

// ConvertAll converts a list of violations.
func ConvertAll(violations []Violation) []findings.Finding {
	out := make([]findings.Finding, 0, len(violations))
	for _, v := range violations {
		out = append(out, ConvertToFinding(v))
	}
	return out
}
