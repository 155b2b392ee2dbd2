package rules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/findings"
	"github.com/scan-io-git/warden/internal/frames"
	"github.com/scan-io-git/warden/internal/suppression"
)

var (
	redisOperations = []*regexp.Regexp{
		regexp.MustCompile(`\.set\s*\(\s*["']([^"']+)["']`),
		regexp.MustCompile(`\.get\s*\(\s*["']([^"']+)["']`),
		regexp.MustCompile(`cache\.set\s*\(\s*["']([^"']+)["']`),
	}
	routeDefinitions = []*regexp.Regexp{
		regexp.MustCompile(`@app\.(?:get|post|put|delete|patch)\s*\(\s*["']([^"']+)["']`),
		regexp.MustCompile(`@router\.(?:get|post|put|delete|patch)\s*\(\s*["']([^"']+)["']`),
		regexp.MustCompile(`Route\s*\(\s*["']([^"']+)["']`),
	}
	asyncDefinition = regexp.MustCompile(`async\s+def\s+(\w+)\s*\(`)
	importStatement = regexp.MustCompile(`^\s*(?:import|from)\s+([\w./-]+)|^\s*import\s+(?:\w+\s+)?"([^"]+)"|require\(\s*["']([^"']+)["']\s*\)`)
)

// AIRuleEvaluator judges "ai" rules. The executor skips them when none is configured.
type AIRuleEvaluator interface {
	EvaluateRule(ctx context.Context, rule Rule, file *frames.CodeFile) ([]Violation, error)
}

// Executor runs rules against in-memory files. Script rules receive the file
// path resolved against Root; relative script paths are resolved there too.
type Executor struct {
	Root      string
	Evaluator AIRuleEvaluator
	logger    hclog.Logger

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

func NewExecutor(root string, evaluator AIRuleEvaluator, logger hclog.Logger) *Executor {
	return &Executor{
		Root:      root,
		Evaluator: evaluator,
		logger:    logger,
		patterns:  make(map[string]*regexp.Regexp),
	}
}

// Execute runs every applicable rule against the given files.
func (e *Executor) Execute(ctx context.Context, rules []Rule, files []*frames.CodeFile) []Violation {
	var violations []Violation
	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		violations = append(violations, e.ExecuteFile(ctx, rules, file)...)
	}
	return violations
}

// ExecuteFile runs rules against one file. Broken rules are logged and skipped.
func (e *Executor) ExecuteFile(ctx context.Context, rules []Rule, file *frames.CodeFile) []Violation {
	var violations []Violation
	lines := strings.Split(file.Content, "\n")

	for _, rule := range rules {
		if !rule.IsEnabled() {
			continue
		}
		if len(rule.Language) > 0 && !languageMatches(file.Path, rule.Language) {
			continue
		}
		if exceptionMatches(file.Path, rule.Exceptions) {
			continue
		}

		var (
			found []Violation
			err   error
		)
		switch rule.Type {
		case TypeSecurity:
			found, err = e.checkSecurity(rule, file.Path, lines)
		case TypeConvention:
			found, err = e.checkConvention(rule, file.Path, lines)
		case TypeScript:
			found, err = e.runScript(ctx, rule, file.Path)
		case TypeAI:
			if e.Evaluator == nil {
				e.logger.Warn("ai rule skipped, no evaluator configured", "rule", rule.ID)
				continue
			}
			found, err = e.Evaluator.EvaluateRule(ctx, rule, file)
		}
		if err != nil {
			e.logger.Error("rule execution failed", "rule", rule.ID, "file", file.Path, "error", err)
			continue
		}
		violations = append(violations, found...)
	}

	if len(violations) > 0 {
		e.logger.Debug("file validation complete", "file", file.Path, "violations", len(violations))
	}
	return violations
}

func languageMatches(path string, languages []string) bool {
	lang := frames.DetectLanguage(path)
	if lang == "" {
		return false
	}
	for _, l := range languages {
		if strings.EqualFold(l, lang) {
			return true
		}
	}
	return false
}

func exceptionMatches(path string, exceptions []string) bool {
	for _, pattern := range exceptions {
		if suppression.GlobMatch(pattern, path) {
			return true
		}
	}
	return false
}

func (e *Executor) compile(pattern string) (*regexp.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if re, ok := e.patterns[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	e.patterns[pattern] = re
	return re, nil
}

func newViolation(rule Rule, path string, line int, message, snippet string) Violation {
	if rule.Message != "" {
		message = rule.Message
	}
	return Violation{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Category:    rule.Category,
		Severity:    findings.ParseSeverity(rule.Severity),
		IsBlocker:   rule.IsBlocker,
		File:        path,
		Line:        line,
		Message:     message,
		CodeSnippet: strings.TrimSpace(snippet),
	}
}

func (e *Executor) scanLines(rule Rule, path string, lines []string, patterns []string, message string) ([]Violation, error) {
	var out []Violation
	for _, pattern := range patterns {
		re, err := e.compile(pattern)
		if err != nil {
			return nil, err
		}
		for i, line := range lines {
			if re.MatchString(line) {
				out = append(out, newViolation(rule, path, i+1, message, line))
			}
		}
	}
	return out, nil
}

func (e *Executor) checkSecurity(rule Rule, path string, lines []string) ([]Violation, error) {
	var out []Violation
	c := rule.Conditions
	if c.Secrets != nil {
		found, err := e.scanLines(rule, path, lines, c.Secrets.Patterns, "Potential secret detected: "+rule.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	if c.Connections != nil {
		found, err := e.scanLines(rule, path, lines, c.Connections.ForbiddenPatterns, "Forbidden connection pattern: "+rule.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (e *Executor) checkConvention(rule Rule, path string, lines []string) ([]Violation, error) {
	var out []Violation
	c := rule.Conditions

	if c.Redis != nil && c.Redis.KeyPattern != "" {
		keyRe, err := e.compile(anchorStart(c.Redis.KeyPattern))
		if err != nil {
			return nil, err
		}
		for _, op := range redisOperations {
			for i, line := range lines {
				m := op.FindStringSubmatch(line)
				if m == nil || keyRe.MatchString(m[1]) {
					continue
				}
				v := newViolation(rule, path, i+1, fmt.Sprintf("Redis key '%s' does not match pattern: %s", m[1], c.Redis.KeyPattern), line)
				v.Suggestion = "Redis keys must match pattern: " + c.Redis.KeyPattern
				out = append(out, v)
			}
		}
	}

	if c.API != nil && c.API.RoutePattern != "" {
		routeRe, err := e.compile(anchorStart(c.API.RoutePattern))
		if err != nil {
			return nil, err
		}
		for _, def := range routeDefinitions {
			for i, line := range lines {
				m := def.FindStringSubmatch(line)
				if m == nil || routeRe.MatchString(m[1]) {
					continue
				}
				v := newViolation(rule, path, i+1, fmt.Sprintf("API route '%s' does not match pattern: %s", m[1], c.API.RoutePattern), line)
				v.Suggestion = "API routes must match pattern: " + c.API.RoutePattern
				out = append(out, v)
			}
		}
	}

	if c.Naming != nil && c.Naming.AsyncMethodSuffix != "" {
		suffix := c.Naming.AsyncMethodSuffix
		for i, line := range lines {
			m := asyncDefinition.FindStringSubmatch(line)
			if m == nil || strings.HasSuffix(m[1], suffix) {
				continue
			}
			v := newViolation(rule, path, i+1, fmt.Sprintf("Async method '%s' must end with '%s'", m[1], suffix), line)
			v.Suggestion = fmt.Sprintf("Rename to '%s%s'", m[1], suffix)
			out = append(out, v)
		}
	}

	if c.Imports != nil && len(c.Imports.Forbidden) > 0 {
		for i, line := range lines {
			imported := importedModule(line)
			if imported == "" {
				continue
			}
			for _, forbidden := range c.Imports.Forbidden {
				if imported == forbidden || strings.HasPrefix(imported, forbidden+".") || strings.HasPrefix(imported, forbidden+"/") {
					out = append(out, newViolation(rule, path, i+1, fmt.Sprintf("Forbidden import '%s'", imported), line))
					break
				}
			}
		}
	}

	if c.MaxLineLength > 0 {
		for i, line := range lines {
			if n := len([]rune(line)); n > c.MaxLineLength {
				out = append(out, newViolation(rule, path, i+1, fmt.Sprintf("Line is %d characters long, limit is %d", n, c.MaxLineLength), ""))
			}
		}
	}
	return out, nil
}

func importedModule(line string) string {
	m := importStatement.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// anchorStart keeps prefix-match semantics for key and route patterns.
func anchorStart(pattern string) string {
	if strings.HasPrefix(pattern, "^") {
		return pattern
	}
	return "^(?:" + pattern + ")"
}

// runScript executes the rule script with the file path as its only argument.
// A non-zero exit is a violation; a timeout kills the process and yields nothing.
func (e *Executor) runScript(ctx context.Context, rule Rule, path string) ([]Violation, error) {
	scriptPath := rule.ScriptPath
	if !filepath.IsAbs(scriptPath) {
		base := e.Root
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, err
			}
			base = wd
		}
		scriptPath = filepath.Join(base, filepath.FromSlash(scriptPath))
	}
	info, err := os.Stat(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("script not found: %w", err)
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		return nil, fmt.Errorf("script %q is not an executable file", scriptPath)
	}

	target := path
	if e.Root != "" && !filepath.IsAbs(target) {
		target = filepath.Join(e.Root, filepath.FromSlash(path))
	}

	timeout := DefaultScriptTimeout
	if rule.Timeout > 0 {
		timeout = time.Duration(rule.Timeout) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, scriptPath, target)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	e.logger.Debug("running script rule", "rule", rule.ID, "cmd", cmd.Args, "timeout", timeout)

	err = cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		e.logger.Error("script rule timed out", "rule", rule.ID, "file", path, "timeout", timeout)
		return nil, nil
	}
	if err == nil {
		return nil, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("script execution error: %w", err)
	}
	if stderr.Len() > 0 {
		e.logger.Warn("script rule stderr output", "rule", rule.ID, "stderr", strings.TrimSpace(stderr.String()))
	}

	message := strings.TrimSpace(stdout.String())
	if message == "" {
		message = rule.Message
	}
	if message == "" {
		message = "Script validation failed: " + rule.Name
	}
	return []Violation{{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Category:  rule.Category,
		Severity:  findings.ParseSeverity(rule.Severity),
		IsBlocker: rule.IsBlocker,
		File:      path,
		Line:      1,
		Message:   message,
	}}, nil
}
