package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/scan-io-git/warden/internal/ci"
	"github.com/scan-io-git/warden/pkg/shared/files"
)

var validStrategies = map[string]bool{
	"sequential": true,
	"parallel":   true,
	"fail_fast":  true,
	"pipeline":   true,
}

var validLanes = map[string]bool{
	"":            true,
	"fast_lane":   true,
	"middle_lane": true,
	"deep_lane":   true,
	"fast":        true,
	"middle":      true,
	"deep":        true,
}

// ValidateConfig checks if the global configurations have valid values and fills in defaults.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("YAML global config: configuration object is nil")
	}
	if err := ValidateWardenConfig(cfg); err != nil {
		return fmt.Errorf("YAML global config: warden directive is invalid: %w", err)
	}
	if err := ValidatePipelineConfig(&cfg.Pipeline); err != nil {
		return fmt.Errorf("YAML global config: pipeline directive is invalid: %w", err)
	}
	if err := ValidateFramesConfig(cfg.Frames); err != nil {
		return fmt.Errorf("YAML global config: frames directive is invalid: %w", err)
	}
	if err := ValidateAuditConfig(&cfg.Audit); err != nil {
		return fmt.Errorf("YAML global config: audit directive is invalid: %w", err)
	}
	if err := ValidateHTTPConfig(&cfg.HTTPClient); err != nil {
		return fmt.Errorf("YAML global config: http_client directive is invalid: %w", err)
	}
	if cfg.Cache.MaxEntries < 0 {
		return fmt.Errorf("YAML global config: cache directive is invalid: max_entries cannot be negative: %d", cfg.Cache.MaxEntries)
	}
	cfg.Cache.MaxEntries = SetThen(cfg.Cache.MaxEntries, DefaultCacheMaxEntries)
	cfg.Triage.SafeMaxBytes = SetThen(cfg.Triage.SafeMaxBytes, DefaultTriageSafeMaxLen)
	return nil
}

// ValidateWardenConfig resolves the home folder and the run mode.
func ValidateWardenConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("warden configuration is nil")
	}
	if home := os.Getenv("WARDEN_HOME"); home != "" {
		cfg.Warden.HomeFolder = home
	}
	expanded, err := files.ExpandPath(GetWardenHome(cfg))
	if err != nil {
		return fmt.Errorf("failed to expand home path %q: %w", cfg.Warden.HomeFolder, err)
	}
	cfg.Warden.HomeFolder = expanded

	if cfg.Warden.PluginsFolder != "" {
		expanded, err := files.ExpandPath(cfg.Warden.PluginsFolder)
		if err != nil {
			return fmt.Errorf("failed to expand plugins path %q: %w", cfg.Warden.PluginsFolder, err)
		}
		cfg.Warden.PluginsFolder = expanded
	}

	updateMode(cfg, os.Getenv)
	return nil
}

// ValidatePipelineConfig checks timeouts and the execution strategy.
func ValidatePipelineConfig(p *Pipeline) error {
	if p == nil {
		return fmt.Errorf("pipeline configuration is nil")
	}
	p.Timeout = SetThen(p.Timeout, DefaultPipelineTimeout)
	p.FrameTimeout = SetThen(p.FrameTimeout, DefaultFrameTimeout)
	p.FileTimeoutMin = SetThen(p.FileTimeoutMin, DefaultFileTimeoutMin)
	p.Strategy = SetThen(strings.ToLower(p.Strategy), DefaultStrategy)
	p.ParallelLimit = SetThen(p.ParallelLimit, DefaultParallelLimit)

	if raw := os.Getenv("WARDEN_FILE_TIMEOUT_MIN"); raw != "" {
		d, err := parseSeconds(raw)
		if err != nil {
			return fmt.Errorf("WARDEN_FILE_TIMEOUT_MIN is invalid: %w", err)
		}
		p.FileTimeoutMin = d
	}

	durations := map[string]time.Duration{
		"timeout":          p.Timeout,
		"frame_timeout":    p.FrameTimeout,
		"file_timeout_min": p.FileTimeoutMin,
	}
	for name, d := range durations {
		if err := validateDuration(d, name, 24*time.Hour); err != nil {
			return err
		}
	}
	if !validStrategies[p.Strategy] {
		return fmt.Errorf("unsupported strategy %q", p.Strategy)
	}
	if p.ParallelLimit < 1 || p.ParallelLimit > 64 {
		return fmt.Errorf("parallel_limit must be between 1 and 64: %d", p.ParallelLimit)
	}
	return nil
}

// ValidateFramesConfig checks per-frame policies.
func ValidateFramesConfig(frames map[string]FrameConfig) error {
	for id, fc := range frames {
		switch fc.OnFail {
		case "", "stop", "continue", "warn":
		default:
			return fmt.Errorf("frame %q: unsupported on_fail policy %q", id, fc.OnFail)
		}
		if !validLanes[fc.MinimumTriageLane] {
			return fmt.Errorf("frame %q: unsupported minimum_triage_lane %q", id, fc.MinimumTriageLane)
		}
	}
	return nil
}

// ValidateAuditConfig fills in circuit breaker and budget defaults.
func ValidateAuditConfig(a *Audit) error {
	if a == nil {
		return fmt.Errorf("audit configuration is nil")
	}
	if a.Endpoint != "" {
		if _, err := url.ParseRequestURI(a.Endpoint); err != nil {
			return fmt.Errorf("invalid endpoint %q: %w", a.Endpoint, err)
		}
	}
	if a.GraphPath != "" {
		expanded, err := files.ExpandPath(a.GraphPath)
		if err != nil {
			return fmt.Errorf("failed to expand graph path %q: %w", a.GraphPath, err)
		}
		a.GraphPath = expanded
	}
	a.HealthPath = SetThen(a.HealthPath, DefaultAuditHealthPath)
	a.BatchTimeout = SetThen(a.BatchTimeout, DefaultAuditBatchTimeout)
	a.MaxFailures = SetThen(a.MaxFailures, DefaultAuditMaxFailures)
	a.MaxEdges = SetThen(a.MaxEdges, DefaultAuditMaxEdges)
	a.MaxDeadSymbols = SetThen(a.MaxDeadSymbols, DefaultAuditMaxDeadSymbols)
	a.RateLimit = SetThen(a.RateLimit, DefaultAuditRateLimit)
	a.Burst = SetThen(a.Burst, DefaultAuditBurst)

	if a.MaxFailures < 1 {
		return fmt.Errorf("max_failures must be positive: %d", a.MaxFailures)
	}
	return validateDuration(a.BatchTimeout, "batch_timeout", 10*time.Minute)
}

// ValidateHTTPConfig checks if the HTTP configurations have valid values.
func ValidateHTTPConfig(httpConfig *HTTPClient) error {
	if httpConfig == nil {
		return fmt.Errorf("HTTP configuration is nil")
	}
	if httpConfig.RetryCount < 0 || httpConfig.RetryCount > 20 {
		return fmt.Errorf("retry_count must be between 0 and 20: %d", httpConfig.RetryCount)
	}

	durations := map[string]time.Duration{
		"RetryMaxWaitTime": httpConfig.RetryMaxWaitTime,
		"RetryWaitTime":    httpConfig.RetryWaitTime,
		"Timeout":          httpConfig.Timeout,
	}
	for name, duration := range durations {
		if err := validateDuration(duration, name, 100*time.Second); err != nil {
			return err
		}
	}

	return validateProxy(&httpConfig.Proxy)
}

// validateDuration checks that a time.Duration is valid and within a specified maximum duration.
func validateDuration(d time.Duration, name string, max time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration for %q: %v cannot be negative", name, d)
	}
	if d > max {
		return fmt.Errorf("%q duration is too long: %v exceeds maximum of %v", name, d, max)
	}
	return nil
}

// validateProxy checks if the given Proxy settings are valid.
func validateProxy(proxy *Proxy) error {
	if proxy == nil {
		return fmt.Errorf("proxy configuration is nil")
	}
	if proxy.Host == "" || proxy.Port == 0 {
		return nil
	}

	if !strings.Contains(proxy.Host, "://") {
		proxy.Host = "http://" + proxy.Host
	}
	proxy.Host = strings.TrimRight(proxy.Host, "/")
	if _, err := url.Parse(proxy.Host); err != nil {
		return fmt.Errorf("invalid host URL: %w", err)
	}
	if proxy.Port < 1 || proxy.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", proxy.Port)
	}
	return nil
}

// updateMode sets CI mode from WARDEN_MODE, the CI variable or a recognised CI provider.
func updateMode(cfg *Config, lookup ci.LookupFunc) {
	mode := lookup("WARDEN_MODE")
	if strings.EqualFold(mode, ModeCI) || lookup("CI") == "true" {
		cfg.Warden.Mode = ModeCI
		return
	}
	if mode != "" {
		cfg.Warden.Mode = mode
		return
	}
	if cfg.Warden.Mode != "" {
		return
	}
	if ci.DetectCIKindWithLookup(lookup) != ci.CIUnknown {
		cfg.Warden.Mode = ModeCI
		return
	}
	cfg.Warden.Mode = ModeUser
}

func parseSeconds(raw string) (time.Duration, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	var seconds float64
	if _, err := fmt.Sscanf(raw, "%g", &seconds); err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
