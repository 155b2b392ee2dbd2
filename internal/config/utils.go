package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
)

// GetBoolValue retrieves a boolean value from a nested struct based on a dot-separated path.
// It returns the provided defaultValue if the specified field is not explicitly set or is nil.
func GetBoolValue(config interface{}, fieldPath string, defaultValue bool) bool {
	if config == nil {
		return defaultValue
	}

	val := reflect.ValueOf(config)
	for _, field := range strings.Split(fieldPath, ".") {
		if val.Kind() == reflect.Ptr {
			if val.IsNil() {
				return defaultValue
			}
			val = val.Elem()
		}
		if val.Kind() != reflect.Struct {
			return defaultValue
		}

		val = val.FieldByName(field)
		if !val.IsValid() {
			return defaultValue
		}
	}

	if val.Kind() == reflect.Ptr && !val.IsNil() {
		return val.Elem().Bool()
	} else if val.Kind() == reflect.Bool {
		return val.Bool()
	}

	return defaultValue
}

// SetThen provides a utility to select the first value if set, otherwise defaults.
func SetThen[T any](value T, defaultValue T) T {
	if reflect.ValueOf(value).IsZero() {
		return defaultValue
	}
	return value
}

// LookupSetting resolves a dot-separated path such as "spec.platforms" in a
// decoded YAML settings tree. Both map flavours produced by yaml.v2 are walked.
func LookupSetting(settings map[string]interface{}, path string) (interface{}, bool) {
	if settings == nil || path == "" {
		return nil, false
	}

	var current interface{} = settings
	for _, key := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			current = v
		case map[interface{}]interface{}:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	return current, true
}

// IsEmptySetting reports whether a resolved setting carries no usable value.
func IsEmptySetting(v interface{}) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) == ""
	case []interface{}:
		return len(val) == 0
	case map[interface{}]interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	}
	return false
}

// SettingString returns a string setting or the default value.
func SettingString(settings map[string]interface{}, path, defaultValue string) string {
	v, ok := LookupSetting(settings, path)
	if !ok || v == nil {
		return defaultValue
	}
	return fmt.Sprint(v)
}

// GetWardenHome returns the project-local state folder.
func GetWardenHome(cfg *Config) string {
	if cfg == nil {
		return DefaultHomeFolder
	}
	return SetThen(cfg.Warden.HomeFolder, DefaultHomeFolder)
}

// GetBaselineDir returns the module baseline folder.
func GetBaselineDir(cfg *Config) string {
	if cfg != nil && cfg.Baseline.Dir != "" {
		return cfg.Baseline.Dir
	}
	return filepath.Join(GetWardenHome(cfg), "baseline")
}

// GetLegacyBaselinePath returns the single-file baseline location.
func GetLegacyBaselinePath(cfg *Config) string {
	if cfg != nil && cfg.Baseline.LegacyPath != "" {
		return cfg.Baseline.LegacyPath
	}
	return filepath.Join(GetWardenHome(cfg), "baseline.json")
}

// GetCachePath returns the findings cache file location.
func GetCachePath(cfg *Config) string {
	if cfg != nil && cfg.Cache.Path != "" {
		return cfg.Cache.Path
	}
	return filepath.Join(GetWardenHome(cfg), "cache", "findings_cache.json")
}

// GetRulesPath returns the custom rules file location.
func GetRulesPath(cfg *Config) string {
	if cfg != nil && cfg.Rules.Path != "" {
		return cfg.Rules.Path
	}
	return filepath.Join(GetWardenHome(cfg), "rules.yaml")
}

// GetArtifactsFolder returns the folder for run reports.
func GetArtifactsFolder(cfg *Config) string {
	if cfg != nil && cfg.Artifacts.Folder != "" {
		return cfg.Artifacts.Folder
	}
	return filepath.Join(GetWardenHome(cfg), "reports")
}

// GetPluginsFolder returns the folder holding out-of-process frame binaries.
func GetPluginsFolder(cfg *Config) string {
	if cfg != nil && cfg.Warden.PluginsFolder != "" {
		return cfg.Warden.PluginsFolder
	}
	return filepath.Join(GetWardenHome(cfg), "plugins")
}
