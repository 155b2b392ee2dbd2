package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = ".warden/config.yaml"

type Config struct {
	Logger      Logger                 `yaml:"logger"`
	Warden      Warden                 `yaml:"warden"`
	Pipeline    Pipeline               `yaml:"pipeline"`
	Frames      map[string]FrameConfig `yaml:"frames"`
	Triage      Triage                 `yaml:"triage"`
	Audit       Audit                  `yaml:"audit"`
	HTTPClient  HTTPClient             `yaml:"http_client"`
	Baseline    Baseline               `yaml:"baseline"`
	Cache       Cache                  `yaml:"cache"`
	Suppression Suppression            `yaml:"suppression"`
	Rules       Rules                  `yaml:"rules"`
	Metrics     Metrics                `yaml:"metrics"`
	Artifacts   Artifacts              `yaml:"artifacts"`
}

type Logger struct {
	Level           string `yaml:"level"`
	DisableTime     *bool  `yaml:"disable_time"`
	JSONFormat      *bool  `yaml:"json_format"`
	IncludeLocation *bool  `yaml:"include_location"`
}

type Warden struct {
	HomeFolder    string `yaml:"home_folder"`    // project-local state folder, .warden by default
	PluginsFolder string `yaml:"plugins_folder"` // folder with out-of-process frame binaries
	Mode          string `yaml:"mode"`           // "CI" or "user", resolved during validation
}

type Pipeline struct {
	Timeout          time.Duration   `yaml:"timeout"`
	FrameTimeout     time.Duration   `yaml:"frame_timeout"`
	FileTimeoutMin   time.Duration   `yaml:"file_timeout_min"`
	Strategy         string          `yaml:"strategy"`
	ParallelLimit    int             `yaml:"parallel_limit"`
	IncludeTestFiles bool            `yaml:"include_test_files"`
	Frames           []string        `yaml:"frames"` // manual frame selection, bypasses classification
	Phases           map[string]bool `yaml:"phases"`
	LLMProvider      string          `yaml:"llm_provider"`
}

type FrameConfig struct {
	Enabled           *bool                  `yaml:"enabled"`
	IsBlocker         *bool                  `yaml:"is_blocker"`
	OnFail            string                 `yaml:"on_fail"`
	MinimumTriageLane string                 `yaml:"minimum_triage_lane"`
	IncludeTestFiles  bool                   `yaml:"include_test_files"`
	Ignore            []string               `yaml:"ignore"`
	Suppressions      []FrameSuppression     `yaml:"suppressions"`
	RequiresFrames    []string               `yaml:"requires_frames"`
	RequiresConfig    []string               `yaml:"requires_config"`
	RequiresContext   []string               `yaml:"requires_context"`
	Priority          int                    `yaml:"priority"`
	Plugin            string                 `yaml:"plugin"`
	Settings          map[string]interface{} `yaml:"settings"`
}

type FrameSuppression struct {
	Rule string `yaml:"rule"`
	File string `yaml:"file"`
}

type Triage struct {
	HeuristicOnly bool `yaml:"heuristic_only"`
	SafeMaxBytes  int  `yaml:"safe_max_bytes"`
}

type Audit struct {
	Endpoint       string        `yaml:"endpoint"`
	HealthPath     string        `yaml:"health_path"`
	BatchTimeout   time.Duration `yaml:"batch_timeout"`
	MaxFailures    int           `yaml:"max_failures"`
	MaxEdges       int           `yaml:"max_edges"`
	MaxDeadSymbols int           `yaml:"max_dead_symbols"`
	RateLimit      float64       `yaml:"rate_limit"`
	Burst          int           `yaml:"burst"`
	GraphPath      string        `yaml:"graph_path"` // JSON code graph, relative to the scanned folder
}

type HTTPClient struct {
	Debug            *bool           `yaml:"debug"`
	RetryCount       int             `yaml:"retry_count"`
	RetryWaitTime    time.Duration   `yaml:"retry_wait_time"`
	RetryMaxWaitTime time.Duration   `yaml:"retry_max_wait_time"`
	Timeout          time.Duration   `yaml:"timeout"`
	TLSClientConfig  TLSClientConfig `yaml:"tls_client_config"`
	Proxy            Proxy           `yaml:"proxy"`
}

type TLSClientConfig struct {
	Verify *bool `yaml:"verify"`
}

type Proxy struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Baseline struct {
	Dir        string            `yaml:"dir"`
	LegacyPath string            `yaml:"legacy_path"`
	Modules    map[string]string `yaml:"modules"` // path prefix -> module name
	Update     bool              `yaml:"update"`
}

type Cache struct {
	Enabled         *bool    `yaml:"enabled"`
	Path            string   `yaml:"path"`
	MaxEntries      int      `yaml:"max_entries"`
	CacheableFrames []string `yaml:"cacheable_frames"`
}

type Suppression struct {
	Enabled      *bool              `yaml:"enabled"`
	GlobalRules  []string           `yaml:"global_rules"`
	IgnoredFiles []string           `yaml:"ignored_files"`
	Entries      []SuppressionEntry `yaml:"entries"`
}

type SuppressionEntry struct {
	ID      string   `yaml:"id"`
	Rules   []string `yaml:"rules"`
	File    string   `yaml:"file"`
	Line    int      `yaml:"line"`
	Reason  string   `yaml:"reason"`
	Enabled *bool    `yaml:"enabled"`
}

type Rules struct {
	Path string `yaml:"path"`
}

type Metrics struct {
	Enabled      bool   `yaml:"enabled"`
	TextfilePath string `yaml:"textfile_path"`
}

type Artifacts struct {
	Folder string `yaml:"folder"`
	S3     S3     `yaml:"s3"`
}

type S3 struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`
}

func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}
	return nil
}

func LoadYAML(configPath string, data interface{}) error {
	if err := ValidateConfigPath(configPath); err != nil {
		return err
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	if err := d.Decode(data); err != nil {
		return err
	}

	return nil
}

// LoadConfig reads the configuration file. A missing file at the default
// location yields an empty configuration; a missing explicit path is an error.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{}
	if configPath == "" {
		if _, err := os.Stat(DefaultConfigPath); os.IsNotExist(err) {
			return cfg, nil
		}
		configPath = DefaultConfigPath
	}

	if err := LoadYAML(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config %q: %w", configPath, err)
	}
	return cfg, nil
}

// FrameSettings returns the configuration block of a frame, or the zero value.
func (c *Config) FrameSettings(frameID string) FrameConfig {
	if c == nil || c.Frames == nil {
		return FrameConfig{}
	}
	return c.Frames[frameID]
}

// PhaseEnabled reports whether a phase has not been switched off.
func (c *Config) PhaseEnabled(phase string) bool {
	if c == nil || c.Pipeline.Phases == nil {
		return true
	}
	enabled, ok := c.Pipeline.Phases[phase]
	return !ok || enabled
}

// IsCI reports whether the resolved mode is CI.
func (c *Config) IsCI() bool {
	return c != nil && c.Warden.Mode == ModeCI
}
