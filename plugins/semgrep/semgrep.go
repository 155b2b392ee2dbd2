package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/scan-io-git/warden/internal/sarif"
	"github.com/scan-io-git/warden/pkg/shared"
)

// Metadata of the plugin
var (
	Version       = "unknown"
	GolangVersion = "unknown"
	BuildTime     = "unknown"
)

const (
	frameID        = "semgrep"
	defaultTimeout = 120 * time.Second
)

type settings struct {
	Config         string   `json:"config"`
	AdditionalArgs []string `json:"additional_args"`
	Timeout        string   `json:"timeout"`
}

type runFunc func(ctx context.Context, args []string) error

// FrameSemgrep runs the semgrep CLI over a batch of files and converts its SARIF output.
type FrameSemgrep struct {
	logger   hclog.Logger
	root     string
	settings settings
	timeout  time.Duration
	run      runFunc
}

func newFrameSemgrep(logger hclog.Logger) *FrameSemgrep {
	return &FrameSemgrep{
		logger: logger,
		run: func(ctx context.Context, args []string) error {
			cmd := exec.CommandContext(ctx, "semgrep", args...)
			cmd.Stderr = os.Stderr
			return cmd.Run()
		},
	}
}

func (g *FrameSemgrep) Describe() (shared.FrameDescription, error) {
	return shared.FrameDescription{
		ID:                frameID,
		Name:              "Semgrep",
		MinimumTriageLane: "middle_lane",
		Priority:          20,
		Batch:             true,
	}, nil
}

// Setup decodes the frame settings. The rule set defaults to p/ci in CI mode.
func (g *FrameSemgrep) Setup(req shared.FrameSetupRequest) (bool, error) {
	var s settings
	if len(req.Settings) > 0 {
		if err := json.Unmarshal(req.Settings, &s); err != nil {
			return false, fmt.Errorf("invalid semgrep settings: %w", err)
		}
	}
	if s.Config == "" {
		s.Config = "p/default"
		if req.CIMode {
			s.Config = "p/ci"
		}
	}

	g.timeout = defaultTimeout
	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil || d <= 0 {
			return false, fmt.Errorf("invalid semgrep timeout %q", s.Timeout)
		}
		g.timeout = d
	}

	g.root = req.Root
	g.settings = s
	g.logger.Debug("semgrep frame configured", "config", s.Config, "timeout", g.timeout)
	return true, nil
}

// buildCommandArgs constructs the command-line arguments for the semgrep command.
func (g *FrameSemgrep) buildCommandArgs(resultsPath string, targets []string) []string {
	args := []string{"scan", "--config", g.settings.Config, "--sarif", "--quiet", "-o", resultsPath}
	args = append(args, g.settings.AdditionalArgs...)
	return append(args, targets...)
}

func (g *FrameSemgrep) Scan(req shared.FrameScanRequest) (shared.FrameScanResponse, error) {
	var resp shared.FrameScanResponse
	if g.root == "" {
		return resp, fmt.Errorf("semgrep frame is not configured")
	}
	if len(req.Files) == 0 {
		return resp, nil
	}

	targets := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		targets = append(targets, filepath.Join(g.root, filepath.FromSlash(f.Path)))
	}

	tmp, err := os.MkdirTemp("", "warden-semgrep-")
	if err != nil {
		return resp, fmt.Errorf("failed to create results folder: %w", err)
	}
	defer os.RemoveAll(tmp)
	resultsPath := filepath.Join(tmp, "semgrep.sarif")

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	g.logger.Info("scan is starting", "files", len(targets))
	if err := g.run(ctx, g.buildCommandArgs(resultsPath, targets)); err != nil {
		if ctx.Err() != nil {
			return resp, fmt.Errorf("semgrep timed out after %s", g.timeout)
		}
		return resp, fmt.Errorf("semgrep execution error: %w", err)
	}

	report, err := sarif.ReadReport(resultsPath, g.logger, g.root, true)
	if err != nil {
		return resp, err
	}
	resp.Findings = report.ToFindings()
	resp.Metadata = map[string]string{
		"files":    fmt.Sprint(len(targets)),
		"rule_set": g.settings.Config,
	}
	g.logger.Info("scan finished", "findings", len(resp.Findings))
	return resp, nil
}

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Level:      hclog.Trace,
		Output:     os.Stderr,
		JSONFormat: true,
	})

	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: shared.HandshakeConfig,
		Plugins: map[string]plugin.Plugin{
			shared.PluginTypeFrame: &shared.FramePlugin{Impl: newFrameSemgrep(logger)},
		},
		Logger: logger,
	})
}
