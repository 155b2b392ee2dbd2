package scan

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/scan-io-git/warden/cmd/version"
	"github.com/scan-io-git/warden/internal/audit"
	"github.com/scan-io-git/warden/internal/baseline"
	"github.com/scan-io-git/warden/internal/cache"
	"github.com/scan-io-git/warden/internal/ci"
	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/events"
	"github.com/scan-io-git/warden/internal/git"
	"github.com/scan-io-git/warden/internal/ignore"
	"github.com/scan-io-git/warden/internal/logger"
	"github.com/scan-io-git/warden/internal/metrics"
	"github.com/scan-io-git/warden/internal/pipeline"
	"github.com/scan-io-git/warden/internal/rules"
	"github.com/scan-io-git/warden/internal/sarif"
	"github.com/scan-io-git/warden/pkg/shared/artifacts"
	errs "github.com/scan-io-git/warden/pkg/shared/errors"
)

// RunOptions holds the arguments for the scan command.
type RunOptions struct {
	Path        string   `json:"path"`
	Frames      []string `json:"frames,omitempty"`
	Base        string   `json:"base,omitempty"`
	Incremental bool     `json:"incremental,omitempty"`
	JSON        bool     `json:"json,omitempty"`
	SarifOutput string   `json:"sarif_output,omitempty"`
	Upload      bool     `json:"upload,omitempty"`
}

// Summary is attached to the command error of a failed scan.
type Summary struct {
	RunID       string `json:"run_id"`
	Status      string `json:"status"`
	ExitCode    int    `json:"exit_code"`
	NewFindings int    `json:"new_findings"`
	Artifact    string `json:"artifact,omitempty"`
}

var (
	AppConfig        *config.Config
	scanOptions      RunOptions
	exampleScanUsage = `  # Scan the current folder with every enabled frame
  warden scan

  # Run only the security and style frames
  warden scan --frame security --frame style ./services/api

  # Scan files changed since main and write a SARIF report
  warden scan --base main --sarif results.sarif

  # Emit JSON lines progress even on a terminal and upload the run report to S3
  warden scan --json --upload`

	// ScanCmd represents the scan command.
	ScanCmd = &cobra.Command{
		Use:                   "scan [--frame FRAME_ID]... [--base REV | --incremental] [--json] [--sarif PATH] [--upload] [PATH]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Example:               exampleScanUsage,
		Short:                 "Run the analysis pipeline over a project",
		Args:                  cobra.MaximumNArgs(1),
		RunE:                  runScanCommand,
	}
)

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func runScanCommand(cmd *cobra.Command, args []string) error {
	lg := logger.NewLogger(AppConfig, "core-scan")

	opts := scanOptions
	if len(args) > 0 {
		opts.Path = args[0]
	}
	if err := validateScanArgs(&opts); err != nil {
		lg.Error("invalid scan arguments", "error", err)
		return errs.NewCommandError(opts, fmt.Errorf("invalid arguments: %w", err), errs.ExitCodePipelineError)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	summary, code, err := runScan(ctx, AppConfig, opts, chooseEmitter(cmd.OutOrStdout(), opts.JSON), lg)
	if err != nil {
		return errs.NewCommandError(opts, err, errs.ExitCodePipelineError)
	}
	if code != errs.ExitCodeClean {
		return errs.NewCommandError(summary, fmt.Errorf("scan finished with status %s", summary.Status), code)
	}
	lg.Info("scan command completed successfully", "run", summary.RunID)
	return nil
}

// chooseEmitter renders text on a terminal and JSON lines otherwise.
func chooseEmitter(w io.Writer, forceJSON bool) events.Emitter {
	if f, ok := w.(*os.File); ok && !forceJSON && term.IsTerminal(int(f.Fd())) {
		return events.NewTextEmitter(w)
	}
	return events.NewJSONLinesEmitter(w)
}

// runScan wires the pipeline for one project. The error is non-nil only when
// the run could not start; pipeline failures are reported through the exit code.
func runScan(ctx context.Context, cfg *config.Config, opts RunOptions, emitter events.Emitter, lg hclog.Logger) (Summary, int, error) {
	root, err := filepath.Abs(opts.Path)
	if err != nil {
		return Summary{}, errs.ExitCodePipelineError, fmt.Errorf("failed to resolve %q: %w", opts.Path, err)
	}

	var changes *git.ChangeSet
	if opts.Incremental || opts.Base != "" {
		changes, err = git.DetectChanges(root, opts.Base)
		if err != nil {
			return Summary{}, errs.ExitCodePipelineError, fmt.Errorf("incremental detection failed: %w", err)
		}
		lg.Info("incremental scan", "base", opts.Base, "changed", changes.Len())
	}

	ignored, err := ignore.ForProject(root, nil)
	if err != nil {
		return Summary{}, errs.ExitCodePipelineError, fmt.Errorf("failed to read ignore files: %w", err)
	}
	files, err := pipeline.Discover(root, ignored, changes, lg.Named("discovery"))
	if err != nil {
		return Summary{}, errs.ExitCodePipelineError, fmt.Errorf("file discovery failed: %w", err)
	}

	ruleSet, err := rules.Load(config.GetRulesPath(cfg))
	if err != nil {
		return Summary{}, errs.ExitCodePipelineError, err
	}

	collector := metrics.New()
	registry, closers, err := buildRegistry(cfg, lg)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return Summary{}, errs.ExitCodePipelineError, err
	}

	opt := pipeline.Options{
		Config:   cfg,
		Registry: registry,
		Rules:    ruleSet,
		Executor: rules.NewExecutor(root, nil, lg.Named("rules")),
		Baseline: baseline.NewManager(cfg, lg.Named("baseline")),
		Emitter:  emitter,
		Metrics:  collector,
		Closers:  closers,
		Logger:   lg.Named("pipeline"),
	}
	if config.GetBoolValue(cfg.Cache, "Enabled", true) {
		opt.Cache = cache.Open(config.GetCachePath(cfg), cfg.Cache.MaxEntries, lg.Named("cache"))
	}
	if cfg.Audit.Endpoint != "" {
		opt.Audit = audit.NewResilientService(audit.NewHTTPClient(lg.Named("audit"), cfg), audit.OptionsFromConfig(cfg.Audit), lg.Named("audit"), collector)
	}
	if p := cfg.Audit.GraphPath; p != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		opt.Collaborators.Graph = audit.FileGraph{Path: p}
	}

	repo, err := git.Inspect(root)
	if err != nil {
		lg.Debug("repository metadata unavailable", "error", err)
		repo = nil
	}
	run := pipeline.NewRun(ci.CurrentEnvironment(), repo)

	manual := opts.Frames
	if len(manual) == 0 {
		manual = cfg.Pipeline.Frames
	}

	pc, runErr := pipeline.New(opt).Execute(ctx, run, root, files, manual)
	code := pipeline.ExitCode(pc, runErr)

	summary := Summary{
		RunID:       run.ID,
		Status:      string(run.Status),
		ExitCode:    code,
		NewFindings: len(pc.NewFindings()),
	}

	report := pipeline.BuildReport(pc, code)
	if path, err := artifacts.SaveArtifactJSON(cfg, lg, "scan", run.ID, report); err != nil {
		lg.Warn("failed to save run report", "error", err)
	} else {
		summary.Artifact = path
		if opts.Upload {
			uploadReport(ctx, cfg, path, lg)
		}
	}

	if opts.SarifOutput != "" {
		if err := sarif.SaveReport(opts.SarifOutput, pc.NewFindings(), version.CoreVersion); err != nil {
			lg.Warn("failed to write SARIF report", "path", opts.SarifOutput, "error", err)
		}
	}
	if cfg.Metrics.Enabled && cfg.Metrics.TextfilePath != "" {
		if err := collector.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			lg.Warn("failed to write metrics", "error", err)
		}
	}
	return summary, code, nil
}

func uploadReport(ctx context.Context, cfg *config.Config, path string, lg hclog.Logger) {
	uploader, err := artifacts.NewS3Uploader(cfg, lg.Named("artifacts"))
	if err != nil {
		lg.Warn("artifact upload unavailable", "error", err)
		return
	}
	if uploader == nil {
		lg.Warn("--upload requires artifacts.s3.bucket in the configuration")
		return
	}
	location, err := uploader.Upload(ctx, path)
	if err != nil {
		lg.Warn("artifact upload failed", "error", err)
		return
	}
	lg.Info("run report uploaded", "location", location)
}

func init() {
	ScanCmd.Flags().StringArrayVarP(&scanOptions.Frames, "frame", "f", nil, "Frame to run. Repeat to select several frames and skip classification.")
	ScanCmd.Flags().StringVar(&scanOptions.Base, "base", "", "Git revision to compare against. Only files changed since this revision are scanned.")
	ScanCmd.Flags().BoolVar(&scanOptions.Incremental, "incremental", false, "Scan only files with uncommitted changes.")
	ScanCmd.Flags().BoolVar(&scanOptions.JSON, "json", false, "Emit progress events as JSON lines even on a terminal.")
	ScanCmd.Flags().StringVar(&scanOptions.SarifOutput, "sarif", "", "Path of a SARIF report with the new findings.")
	ScanCmd.Flags().BoolVar(&scanOptions.Upload, "upload", false, "Upload the run report to the configured S3 bucket.")
	ScanCmd.Flags().BoolP("help", "h", false, "Show help for the scan command.")
}
