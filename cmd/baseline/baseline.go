package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/warden/internal/baseline"
	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/logger"
	errs "github.com/scan-io-git/warden/pkg/shared/errors"
)

// RunOptions holds the flags of the baseline subcommands.
type RunOptions struct {
	Module string `json:"module,omitempty"`
	Force  bool   `json:"force,omitempty"`
	JSON   bool   `json:"json,omitempty"`
}

var (
	AppConfig    *config.Config
	opts         RunOptions
	exampleUsage = `  # Show technical debt of every module
  warden baseline debt

  # Show debt of one module as JSON
  warden baseline debt --module api --json

  # Convert .warden/baseline.json into the per-module layout
  warden baseline migrate

  # Describe the baseline layout on disk
  warden baseline status`

	// BaselineCmd groups the baseline subcommands.
	BaselineCmd = &cobra.Command{
		Use:                   "baseline {debt|migrate|status}",
		Short:                 "Inspect and migrate the findings baseline",
		Example:               exampleUsage,
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
	}

	debtCmd = &cobra.Command{
		Use:   "debt [--module NAME] [--json]",
		Short: "Report technical debt per module with age warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDebt(cmd.OutOrStdout(), newManager())
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate [--force]",
		Short: "Convert the legacy single-file baseline into per-module files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.OutOrStdout(), newManager())
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status [--json]",
		Short: "Show which baseline layout is present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.OutOrStdout(), newManager())
		},
	}
)

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func newManager() *baseline.Manager {
	return baseline.NewManager(AppConfig, logger.NewLogger(AppConfig, "core-baseline"))
}

func runDebt(w io.Writer, m *baseline.Manager) error {
	report, err := m.DebtReport(opts.Module)
	if err != nil {
		return errs.NewCommandError(opts, fmt.Errorf("failed to read baseline: %w", err), errs.ExitCodePipelineError)
	}
	if opts.JSON {
		return writeJSON(w, report)
	}

	if len(report.Modules) == 0 {
		fmt.Fprintln(w, "No module baseline found.")
		return nil
	}
	names := make([]string, 0, len(report.Modules))
	for name := range report.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		md := report.Modules[name]
		fmt.Fprintf(w, "%-24s debt=%-4d oldest=%dd\n", name, md.DebtCount, md.OldestDebtAgeDays)
	}
	fmt.Fprintf(w, "Total debt: %d\n", report.TotalDebt)
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "[%s] %s\n", warning.Level, warning.Message)
	}
	return nil
}

func runMigrate(w io.Writer, m *baseline.Manager) error {
	meta, err := m.Migrate(opts.Force)
	switch {
	case errors.Is(err, baseline.ErrNoLegacyBaseline):
		fmt.Fprintln(w, "No legacy baseline to migrate.")
		return nil
	case errors.Is(err, baseline.ErrAlreadyMigrated):
		return errs.NewCommandError(opts, fmt.Errorf("baseline already migrated, use --force to rebuild it"), errs.ExitCodePipelineError)
	case err != nil:
		return errs.NewCommandError(opts, fmt.Errorf("migration failed: %w", err), errs.ExitCodePipelineError)
	}
	fmt.Fprintf(w, "Migrated %d finding(s) into %d module(s).\n", meta.TotalFindings, len(meta.Modules))
	return nil
}

func runStatus(w io.Writer, m *baseline.Manager) error {
	st, err := m.Status()
	if err != nil {
		return errs.NewCommandError(opts, fmt.Errorf("failed to read baseline: %w", err), errs.ExitCodePipelineError)
	}
	if opts.JSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Layout: %s\n", st.Layout)
	if st.LegacyPresent && st.Layout == "legacy" {
		fmt.Fprintln(w, "Run 'warden baseline migrate' to split it per module.")
	}
	for _, ms := range st.Modules {
		fmt.Fprintf(w, "  %-24s findings=%-4d debt=%d\n", ms.Name, ms.Findings, ms.Debt)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	debtCmd.Flags().StringVarP(&opts.Module, "module", "m", "", "Report a single module.")
	debtCmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the report as JSON.")
	migrateCmd.Flags().BoolVar(&opts.Force, "force", false, "Rebuild module files even when the module layout exists.")
	statusCmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the status as JSON.")
	BaselineCmd.AddCommand(debtCmd, migrateCmd, statusCmd)
}
