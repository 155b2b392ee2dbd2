package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/warden/cmd/baseline"
	"github.com/scan-io-git/warden/cmd/cache"
	"github.com/scan-io-git/warden/cmd/scan"
	"github.com/scan-io-git/warden/cmd/version"
	"github.com/scan-io-git/warden/internal/config"
	errs "github.com/scan-io-git/warden/pkg/shared/errors"
)

var (
	cfgFile   string
	AppConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:                   "warden [command]",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		Short:                 "Warden runs code quality and security frames over a project.",
		Long: `Warden sequences analysis phases over the files of a project, routes every file
	to a triage lane and schedules validation frames, custom rules and external tool imports.
	`,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is %s)", config.DefaultConfigPath))
	rootCmd.AddCommand(scan.ScanCmd)
	rootCmd.AddCommand(baseline.BaselineCmd)
	rootCmd.AddCommand(cache.CacheCmd)
	rootCmd.AddCommand(version.NewVersionCmd())
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	err := rootCmd.Execute()
	if err == nil {
		return errs.ExitCodeClean
	}

	var cmdErr *errs.CommandError
	if errors.As(err, &cmdErr) {
		if cmdErr.ExitCode != errs.ExitCodePolicyFailure {
			fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		}
		return cmdErr.ExitCode
	}
	fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
	return errs.ExitCodePipelineError
}

func initConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("initializing config file failed: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}
	AppConfig = cfg

	scan.Init(AppConfig)
	baseline.Init(AppConfig)
	cache.Init(AppConfig)
	version.Init(AppConfig)
	return nil
}
