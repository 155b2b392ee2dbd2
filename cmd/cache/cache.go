package cache

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/warden/internal/cache"
	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/logger"
	errs "github.com/scan-io-git/warden/pkg/shared/errors"
)

var (
	AppConfig *config.Config

	// CacheCmd groups the findings cache subcommands.
	CacheCmd = &cobra.Command{
		Use:                   "cache clear",
		Short:                 "Manage the findings cache",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
	}

	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove the findings cache file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.GetCachePath(AppConfig)
			if err := cache.Clear(path); err != nil {
				logger.NewLogger(AppConfig, "core-cache").Error("failed to clear cache", "error", err)
				return errs.NewCommandError(nil, err, errs.ExitCodePipelineError)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Findings cache cleared: %s\n", path)
			return nil
		},
	}
)

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func init() {
	CacheCmd.AddCommand(clearCmd)
}
