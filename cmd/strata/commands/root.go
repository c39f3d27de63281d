// Package commands implements the strata CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	configcmd "github.com/strataproc/strata/cmd/strata/commands/config"
	"github.com/strataproc/strata/internal/logger"
	"github.com/strataproc/strata/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "strata - out-of-core raster time series processing",
	Long: `strata processes ordered time series of large rasters under a hard
memory budget. It streams data block by block through a background
prefetch/write pipeline and runs sequential ministack workflows that carry
a compressed summary of prior history forward between batches.

Use "strata [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./strata.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dispersionCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(configcmd.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the configuration and initializes the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, nil
}
