package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strataproc/strata/internal/logger"
	"github.com/strataproc/strata/internal/workflow"
	"github.com/strataproc/strata/pkg/metrics"
)

var dispersionCmd = &cobra.Command{
	Use:   "dispersion",
	Short: "Compute amplitude dispersion and stable-pixel classification",
	Long: `Compute the per-pixel amplitude mean, amplitude dispersion, and
stable-pixel classification over the configured input stack, streaming
block by block under the configured memory budget.`,
	RunE: runDispersion,
}

func runDispersion(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.ListenAddr); err != nil {
				logger.Error("metrics endpoint failed", logger.KeyError, err.Error())
			}
		}()
	}

	if err := os.MkdirAll(cfg.Workflow.OutputDir, 0o755); err != nil {
		return err
	}
	return workflow.RunDispersion(ctx, cfg)
}
