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

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sequential ministack workflow",
	Long: `Run the sequential ministack workflow over the configured input
stack. The input is partitioned into chronological ministacks; each batch
sees the compressed representatives of all earlier batches, and its outputs
are flattened into the output directory when the run completes.`,
	RunE: runWorkflow,
}

func runWorkflow(cmd *cobra.Command, args []string) error {
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

	res, err := workflow.RunSequential(ctx, cfg)
	if err != nil {
		return err
	}

	logger.Info("run complete",
		"outputs", len(res.Outputs),
		"compressed", len(res.Compressed),
		logger.KeyPath, res.Coherence)
	return nil
}
