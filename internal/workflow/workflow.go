// Package workflow wires the configuration to the processing stages: the
// standalone dispersion stage and the sequential ministack run with its
// built-in batch routine.
package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/strataproc/strata/internal/logger"
	"github.com/strataproc/strata/pkg/blocks"
	"github.com/strataproc/strata/pkg/config"
	"github.com/strataproc/strata/pkg/dispersion"
	"github.com/strataproc/strata/pkg/metrics"
	"github.com/strataproc/strata/pkg/raster"
	"github.com/strataproc/strata/pkg/sequential"
)

// datePattern matches the first YYYYMMDD group in a file name.
var datePattern = regexp.MustCompile(`(\d{8})`)

// maskCacheCapacity bounds the per-run mask cache. A run uses one mask, but
// the cache absorbs the per-batch reloads.
const maskCacheCapacity = 4

// EpochsFromPaths builds the dated epoch list from input file names. Every
// file name must carry a YYYYMMDD date; order is preserved.
func EpochsFromPaths(paths []string) ([]sequential.Epoch, error) {
	epochs := make([]sequential.Epoch, len(paths))
	for i, p := range paths {
		m := datePattern.FindString(filepath.Base(p))
		if m == "" {
			return nil, fmt.Errorf("no YYYYMMDD date in file name %q", filepath.Base(p))
		}
		date, err := time.Parse("20060102", m)
		if err != nil {
			return nil, fmt.Errorf("bad date in file name %q: %w", filepath.Base(p), err)
		}
		epochs[i] = sequential.Epoch{Path: p, Date: date}
	}
	return epochs, nil
}

// RunDispersion executes the standalone dispersion stage from config.
func RunDispersion(ctx context.Context, cfg *config.Config) error {
	files, err := cfg.InputFiles()
	if err != nil {
		return err
	}

	outDir := cfg.Workflow.OutputDir
	return dispersion.Compute(ctx, dispersion.Config{
		StackPaths:       files,
		OutputClass:      filepath.Join(outDir, "stable_pixels"+filepath.Ext(files[0])),
		OutputDispersion: filepath.Join(outDir, "dispersion"+filepath.Ext(files[0])),
		OutputMean:       filepath.Join(outDir, "amplitude_mean"+filepath.Ext(files[0])),
		Threshold:        cfg.Workflow.DispersionThreshold,
		MinCount:         cfg.Workflow.MinCount,
		MaskPath:         cfg.Workflow.MaskPath,
		MemoryBudget:     cfg.Streaming.MemoryBudget,
		Overlap: blocks.Overlap{
			Rows: cfg.Streaming.OverlapRows,
			Cols: cfg.Streaming.OverlapCols,
		},
		QueueSize:     cfg.Streaming.QueueSize,
		Timeout:       cfg.Streaming.Timeout,
		Synchronous:   cfg.Streaming.Synchronous,
		LoaderMetrics: metrics.NewLoaderMetrics(),
		WriterMetrics: metrics.NewWriterMetrics(),
	})
}

// RunSequential executes the ministack workflow from config using the
// built-in batch routine.
func RunSequential(ctx context.Context, cfg *config.Config) (sequential.RunResult, error) {
	files, err := cfg.InputFiles()
	if err != nil {
		return sequential.RunResult{}, err
	}
	epochs, err := EpochsFromPaths(files)
	if err != nil {
		return sequential.RunResult{}, err
	}

	batcher := &Batcher{
		MemoryBudget: cfg.Streaming.MemoryBudget.Int64(),
		QueueSize:    cfg.Streaming.QueueSize,
		Timeout:      cfg.Streaming.Timeout,
		Synchronous:  cfg.Streaming.Synchronous,
		MaskPath:     cfg.Workflow.MaskPath,
		Masks:        raster.NewMaskCache(maskCacheCapacity),
	}

	start := time.Now()
	res, err := sequential.Run(ctx, epochs, sequential.Options{
		OutputDir:     cfg.Workflow.OutputDir,
		MinistackSize: cfg.Workflow.MinistackSize,
		Synchronous:   cfg.Streaming.Synchronous,
	}, batcher.Process)
	if err != nil {
		return sequential.RunResult{}, err
	}

	logger.Info("workflow finished",
		logger.KeyFiles, len(files),
		logger.KeyDurationMs, time.Since(start).Milliseconds())
	return res, nil
}
