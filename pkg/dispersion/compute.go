package dispersion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/strataproc/strata/internal/bytesize"
	"github.com/strataproc/strata/internal/logger"
	"github.com/strataproc/strata/pkg/blocks"
	"github.com/strataproc/strata/pkg/bufpool"
	"github.com/strataproc/strata/pkg/raster"
	"github.com/strataproc/strata/pkg/stream"
)

// Config drives a full-stack dispersion computation.
type Config struct {
	// StackPaths are the input rasters in chronological order.
	StackPaths []string

	// OutputClass, OutputDispersion, and OutputMean are the three output
	// raster paths. Created by Compute; existing files are overwritten.
	OutputClass      string
	OutputDispersion string
	OutputMean       string

	// Threshold classifies a pixel stable when its dispersion is below it.
	Threshold float64

	// MinCount is the minimum number of valid samples per pixel. Zero
	// means the full stack depth (every layer must be valid).
	MinCount int

	// MaskPath optionally names a validity raster; tiles whose region is
	// entirely invalid are skipped without reading.
	MaskPath string

	// MemoryBudget bounds the planned block size. Zero means 256 MiB.
	MemoryBudget bytesize.ByteSize

	// Overlap inflates tiles at interior borders.
	Overlap blocks.Overlap

	// QueueSize and Timeout tune the loader; zero means the stream
	// defaults.
	QueueSize int
	Timeout   time.Duration

	// Synchronous makes all writes inline, for debugging.
	Synchronous bool

	LoaderMetrics stream.LoaderMetrics
	WriterMetrics stream.WriterMetrics
}

// DefaultMemoryBudget bounds block planning when the config leaves the
// budget unset.
const DefaultMemoryBudget = 256 * bytesize.MiB

// DefaultThreshold is the conventional dispersion cutoff for stable pixels.
const DefaultThreshold = 0.25

// Compute streams the stack block by block and writes the classification,
// dispersion, and mean rasters. Peak memory is bounded by the planned block
// size times the queue depth.
func Compute(ctx context.Context, cfg Config) error {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MemoryBudget == 0 {
		cfg.MemoryBudget = DefaultMemoryBudget
	}

	stack, err := raster.OpenStack(cfg.StackPaths)
	if err != nil {
		return fmt.Errorf("dispersion: %w", err)
	}
	defer stack.Close()

	info := stack.Info()
	shape := blocks.PlanFor(info, stack.Len(), cfg.MemoryBudget.Int64())
	logger.Info("planned block shape",
		logger.KeyRows, shape.Rows, logger.KeyCols, shape.Cols,
		logger.KeyFiles, stack.Len())

	for _, out := range []struct {
		path   string
		dtype  raster.DType
		nodata float64
	}{
		{cfg.OutputClass, raster.Uint8, Invalid},
		{cfg.OutputDispersion, raster.Float32, FloatNodata},
		{cfg.OutputMean, raster.Float32, FloatNodata},
	} {
		if err := raster.Create(out.path, info.Like(out.dtype, out.nodata)); err != nil {
			return fmt.Errorf("dispersion: create %s: %w", out.path, err)
		}
	}

	var mask *raster.Mask
	if cfg.MaskPath != "" {
		mask, err = raster.LoadMask(cfg.MaskPath)
		if err != nil {
			return fmt.Errorf("dispersion: %w", err)
		}
	}

	// Empty tiles are not skipped here: they must reach the reducer so the
	// pre-created outputs get their nodata fill instead of staying zero.
	loader := stream.NewLoader(stack, stream.LoaderOptions{
		BlockShape: shape,
		Overlap:    cfg.Overlap,
		Mask:       mask,
		QueueSize:  cfg.QueueSize,
		Timeout:    cfg.Timeout,
		Metrics:    cfg.LoaderMetrics,
	})
	loader.Start(ctx)
	defer loader.Stop()

	writer := stream.NewWriter(stream.WriterOptions{
		Synchronous: cfg.Synchronous,
		Metrics:     cfg.WriterMetrics,
	})
	writer.Start(ctx)
	defer writer.Stop()

	start := time.Now()
	var reduced int
	for {
		blk, err := loader.Next()
		if errors.Is(err, stream.ErrFinished) {
			break
		}
		if err != nil {
			return fmt.Errorf("dispersion: %w", err)
		}

		res := reduceTile(blk, cfg.Threshold, cfg.MinCount)

		rowOff, colOff := blk.Tile.CoreRows.Start, blk.Tile.CoreCols.Start
		for _, w := range []struct {
			grid *raster.Grid
			path string
		}{
			{res.Mean, cfg.OutputMean},
			{res.Dispersion, cfg.OutputDispersion},
			{res.Class, cfg.OutputClass},
		} {
			if err := writer.Queue(stream.WriteRequest{
				Grid:   w.grid,
				Path:   w.path,
				RowOff: rowOff,
				ColOff: colOff,
			}); err != nil {
				return fmt.Errorf("dispersion: %w", err)
			}
		}
		reduced++
	}

	if err := writer.NotifyFinished(); err != nil {
		return fmt.Errorf("dispersion: %w", err)
	}

	logger.Info("dispersion stage finished",
		"blocks", reduced,
		logger.KeySkipped, loader.Skipped(),
		logger.KeyDurationMs, time.Since(start).Milliseconds())
	return nil
}

// reduceTile converts a loaded tile to amplitudes, reduces it, and crops
// the overlap padding so only core samples are written.
func reduceTile(blk stream.Block, threshold float64, minCount int) Result {
	cube := blk.Cube

	if cube.AllZeroOrNaN() {
		res := nodataResult(cube.Rows, cube.Cols)
		return cropResult(res, blk.Tile)
	}

	// Reduce amplitudes, not raw samples. The scratch cube comes from the
	// pool; the result grids are owned by the writer and cannot.
	scratch := bufpool.Get(len(cube.Data))
	defer bufpool.Put(scratch)

	amp := raster.CubeFrom(cube.Layers, cube.Rows, cube.Cols, scratch)
	for i, v := range cube.Data {
		amp.Data[i] = float32(math.Abs(float64(v)))
	}

	res := ReduceBlock(amp, threshold, minCount)
	return cropResult(res, blk.Tile)
}

// cropResult trims overlap padding from each grid, keeping the core region.
func cropResult(res Result, tile blocks.Tile) Result {
	rowOff := tile.CoreRows.Start - tile.Rows.Start
	colOff := tile.CoreCols.Start - tile.Cols.Start
	rows := tile.CoreRows.Len()
	cols := tile.CoreCols.Len()
	if rowOff == 0 && colOff == 0 && rows == res.Mean.Rows && cols == res.Mean.Cols {
		return res
	}

	return Result{
		Mean:       cropGrid(res.Mean, rowOff, colOff, rows, cols),
		Dispersion: cropGrid(res.Dispersion, rowOff, colOff, rows, cols),
		Class:      cropGrid(res.Class, rowOff, colOff, rows, cols),
	}
}

func cropGrid(g *raster.Grid, rowOff, colOff, rows, cols int) *raster.Grid {
	out := raster.NewGrid(rows, cols)
	for r := 0; r < rows; r++ {
		src := (rowOff+r)*g.Cols + colOff
		copy(out.Data[r*cols:(r+1)*cols], g.Data[src:src+cols])
	}
	return out
}
