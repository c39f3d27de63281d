package sequential

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/strataproc/strata/pkg/blocks"
	"github.com/strataproc/strata/pkg/raster"
	"github.com/strataproc/strata/pkg/stream"
)

// coherenceNodata marks pixels with no valid sample in any batch.
const coherenceNodata = 0

// combineMemoryBudget bounds block planning for the coherence combine.
const combineMemoryBudget = 256 << 20

// combineCoherence merges the per-batch coherence rasters into one file in
// opts.OutputDir. A single batch's raster is adopted by rename; multiple
// rasters are combined block by block as the per-pixel mean of the valid
// samples.
func combineCoherence(ctx context.Context, paths []string, opts Options) (string, error) {
	if len(paths) == 0 {
		return "", errors.New("no coherence rasters")
	}

	out := filepath.Join(opts.OutputDir, "coherence_average"+filepath.Ext(paths[0]))
	if len(paths) == 1 {
		if err := os.Rename(paths[0], out); err != nil {
			return "", err
		}
		return out, nil
	}

	stack, err := raster.OpenStack(paths)
	if err != nil {
		return "", err
	}
	defer stack.Close()

	info := stack.Info()
	if err := raster.Create(out, info.Like(raster.Float32, coherenceNodata)); err != nil {
		return "", err
	}

	loader := stream.NewLoader(stack, stream.LoaderOptions{
		BlockShape: blocks.PlanFor(info, stack.Len(), combineMemoryBudget),
	})
	loader.Start(ctx)
	defer loader.Stop()

	writer := stream.NewWriter(stream.WriterOptions{Synchronous: opts.Synchronous})
	writer.Start(ctx)
	defer writer.Stop()

	nodata := stack.Nodata()
	for {
		blk, err := loader.Next()
		if errors.Is(err, stream.ErrFinished) {
			break
		}
		if err != nil {
			return "", err
		}

		mean := meanExcludingNodata(blk.Cube, nodata)
		if err := writer.Queue(stream.WriteRequest{
			Grid:   mean,
			Path:   out,
			RowOff: blk.Tile.Rows.Start,
			ColOff: blk.Tile.Cols.Start,
		}); err != nil {
			return "", err
		}
	}

	if err := writer.NotifyFinished(); err != nil {
		return "", err
	}
	return out, nil
}

// meanExcludingNodata averages the layer axis per pixel, counting only
// valid samples. Pixels with no valid sample get the output nodata value.
func meanExcludingNodata(cube *raster.Cube, nodata float64) *raster.Grid {
	out := raster.NewGrid(cube.Rows, cube.Cols)
	n := cube.Rows * cube.Cols

	for px := 0; px < n; px++ {
		var sum float64
		var count int
		for layer := 0; layer < cube.Layers; layer++ {
			v := cube.Data[layer*n+px]
			if raster.IsNodata(v, nodata) {
				continue
			}
			sum += float64(v)
			count++
		}
		if count == 0 {
			out.Data[px] = coherenceNodata
			continue
		}
		out.Data[px] = float32(sum / float64(count))
	}
	return out
}
