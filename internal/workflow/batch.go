package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/strataproc/strata/pkg/blocks"
	"github.com/strataproc/strata/pkg/raster"
	"github.com/strataproc/strata/pkg/sequential"
	"github.com/strataproc/strata/pkg/stream"
)

// Batcher is the built-in per-batch estimation routine. For each ministack
// it produces one amplitude output per raw epoch (the epoch normalized by
// the batch mean), a compressed representative (the per-pixel mean
// amplitude of the effective input), and a coherence raster (the per-pixel
// fraction of valid samples).
type Batcher struct {
	MemoryBudget int64
	QueueSize    int
	Timeout      time.Duration
	Synchronous  bool

	// MaskPath optionally names a validity raster applied to every batch.
	// Tiles whose region the mask rules out are skipped without reading;
	// their output samples keep the creation-time fill.
	MaskPath string

	// Masks caches the loaded mask across batches. Nil falls back to a
	// direct load per batch.
	Masks *raster.MaskCache
}

// mask resolves the configured validity mask, through the cache when one is
// set.
func (b *Batcher) mask() (*raster.Mask, error) {
	if b.MaskPath == "" {
		return nil, nil
	}
	if b.Masks != nil {
		return b.Masks.Get(b.MaskPath)
	}
	return raster.LoadMask(b.MaskPath)
}

// Process handles one ministack. The first batch.Index entries of
// batch.Files are prior compressed representatives; the rest are this
// batch's raw epochs.
func (b *Batcher) Process(ctx context.Context, batch sequential.MiniBatch) (sequential.BatchResult, error) {
	stack, err := raster.OpenStack(batch.Files)
	if err != nil {
		return sequential.BatchResult{}, err
	}
	defer stack.Close()

	info := stack.Info()
	ext := filepath.Ext(batch.Files[0])

	rawFiles := batch.Files[batch.Index:]
	outputs := make([]string, len(rawFiles))
	for i, p := range rawFiles {
		outputs[i] = filepath.Join(batch.WorkDir, filepath.Base(p))
	}
	compressed := filepath.Join(batch.WorkDir, "compressed_"+batch.DateSpan()+ext)
	coherence := filepath.Join(batch.WorkDir, "coherence_"+batch.DateSpan()+ext)

	for _, p := range outputs {
		if err := raster.Create(p, info.Like(raster.Float32, info.Nodata)); err != nil {
			return sequential.BatchResult{}, err
		}
	}
	if err := raster.Create(compressed, info.Like(raster.Float32, info.Nodata)); err != nil {
		return sequential.BatchResult{}, err
	}
	if err := raster.Create(coherence, info.Like(raster.Float32, 0)); err != nil {
		return sequential.BatchResult{}, err
	}

	budget := b.MemoryBudget
	if budget <= 0 {
		budget = 256 << 20
	}

	mask, err := b.mask()
	if err != nil {
		return sequential.BatchResult{}, err
	}

	loader := stream.NewLoader(stack, stream.LoaderOptions{
		BlockShape: blocks.PlanFor(info, stack.Len(), budget),
		Mask:       mask,
		QueueSize:  b.QueueSize,
		Timeout:    b.Timeout,
	})
	loader.Start(ctx)
	defer loader.Stop()

	writer := stream.NewWriter(stream.WriterOptions{
		Synchronous: b.Synchronous,
		// Every raw epoch plus the two stack outputs stay open while the
		// batch streams.
		MaxOpenFiles: len(outputs) + 2,
	})
	writer.Start(ctx)
	defer writer.Stop()

	nodata := stack.Nodata()
	for {
		blk, err := loader.Next()
		if errors.Is(err, stream.ErrFinished) {
			break
		}
		if err != nil {
			return sequential.BatchResult{}, err
		}

		if err := b.reduce(blk, batch.Index, nodata, outputs, compressed, coherence, writer); err != nil {
			return sequential.BatchResult{}, err
		}
	}

	if err := writer.NotifyFinished(); err != nil {
		return sequential.BatchResult{}, err
	}

	return sequential.BatchResult{
		Outputs:    outputs,
		Compressed: compressed,
		Coherence:  coherence,
	}, nil
}

// reduce computes the batch products for one tile and queues their writes.
func (b *Batcher) reduce(blk stream.Block, priors int, nodata float64,
	outputs []string, compressed, coherence string, writer *stream.Writer) error {

	cube := blk.Cube
	n := cube.Rows * cube.Cols
	nodataOut := float32(nodata)

	mean := raster.NewGrid(cube.Rows, cube.Cols)
	coh := raster.NewGrid(cube.Rows, cube.Cols)
	for px := 0; px < n; px++ {
		var sum float64
		var count int
		for layer := 0; layer < cube.Layers; layer++ {
			v := cube.Data[layer*n+px]
			if raster.IsNodata(v, nodata) {
				continue
			}
			if v < 0 {
				v = -v
			}
			sum += float64(v)
			count++
		}
		if count == 0 {
			mean.Data[px] = nodataOut
			coh.Data[px] = 0
			continue
		}
		mean.Data[px] = float32(sum / float64(count))
		coh.Data[px] = float32(count) / float32(cube.Layers)
	}

	rowOff, colOff := blk.Tile.Rows.Start, blk.Tile.Cols.Start
	queue := func(g *raster.Grid, path string) error {
		return writer.Queue(stream.WriteRequest{
			Grid: g, Path: path, RowOff: rowOff, ColOff: colOff,
		})
	}

	if err := queue(mean, compressed); err != nil {
		return err
	}
	if err := queue(coh, coherence); err != nil {
		return err
	}

	// One normalized amplitude output per raw epoch. Prior representatives
	// contribute to the mean but produce no epoch output of their own.
	for i, path := range outputs {
		layer := priors + i
		out := raster.NewGrid(cube.Rows, cube.Cols)
		for px := 0; px < n; px++ {
			v := cube.Data[layer*n+px]
			m := mean.Data[px]
			if raster.IsNodata(v, nodata) || raster.IsNodata(m, nodata) || m == 0 {
				out.Data[px] = nodataOut
				continue
			}
			if v < 0 {
				v = -v
			}
			out.Data[px] = v / m
		}
		if err := queue(out, path); err != nil {
			return err
		}
	}
	return nil
}
