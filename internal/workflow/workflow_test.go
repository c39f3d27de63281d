package workflow

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataproc/strata/pkg/config"
	"github.com/strataproc/strata/pkg/raster"
	_ "github.com/strataproc/strata/pkg/raster/flat"
	"github.com/strataproc/strata/pkg/sequential"
)

func TestEpochsFromPaths(t *testing.T) {
	epochs, err := EpochsFromPaths([]string{
		"/data/slc_20220101.bsq",
		"/data/slc_20220113.bsq",
	})
	require.NoError(t, err)
	require.Len(t, epochs, 2)
	assert.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), epochs[0].Date)
	assert.Equal(t, time.Date(2022, 1, 13, 0, 0, 0, 0, time.UTC), epochs[1].Date)

	_, err = EpochsFromPaths([]string{"/data/undated.bsq"})
	assert.Error(t, err)
}

func writeEpoch(t *testing.T, dir, name string, rows, cols int, value float32) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, raster.Create(path, raster.Info{
		Rows: rows, Cols: cols, DType: raster.Float32, Nodata: math.NaN(),
	}))

	g := raster.NewGrid(rows, cols)
	g.Fill(value)
	w, err := raster.OpenUpdate(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteRegion(g, 0, 0))
	require.NoError(t, w.Close())
	return path
}

func TestRunSequential_EndToEnd(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()

	// Five constant-amplitude epochs, ministacks of two.
	dates := []string{"20220101", "20220113", "20220125", "20220206", "20220218"}
	var files []string
	for i, d := range dates {
		files = append(files, writeEpoch(t, inDir, "slc_"+d+".bsq", 8, 8, float32(i+1)))
	}

	cfg := config.Default()
	cfg.Workflow.Files = files
	cfg.Workflow.OutputDir = outDir
	cfg.Workflow.MinistackSize = 2
	cfg.Streaming.Synchronous = true
	config.ApplyDefaults(cfg)

	res, err := RunSequential(context.Background(), cfg)
	require.NoError(t, err)

	// Three batches: [1,2], [3,4], [5] plus carried representatives.
	require.Len(t, res.Outputs, 5)
	require.Len(t, res.Compressed, 3)
	assert.Equal(t, filepath.Join(outDir, "coherence_average.bsq"), res.Coherence)

	// First batch's representative is the mean amplitude 1.5.
	ds, err := raster.Open(res.Compressed[0])
	require.NoError(t, err)
	defer ds.Close()
	g, err := ds.ReadRegion(raster.Range{Stop: 8}, raster.Range{Stop: 8})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, float64(g.At(0, 0)), 1e-6)

	// Per-epoch outputs are relocated and normalized by their batch mean.
	first, err := raster.Open(res.Outputs[0])
	require.NoError(t, err)
	defer first.Close()
	og, err := first.ReadRegion(raster.Range{Stop: 8}, raster.Range{Stop: 8})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/1.5, float64(og.At(0, 0)), 1e-6)

	// Full validity everywhere: combined coherence is 1.
	coh, err := raster.Open(res.Coherence)
	require.NoError(t, err)
	defer coh.Close()
	cg, err := coh.ReadRegion(raster.Range{Stop: 8}, raster.Range{Stop: 8})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(cg.At(0, 0)), 1e-6)
}

func readAllSamples(t *testing.T, path string) []float32 {
	t.Helper()
	ds, err := raster.Open(path)
	require.NoError(t, err)
	defer ds.Close()
	info := ds.Info()
	g, err := ds.ReadRegion(raster.Range{Stop: info.Rows}, raster.Range{Stop: info.Cols})
	require.NoError(t, err)
	return g.Data
}

func TestRunSequential_HonorsMask(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()

	files := []string{
		writeEpoch(t, inDir, "slc_20220101.bsq", 8, 8, 2),
		writeEpoch(t, inDir, "slc_20220113.bsq", 8, 8, 4),
	}
	// An all-zero mask rules out every pixel.
	mask := writeEpoch(t, inDir, "mask.bsq", 8, 8, 0)

	cfg := config.Default()
	cfg.Workflow.Files = files
	cfg.Workflow.OutputDir = outDir
	cfg.Workflow.MinistackSize = 2
	cfg.Workflow.MaskPath = mask
	cfg.Streaming.Synchronous = true
	config.ApplyDefaults(cfg)

	res, err := RunSequential(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, res.Compressed, 1)

	// Every tile was masked out, so no block was read or written: the
	// outputs keep their creation fill instead of the 3.0 mean amplitude.
	for _, v := range readAllSamples(t, res.Compressed[0]) {
		assert.Equal(t, float32(0), v)
	}
	for _, v := range readAllSamples(t, res.Coherence) {
		assert.Equal(t, float32(0), v)
	}
}

func TestBatcher_MaskLoadsThroughCache(t *testing.T) {
	dir := t.TempDir()

	epoch := writeEpoch(t, dir, "slc_20220101.bsq", 4, 4, 3)
	mask := writeEpoch(t, dir, "mask.bsq", 4, 4, 0)
	workDir := filepath.Join(dir, "20220101_20220101")
	require.NoError(t, os.MkdirAll(workDir, 0o755))

	cache := raster.NewMaskCache(2)
	b := &Batcher{Synchronous: true, MaskPath: mask, Masks: cache}

	batch := sequential.MiniBatch{
		Files:     []string{epoch},
		StartDate: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		WorkDir:   workDir,
	}

	res, err := b.Process(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	// Second batch reuses the cached mask.
	_, err = b.Process(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	for _, v := range readAllSamples(t, res.Compressed) {
		assert.Equal(t, float32(0), v)
	}
}
