package raster_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataproc/strata/pkg/raster"
	_ "github.com/strataproc/strata/pkg/raster/flat"
)

func writeStackLayer(t *testing.T, dir, name string, rows, cols int, value float32) string {
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

func TestOpenStack_ReadRegion(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeStackLayer(t, dir, "a.bsq", 6, 6, 1),
		writeStackLayer(t, dir, "b.bsq", 6, 6, 2),
		writeStackLayer(t, dir, "c.bsq", 6, 6, 3),
	}

	s, err := raster.OpenStack(paths)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 3, s.Len())
	rows, cols := s.Shape()
	assert.Equal(t, 6, rows)
	assert.Equal(t, 6, cols)

	cube, err := s.ReadRegion(
		raster.Range{Start: 2, Stop: 5},
		raster.Range{Start: 1, Stop: 4})
	require.NoError(t, err)

	assert.Equal(t, 3, cube.Layers)
	assert.Equal(t, 3, cube.Rows)
	assert.Equal(t, 3, cube.Cols)
	for layer := 0; layer < 3; layer++ {
		assert.Equal(t, float32(layer+1), cube.At(layer, 0, 0))
	}
}

func TestOpenStack_GeometryMismatch(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeStackLayer(t, dir, "a.bsq", 6, 6, 1),
		writeStackLayer(t, dir, "b.bsq", 4, 4, 2),
	}

	_, err := raster.OpenStack(paths)
	require.Error(t, err)
	assert.ErrorIs(t, err, raster.ErrGeometryMismatch)
	assert.Contains(t, err.Error(), "b.bsq")
}

func TestOpenStack_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	// Deliberately non-lexical order: the stack must not reorder.
	paths := []string{
		writeStackLayer(t, dir, "z.bsq", 2, 2, 1),
		writeStackLayer(t, dir, "a.bsq", 2, 2, 2),
	}

	s, err := raster.OpenStack(paths)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, paths, s.Paths())
	g, err := s.ReadLayer(0, raster.Range{Stop: 2}, raster.Range{Stop: 2})
	require.NoError(t, err)
	assert.Equal(t, float32(1), g.At(0, 0))
}

func TestOpenStack_Empty(t *testing.T) {
	_, err := raster.OpenStack(nil)
	assert.Error(t, err)
}
