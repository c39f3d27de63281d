package dispersion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataproc/strata/pkg/raster"
)

func cubeOf(t *testing.T, layers int, pixels ...[]float32) *raster.Cube {
	t.Helper()
	require.NotEmpty(t, pixels)

	cube := raster.NewCube(layers, 1, len(pixels))
	for px, samples := range pixels {
		require.Len(t, samples, layers)
		for l, v := range samples {
			cube.Set(l, 0, px, v)
		}
	}
	return cube
}

func TestReduceBlock_MeanAndDispersion(t *testing.T) {
	// One pixel with samples 2,4,6: mean 4, population std sqrt(8/3),
	// dispersion sqrt(8/3)/4.
	cube := cubeOf(t, 3, []float32{2, 4, 6})

	res := ReduceBlock(cube, 10, 0)

	assert.InDelta(t, 4.0, float64(res.Mean.At(0, 0)), 1e-6)
	assert.InDelta(t, math.Sqrt(8.0/3.0)/4.0, float64(res.Dispersion.At(0, 0)), 1e-6)
	assert.Equal(t, float32(Stable), res.Class.At(0, 0))
}

func TestReduceBlock_ThresholdClassification(t *testing.T) {
	// Low-dispersion pixel vs high-dispersion pixel.
	cube := cubeOf(t, 3,
		[]float32{100, 101, 99}, // disp ~0.008
		[]float32{1, 100, 500}, // disp > 1
	)

	res := ReduceBlock(cube, 0.25, 0)

	assert.Equal(t, float32(Stable), res.Class.At(0, 0))
	assert.Equal(t, float32(NotStable), res.Class.At(0, 1))
}

func TestReduceBlock_MinCountGating(t *testing.T) {
	nan := float32(math.NaN())

	// Pixel 0 has all 3 samples, pixel 1 only 2.
	cube := cubeOf(t, 3,
		[]float32{10, 10, 10},
		[]float32{10, 10, nan},
	)

	t.Run("default min_count is full depth", func(t *testing.T) {
		res := ReduceBlock(cube, 0.25, 0)

		// Pixel 1 fails the gate: dispersion forced to the nodata
		// sentinel, classification invalid, mean untouched.
		assert.Equal(t, float32(FloatNodata), res.Dispersion.At(0, 1))
		assert.Equal(t, float32(Invalid), res.Class.At(0, 1))
		assert.InDelta(t, 10.0, float64(res.Mean.At(0, 1)), 1e-6)
	})

	t.Run("relaxed min_count admits the pixel", func(t *testing.T) {
		res := ReduceBlock(cube, 0.25, 2)

		// Constant amplitude means zero dispersion, which is nodata,
		// never stable.
		assert.Equal(t, float32(Invalid), res.Class.At(0, 1))
	})
}

func TestReduceBlock_ZeroDispersionNeverStable(t *testing.T) {
	// Constant amplitude: std 0, dispersion 0, under any threshold.
	cube := cubeOf(t, 4, []float32{7, 7, 7, 7})

	res := ReduceBlock(cube, 0.25, 0)

	assert.Equal(t, float32(0), res.Dispersion.At(0, 0))
	assert.Equal(t, float32(Invalid), res.Class.At(0, 0))
}

func TestReduceBlock_AllNaNPixel(t *testing.T) {
	nan := float32(math.NaN())
	cube := cubeOf(t, 2, []float32{nan, nan})

	res := ReduceBlock(cube, 0.25, 0)

	// Degenerate numerics become sentinels, never NaN in outputs.
	assert.Equal(t, float32(0), res.Mean.At(0, 0))
	assert.Equal(t, float32(0), res.Dispersion.At(0, 0))
	assert.Equal(t, float32(Invalid), res.Class.At(0, 0))
}

func TestReduceBlock_ZeroMeanPixel(t *testing.T) {
	// All-zero amplitude: 0/0 dispersion must coerce to the sentinel.
	cube := cubeOf(t, 3, []float32{0, 0, 0})

	res := ReduceBlock(cube, 0.25, 0)

	assert.Equal(t, float32(0), res.Dispersion.At(0, 0))
	assert.Equal(t, float32(Invalid), res.Class.At(0, 0))
	assert.False(t, math.IsNaN(float64(res.Mean.At(0, 0))))
}
