// Package dispersion computes amplitude mean, amplitude dispersion, and
// stable-pixel classification from a stack of rasters.
//
// The dispersion of one pixel is the standard deviation of its amplitude
// across the layer axis divided by its mean amplitude. Pixels whose
// dispersion falls under a threshold are classified stable.
package dispersion

import (
	"math"

	"github.com/strataproc/strata/pkg/raster"
)

// Classification sentinel values. Outputs are written as uint8 rasters;
// Invalid doubles as that file's nodata value.
const (
	NotStable = 0
	Stable    = 1
	Invalid   = 255
)

// Nodata values for the float32 mean and dispersion outputs. Zero is
// representable in every supported dtype and cannot occur as a genuine
// dispersion of a stable pixel.
const FloatNodata = 0

// Result holds the three per-pixel reductions of one block.
type Result struct {
	Mean       *raster.Grid
	Dispersion *raster.Grid
	Class      *raster.Grid
}

// ReduceBlock reduces an amplitude cube along the layer axis. For each
// pixel it computes the mean, the dispersion (population standard deviation
// over mean), and a classification:
//
//   - fewer than minCount valid (finite) samples: mean keeps its value,
//     dispersion becomes 0, classification Invalid
//   - non-finite mean or dispersion: coerced to 0
//   - dispersion < threshold: Stable, except dispersion == 0 which is
//     never Stable (it marks nodata, not stability)
//
// minCount <= 0 defaults to the full layer count.
func ReduceBlock(cube *raster.Cube, threshold float64, minCount int) Result {
	if minCount <= 0 {
		minCount = cube.Layers
	}

	rows, cols := cube.Rows, cube.Cols
	res := Result{
		Mean:       raster.NewGrid(rows, cols),
		Dispersion: raster.NewGrid(rows, cols),
		Class:      raster.NewGrid(rows, cols),
	}

	n := rows * cols
	for px := 0; px < n; px++ {
		var sum, sumSq float64
		var count int
		for layer := 0; layer < cube.Layers; layer++ {
			v := float64(cube.Data[layer*n+px])
			if math.IsNaN(v) {
				continue
			}
			sum += v
			sumSq += v * v
			count++
		}

		var mean, disp float64
		if count > 0 {
			mean = sum / float64(count)
			variance := sumSq/float64(count) - mean*mean
			if variance < 0 {
				variance = 0
			}
			disp = math.Sqrt(variance) / mean
		} else {
			mean = math.NaN()
			disp = math.NaN()
		}

		if count < minCount {
			disp = math.NaN()
		}
		if math.IsNaN(mean) || math.IsInf(mean, 0) {
			mean = 0
		}
		if math.IsNaN(disp) || math.IsInf(disp, 0) {
			disp = 0
		}

		class := float32(NotStable)
		if disp != 0 && disp < threshold {
			class = Stable
		}
		if disp == 0 {
			class = Invalid
		}

		res.Mean.Data[px] = float32(mean)
		res.Dispersion.Data[px] = float32(disp)
		res.Class.Data[px] = class
	}

	return res
}

// nodataResult fills a block-sized result with the per-file nodata values.
func nodataResult(rows, cols int) Result {
	res := Result{
		Mean:       raster.NewGrid(rows, cols),
		Dispersion: raster.NewGrid(rows, cols),
		Class:      raster.NewGrid(rows, cols),
	}
	res.Class.Fill(Invalid)
	return res
}
