package raster

import (
	"math"
)

// Grid is a 2D float32 sample array in row-major order. It is the in-memory
// payload unit for all block reads and writes regardless of storage dtype.
type Grid struct {
	Rows int
	Cols int
	Data []float32 // len == Rows*Cols
}

// NewGrid allocates a zeroed grid.
func NewGrid(rows, cols int) *Grid {
	return &Grid{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// GridFrom wraps an existing buffer as a grid. The buffer length must be
// rows*cols; ownership transfers to the grid.
func GridFrom(rows, cols int, data []float32) *Grid {
	return &Grid{Rows: rows, Cols: cols, Data: data}
}

// At returns the sample at (row, col).
func (g *Grid) At(row, col int) float32 {
	return g.Data[row*g.Cols+col]
}

// Set stores a sample at (row, col).
func (g *Grid) Set(row, col int, v float32) {
	g.Data[row*g.Cols+col] = v
}

// Fill sets every sample to v.
func (g *Grid) Fill(v float32) {
	for i := range g.Data {
		g.Data[i] = v
	}
}

// AllNodata reports whether every sample matches nodata (or is NaN).
// An empty grid counts as all-nodata.
func (g *Grid) AllNodata(nodata float64) bool {
	for _, v := range g.Data {
		if !IsNodata(v, nodata) {
			return false
		}
	}
	return true
}

// Cube is a 3D float32 array (layers x rows x cols), the payload of one
// stacked block read.
type Cube struct {
	Layers int
	Rows   int
	Cols   int
	Data   []float32 // len == Layers*Rows*Cols
}

// NewCube allocates a zeroed cube.
func NewCube(layers, rows, cols int) *Cube {
	return &Cube{
		Layers: layers,
		Rows:   rows,
		Cols:   cols,
		Data:   make([]float32, layers*rows*cols),
	}
}

// CubeFrom wraps an existing buffer as a cube. The buffer length must be
// layers*rows*cols; ownership transfers to the cube.
func CubeFrom(layers, rows, cols int, data []float32) *Cube {
	return &Cube{Layers: layers, Rows: rows, Cols: cols, Data: data}
}

// Layer returns layer i as a grid sharing the cube's backing array.
func (c *Cube) Layer(i int) *Grid {
	n := c.Rows * c.Cols
	return &Grid{Rows: c.Rows, Cols: c.Cols, Data: c.Data[i*n : (i+1)*n]}
}

// At returns the sample at (layer, row, col).
func (c *Cube) At(layer, row, col int) float32 {
	return c.Data[(layer*c.Rows+row)*c.Cols+col]
}

// Set stores a sample at (layer, row, col).
func (c *Cube) Set(layer, row, col int, v float32) {
	c.Data[(layer*c.Rows+row)*c.Cols+col] = v
}

// AllNodata reports whether every sample matches nodata (or is NaN).
func (c *Cube) AllNodata(nodata float64) bool {
	for _, v := range c.Data {
		if !IsNodata(v, nodata) {
			return false
		}
	}
	return true
}

// AllZeroOrNaN reports whether the cube is entirely zero or entirely NaN,
// the degenerate cases a reduction stage fills with nodata instead of
// computing.
func (c *Cube) AllZeroOrNaN() bool {
	allZero, allNaN := true, true
	for _, v := range c.Data {
		if v != 0 {
			allZero = false
		}
		if !math.IsNaN(float64(v)) {
			allNaN = false
		}
		if !allZero && !allNaN {
			return false
		}
	}
	return allZero || allNaN
}
