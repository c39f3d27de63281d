package blocks

import (
	"github.com/strataproc/strata/pkg/raster"
)

// Tile is one unit of work: a rectangular sub-region of a raster. Rows and
// Cols include the overlap margin; CoreRows and CoreCols are the tile's own
// partition cell. Trimming every tile to its core ranges reproduces the full
// raster exactly once.
type Tile struct {
	Rows raster.Range
	Cols raster.Range

	CoreRows raster.Range
	CoreCols raster.Range
}

// Overlap is a fixed margin added at each tile's interior borders, clipped
// at raster edges.
type Overlap struct {
	Rows int
	Cols int
}

// Iter lazily enumerates the tiles of a block grid in row-major order.
// It is finite and restartable via Reset.
type Iter struct {
	full    Shape
	block   Shape
	overlap Overlap

	row int
	col int
}

// NewIter creates a tile iterator over a full raster shape.
func NewIter(full, block Shape, overlap Overlap) *Iter {
	if block.Rows <= 0 || block.Rows > full.Rows {
		block.Rows = full.Rows
	}
	if block.Cols <= 0 || block.Cols > full.Cols {
		block.Cols = full.Cols
	}
	return &Iter{full: full, block: block, overlap: overlap}
}

// Next returns the next tile. ok is false once the grid is exhausted.
func (it *Iter) Next() (t Tile, ok bool) {
	if it.row >= it.full.Rows {
		return Tile{}, false
	}

	coreRows := raster.Range{Start: it.row, Stop: it.row + it.block.Rows}.Clip(it.full.Rows)
	coreCols := raster.Range{Start: it.col, Stop: it.col + it.block.Cols}.Clip(it.full.Cols)

	t = Tile{
		CoreRows: coreRows,
		CoreCols: coreCols,
		Rows: raster.Range{
			Start: coreRows.Start - it.overlap.Rows,
			Stop:  coreRows.Stop + it.overlap.Rows,
		}.Clip(it.full.Rows),
		Cols: raster.Range{
			Start: coreCols.Start - it.overlap.Cols,
			Stop:  coreCols.Stop + it.overlap.Cols,
		}.Clip(it.full.Cols),
	}

	it.col += it.block.Cols
	if it.col >= it.full.Cols {
		it.col = 0
		it.row += it.block.Rows
	}
	return t, true
}

// Reset rewinds the iterator to the first tile.
func (it *Iter) Reset() {
	it.row, it.col = 0, 0
}

// Count returns the total number of tiles without consuming the iterator.
func (it *Iter) Count() int {
	return ceilDiv(it.full.Rows, it.block.Rows) * ceilDiv(it.full.Cols, it.block.Cols)
}

// Tiles collects all tiles into a slice, leaving the iterator reset.
func (it *Iter) Tiles() []Tile {
	it.Reset()
	out := make([]Tile, 0, it.Count())
	for {
		t, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, t)
	}
	it.Reset()
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
