// Package blocks computes tile shapes and tile coverage for out-of-core
// raster processing.
//
// The planner picks a block shape aligned to a raster's native on-disk
// chunks under a hard memory budget; the indexer enumerates the tiles of
// that shape covering the raster, optionally inflated by a border overlap.
package blocks

import (
	"github.com/strataproc/strata/pkg/raster"
)

// Shape is a (rows, cols) tile shape.
type Shape struct {
	Rows int
	Cols int
}

// MinAxis is the smallest planned block dimension per axis. Stripe-oriented
// files report one-row chunks; reading single lines thrashes, so the planner
// floors each axis at 16 pixels.
const MinAxis = 16

// PlanShape returns a block shape that is an integer multiple of the native
// chunk shape in each dimension, clipped to the raster extent, such that
// layers*rows*cols*bytesPerPixel stays within budget.
//
// Growth alternates between the column and row axis by one chunk multiple at
// a time so tiles stay roughly square instead of needle-shaped. If a single
// native chunk already exceeds the budget it is returned unmodified; the
// caller accepts the memory risk.
func PlanShape(chunk Shape, full Shape, layers int, budget int64, bytesPerPixel int) Shape {
	chunkRows := clamp(chunk.Rows, MinAxis, full.Rows)
	chunkCols := clamp(chunk.Cols, MinAxis, full.Cols)

	cur := Shape{Rows: chunkRows, Cols: chunkCols}
	if tileBytes(cur, layers, bytesPerPixel) > budget {
		return cur
	}

	chunkSize := [2]int{chunkRows, chunkCols}
	fullSize := [2]int{full.Rows, full.Cols}
	curSize := [2]int{cur.Rows, cur.Cols}
	multiples := [2]int{1, 1}

	axis := 1 // grow cols first
	stalled := 0
	for stalled < 2 {
		grown := (multiples[axis] + 1) * chunkSize[axis]
		if grown > fullSize[axis] {
			grown = fullSize[axis]
		}
		if grown == curSize[axis] {
			// Axis is already at the raster edge.
			stalled++
			axis = 1 - axis
			continue
		}

		next := curSize
		next[axis] = grown
		if tileBytes(Shape{Rows: next[0], Cols: next[1]}, layers, bytesPerPixel) > budget {
			stalled++
			axis = 1 - axis
			continue
		}

		curSize = next
		multiples[axis]++
		stalled = 0
		axis = 1 - axis
	}

	return Shape{Rows: curSize[0], Cols: curSize[1]}
}

// PlanFor plans a block shape for a stack's geometry and budget.
func PlanFor(info raster.Info, layers int, budget int64) Shape {
	return PlanShape(
		Shape{Rows: info.ChunkRows, Cols: info.ChunkCols},
		Shape{Rows: info.Rows, Cols: info.Cols},
		layers,
		budget,
		info.DType.Size(),
	)
}

// TileBytes estimates the memory held by one tile of the given shape.
func TileBytes(s Shape, layers, bytesPerPixel int) int64 {
	return tileBytes(s, layers, bytesPerPixel)
}

func tileBytes(s Shape, layers, bytesPerPixel int) int64 {
	return int64(layers) * int64(s.Rows) * int64(s.Cols) * int64(bytesPerPixel)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
