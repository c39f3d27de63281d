package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanShape(t *testing.T) {
	t.Run("AlignsToChunkMultiples", func(t *testing.T) {
		got := PlanShape(Shape{128, 128}, Shape{4096, 4096}, 1, 64<<20, 4)

		assert.Zero(t, got.Rows%128)
		assert.Zero(t, got.Cols%128)
	})

	t.Run("NeverExceedsBudget", func(t *testing.T) {
		chunks := []Shape{{16, 16}, {64, 64}, {128, 128}, {1, 2048}, {512, 512}}
		fulls := []Shape{{100, 100}, {1000, 2000}, {4096, 4096}, {17, 33}}
		budgets := []int64{1 << 16, 1 << 20, 64 << 20}

		for _, chunk := range chunks {
			for _, full := range fulls {
				for _, budget := range budgets {
					got := PlanShape(chunk, full, 10, budget, 4)

					assert.LessOrEqual(t, got.Rows, full.Rows)
					assert.LessOrEqual(t, got.Cols, full.Cols)

					single := Shape{
						Rows: clamp(chunk.Rows, MinAxis, full.Rows),
						Cols: clamp(chunk.Cols, MinAxis, full.Cols),
					}
					if TileBytes(single, 10, 4) <= budget {
						assert.LessOrEqual(t, TileBytes(got, 10, 4), budget,
							"chunk=%v full=%v budget=%d", chunk, full, budget)
					} else {
						// A single chunk over budget is returned unmodified.
						assert.Equal(t, single, got)
					}
				}
			}
		}
	})

	t.Run("GrowsToFullRasterUnderLargeBudget", func(t *testing.T) {
		got := PlanShape(Shape{128, 128}, Shape{512, 768}, 1, 1<<40, 4)
		assert.Equal(t, Shape{512, 768}, got)
	})

	t.Run("FloorsAxesAtSixteen", func(t *testing.T) {
		got := PlanShape(Shape{1, 2048}, Shape{4096, 2048}, 1, 1<<10, 4)

		assert.GreaterOrEqual(t, got.Rows, MinAxis)
	})

	t.Run("RoughlySquareGrowth", func(t *testing.T) {
		// Budget for ~16 chunks; alternation should land near 4x4, never 1x16.
		budget := TileBytes(Shape{128, 128}, 1, 4) * 16
		got := PlanShape(Shape{128, 128}, Shape{1 << 20, 1 << 20}, 1, budget, 4)

		assert.InDelta(t, got.Rows, got.Cols, float64(128))
	})

	t.Run("SingleChunkOverBudgetUnmodified", func(t *testing.T) {
		got := PlanShape(Shape{512, 512}, Shape{4096, 4096}, 100, 1024, 8)
		assert.Equal(t, Shape{512, 512}, got)
	})
}

func TestTileBytes(t *testing.T) {
	assert.Equal(t, int64(10*512*512*4), TileBytes(Shape{512, 512}, 10, 4))
}
