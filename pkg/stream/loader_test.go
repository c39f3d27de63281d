package stream

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataproc/strata/pkg/blocks"
	"github.com/strataproc/strata/pkg/raster"
)

// memSource is an in-memory single-layer stack. Each sample holds
// row*cols+col so tests can check which region a block came from.
type memSource struct {
	rows, cols int
	nodata     float64
	data       []float32

	reads   atomic.Int64
	failAt  int64
	failErr error
	gate    chan struct{}
}

func newMemSource(rows, cols int) *memSource {
	s := &memSource{
		rows:   rows,
		cols:   cols,
		nodata: math.NaN(),
		data:   make([]float32, rows*cols),
		failAt: -1,
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			s.data[r*cols+c] = float32(r*cols + c)
		}
	}
	return s
}

func (s *memSource) Shape() (int, int) { return s.rows, s.cols }
func (s *memSource) Nodata() float64   { return s.nodata }

func (s *memSource) ReadRegion(rows, cols raster.Range) (*raster.Cube, error) {
	if s.gate != nil {
		<-s.gate
	}
	n := s.reads.Add(1)
	if s.failAt >= 0 && n > s.failAt {
		return nil, s.failErr
	}

	cube := raster.NewCube(1, rows.Len(), cols.Len())
	for r := 0; r < rows.Len(); r++ {
		for c := 0; c < cols.Len(); c++ {
			cube.Set(0, r, c, s.data[(rows.Start+r)*s.cols+cols.Start+c])
		}
	}
	return cube, nil
}

func TestLoader_YieldsBlocksInRowMajorOrder(t *testing.T) {
	src := newMemSource(8, 8)
	l := NewLoader(src, LoaderOptions{
		BlockShape: blocks.Shape{Rows: 4, Cols: 4},
	})
	l.Start(context.Background())
	defer l.Stop()

	wantOrigins := [][2]int{{0, 0}, {0, 4}, {4, 0}, {4, 4}}
	for i, want := range wantOrigins {
		blk, err := l.Next()
		require.NoError(t, err, "block %d", i)
		assert.Equal(t, want[0], blk.Tile.Rows.Start)
		assert.Equal(t, want[1], blk.Tile.Cols.Start)
		assert.Equal(t, 4, blk.Cube.Rows)
		assert.Equal(t, 4, blk.Cube.Cols)

		// Corner sample identifies the region.
		assert.Equal(t, float32(want[0]*8+want[1]), blk.Cube.At(0, 0, 0))
	}

	_, err := l.Next()
	assert.ErrorIs(t, err, ErrFinished)

	// Exhaustion is sticky.
	_, err = l.Next()
	assert.ErrorIs(t, err, ErrFinished)
}

func TestLoader_NextBeforeStart(t *testing.T) {
	l := NewLoader(newMemSource(4, 4), LoaderOptions{})
	_, err := l.Next()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestLoader_TimeoutOnWedgedProducer(t *testing.T) {
	src := newMemSource(4, 4)
	src.gate = make(chan struct{})

	l := NewLoader(src, LoaderOptions{Timeout: 30 * time.Millisecond})
	l.Start(context.Background())

	_, err := l.Next()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrFinished)

	close(src.gate)
	l.Stop()
}

func TestLoader_ReadErrorReRaisedOnConsumer(t *testing.T) {
	src := newMemSource(8, 8)
	src.failAt = 1
	src.failErr = errors.New("disk gone")

	l := NewLoader(src, LoaderOptions{
		BlockShape: blocks.Shape{Rows: 4, Cols: 4},
	})
	l.Start(context.Background())
	defer l.Stop()

	_, err := l.Next()
	require.NoError(t, err)

	_, err = l.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, src.failErr)
	assert.Contains(t, err.Error(), "load tile")
}

func TestLoader_StopUnblocksParkedWorker(t *testing.T) {
	src := newMemSource(16, 16)
	l := NewLoader(src, LoaderOptions{
		BlockShape: blocks.Shape{Rows: 4, Cols: 4},
		QueueSize:  1,
	})
	l.Start(context.Background())

	// Take one block so the worker is parked on a full queue.
	_, err := l.Next()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not unblock the parked worker")
	}
}

func TestLoader_StopDiscardsQueuedBlocks(t *testing.T) {
	src := newMemSource(8, 8)
	l := NewLoader(src, LoaderOptions{
		BlockShape: blocks.Shape{Rows: 4, Cols: 4},
		QueueSize:  8,
	})
	l.Start(context.Background())

	// Stop joins the worker, so every remaining tile sits in the queue.
	l.Stop()

	_, err := l.Next()
	assert.ErrorIs(t, err, ErrStopped)

	_, err = l.Next()
	assert.ErrorIs(t, err, ErrStopped)
}

func TestLoader_ContextCancelStopsWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := newMemSource(16, 16)
	l := NewLoader(src, LoaderOptions{
		BlockShape: blocks.Shape{Rows: 4, Cols: 4},
		QueueSize:  1,
	})
	l.Start(ctx)
	cancel()

	// The worker exits without the consumer draining anything.
	select {
	case <-l.doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit on context cancel")
	}
}

func TestLoader_MaskSkipsReadEntirely(t *testing.T) {
	src := newMemSource(8, 8)

	// Top-left 4x4 region fully invalid.
	mask := &raster.Mask{Rows: 8, Cols: 8, Valid: make([]bool, 64)}
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			mask.Valid[r*8+c] = r >= 4 || c >= 4
		}
	}

	l := NewLoader(src, LoaderOptions{
		BlockShape: blocks.Shape{Rows: 4, Cols: 4},
		Mask:       mask,
	})
	l.Start(context.Background())
	defer l.Stop()

	var yielded int
	for {
		_, err := l.Next()
		if errors.Is(err, ErrFinished) {
			break
		}
		require.NoError(t, err)
		yielded++
	}

	assert.Equal(t, 3, yielded)
	assert.Equal(t, 1, l.Skipped())
	assert.Equal(t, 4, l.TileCount())

	// The masked tile was never read.
	assert.Equal(t, int64(3), src.reads.Load())
}

func TestLoader_PostReadScanDropsNodataTiles(t *testing.T) {
	src := newMemSource(8, 8)

	// Bottom-right tile is all NaN; the mask does not know about it.
	nan := float32(math.NaN())
	for r := 4; r < 8; r++ {
		for c := 4; c < 8; c++ {
			src.data[r*8+c] = nan
		}
	}

	l := NewLoader(src, LoaderOptions{
		BlockShape: blocks.Shape{Rows: 4, Cols: 4},
		SkipEmpty:  true,
	})
	l.Start(context.Background())
	defer l.Stop()

	var yielded int
	for {
		_, err := l.Next()
		if errors.Is(err, ErrFinished) {
			break
		}
		require.NoError(t, err)
		yielded++
	}

	assert.Equal(t, 3, yielded)
	assert.Equal(t, 1, l.Skipped())

	// The tile was read before being dropped; the two checks are
	// independent.
	assert.Equal(t, int64(4), src.reads.Load())
}

func TestLoader_OverlapPadsInteriorBorders(t *testing.T) {
	src := newMemSource(8, 8)
	l := NewLoader(src, LoaderOptions{
		BlockShape: blocks.Shape{Rows: 4, Cols: 4},
		Overlap:    blocks.Overlap{Rows: 1, Cols: 1},
	})
	l.Start(context.Background())
	defer l.Stop()

	blk, err := l.Next()
	require.NoError(t, err)

	// First tile pads only toward the interior.
	assert.Equal(t, raster.Range{Start: 0, Stop: 5}, blk.Tile.Rows)
	assert.Equal(t, raster.Range{Start: 0, Stop: 5}, blk.Tile.Cols)
	assert.Equal(t, raster.Range{Start: 0, Stop: 4}, blk.Tile.CoreRows)
	assert.Equal(t, 5, blk.Cube.Rows)
}
