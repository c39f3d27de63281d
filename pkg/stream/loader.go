package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strataproc/strata/internal/logger"
	"github.com/strataproc/strata/pkg/blocks"
	"github.com/strataproc/strata/pkg/raster"
)

// Source is the read side a loader prefetches from. *raster.Stack satisfies
// it; tests use in-memory fakes.
type Source interface {
	// Shape returns the full (rows, cols) extent.
	Shape() (int, int)

	// Nodata returns the nodata value used by the post-read scan.
	Nodata() float64

	// ReadRegion reads one tile across all layers.
	ReadRegion(rows, cols raster.Range) (*raster.Cube, error)
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// BlockShape is the planned tile shape. Zero means one tile covering
	// the full raster.
	BlockShape blocks.Shape

	// Overlap inflates tiles at interior borders.
	Overlap blocks.Overlap

	// SkipEmpty enables the post-read scan that drops tiles whose samples
	// are entirely nodata or NaN.
	SkipEmpty bool

	// Mask, when non-nil, is consulted before enqueueing each read: a tile
	// whose region is entirely invalid is skipped without any I/O. The mask
	// and the post-read scan are independent checks and may disagree; both
	// are applied.
	Mask *raster.Mask

	// QueueSize bounds the number of blocks in flight. Default 1.
	QueueSize int

	// Timeout bounds each retrieval wait. Default 60s.
	Timeout time.Duration

	// Metrics receives instrumentation; nil disables it.
	Metrics LoaderMetrics
}

// Block is one yielded unit: a tile location and its stacked payload.
type Block struct {
	Cube *raster.Cube
	Tile blocks.Tile
}

type loadResult struct {
	block Block
	err   error
}

// Loader prefetches tiles on a background worker into a bounded queue.
// Blocks are yielded in strict enqueue (row-major tile) order.
type Loader struct {
	src  Source
	opts LoaderOptions
	iter *blocks.Iter

	items    chan loadResult
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool

	skipped atomic.Int64
}

// NewLoader creates a loader over src. Start must be called before Next.
func NewLoader(src Source, opts LoaderOptions) *Loader {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	rows, cols := src.Shape()
	full := blocks.Shape{Rows: rows, Cols: cols}

	return &Loader{
		src:    src,
		opts:   opts,
		iter:   blocks.NewIter(full, opts.BlockShape, opts.Overlap),
		items:  make(chan loadResult, opts.QueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the background worker. The context cancels the worker the
// same way Stop does.
func (l *Loader) Start(ctx context.Context) {
	if l.started {
		return
	}
	l.started = true

	go l.worker(ctx)
}

// worker reads tiles in order and sends them to the bounded queue. A send
// to a full queue blocks until the consumer drains, stops, or the context
// is cancelled; the worker is never left parked after Stop.
func (l *Loader) worker(ctx context.Context) {
	defer close(l.doneCh)
	defer close(l.items)

	log := logger.With(logger.KeyStage, "loader")

	l.iter.Reset()
	for {
		tile, ok := l.iter.Next()
		if !ok {
			return
		}

		// Pre-read check: skip the read entirely when the validity mask
		// rules out the whole region. Best-effort; the post-read scan
		// below still applies to tiles the mask lets through.
		if l.opts.Mask != nil && l.opts.Mask.AllInvalid(tile.Rows, tile.Cols) {
			l.skipped.Add(1)
			if l.opts.Metrics != nil {
				l.opts.Metrics.TileSkipped("mask")
			}
			log.Debug("skipping masked tile",
				logger.KeyRowStart, tile.Rows.Start, logger.KeyColStart, tile.Cols.Start)
			continue
		}

		cube, err := l.src.ReadRegion(tile.Rows, tile.Cols)
		if err != nil {
			// Captured here, re-raised on the consumer's next retrieval.
			l.send(ctx, loadResult{err: fmt.Errorf(
				"load tile rows %v cols %v: %w", tile.Rows, tile.Cols, err)})
			return
		}
		if l.opts.Metrics != nil {
			l.opts.Metrics.TileRead(4 * len(cube.Data))
			l.opts.Metrics.QueueDepth(len(l.items))
		}

		// Post-read check: drop tiles that are entirely nodata, even when
		// the mask said the region was valid.
		if l.opts.SkipEmpty && cube.AllNodata(l.src.Nodata()) {
			l.skipped.Add(1)
			if l.opts.Metrics != nil {
				l.opts.Metrics.TileSkipped("nodata")
			}
			log.Debug("dropping all-nodata tile",
				logger.KeyRowStart, tile.Rows.Start, logger.KeyColStart, tile.Cols.Start)
			continue
		}

		if !l.send(ctx, loadResult{block: Block{Cube: cube, Tile: tile}}) {
			return
		}
	}
}

func (l *Loader) send(ctx context.Context, r loadResult) bool {
	select {
	case l.items <- r:
		return true
	case <-l.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// Next retrieves the next block in enqueue order. It returns ErrFinished
// after the last block, ErrTimeout if the bounded wait expires, and any
// error captured on the worker.
func (l *Loader) Next() (Block, error) {
	if !l.started {
		return Block{}, ErrNotStarted
	}

	// A stopped stream never yields again, even when undrained blocks are
	// still queued.
	select {
	case <-l.stopCh:
		return Block{}, ErrStopped
	default:
	}

	timer := time.NewTimer(l.opts.Timeout)
	defer timer.Stop()

	select {
	case r, ok := <-l.items:
		if !ok {
			return Block{}, ErrFinished
		}
		if r.err != nil {
			return Block{}, r.err
		}
		return r.block, nil
	case <-l.stopCh:
		return Block{}, ErrStopped
	case <-timer.C:
		return Block{}, fmt.Errorf("%w after %s", ErrTimeout, l.opts.Timeout)
	}
}

// Stop cancels the stream. It unblocks a worker parked on a full queue and
// is safe to call more than once, including after exhaustion. Consumers
// that stop draining early must call Stop. Blocks still queued when Stop is
// called are discarded: every later Next returns ErrStopped.
func (l *Loader) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	if l.started {
		<-l.doneCh
	}
}

// Skipped returns the number of tiles elided by either skip stage so far.
func (l *Loader) Skipped() int {
	return int(l.skipped.Load())
}

// TileCount returns the total number of tiles in the grid before skipping.
func (l *Loader) TileCount() int {
	return l.iter.Count()
}
