package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/strataproc/strata/internal/logger"
	"github.com/strataproc/strata/pkg/raster"
)

// WriteRequest is one queued region write into a pre-created output raster.
// The grid is owned by the writer from Queue until the write completes.
type WriteRequest struct {
	Grid   *raster.Grid
	Path   string
	RowOff int
	ColOff int
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	// QueueSize bounds pending writes. Default 16. Enqueueing to a full
	// queue blocks the caller; that backpressure is what bounds memory.
	QueueSize int

	// Synchronous performs each write on the caller's goroutine and turns
	// the queue into a pass-through. For debugging and tests.
	Synchronous bool

	// MaxOpenFiles bounds the writer's open-handle cache. Default 8.
	MaxOpenFiles int

	// Metrics receives instrumentation; nil disables it.
	Metrics WriterMetrics
}

// Writer applies region writes on a background worker. Target files must be
// created (pre-allocated) before any request is queued; the writer only
// fills existing regions. Requests for disjoint regions of one file are
// safe; overlapping regions are undefined and the tiling caller must keep
// them disjoint.
//
// Exactly one Writer may hold write access to a given output file during a
// processing stage.
type Writer struct {
	opts WriterOptions

	queue    chan WriteRequest
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool

	handles *handleCache

	mu       sync.Mutex
	firstErr error
	written  int
}

// NewWriter creates a writer. Start must be called before Queue unless
// Synchronous is set.
func NewWriter(opts WriterOptions) *Writer {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultWriterQueueSize
	}
	if opts.MaxOpenFiles <= 0 {
		opts.MaxOpenFiles = 8
	}

	return &Writer{
		opts:    opts,
		queue:   make(chan WriteRequest, opts.QueueSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		handles: newHandleCache(opts.MaxOpenFiles),
	}
}

// Start launches the background worker. A no-op in synchronous mode.
func (w *Writer) Start(ctx context.Context) {
	if w.started || w.opts.Synchronous {
		return
	}
	w.started = true

	go w.worker(ctx)
}

func (w *Writer) worker(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case req, ok := <-w.queue:
			if !ok {
				return
			}
			w.process(req)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			w.fail(ctx.Err())
			return
		}
	}
}

func (w *Writer) process(req WriteRequest) {
	// After the first failure the queue is drained without writing so
	// blocked producers can make progress; the error surfaces on the next
	// Queue or NotifyFinished call.
	if w.Err() != nil {
		return
	}

	if err := w.write(req); err != nil {
		w.fail(err)
		return
	}

	w.mu.Lock()
	w.written++
	w.mu.Unlock()

	if w.opts.Metrics != nil {
		w.opts.Metrics.BlockWritten(4 * len(req.Grid.Data))
		w.opts.Metrics.QueueDepth(len(w.queue))
	}
}

func (w *Writer) write(req WriteRequest) error {
	h, err := w.handles.get(req.Path)
	if err != nil {
		return fmt.Errorf("write block to %s at (%d,%d): %w",
			req.Path, req.RowOff, req.ColOff, err)
	}
	if err := h.WriteRegion(req.Grid, req.RowOff, req.ColOff); err != nil {
		return fmt.Errorf("write block to %s at (%d,%d): %w",
			req.Path, req.RowOff, req.ColOff, err)
	}
	return nil
}

// Queue submits a write request. In synchronous mode the write happens
// immediately on the caller's goroutine. In background mode Queue blocks
// while the queue is full and returns any error already captured by the
// worker.
func (w *Writer) Queue(req WriteRequest) error {
	if w.opts.Synchronous {
		if err := w.write(req); err != nil {
			w.fail(err)
			return err
		}
		w.mu.Lock()
		w.written++
		w.mu.Unlock()
		return nil
	}

	if !w.started {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}

	select {
	case w.queue <- req:
		if w.opts.Metrics != nil {
			w.opts.Metrics.QueueDepth(len(w.queue))
		}
		return nil
	case <-w.doneCh:
		if err := w.Err(); err != nil {
			return err
		}
		return ErrStopped
	}
}

// Pending returns the number of queued, unapplied writes.
func (w *Writer) Pending() int {
	return len(w.queue)
}

// Written returns the number of completed region writes.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// NotifyFinished drains the queue, waits for every pending write to
// complete, closes all file handles, and returns the first captured error.
// Call it before any later stage reads the same files.
func (w *Writer) NotifyFinished() error {
	if !w.opts.Synchronous {
		if !w.started {
			return ErrNotStarted
		}
		if pending := len(w.queue); pending > 0 {
			logger.Info("waiting for queued block writes", logger.KeyQueued, pending)
		}
		close(w.queue)
		<-w.doneCh
	}

	if err := w.handles.closeAll(); err != nil {
		w.fail(err)
	}
	return w.Err()
}

// Stop aborts the worker without draining. Pending writes are discarded;
// use NotifyFinished for a clean flush.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	if w.started {
		<-w.doneCh
	}
	_ = w.handles.closeAll()
}

// Err returns the first captured write error.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.firstErr
}

func (w *Writer) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.firstErr == nil {
		w.firstErr = err
		logger.Error("block write failed", logger.KeyError, err.Error())
	}
}

// handleCache is a bounded cache of open region writers keyed by path,
// evicting (and closing) the oldest handle once capacity is reached. Only
// the worker goroutine touches it between Start and NotifyFinished.
type handleCache struct {
	capacity int
	order    []string
	open     map[string]raster.RegionWriter
}

func newHandleCache(capacity int) *handleCache {
	return &handleCache{
		capacity: capacity,
		open:     make(map[string]raster.RegionWriter),
	}
}

func (c *handleCache) get(path string) (raster.RegionWriter, error) {
	if h, ok := c.open[path]; ok {
		return h, nil
	}

	h, err := raster.OpenUpdate(path)
	if err != nil {
		return nil, err
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		if old, ok := c.open[oldest]; ok {
			if cerr := old.Close(); cerr != nil {
				_ = h.Close()
				return nil, cerr
			}
			delete(c.open, oldest)
		}
	}

	c.open[path] = h
	c.order = append(c.order, path)
	return h, nil
}

func (c *handleCache) closeAll() error {
	var first error
	for _, path := range c.order {
		if h, ok := c.open[path]; ok {
			if err := h.Close(); err != nil && first == nil {
				first = err
			}
			delete(c.open, path)
		}
	}
	c.order = nil
	return first
}
