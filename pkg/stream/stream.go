// Package stream implements background block streaming with bounded queues.
//
// A Loader prefetches tiles from a raster stack on one worker goroutine
// ahead of a synchronous consumer; a Writer applies region writes to
// pre-created output rasters behind the consumer. The queue depth is the
// single flow-control knob: a full queue blocks the producer, so peak
// memory stays bounded no matter how large the raster is.
//
// Exactly one worker goroutine serves each Loader and each Writer. Errors
// raised on the worker are captured and re-raised to the consumer on its
// next call, never dropped.
package stream

import (
	"errors"
	"time"
)

// DefaultQueueSize is the default bounded queue depth for loaders.
// One block in flight is enough to hide read latency without holding
// more than two tiles in memory.
const DefaultQueueSize = 1

// DefaultWriterQueueSize is the default queue depth for writers.
const DefaultWriterQueueSize = 16

// DefaultTimeout bounds a consumer's wait for the next block. A worker that
// produces nothing for this long is considered wedged.
const DefaultTimeout = 60 * time.Second

var (
	// ErrFinished signals normal exhaustion: every tile has been yielded.
	ErrFinished = errors.New("stream finished")

	// ErrTimeout signals a wedged producer: the bounded wait for the next
	// block expired. Fatal, distinct from ErrFinished.
	ErrTimeout = errors.New("stream retrieval timed out")

	// ErrStopped signals use of a loader or writer after Stop.
	ErrStopped = errors.New("stream stopped")

	// ErrNotStarted signals retrieval before Start.
	ErrNotStarted = errors.New("stream not started")
)

// LoaderMetrics receives loader instrumentation. A nil value disables
// instrumentation with zero overhead.
type LoaderMetrics interface {
	// TileRead records one completed tile read.
	TileRead(bytes int)

	// TileSkipped records a skipped tile; stage is "mask" for the pre-read
	// check and "nodata" for the post-read scan.
	TileSkipped(stage string)

	// QueueDepth records the current number of queued blocks.
	QueueDepth(n int)
}

// WriterMetrics receives writer instrumentation. A nil value disables
// instrumentation with zero overhead.
type WriterMetrics interface {
	// BlockWritten records one completed region write.
	BlockWritten(bytes int)

	// QueueDepth records the current number of queued writes.
	QueueDepth(n int)
}
