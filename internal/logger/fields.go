package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that runs can be
// grepped and aggregated by tile, file, and batch.
const (
	// Raster identification
	KeyPath  = "path"  // raster or container path
	KeyRows  = "rows"  // raster height in pixels
	KeyCols  = "cols"  // raster width in pixels
	KeyDType = "dtype" // storage data type

	// Tile addressing
	KeyRowStart = "row_start" // first row of the tile
	KeyRowStop  = "row_stop"  // one past the last row of the tile
	KeyColStart = "col_start" // first column of the tile
	KeyColStop  = "col_stop"  // one past the last column of the tile

	// Streaming
	KeyQueued  = "queued"  // blocks currently queued
	KeySkipped = "skipped" // blocks skipped so far
	KeyStage   = "stage"   // pipeline stage name

	// Sequential processing
	KeyBatch      = "batch"       // ministack index (0-based)
	KeyBatchStart = "batch_start" // first epoch date of the batch
	KeyBatchEnd   = "batch_end"   // last epoch date of the batch
	KeyFiles      = "files"       // number of files in an input list

	// Timing
	KeyDurationMs = "duration_ms" // operation duration in milliseconds

	// Errors
	KeyError = "error" // error message
)
