// Package sequential runs a stateful batch workflow over a chronological
// stack of rasters. The stack is split into ministacks of at most m epochs;
// each batch is processed with the compressed representatives of all prior
// batches prepended to its input, so information propagates forward without
// ever holding the full stack in memory.
package sequential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/strataproc/strata/internal/logger"
)

var (
	// ErrEmptyFileList signals a run with no input epochs.
	ErrEmptyFileList = errors.New("sequential: empty file list")

	// ErrInvalidBatchSize signals a non-positive ministack size.
	ErrInvalidBatchSize = errors.New("sequential: ministack size must be positive")
)

// Epoch is one dated input raster.
type Epoch struct {
	Path string
	Date time.Time
}

// MiniBatch is one unit of sequential work. After Partition, Files holds
// only the batch's raw epochs; Run prepends the compressed representatives
// of earlier batches before invoking the batch function, keeping
// ReferenceIndex pointing at the oldest file.
type MiniBatch struct {
	// Index is the zero-based batch position in chronological order.
	Index int

	// Files is the ordered input list handed to the batch function.
	Files []string

	// StartDate and EndDate span the raw epochs of this batch.
	StartDate time.Time
	EndDate   time.Time

	// ReferenceIndex is the position of the phase reference within Files.
	// Always 0.
	ReferenceIndex int

	// WorkDir is the batch's working directory. Empty until Run.
	WorkDir string
}

// DateSpan returns the YYYYMMDD_YYYYMMDD name used for the batch working
// directory.
func (b MiniBatch) DateSpan() string {
	return b.StartDate.Format("20060102") + "_" + b.EndDate.Format("20060102")
}

// Partition splits epochs into ceil(N/m) chronological batches of at most m
// files each. The input order is preserved; the caller sorts beforehand.
func Partition(files []Epoch, m int) ([]MiniBatch, error) {
	if len(files) == 0 {
		return nil, ErrEmptyFileList
	}
	if m <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, m)
	}

	var batches []MiniBatch
	for start := 0; start < len(files); start += m {
		end := start + m
		if end > len(files) {
			end = len(files)
		}
		cur := files[start:end]

		paths := make([]string, len(cur))
		for i, e := range cur {
			paths[i] = e.Path
		}
		batches = append(batches, MiniBatch{
			Index:     len(batches),
			Files:     paths,
			StartDate: cur[0].Date,
			EndDate:   cur[len(cur)-1].Date,
		})
	}
	return batches, nil
}

// BatchResult is what one batch invocation produces: per-epoch output
// rasters inside the batch working directory, one compressed representative
// carrying the batch forward, and one coherence raster.
type BatchResult struct {
	Outputs    []string
	Compressed string
	Coherence  string
}

// BatchFunc processes one ministack. It is called once per batch, in order,
// never concurrently.
type BatchFunc func(ctx context.Context, batch MiniBatch) (BatchResult, error)

// Options configures a sequential run.
type Options struct {
	// OutputDir receives the batch working directories and, after the run,
	// the flattened outputs.
	OutputDir string

	// MinistackSize is the maximum number of raw epochs per batch.
	MinistackSize int

	// Synchronous forces inline writes during the coherence combine.
	Synchronous bool
}

// RunResult is the flattened outcome of a sequential run.
type RunResult struct {
	// Outputs are the relocated per-epoch rasters, in batch order.
	Outputs []string

	// Compressed are the relocated representatives, one per batch.
	Compressed []string

	// Coherence is the combined coherence raster.
	Coherence string
}

// Run executes fn over chronological ministacks of files. Each batch works
// in a dated directory under opts.OutputDir and sees the compressed
// representatives of all earlier batches prepended to its raw files. After
// the last batch the per-batch coherence rasters are combined into one
// (per-pixel mean excluding nodata) and every output is relocated up into
// opts.OutputDir. The first batch error aborts the run.
func Run(ctx context.Context, files []Epoch, opts Options, fn BatchFunc) (RunResult, error) {
	batches, err := Partition(files, opts.MinistackSize)
	if err != nil {
		return RunResult{}, err
	}

	logger.Info("starting sequential run",
		logger.KeyFiles, len(files),
		"batches", len(batches),
		"ministack_size", opts.MinistackSize)

	var (
		allOutputs []string
		compressed []string
		coherence  []string
	)

	for _, batch := range batches {
		batch.WorkDir = filepath.Join(opts.OutputDir, batch.DateSpan())
		if err := os.MkdirAll(batch.WorkDir, 0o755); err != nil {
			return RunResult{}, fmt.Errorf("sequential: batch %d: %w", batch.Index, err)
		}

		// Effective input: every prior representative, then this batch's
		// raw epochs. The reference stays at index 0, the oldest file.
		batch.Files = append(append([]string(nil), compressed...), batch.Files...)

		logger.Info("processing ministack",
			logger.KeyBatch, batch.Index,
			logger.KeyBatchStart, batch.StartDate.Format("2006-01-02"),
			logger.KeyBatchEnd, batch.EndDate.Format("2006-01-02"),
			logger.KeyFiles, len(batch.Files))

		res, err := fn(ctx, batch)
		if err != nil {
			return RunResult{}, fmt.Errorf("sequential: batch %d (%s): %w",
				batch.Index, batch.DateSpan(), err)
		}

		allOutputs = append(allOutputs, res.Outputs...)
		compressed = append(compressed, res.Compressed)
		coherence = append(coherence, res.Coherence)
	}

	combined, err := combineCoherence(ctx, coherence, opts)
	if err != nil {
		return RunResult{}, fmt.Errorf("sequential: combine coherence: %w", err)
	}

	result := RunResult{Coherence: combined}
	for _, p := range allOutputs {
		moved, err := relocate(p, opts.OutputDir)
		if err != nil {
			return RunResult{}, fmt.Errorf("sequential: %w", err)
		}
		result.Outputs = append(result.Outputs, moved)
	}
	for _, p := range compressed {
		moved, err := relocate(p, opts.OutputDir)
		if err != nil {
			return RunResult{}, fmt.Errorf("sequential: %w", err)
		}
		result.Compressed = append(result.Compressed, moved)
	}

	logger.Info("sequential run finished",
		"outputs", len(result.Outputs),
		"compressed", len(result.Compressed))
	return result, nil
}

func relocate(path, dir string) (string, error) {
	dest := filepath.Join(dir, filepath.Base(path))
	if dest == path {
		return dest, nil
	}
	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}
