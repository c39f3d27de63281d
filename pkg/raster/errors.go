package raster

import "errors"

// Standard raster access errors. Callers should test with errors.Is; backend
// errors wrap these sentinels together with the offending path and region.
var (
	// ErrUnknownFormat indicates no backend is registered for the extension.
	ErrUnknownFormat = errors.New("unknown raster format")

	// ErrUnknownDType indicates an unsupported storage data type.
	ErrUnknownDType = errors.New("unknown data type")

	// ErrInvalidShape indicates a non-positive raster or region shape.
	ErrInvalidShape = errors.New("invalid shape")

	// ErrOutOfBounds indicates a region outside the raster extent.
	// Raised immediately, never retried.
	ErrOutOfBounds = errors.New("region out of bounds")

	// ErrGeometryMismatch indicates stacked rasters with differing shapes.
	ErrGeometryMismatch = errors.New("raster geometry mismatch")

	// ErrClosed indicates use of a dataset after Close.
	ErrClosed = errors.New("raster is closed")
)
