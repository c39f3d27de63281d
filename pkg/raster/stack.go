package raster

import (
	"fmt"
)

// Stack is an ordered list of same-grid single-band rasters read together as
// one layer axis. File order is chronological and preserved; the stack never
// reorders its inputs.
type Stack struct {
	paths    []string
	datasets []Dataset
	info     Info
}

// OpenStack opens every path and validates that all rasters share the same
// shape. The first raster's dtype, nodata, and chunk shape describe the
// stack as a whole.
func OpenStack(paths []string) (*Stack, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("open stack: empty file list")
	}

	s := &Stack{paths: append([]string(nil), paths...)}
	for i, p := range paths {
		ds, err := Open(p)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open stack layer %d: %w", i, err)
		}
		info := ds.Info()
		if i == 0 {
			s.info = info
		} else if info.Rows != s.info.Rows || info.Cols != s.info.Cols {
			s.Close()
			return nil, fmt.Errorf("%w: %s is %dx%d, %s is %dx%d",
				ErrGeometryMismatch, paths[0], s.info.Rows, s.info.Cols,
				p, info.Rows, info.Cols)
		}
		s.datasets = append(s.datasets, ds)
	}
	return s, nil
}

// Len returns the number of layers.
func (s *Stack) Len() int {
	return len(s.datasets)
}

// Paths returns the layer file paths in order.
func (s *Stack) Paths() []string {
	return s.paths
}

// Info returns the shared geometry (first layer's dtype/nodata/chunks).
func (s *Stack) Info() Info {
	return s.info
}

// Shape returns (rows, cols) of the shared grid.
func (s *Stack) Shape() (int, int) {
	return s.info.Rows, s.info.Cols
}

// Nodata returns the stack's nodata value (taken from the first layer).
func (s *Stack) Nodata() float64 {
	return s.info.Nodata
}

// ReadRegion reads the region from every layer into a cube, in layer order.
func (s *Stack) ReadRegion(rows, cols Range) (*Cube, error) {
	cube := NewCube(len(s.datasets), rows.Len(), cols.Len())
	n := rows.Len() * cols.Len()
	for i, ds := range s.datasets {
		g, err := ds.ReadRegion(rows, cols)
		if err != nil {
			return nil, fmt.Errorf("read %s rows %v cols %v: %w", s.paths[i], rows, cols, err)
		}
		copy(cube.Data[i*n:(i+1)*n], g.Data)
	}
	return cube, nil
}

// ReadLayer reads a region from a single layer.
func (s *Stack) ReadLayer(layer int, rows, cols Range) (*Grid, error) {
	if layer < 0 || layer >= len(s.datasets) {
		return nil, fmt.Errorf("read layer %d of %d: %w", layer, len(s.datasets), ErrOutOfBounds)
	}
	return s.datasets[layer].ReadRegion(rows, cols)
}

// Close closes all layers, returning the first error.
func (s *Stack) Close() error {
	var first error
	for _, ds := range s.datasets {
		if err := ds.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.datasets = nil
	return first
}
