// Package raster defines the pluggable raster access layer.
//
// A raster is a single-band 2D grid of samples with a storage data type, an
// optional nodata value, and a native on-disk chunk shape. Backends register
// themselves by file extension; callers open datasets through the package
// functions and never depend on a concrete format.
//
// Two backend families ship with this module:
//   - flat single-file rasters (package raster/flat, extension .bsq)
//   - chunked compressed containers (package raster/chunked, extension .czr)
//
// In-memory payloads are always float32 grids; backends convert to and from
// the storage data type at the file boundary.
package raster

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DType identifies the storage data type of a raster.
type DType uint8

const (
	Uint8 DType = iota + 1
	Int16
	Uint16
	Int32
	Float32
	Float64
)

// Size returns the storage size of one sample in bytes.
func (d DType) Size() int {
	switch d {
	case Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// Max returns the maximum representable value of the storage type.
// Used for the invalid-classification sentinel.
func (d DType) Max() float64 {
	switch d {
	case Uint8:
		return math.MaxUint8
	case Int16:
		return math.MaxInt16
	case Uint16:
		return math.MaxUint16
	case Int32:
		return math.MaxInt32
	case Float32:
		return math.MaxFloat32
	case Float64:
		return math.MaxFloat64
	default:
		return 0
	}
}

// ParseDType parses a data type name.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uint8", "byte":
		return Uint8, nil
	case "int16":
		return Int16, nil
	case "uint16":
		return Uint16, nil
	case "int32":
		return Int32, nil
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDType, s)
	}
}

// Range is a half-open [Start, Stop) index interval along one axis.
type Range struct {
	Start int
	Stop  int
}

// Len returns the number of indexes covered by the range.
func (r Range) Len() int {
	return r.Stop - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d:%d)", r.Start, r.Stop)
}

// Clip returns the range clipped to [0, max).
func (r Range) Clip(max int) Range {
	out := r
	if out.Start < 0 {
		out.Start = 0
	}
	if out.Stop > max {
		out.Stop = max
	}
	return out
}

// Info describes a raster's immutable geometry and storage.
type Info struct {
	Rows   int     `json:"rows"`
	Cols   int     `json:"cols"`
	DType  DType   `json:"dtype"`
	Nodata float64 `json:"nodata"` // NaN when nodata is "not a number"

	// Native on-disk chunk shape. The block planner aligns tile shapes to
	// integer multiples of this.
	ChunkRows int `json:"chunk_rows"`
	ChunkCols int `json:"chunk_cols"`
}

// Shape returns (rows, cols).
func (i Info) Shape() (int, int) {
	return i.Rows, i.Cols
}

// Like returns a copy of the geometry with a different storage type and
// nodata value, for pre-creating outputs aligned with an input raster.
func (i Info) Like(dtype DType, nodata float64) Info {
	out := i
	out.DType = dtype
	out.Nodata = nodata
	return out
}

// Dataset is read access to an opened raster. Implementations are safe for
// sequential use by one goroutine; they are not required to support
// concurrent reads.
type Dataset interface {
	// Info returns the raster geometry. Immutable once opened.
	Info() Info

	// ReadRegion reads the given half-open row/col ranges into a float32
	// grid. Ranges outside the raster extent are an error.
	ReadRegion(rows, cols Range) (*Grid, error)

	Close() error
}

// RegionWriter is update access to a pre-created raster. WriteRegion fills
// existing regions only; it never grows the file. Writes to disjoint regions
// may be issued concurrently by one background writer.
type RegionWriter interface {
	Info() Info
	WriteRegion(g *Grid, rowOff, colOff int) error
	Close() error
}

// Backend creates and opens rasters of one format family.
type Backend interface {
	Open(path string) (Dataset, error)
	Create(path string, info Info) error
	OpenUpdate(path string) (RegionWriter, error)
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]Backend{}
)

// Register makes a backend available under a file extension (including the
// leading dot). Typically called from a backend package's init.
func Register(ext string, b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if b == nil {
		panic("raster: Register backend is nil")
	}
	ext = strings.ToLower(ext)
	if _, dup := backends[ext]; dup {
		panic("raster: Register called twice for extension " + ext)
	}
	backends[ext] = b
}

// Extensions returns the registered extensions, sorted.
func Extensions() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	exts := make([]string, 0, len(backends))
	for ext := range backends {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func backendFor(path string) (Backend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	backendsMu.RLock()
	b, ok := backends[ext]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)",
			ErrUnknownFormat, ext, strings.Join(Extensions(), ", "))
	}
	return b, nil
}

// Open opens a raster for reading, selecting the backend by file extension.
func Open(path string) (Dataset, error) {
	b, err := backendFor(path)
	if err != nil {
		return nil, err
	}
	return b.Open(path)
}

// Create pre-allocates a raster with the given geometry. The file's full
// extent exists when Create returns, so region writers can fill it in any
// order.
func Create(path string, info Info) error {
	if info.Rows <= 0 || info.Cols <= 0 {
		return fmt.Errorf("%w: shape %dx%d", ErrInvalidShape, info.Rows, info.Cols)
	}
	if info.DType.Size() == 0 {
		return fmt.Errorf("%w: %v", ErrUnknownDType, info.DType)
	}
	b, err := backendFor(path)
	if err != nil {
		return err
	}
	return b.Create(path, info)
}

// OpenUpdate opens a previously created raster for region writes.
func OpenUpdate(path string) (RegionWriter, error) {
	b, err := backendFor(path)
	if err != nil {
		return nil, err
	}
	return b.OpenUpdate(path)
}

// IsNodata reports whether a sample matches the nodata value, treating NaN
// nodata as "any non-finite sample".
func IsNodata(v float32, nodata float64) bool {
	f := float64(v)
	if math.IsNaN(nodata) {
		return math.IsNaN(f)
	}
	return f == nodata || math.IsNaN(f)
}
