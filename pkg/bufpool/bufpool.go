// Package bufpool provides a tiered pool of float32 sample buffers.
//
// Block streaming allocates one tile-sized buffer per read and one per
// reduction result. At typical block shapes (hundreds of thousands of
// samples) these allocations dominate GC pressure, so buffers are pooled
// in three size classes and reused across tiles.
//
// Buffers larger than the large tier are allocated directly and not pooled
// to avoid keeping very large buffers in memory indefinitely.
//
// All operations are safe for concurrent use.
package bufpool

import (
	"sync"
)

// Default buffer size classes, in float32 samples.
const (
	// DefaultLineSamples covers single tile rows and small masks (16K samples, 64KiB)
	DefaultLineSamples = 16 << 10

	// DefaultTileSamples covers one 2D tile at common block shapes (1M samples, 4MiB)
	DefaultTileSamples = 1 << 20

	// DefaultCubeSamples covers a layers x rows x cols read cube (16M samples, 64MiB)
	DefaultCubeSamples = 16 << 20
)

// Pool manages float32 slice pools organized by size class.
// It selects the appropriate class for a requested sample count and falls
// back to direct allocation for oversized requests.
type Pool struct {
	line sync.Pool
	tile sync.Pool
	cube sync.Pool

	lineSamples int
	tileSamples int
	cubeSamples int
}

// Config holds configuration for creating a custom pool.
type Config struct {
	// LineSamples is the size of line-class buffers (default: 16K samples)
	LineSamples int

	// TileSamples is the size of tile-class buffers (default: 1M samples)
	TileSamples int

	// CubeSamples is the size of cube-class buffers (default: 16M samples)
	CubeSamples int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		LineSamples: DefaultLineSamples,
		TileSamples: DefaultTileSamples,
		CubeSamples: DefaultCubeSamples,
	}
}

// NewPool creates a new buffer pool with the given configuration.
// If cfg is nil, default values are used.
func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		defaultCfg := DefaultConfig()
		cfg = &defaultCfg
	}

	if cfg.LineSamples <= 0 {
		cfg.LineSamples = DefaultLineSamples
	}
	if cfg.TileSamples <= 0 {
		cfg.TileSamples = DefaultTileSamples
	}
	if cfg.CubeSamples <= 0 {
		cfg.CubeSamples = DefaultCubeSamples
	}

	p := &Pool{
		lineSamples: cfg.LineSamples,
		tileSamples: cfg.TileSamples,
		cubeSamples: cfg.CubeSamples,
	}

	p.line = sync.Pool{
		New: func() any {
			buf := make([]float32, p.lineSamples)
			return &buf
		},
	}
	p.tile = sync.Pool{
		New: func() any {
			buf := make([]float32, p.tileSamples)
			return &buf
		},
	}
	p.cube = sync.Pool{
		New: func() any {
			buf := make([]float32, p.cubeSamples)
			return &buf
		},
	}

	return p
}

// Get returns a float32 slice with length exactly n, backed by a pooled
// buffer whose capacity may be larger. The caller must call Put when done;
// samples are not zeroed between uses.
//
// Requests larger than the cube class are allocated directly and will not
// be pooled.
func (p *Pool) Get(n int) []float32 {
	var bufPtr *[]float32

	switch {
	case n <= p.lineSamples:
		bufPtr = p.line.Get().(*[]float32)
	case n <= p.tileSamples:
		bufPtr = p.tile.Get().(*[]float32)
	case n <= p.cubeSamples:
		bufPtr = p.cube.Get().(*[]float32)
	default:
		return make([]float32, n)
	}

	return (*bufPtr)[:n]
}

// Put returns a buffer to the pool for reuse. The buffer must have been
// obtained from Get and must not be used after Put. Buffers whose capacity
// matches no size class are dropped for normal garbage collection.
func (p *Pool) Put(buf []float32) {
	if buf == nil {
		return
	}

	switch cap(buf) {
	case p.lineSamples:
		full := buf[:cap(buf)]
		p.line.Put(&full)
	case p.tileSamples:
		full := buf[:cap(buf)]
		p.tile.Put(&full)
	case p.cubeSamples:
		full := buf[:cap(buf)]
		p.cube.Put(&full)
	}
}

// globalPool is the package-level pool with default configuration.
var globalPool = NewPool(nil)

// Get returns a float32 slice of length n from the global pool.
//
// Usage:
//
//	buf := bufpool.Get(n)
//	defer bufpool.Put(buf)
func Get(n int) []float32 {
	return globalPool.Get(n)
}

// Put returns a buffer to the global pool.
func Put(buf []float32) {
	globalPool.Put(buf)
}
