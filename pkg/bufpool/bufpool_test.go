package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// Allocation Tests
// ============================================================================

func TestBufferAllocation(t *testing.T) {
	t.Run("AllocatesLineBuffer", func(t *testing.T) {
		buf := Get(1024)
		defer Put(buf)

		assert.Len(t, buf, 1024)
		assert.Equal(t, DefaultLineSamples, cap(buf))
	})

	t.Run("AllocatesTileBuffer", func(t *testing.T) {
		buf := Get(512 * 512)
		defer Put(buf)

		assert.Len(t, buf, 512*512)
		assert.Equal(t, DefaultTileSamples, cap(buf))
	})

	t.Run("AllocatesCubeBuffer", func(t *testing.T) {
		buf := Get(10 * 512 * 512)
		defer Put(buf)

		assert.Len(t, buf, 10*512*512)
		assert.Equal(t, DefaultCubeSamples, cap(buf))
	})

	t.Run("AllocatesOversizedDirectly", func(t *testing.T) {
		n := DefaultCubeSamples + 1
		buf := Get(n)
		defer Put(buf)

		assert.Len(t, buf, n)
		assert.Equal(t, n, cap(buf))
	})

	t.Run("ZeroSize", func(t *testing.T) {
		buf := Get(0)
		defer Put(buf)

		assert.NotNil(t, buf)
		assert.Len(t, buf, 0)
	})
}

// ============================================================================
// Reuse Tests
// ============================================================================

func TestBufferReuse(t *testing.T) {
	t.Run("PooledBufferIsReused", func(t *testing.T) {
		p := NewPool(&Config{LineSamples: 8, TileSamples: 16, CubeSamples: 32})

		buf := p.Get(8)
		buf[0] = 42
		p.Put(buf)

		// A fresh Get at the same class may hand back the same backing array.
		// Either way length and capacity must match the class.
		again := p.Get(8)
		assert.Len(t, again, 8)
		assert.Equal(t, 8, cap(again))
	})

	t.Run("PutNilIsNoop", func(t *testing.T) {
		assert.NotPanics(t, func() { Put(nil) })
	})

	t.Run("PutForeignBufferIsDropped", func(t *testing.T) {
		foreign := make([]float32, 100)
		assert.NotPanics(t, func() { Put(foreign) })
	})
}

// ============================================================================
// Custom Configuration Tests
// ============================================================================

func TestNewPool(t *testing.T) {
	t.Run("NilConfigUsesDefaults", func(t *testing.T) {
		p := NewPool(nil)
		buf := p.Get(10)
		assert.Equal(t, DefaultLineSamples, cap(buf))
		p.Put(buf)
	})

	t.Run("ZeroValuesUseDefaults", func(t *testing.T) {
		p := NewPool(&Config{})
		buf := p.Get(DefaultLineSamples + 1)
		assert.Equal(t, DefaultTileSamples, cap(buf))
		p.Put(buf)
	})

	t.Run("CustomSizes", func(t *testing.T) {
		p := NewPool(&Config{LineSamples: 4, TileSamples: 8, CubeSamples: 12})
		buf := p.Get(6)
		assert.Equal(t, 8, cap(buf))
		p.Put(buf)
	})
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestConcurrentAccess(t *testing.T) {
	p := NewPool(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				buf := p.Get(256 * 256)
				buf[0] = float32(j)
				p.Put(buf)
			}
		}()
	}
	wg.Wait()
}
