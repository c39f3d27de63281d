package raster

import (
	"container/list"
	"fmt"
	"sync"
)

// Mask is a full-extent validity mask. True means the pixel may hold data;
// false means no read of that pixel can succeed. It is a best-effort
// pre-read hint only: the post-read nodata scan stays authoritative for
// tiles the mask lets through.
type Mask struct {
	Rows  int
	Cols  int
	Valid []bool // row-major, len == Rows*Cols
}

// LoadMask reads a raster and interprets non-nodata, non-zero samples as
// valid pixels.
func LoadMask(path string) (*Mask, error) {
	ds, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("load mask: %w", err)
	}
	defer ds.Close()

	info := ds.Info()
	g, err := ds.ReadRegion(Range{0, info.Rows}, Range{0, info.Cols})
	if err != nil {
		return nil, fmt.Errorf("load mask %s: %w", path, err)
	}

	m := &Mask{Rows: info.Rows, Cols: info.Cols, Valid: make([]bool, len(g.Data))}
	for i, v := range g.Data {
		m.Valid[i] = v != 0 && !IsNodata(v, info.Nodata)
	}
	return m, nil
}

// AllInvalid reports whether every pixel in the region is invalid.
func (m *Mask) AllInvalid(rows, cols Range) bool {
	for r := rows.Start; r < rows.Stop; r++ {
		base := r * m.Cols
		for c := cols.Start; c < cols.Stop; c++ {
			if m.Valid[base+c] {
				return false
			}
		}
	}
	return true
}

// MaskCache is a bounded cache of loaded masks, keyed by path. It is always
// constructed and passed explicitly; there is no package-level instance.
// Entries are evicted oldest-first once capacity is reached, and callers can
// invalidate a path after rewriting the mask file.
type MaskCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List               // of string paths, oldest at front
	entries  map[string]*list.Element // path -> element whose Value is maskEntry
}

type maskEntry struct {
	path string
	mask *Mask
}

// NewMaskCache creates a cache holding at most capacity masks.
func NewMaskCache(capacity int) *MaskCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &MaskCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the mask for path, loading it on first use.
func (c *MaskCache) Get(path string) (*Mask, error) {
	c.mu.Lock()
	if el, ok := c.entries[path]; ok {
		c.order.MoveToBack(el)
		m := el.Value.(maskEntry).mask
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	// Load outside the lock; mask files can be large.
	m, err := LoadMask(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[path]; ok {
		// Lost a race with another loader; keep the existing entry.
		return el.Value.(maskEntry).mask, nil
	}
	for c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(maskEntry).path)
	}
	c.entries[path] = c.order.PushBack(maskEntry{path: path, mask: m})
	return m, nil
}

// Invalidate drops the cached mask for path, if any.
func (c *MaskCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[path]; ok {
		c.order.Remove(el)
		delete(c.entries, path)
	}
}

// Len returns the number of cached masks.
func (c *MaskCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
