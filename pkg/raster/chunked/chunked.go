// Package chunked implements the chunked container raster backend
// (extension .czr).
//
// A container is a directory holding a meta.json geometry document and one
// zstd-compressed chunk file per grid cell under chunks/. Chunk files are
// named R_C.zst by chunk coordinate. A chunk file that does not exist reads
// as nodata-filled, so Create only writes metadata and sparse containers
// stay cheap.
//
// The native chunk shape reported to the block planner is the container's
// chunk grid, so planned tiles decompress whole chunks rather than slicing
// into them.
package chunked

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/strataproc/strata/pkg/raster"
)

const (
	metaFile  = "meta.json"
	chunksDir = "chunks"

	// DefaultChunkRows and DefaultChunkCols are used by Create when the
	// caller does not specify a chunk shape.
	DefaultChunkRows = 128
	DefaultChunkCols = 128
)

func init() {
	raster.Register(".czr", backend{})
}

type backend struct{}

func (backend) Open(path string) (raster.Dataset, error)            { return open(path) }
func (backend) Create(path string, info raster.Info) error          { return create(path, info) }
func (backend) OpenUpdate(path string) (raster.RegionWriter, error) { return openUpdate(path) }

// meta is the JSON geometry document.
type meta struct {
	Rows      int     `json:"rows"`
	Cols      int     `json:"cols"`
	DType     string  `json:"dtype"`
	Nodata    float64 `json:"nodata"`
	NodataNaN bool    `json:"nodata_nan,omitempty"`
	ChunkRows int     `json:"chunk_rows"`
	ChunkCols int     `json:"chunk_cols"`
}

func writeMeta(dir string, info raster.Info) error {
	m := meta{
		Rows:      info.Rows,
		Cols:      info.Cols,
		DType:     info.DType.String(),
		ChunkRows: info.ChunkRows,
		ChunkCols: info.ChunkCols,
	}
	if math.IsNaN(info.Nodata) {
		m.NodataNaN = true
	} else {
		m.Nodata = info.Nodata
	}
	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, metaFile), buf, 0644)
}

func readMeta(dir string) (raster.Info, error) {
	buf, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return raster.Info{}, err
	}
	var m meta
	if err := json.Unmarshal(buf, &m); err != nil {
		return raster.Info{}, fmt.Errorf("parse %s: %w", metaFile, err)
	}
	dtype, err := raster.ParseDType(m.DType)
	if err != nil {
		return raster.Info{}, err
	}
	info := raster.Info{
		Rows:      m.Rows,
		Cols:      m.Cols,
		DType:     dtype,
		Nodata:    m.Nodata,
		ChunkRows: m.ChunkRows,
		ChunkCols: m.ChunkCols,
	}
	if m.NodataNaN {
		info.Nodata = math.NaN()
	}
	return info, nil
}

func create(path string, info raster.Info) error {
	if info.ChunkRows <= 0 {
		info.ChunkRows = DefaultChunkRows
	}
	if info.ChunkCols <= 0 {
		info.ChunkCols = DefaultChunkCols
	}
	if info.ChunkRows > info.Rows {
		info.ChunkRows = info.Rows
	}
	if info.ChunkCols > info.Cols {
		info.ChunkCols = info.Cols
	}
	if err := os.MkdirAll(filepath.Join(path, chunksDir), 0755); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := writeMeta(path, info); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return nil
}

// container serves both reads and region writes; chunk files are read,
// merged, and rewritten whole.
type container struct {
	dir  string
	info raster.Info
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func newContainer(dir string) (*container, error) {
	info, err := readMeta(dir)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &container{dir: dir, info: info, enc: enc, dec: dec}, nil
}

func open(path string) (raster.Dataset, error) {
	return newContainer(path)
}

func openUpdate(path string) (raster.RegionWriter, error) {
	return newContainer(path)
}

func (c *container) Info() raster.Info {
	return c.info
}

func (c *container) chunkPath(cr, cc int) string {
	return filepath.Join(c.dir, chunksDir, fmt.Sprintf("%d_%d.zst", cr, cc))
}

// loadChunk decompresses chunk (cr, cc) into a full chunk-shaped grid.
// Missing chunk files yield a nodata-filled grid.
func (c *container) loadChunk(cr, cc int) (*raster.Grid, error) {
	g := raster.NewGrid(c.info.ChunkRows, c.info.ChunkCols)

	comp, err := os.ReadFile(c.chunkPath(cr, cc))
	if os.IsNotExist(err) {
		g.Fill(nodataFill(c.info.Nodata))
		return g, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read chunk (%d,%d): %w", cr, cc, err)
	}

	raw, err := c.dec.DecodeAll(comp, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode chunk (%d,%d): %w", cr, cc, err)
	}
	if err := raster.DecodeSamples(c.info.DType, raw, g.Data); err != nil {
		return nil, fmt.Errorf("chunk (%d,%d): %w", cr, cc, err)
	}
	return g, nil
}

func (c *container) storeChunk(cr, cc int, g *raster.Grid) error {
	raw := make([]byte, len(g.Data)*c.info.DType.Size())
	if err := raster.EncodeSamples(c.info.DType, g.Data, raw); err != nil {
		return fmt.Errorf("chunk (%d,%d): %w", cr, cc, err)
	}
	comp := c.enc.EncodeAll(raw, nil)
	if err := os.WriteFile(c.chunkPath(cr, cc), comp, 0644); err != nil {
		return fmt.Errorf("write chunk (%d,%d): %w", cr, cc, err)
	}
	return nil
}

// chunkSpan returns the chunk-coordinate interval covering a sample range.
func chunkSpan(r raster.Range, chunk int) (int, int) {
	return r.Start / chunk, (r.Stop - 1) / chunk
}

func (c *container) ReadRegion(rows, cols raster.Range) (*raster.Grid, error) {
	if err := c.checkRegion(rows, cols); err != nil {
		return nil, err
	}

	out := raster.NewGrid(rows.Len(), cols.Len())
	cr0, cr1 := chunkSpan(rows, c.info.ChunkRows)
	cc0, cc1 := chunkSpan(cols, c.info.ChunkCols)

	for cr := cr0; cr <= cr1; cr++ {
		for cc := cc0; cc <= cc1; cc++ {
			g, err := c.loadChunk(cr, cc)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", c.dir, err)
			}
			c.copyChunkRegion(out, g, cr, cc, rows, cols, false)
		}
	}
	return out, nil
}

func (c *container) WriteRegion(g *raster.Grid, rowOff, colOff int) error {
	rows := raster.Range{Start: rowOff, Stop: rowOff + g.Rows}
	cols := raster.Range{Start: colOff, Stop: colOff + g.Cols}
	if err := c.checkRegion(rows, cols); err != nil {
		return err
	}

	cr0, cr1 := chunkSpan(rows, c.info.ChunkRows)
	cc0, cc1 := chunkSpan(cols, c.info.ChunkCols)

	for cr := cr0; cr <= cr1; cr++ {
		for cc := cc0; cc <= cc1; cc++ {
			// Read-modify-write so partial chunk coverage keeps old samples.
			chunk, err := c.loadChunk(cr, cc)
			if err != nil {
				return fmt.Errorf("%s: %w", c.dir, err)
			}
			c.copyChunkRegion(g, chunk, cr, cc, rows, cols, true)
			if err := c.storeChunk(cr, cc, chunk); err != nil {
				return fmt.Errorf("%s: %w", c.dir, err)
			}
		}
	}
	return nil
}

// copyChunkRegion copies the overlap between chunk (cr, cc) and the region
// (rows, cols). With toChunk false it copies chunk -> region grid; with
// toChunk true it copies region grid -> chunk.
func (c *container) copyChunkRegion(region *raster.Grid, chunk *raster.Grid, cr, cc int, rows, cols raster.Range, toChunk bool) {
	chunkRows := raster.Range{Start: cr * c.info.ChunkRows, Stop: (cr + 1) * c.info.ChunkRows}
	chunkCols := raster.Range{Start: cc * c.info.ChunkCols, Stop: (cc + 1) * c.info.ChunkCols}

	r0 := max(rows.Start, chunkRows.Start)
	r1 := min(rows.Stop, chunkRows.Stop)
	c0 := max(cols.Start, chunkCols.Start)
	c1 := min(cols.Stop, chunkCols.Stop)

	width := c1 - c0
	for r := r0; r < r1; r++ {
		chunkIdx := (r-chunkRows.Start)*c.info.ChunkCols + (c0 - chunkCols.Start)
		regionIdx := (r-rows.Start)*region.Cols + (c0 - cols.Start)
		if toChunk {
			copy(chunk.Data[chunkIdx:chunkIdx+width], region.Data[regionIdx:regionIdx+width])
		} else {
			copy(region.Data[regionIdx:regionIdx+width], chunk.Data[chunkIdx:chunkIdx+width])
		}
	}
}

func (c *container) checkRegion(rows, cols raster.Range) error {
	if rows.Len() <= 0 || cols.Len() <= 0 {
		return fmt.Errorf("%s: %w: rows %v cols %v", c.dir, raster.ErrInvalidShape, rows, cols)
	}
	if rows.Start < 0 || cols.Start < 0 || rows.Stop > c.info.Rows || cols.Stop > c.info.Cols {
		return fmt.Errorf("%s: %w: rows %v cols %v of %dx%d",
			c.dir, raster.ErrOutOfBounds, rows, cols, c.info.Rows, c.info.Cols)
	}
	return nil
}

func (c *container) Close() error {
	var err error
	if c.enc != nil {
		err = c.enc.Close()
		c.enc = nil
	}
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}
	return err
}

func nodataFill(nodata float64) float32 {
	if math.IsNaN(nodata) {
		return float32(math.NaN())
	}
	return float32(nodata)
}
