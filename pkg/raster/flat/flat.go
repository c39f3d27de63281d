// Package flat implements the single-file raster backend (extension .bsq).
//
// Layout is a fixed 64-byte header followed by the samples in row-major
// order in the storage dtype, little-endian. The format is stripe-oriented:
// its native chunk is a group of whole rows, so the block planner grows
// tiles by row groups and the full width.
//
// Reads are served from a read-only memory map; region writes go through
// WriteAt on the pre-sized file, so disjoint regions can be written
// concurrently.
package flat

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/strataproc/strata/pkg/raster"
)

const (
	magic      = "BSQ1"
	headerSize = 64

	// DefaultChunkRows is the native row-group height recorded by Create.
	DefaultChunkRows = 16
)

func init() {
	raster.Register(".bsq", backend{})
}

type backend struct{}

func (backend) Open(path string) (raster.Dataset, error)            { return open(path) }
func (backend) Create(path string, info raster.Info) error          { return create(path, info) }
func (backend) OpenUpdate(path string) (raster.RegionWriter, error) { return openUpdate(path) }

// header is the on-disk metadata block.
//
//	offset size field
//	0      4    magic "BSQ1"
//	4      4    rows (uint32)
//	8      4    cols (uint32)
//	12     1    dtype
//	13     3    reserved
//	16     4    chunk rows (uint32)
//	20     4    chunk cols (uint32)
//	24     8    nodata (float64 bits)
//	32     32   reserved
func encodeHeader(info raster.Info) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:], uint32(info.Rows))
	binary.LittleEndian.PutUint32(buf[8:], uint32(info.Cols))
	buf[12] = byte(info.DType)
	binary.LittleEndian.PutUint32(buf[16:], uint32(info.ChunkRows))
	binary.LittleEndian.PutUint32(buf[20:], uint32(info.ChunkCols))
	binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(info.Nodata))
	return buf
}

func decodeHeader(buf []byte) (raster.Info, error) {
	if len(buf) < headerSize || string(buf[0:4]) != magic {
		return raster.Info{}, fmt.Errorf("%w: bad header", raster.ErrUnknownFormat)
	}
	info := raster.Info{
		Rows:      int(binary.LittleEndian.Uint32(buf[4:])),
		Cols:      int(binary.LittleEndian.Uint32(buf[8:])),
		DType:     raster.DType(buf[12]),
		ChunkRows: int(binary.LittleEndian.Uint32(buf[16:])),
		ChunkCols: int(binary.LittleEndian.Uint32(buf[20:])),
		Nodata:    math.Float64frombits(binary.LittleEndian.Uint64(buf[24:])),
	}
	if info.DType.Size() == 0 {
		return raster.Info{}, fmt.Errorf("%w: %d", raster.ErrUnknownDType, buf[12])
	}
	return info, nil
}

func create(path string, info raster.Info) error {
	if info.ChunkRows <= 0 {
		info.ChunkRows = DefaultChunkRows
	}
	if info.ChunkRows > info.Rows {
		info.ChunkRows = info.Rows
	}
	// Stripe layout: a native chunk always spans the full width.
	info.ChunkCols = info.Cols

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(encodeHeader(info)); err != nil {
		return fmt.Errorf("create %s: write header: %w", path, err)
	}

	// Pre-allocate the full extent so region writers can fill any offset.
	total := int64(headerSize) + int64(info.Rows)*int64(info.Cols)*int64(info.DType.Size())
	if err := f.Truncate(total); err != nil {
		return fmt.Errorf("create %s: truncate to %d: %w", path, total, err)
	}
	return f.Sync()
}

// dataset is the mmap-backed read side.
type dataset struct {
	path string
	f    *os.File
	data mmap.MMap
	info raster.Info
}

func open(path string) (*dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	info, err := decodeHeader(m)
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &dataset{path: path, f: f, data: m, info: info}, nil
}

func (d *dataset) Info() raster.Info {
	return d.info
}

func (d *dataset) ReadRegion(rows, cols raster.Range) (*raster.Grid, error) {
	if d.data == nil {
		return nil, raster.ErrClosed
	}
	if err := checkRegion(d.info, rows, cols); err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}

	size := d.info.DType.Size()
	g := raster.NewGrid(rows.Len(), cols.Len())
	for r := rows.Start; r < rows.Stop; r++ {
		off := headerSize + (int64(r)*int64(d.info.Cols)+int64(cols.Start))*int64(size)
		src := d.data[off : off+int64(cols.Len()*size)]
		dst := g.Data[(r-rows.Start)*cols.Len() : (r-rows.Start+1)*cols.Len()]
		if err := raster.DecodeSamples(d.info.DType, src, dst); err != nil {
			return nil, fmt.Errorf("%s row %d: %w", d.path, r, err)
		}
	}
	return g, nil
}

func (d *dataset) Close() error {
	if d.data != nil {
		if err := d.data.Unmap(); err != nil {
			return err
		}
		d.data = nil
	}
	if d.f != nil {
		err := d.f.Close()
		d.f = nil
		return err
	}
	return nil
}

// writer is the WriteAt-backed update side.
type writer struct {
	path string
	f    *os.File
	info raster.Info
}

func openUpdate(path string) (*writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s for update: %w", path, err)
	}
	hdr := make([]byte, headerSize)
	if _, err := f.ReadAt(hdr, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s for update: read header: %w", path, err)
	}
	info, err := decodeHeader(hdr)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s for update: %w", path, err)
	}
	return &writer{path: path, f: f, info: info}, nil
}

func (w *writer) Info() raster.Info {
	return w.info
}

func (w *writer) WriteRegion(g *raster.Grid, rowOff, colOff int) error {
	rows := raster.Range{Start: rowOff, Stop: rowOff + g.Rows}
	cols := raster.Range{Start: colOff, Stop: colOff + g.Cols}
	if err := checkRegion(w.info, rows, cols); err != nil {
		return fmt.Errorf("%s: %w", w.path, err)
	}

	size := w.info.DType.Size()
	buf := make([]byte, g.Cols*size)
	for r := 0; r < g.Rows; r++ {
		src := g.Data[r*g.Cols : (r+1)*g.Cols]
		if err := raster.EncodeSamples(w.info.DType, src, buf); err != nil {
			return fmt.Errorf("%s row %d: %w", w.path, rowOff+r, err)
		}
		off := headerSize + (int64(rowOff+r)*int64(w.info.Cols)+int64(colOff))*int64(size)
		if _, err := w.f.WriteAt(buf, off); err != nil {
			return fmt.Errorf("%s row %d: %w", w.path, rowOff+r, err)
		}
	}
	return nil
}

func (w *writer) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Sync()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.f = nil
	return err
}

func checkRegion(info raster.Info, rows, cols raster.Range) error {
	if rows.Len() <= 0 || cols.Len() <= 0 {
		return fmt.Errorf("%w: rows %v cols %v", raster.ErrInvalidShape, rows, cols)
	}
	if rows.Start < 0 || cols.Start < 0 || rows.Stop > info.Rows || cols.Stop > info.Cols {
		return fmt.Errorf("%w: rows %v cols %v of %dx%d",
			raster.ErrOutOfBounds, rows, cols, info.Rows, info.Cols)
	}
	return nil
}
