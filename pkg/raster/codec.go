package raster

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeSamples converts len(dst) stored samples from src (little-endian,
// storage dtype) into float32 values.
func DecodeSamples(dtype DType, src []byte, dst []float32) error {
	size := dtype.Size()
	if size == 0 {
		return fmt.Errorf("%w: %v", ErrUnknownDType, dtype)
	}
	if len(src) < len(dst)*size {
		return fmt.Errorf("decode samples: need %d bytes, have %d", len(dst)*size, len(src))
	}

	switch dtype {
	case Uint8:
		for i := range dst {
			dst[i] = float32(src[i])
		}
	case Int16:
		for i := range dst {
			dst[i] = float32(int16(binary.LittleEndian.Uint16(src[i*2:])))
		}
	case Uint16:
		for i := range dst {
			dst[i] = float32(binary.LittleEndian.Uint16(src[i*2:]))
		}
	case Int32:
		for i := range dst {
			dst[i] = float32(int32(binary.LittleEndian.Uint32(src[i*4:])))
		}
	case Float32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	case Float64:
		for i := range dst {
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:])))
		}
	}
	return nil
}

// EncodeSamples converts float32 samples into the storage dtype, writing
// len(src)*dtype.Size() bytes into dst. Integer dtypes are rounded to
// nearest and clamped to the representable range; NaN encodes as zero.
func EncodeSamples(dtype DType, src []float32, dst []byte) error {
	size := dtype.Size()
	if size == 0 {
		return fmt.Errorf("%w: %v", ErrUnknownDType, dtype)
	}
	if len(dst) < len(src)*size {
		return fmt.Errorf("encode samples: need %d bytes, have %d", len(src)*size, len(dst))
	}

	switch dtype {
	case Uint8:
		for i, v := range src {
			dst[i] = uint8(clampRound(v, 0, math.MaxUint8))
		}
	case Int16:
		for i, v := range src {
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(clampRound(v, math.MinInt16, math.MaxInt16))))
		}
	case Uint16:
		for i, v := range src {
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(clampRound(v, 0, math.MaxUint16)))
		}
	case Int32:
		for i, v := range src {
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(int32(clampRound(v, math.MinInt32, math.MaxInt32))))
		}
	case Float32:
		for i, v := range src {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
		}
	case Float64:
		for i, v := range src {
			binary.LittleEndian.PutUint64(dst[i*8:], math.Float64bits(float64(v)))
		}
	}
	return nil
}

func clampRound(v float32, lo, hi float64) float64 {
	f := float64(v)
	if math.IsNaN(f) {
		return 0
	}
	f = math.Round(f)
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}
