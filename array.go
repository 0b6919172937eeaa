package fits

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DType identifies the element type of an image array. The values mirror
// the FITS BITPIX codes.
type DType int

const (
	Uint8   DType = 8
	Int16   DType = 16
	Int32   DType = 32
	Int64   DType = 64
	Float32 DType = -32
	Float64 DType = -64
)

// Size returns the element size in bytes.
func (d DType) Size() int {
	n := int(d)
	if n < 0 {
		n = -n
	}

	return n / 8
}

func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// dtypeFromBitpix maps a BITPIX header value onto a DType.
func dtypeFromBitpix(bitpix int) (DType, error) {
	switch bitpix {
	case 8, 16, 32, 64, -32, -64:
		return DType(bitpix), nil
	default:
		return 0, fmt.Errorf("invalid BITPIX value %d", bitpix)
	}
}

// An Array is a small dense N-dimensional array in row-major order. It is
// the result type of full data loads, section reads, and cutouts.
type Array struct {
	dtype DType
	shape []int

	u8  []uint8
	i16 []int16
	i32 []int32
	i64 []int64
	f32 []float32
	f64 []float64
}

// NewArray allocates a zero-filled array.
func NewArray(dtype DType, shape ...int) *Array {
	a := &Array{dtype: dtype, shape: append([]int(nil), shape...)}
	n := a.Len()

	switch dtype {
	case Uint8:
		a.u8 = make([]uint8, n)
	case Int16:
		a.i16 = make([]int16, n)
	case Int32:
		a.i32 = make([]int32, n)
	case Int64:
		a.i64 = make([]int64, n)
	case Float32:
		a.f32 = make([]float32, n)
	case Float64:
		a.f64 = make([]float64, n)
	}

	return a
}

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Shape returns the dimensions in row-major order. The returned slice must
// not be modified.
func (a *Array) Shape() []int { return a.shape }

// Len returns the total number of elements.
func (a *Array) Len() int {
	n := 1
	for _, d := range a.shape {
		n *= d
	}

	return n
}

// flat converts an index tuple to a flat row-major offset.
func (a *Array) flat(ix ...int) int {
	if len(ix) != len(a.shape) {
		panic(fmt.Sprintf("fits: %d indices for %d-d array", len(ix), len(a.shape)))
	}

	off := 0
	for k, i := range ix {
		if i < 0 {
			i += a.shape[k]
		}

		if i < 0 || i >= a.shape[k] {
			panic(fmt.Sprintf("fits: index %d out of range for axis %d (size %d)", ix[k], k, a.shape[k]))
		}

		off = off*a.shape[k] + i
	}

	return off
}

// Float returns the element at the given indices as a float64. Negative
// indices count from the end of the axis.
func (a *Array) Float(ix ...int) float64 { return a.floatAt(a.flat(ix...)) }

func (a *Array) floatAt(off int) float64 {
	switch a.dtype {
	case Uint8:
		return float64(a.u8[off])
	case Int16:
		return float64(a.i16[off])
	case Int32:
		return float64(a.i32[off])
	case Int64:
		return float64(a.i64[off])
	case Float32:
		return float64(a.f32[off])
	default:
		return a.f64[off]
	}
}

// Int returns the element at the given indices as an int64, truncating
// float elements.
func (a *Array) Int(ix ...int) int64 {
	off := a.flat(ix...)

	switch a.dtype {
	case Uint8:
		return int64(a.u8[off])
	case Int16:
		return int64(a.i16[off])
	case Int32:
		return int64(a.i32[off])
	case Int64:
		return a.i64[off]
	case Float32:
		return int64(a.f32[off])
	default:
		return int64(a.f64[off])
	}
}

// SetFloat stores a value at the given indices, converting to the array's
// element type.
func (a *Array) SetFloat(v float64, ix ...int) {
	off := a.flat(ix...)

	switch a.dtype {
	case Uint8:
		a.u8[off] = uint8(v)
	case Int16:
		a.i16[off] = int16(v)
	case Int32:
		a.i32[off] = int32(v)
	case Int64:
		a.i64[off] = int64(v)
	case Float32:
		a.f32[off] = float32(v)
	default:
		a.f64[off] = v
	}
}

// Reshape returns a view-free copy of the array descriptor with a new
// shape. The element count must be unchanged.
func (a *Array) Reshape(shape ...int) (*Array, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}

	if n != a.Len() {
		return nil, fmt.Errorf("cannot reshape %v into %v", a.shape, shape)
	}

	out := *a
	out.shape = append([]int(nil), shape...)

	return &out, nil
}

// Equal reports whether b has the same dtype, shape, and elements. NaN
// elements compare equal to NaN.
func (a *Array) Equal(b *Array) bool {
	if a.dtype != b.dtype || len(a.shape) != len(b.shape) {
		return false
	}

	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}

	for i, n := 0, a.Len(); i < n; i++ {
		x, y := a.floatAt(i), b.floatAt(i)
		if x != y && !(math.IsNaN(x) && math.IsNaN(y)) {
			return false
		}
	}

	return true
}

// decodeInto fills count elements starting at flat offset dst from the
// big-endian wire bytes in raw. FITS data is always big-endian.
func (a *Array) decodeInto(dst int, raw []byte, count int) {
	switch a.dtype {
	case Uint8:
		copy(a.u8[dst:dst+count], raw)
	case Int16:
		for i := 0; i < count; i++ {
			a.i16[dst+i] = int16(binary.BigEndian.Uint16(raw[i*2:]))
		}
	case Int32:
		for i := 0; i < count; i++ {
			a.i32[dst+i] = int32(binary.BigEndian.Uint32(raw[i*4:]))
		}
	case Int64:
		for i := 0; i < count; i++ {
			a.i64[dst+i] = int64(binary.BigEndian.Uint64(raw[i*8:]))
		}
	case Float32:
		for i := 0; i < count; i++ {
			a.f32[dst+i] = math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:]))
		}
	case Float64:
		for i := 0; i < count; i++ {
			a.f64[dst+i] = math.Float64frombits(binary.BigEndian.Uint64(raw[i*8:]))
		}
	}
}

// encode appends the array's elements in big-endian wire order to buf.
func (a *Array) encode(buf []byte) []byte {
	for i, n := 0, a.Len(); i < n; i++ {
		switch a.dtype {
		case Uint8:
			buf = append(buf, a.u8[i])
		case Int16:
			buf = binary.BigEndian.AppendUint16(buf, uint16(a.i16[i]))
		case Int32:
			buf = binary.BigEndian.AppendUint32(buf, uint32(a.i32[i]))
		case Int64:
			buf = binary.BigEndian.AppendUint64(buf, uint64(a.i64[i]))
		case Float32:
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(a.f32[i]))
		case Float64:
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(a.f64[i]))
		}
	}

	return buf
}

// scaled applies BSCALE/BZERO, promoting to float64. A trivial scaling
// returns the array unchanged.
func (a *Array) scaled(bscale, bzero float64) *Array {
	if bscale == 1 && bzero == 0 {
		return a
	}

	out := NewArray(Float64, a.shape...)
	for i, n := 0, a.Len(); i < n; i++ {
		out.f64[i] = a.floatAt(i)*bscale + bzero
	}

	return out
}

// Slice returns a rectangular subset of the in-memory array using the same
// range semantics as Section.Slice. This lets an eagerly-loaded Array and a
// lazy Section be used interchangeably, e.g. as cutout sources.
func (a *Array) Slice(ranges ...Range) (*Array, error) {
	norm, outShape, err := normalizeRanges(a.shape, ranges)
	if err != nil {
		return nil, err
	}

	out := NewArray(a.dtype, outShape...)

	dst := 0
	iterRanges(norm, a.shape, func(srcOff, count int) {
		a.copyInto(out, dst, srcOff, count)
		dst += count
	})

	return out, nil
}

func (a *Array) copyInto(out *Array, dst, src, count int) {
	switch a.dtype {
	case Uint8:
		copy(out.u8[dst:], a.u8[src:src+count])
	case Int16:
		copy(out.i16[dst:], a.i16[src:src+count])
	case Int32:
		copy(out.i32[dst:], a.i32[src:src+count])
	case Int64:
		copy(out.i64[dst:], a.i64[src:src+count])
	case Float32:
		copy(out.f32[dst:], a.f32[src:src+count])
	case Float64:
		copy(out.f64[dst:], a.f64[src:src+count])
	}
}
