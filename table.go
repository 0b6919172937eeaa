package fits

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
)

// A Column describes one field of a table HDU and decodes cell values on
// demand. Rows are fetched with ReadAt as they are referenced, so touching
// one column of one row of a remote table reads a single row's bytes.
type Column struct {
	Name   string
	Code   byte // TFORM type code
	Repeat int

	offset int // byte offset within a row
	width  int // bytes occupied within a row
	elem   byte
	ascii  bool
	tscal  float64
	tzero  float64

	readRow func(row int) ([]byte, error)
	heap    func(off int64, n int) ([]byte, error)
}

// cell returns the column's raw bytes for a row.
func (c *Column) cell(row int) ([]byte, error) {
	b, err := c.readRow(row)
	if err != nil {
		return nil, err
	}

	return b[c.offset : c.offset+c.width], nil
}

// Value decodes the cell at the given row. Scalar cells decode to bool,
// string, int64, float64, or complex128; repeat counts above one decode to
// the corresponding slice types. Variable-length (P/Q) cells decode to the
// element slice read from the heap.
func (c *Column) Value(row int) (any, error) {
	raw, err := c.cell(row)
	if err != nil {
		return nil, err
	}

	if c.ascii {
		return c.decodeASCII(raw)
	}

	if c.Code == 'P' || c.Code == 'Q' {
		blob, elems, err := c.varData(raw)
		if err != nil {
			return nil, err
		}

		return decodeBinary(c.elem, elems, blob, c.tscal, c.tzero)
	}

	return decodeBinary(c.Code, c.Repeat, raw, c.tscal, c.tzero)
}

// Float returns a scalar numeric cell as a float64.
func (c *Column) Float(row int) (float64, error) {
	v, err := c.Value(row)
	if err != nil {
		return 0, err
	}

	switch v := v.(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}

		return 0, nil
	default:
		return 0, fmt.Errorf("fits: column %q is not scalar numeric (%T)", c.Name, v)
	}
}

// Float64s bulk-reads the whole column as float64 values.
func (c *Column) Float64s() ([]float64, error) {
	var out []float64

	for row := 0; ; row++ {
		v, err := c.Float(row)
		if err != nil {
			if isRowRange(err) {
				return out, nil
			}

			return nil, err
		}

		out = append(out, v)
	}
}

// Bytes returns the raw heap bytes of a variable-length cell, sized by the
// element type. Fixed-width cells return their in-row bytes.
func (c *Column) Bytes(row int) ([]byte, error) {
	raw, err := c.cell(row)
	if err != nil {
		return nil, err
	}

	if c.Code != 'P' && c.Code != 'Q' {
		return raw, nil
	}

	blob, _, err := c.varData(raw)

	return blob, err
}

// varData resolves a P/Q descriptor (element count, heap offset) into the
// heap bytes it points at.
func (c *Column) varData(raw []byte) ([]byte, int, error) {
	var count, off int64

	if c.Code == 'P' {
		count = int64(int32(binary.BigEndian.Uint32(raw)))
		off = int64(int32(binary.BigEndian.Uint32(raw[4:])))
	} else {
		count = int64(binary.BigEndian.Uint64(raw))
		off = int64(binary.BigEndian.Uint64(raw[8:]))
	}

	blob, err := c.heap(off, int(count)*binWidth(c.elem, 1))
	if err != nil {
		return nil, 0, fmt.Errorf("heap read: %w", err)
	}

	return blob, int(count), nil
}

func (c *Column) decodeASCII(raw []byte) (any, error) {
	s := strings.TrimSpace(string(raw))

	switch c.Code {
	case 'A':
		return strings.TrimRight(string(raw), " "), nil
	case 'I':
		if s == "" {
			return int64(0), nil
		}

		return strconv.ParseInt(s, 10, 64)
	case 'F', 'E', 'D':
		if s == "" {
			return float64(0), nil
		}

		s = strings.Replace(s, "D", "E", 1)

		return strconv.ParseFloat(s, 64)
	default:
		return nil, fmt.Errorf("fits: unsupported ASCII table format %q", string(c.Code))
	}
}

// decodeBinary decodes n elements of a bintable type code from big-endian
// bytes. Scalars with a non-trivial TSCAL/TZERO promote to float64.
func decodeBinary(code byte, n int, raw []byte, tscal, tzero float64) (any, error) {
	scale := func(v float64) any {
		if tscal == 1 && tzero == 0 {
			return nil
		}

		return v*tscal + tzero
	}

	switch code {
	case 'A':
		return strings.TrimRight(string(raw[:n]), " "), nil
	case 'L':
		if n == 1 {
			return raw[0] == 'T', nil
		}

		out := make([]bool, n)
		for i := range out {
			out[i] = raw[i] == 'T'
		}

		return out, nil
	case 'X':
		out := make([]bool, n)
		for i := range out {
			out[i] = raw[i/8]&(1<<(7-i%8)) != 0
		}

		return out, nil
	case 'B':
		if n == 1 {
			if s := scale(float64(raw[0])); s != nil {
				return s, nil
			}

			return int64(raw[0]), nil
		}

		return append([]byte(nil), raw[:n]...), nil
	case 'I':
		if n == 1 {
			v := int64(int16(binary.BigEndian.Uint16(raw)))
			if s := scale(float64(v)); s != nil {
				return s, nil
			}

			return v, nil
		}

		out := make([]int16, n)
		for i := range out {
			out[i] = int16(binary.BigEndian.Uint16(raw[i*2:]))
		}

		return out, nil
	case 'J':
		if n == 1 {
			v := int64(int32(binary.BigEndian.Uint32(raw)))
			if s := scale(float64(v)); s != nil {
				return s, nil
			}

			return v, nil
		}

		out := make([]int32, n)
		for i := range out {
			out[i] = int32(binary.BigEndian.Uint32(raw[i*4:]))
		}

		return out, nil
	case 'K':
		if n == 1 {
			v := int64(binary.BigEndian.Uint64(raw))
			if s := scale(float64(v)); s != nil {
				return s, nil
			}

			return v, nil
		}

		out := make([]int64, n)
		for i := range out {
			out[i] = int64(binary.BigEndian.Uint64(raw[i*8:]))
		}

		return out, nil
	case 'E':
		if n == 1 {
			v := float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))
			if s := scale(v); s != nil {
				return s, nil
			}

			return v, nil
		}

		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:]))
		}

		return out, nil
	case 'D':
		if n == 1 {
			v := math.Float64frombits(binary.BigEndian.Uint64(raw))
			if s := scale(v); s != nil {
				return s, nil
			}

			return v, nil
		}

		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.BigEndian.Uint64(raw[i*8:]))
		}

		return out, nil
	case 'C':
		out := make([]complex64, n)
		for i := range out {
			re := math.Float32frombits(binary.BigEndian.Uint32(raw[i*8:]))
			im := math.Float32frombits(binary.BigEndian.Uint32(raw[i*8+4:]))
			out[i] = complex(re, im)
		}

		if n == 1 {
			return out[0], nil
		}

		return out, nil
	case 'M':
		out := make([]complex128, n)
		for i := range out {
			re := math.Float64frombits(binary.BigEndian.Uint64(raw[i*16:]))
			im := math.Float64frombits(binary.BigEndian.Uint64(raw[i*16+8:]))
			out[i] = complex(re, im)
		}

		if n == 1 {
			return out[0], nil
		}

		return out, nil
	default:
		return nil, fmt.Errorf("fits: unsupported binary table format %q", string(code))
	}
}

// binWidth returns the in-row byte width of a bintable type code.
func binWidth(code byte, repeat int) int {
	switch code {
	case 'L', 'B', 'A':
		return repeat
	case 'X':
		return (repeat + 7) / 8
	case 'I':
		return 2 * repeat
	case 'J', 'E':
		return 4 * repeat
	case 'K', 'D', 'C':
		return 8 * repeat
	case 'M':
		return 16 * repeat
	case 'P':
		return 8 * repeat
	case 'Q':
		return 16 * repeat
	default:
		return 0
	}
}

// A BinTableHDU is a BINTABLE extension. Cell data is decoded lazily,
// row by row.
type BinTableHDU struct {
	hduCore

	rowLen  int
	nrows   int
	heapOff int64
	cols    []*Column
	byName  map[string]*Column

	touched atomic.Bool
}

// NumRows returns NAXIS2.
func (t *BinTableHDU) NumRows() int { return t.nrows }

// Columns returns the table's columns in field order.
func (t *BinTableHDU) Columns() []*Column { return t.cols }

// Column looks a column up by its TTYPE name.
func (t *BinTableHDU) Column(name string) (*Column, error) {
	c, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("fits: table %q has no column %q", t.name, name)
	}

	return c, nil
}

// ColumnAt returns the i'th column.
func (t *BinTableHDU) ColumnAt(i int) (*Column, error) {
	if i < 0 || i >= len(t.cols) {
		return nil, fmt.Errorf("fits: column index %d out of range", i)
	}

	return t.cols[i], nil
}

// DataRead reports whether any cell has been read.
func (t *BinTableHDU) DataRead() bool { return t.touched.Load() }

type rowRangeError struct{ row, nrows int }

func (e rowRangeError) Error() string {
	return fmt.Sprintf("fits: row %d out of range (table has %d rows)", e.row, e.nrows)
}

func isRowRange(err error) bool {
	var e rowRangeError

	return errors.As(err, &e)
}

func (t *BinTableHDU) readRow(row int) ([]byte, error) {
	if row < 0 || row >= t.nrows {
		return nil, rowRangeError{row, t.nrows}
	}

	t.touched.Store(true)

	buf := make([]byte, t.rowLen)
	if _, err := t.r.ReadAt(buf, t.dataOff+int64(row)*int64(t.rowLen)); err != nil {
		return nil, fmt.Errorf("read row %d of %q: %w", row, t.name, err)
	}

	return buf, nil
}

func (t *BinTableHDU) readHeap(off int64, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}

	t.touched.Store(true)

	buf := make([]byte, n)
	if _, err := t.r.ReadAt(buf, t.heapOff+off); err != nil {
		return nil, fmt.Errorf("read heap of %q: %w", t.name, err)
	}

	return buf, nil
}

func newBinTableHDU(core hduCore) (*BinTableHDU, error) {
	hdr := core.hdr

	t := &BinTableHDU{
		hduCore: core,
		rowLen:  int(hdr.IntOr("NAXIS1", 0)),
		nrows:   int(hdr.IntOr("NAXIS2", 0)),
		byName:  map[string]*Column{},
	}

	tableLen := int64(t.rowLen) * int64(t.nrows)
	t.heapOff = core.dataOff + hdr.IntOr("THEAP", tableLen)

	tfields := int(hdr.IntOr("TFIELDS", 0))
	offset := 0

	for i := 1; i <= tfields; i++ {
		form, ok := hdr.Str(axisKeyword("TFORM", i))
		if !ok {
			return nil, fmt.Errorf("fits: table %q lacks TFORM%d", core.name, i)
		}

		repeat, code, elem, err := parseBinTForm(strings.TrimSpace(form))
		if err != nil {
			return nil, fmt.Errorf("fits: table %q TFORM%d: %w", core.name, i, err)
		}

		name, _ := hdr.Str(axisKeyword("TTYPE", i))
		name = strings.TrimSpace(name)

		col := &Column{
			Name:    name,
			Code:    code,
			Repeat:  repeat,
			offset:  offset,
			width:   binWidth(code, repeat),
			elem:    elem,
			tscal:   hdr.FloatOr(axisKeyword("TSCAL", i), 1),
			tzero:   hdr.FloatOr(axisKeyword("TZERO", i), 0),
			readRow: t.readRow,
			heap:    t.readHeap,
		}

		offset += col.width
		t.cols = append(t.cols, col)

		if name != "" {
			t.byName[name] = col
		}
	}

	if offset > t.rowLen {
		return nil, fmt.Errorf("fits: table %q fields overrun NAXIS1 (%d > %d)", core.name, offset, t.rowLen)
	}

	return t, nil
}

// parseBinTForm splits a bintable TFORM such as "E", "13A", "1PB(512)"
// into repeat, type code, and (for P/Q) the element type code.
func parseBinTForm(form string) (repeat int, code, elem byte, err error) {
	j := 0
	for j < len(form) && form[j] >= '0' && form[j] <= '9' {
		j++
	}

	repeat = 1

	if j > 0 {
		r, err := strconv.Atoi(form[:j])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("bad repeat in %q", form)
		}

		repeat = r
	}

	if j >= len(form) {
		return 0, 0, 0, fmt.Errorf("missing type code in %q", form)
	}

	code = form[j]

	if code == 'P' || code == 'Q' {
		if j+1 >= len(form) {
			return 0, 0, 0, fmt.Errorf("missing element type in %q", form)
		}

		elem = form[j+1]
	}

	return repeat, code, elem, nil
}

// A TableHDU is an ASCII TABLE extension.
type TableHDU struct {
	hduCore

	rowLen int
	nrows  int
	cols   []*Column
	byName map[string]*Column

	touched atomic.Bool
}

// NumRows returns NAXIS2.
func (t *TableHDU) NumRows() int { return t.nrows }

// Columns returns the table's columns in field order.
func (t *TableHDU) Columns() []*Column { return t.cols }

// Column looks a column up by its TTYPE name.
func (t *TableHDU) Column(name string) (*Column, error) {
	c, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("fits: table %q has no column %q", t.name, name)
	}

	return c, nil
}

// DataRead reports whether any cell has been read.
func (t *TableHDU) DataRead() bool { return t.touched.Load() }

func (t *TableHDU) readRow(row int) ([]byte, error) {
	if row < 0 || row >= t.nrows {
		return nil, rowRangeError{row, t.nrows}
	}

	t.touched.Store(true)

	buf := make([]byte, t.rowLen)
	if _, err := t.r.ReadAt(buf, t.dataOff+int64(row)*int64(t.rowLen)); err != nil {
		return nil, fmt.Errorf("read row %d of %q: %w", row, t.name, err)
	}

	return buf, nil
}

func newTableHDU(core hduCore) (*TableHDU, error) {
	hdr := core.hdr

	t := &TableHDU{
		hduCore: core,
		rowLen:  int(hdr.IntOr("NAXIS1", 0)),
		nrows:   int(hdr.IntOr("NAXIS2", 0)),
		byName:  map[string]*Column{},
	}

	tfields := int(hdr.IntOr("TFIELDS", 0))

	for i := 1; i <= tfields; i++ {
		form, ok := hdr.Str(axisKeyword("TFORM", i))
		if !ok {
			return nil, fmt.Errorf("fits: table %q lacks TFORM%d", core.name, i)
		}

		form = strings.TrimSpace(form)

		tbcol, ok := hdr.Int(axisKeyword("TBCOL", i))
		if !ok {
			return nil, fmt.Errorf("fits: table %q lacks TBCOL%d", core.name, i)
		}

		width, err := asciiWidth(form)
		if err != nil {
			return nil, fmt.Errorf("fits: table %q TFORM%d: %w", core.name, i, err)
		}

		name, _ := hdr.Str(axisKeyword("TTYPE", i))
		name = strings.TrimSpace(name)

		col := &Column{
			Name:    name,
			Code:    form[0],
			Repeat:  1,
			offset:  int(tbcol) - 1, // TBCOL is 1-based
			width:   width,
			ascii:   true,
			tscal:   1,
			readRow: t.readRow,
		}

		t.cols = append(t.cols, col)

		if name != "" {
			t.byName[name] = col
		}
	}

	return t, nil
}

// asciiWidth extracts the field width from an ASCII TFORM such as "A8",
// "I12", or "F10.4".
func asciiWidth(form string) (int, error) {
	if len(form) < 2 {
		return 0, fmt.Errorf("bad format %q", form)
	}

	w := form[1:]
	if j := strings.Index(w, "."); j != -1 {
		w = w[:j]
	}

	n, err := strconv.Atoi(w)
	if err != nil {
		return 0, fmt.Errorf("bad width in %q", form)
	}

	return n, nil
}
