package fits

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildBinTable writes an empty primary plus a three-row EVENTS bintable
// with scalar, array, string, and variable-length columns.
func buildBinTable(t *testing.T) []byte {
	t.Helper()

	names := []string{"alpha", "beta", "gamma"}
	counts := []int32{10, 20, 30}
	fluxes := []float32{1.5, -2.25, 0.5}
	samples := [][]int16{{1, 2}, {3, 4, 5}, {}}

	// row: 8A + J + E + 1PI descriptor
	rowLen := 8 + 4 + 4 + 8

	var rows, heap bytes.Buffer

	for i := 0; i < 3; i++ {
		name := make([]byte, 8)
		for j := range name {
			name[j] = ' '
		}
		copy(name, names[i])
		rows.Write(name)

		var cell [8]byte

		binary.BigEndian.PutUint32(cell[:4], uint32(counts[i]))
		rows.Write(cell[:4])

		binary.BigEndian.PutUint32(cell[:4], math.Float32bits(fluxes[i]))
		rows.Write(cell[:4])

		binary.BigEndian.PutUint32(cell[:4], uint32(len(samples[i])))
		binary.BigEndian.PutUint32(cell[4:], uint32(heap.Len()))
		rows.Write(cell[:8])

		for _, s := range samples[i] {
			var el [2]byte

			binary.BigEndian.PutUint16(el[:], uint16(s))
			heap.Write(el[:])
		}
	}

	hdr := NewHeader()
	hdr.Append(Card{Keyword: "XTENSION", Value: "BINTABLE"})
	hdr.Append(Card{Keyword: "BITPIX", Value: int64(8)})
	hdr.Append(Card{Keyword: "NAXIS", Value: int64(2)})
	hdr.Append(Card{Keyword: "NAXIS1", Value: int64(rowLen)})
	hdr.Append(Card{Keyword: "NAXIS2", Value: int64(3)})
	hdr.Append(Card{Keyword: "PCOUNT", Value: int64(heap.Len())})
	hdr.Append(Card{Keyword: "GCOUNT", Value: int64(1)})
	hdr.Append(Card{Keyword: "TFIELDS", Value: int64(4)})
	hdr.Append(Card{Keyword: "TTYPE1", Value: "NAME"})
	hdr.Append(Card{Keyword: "TFORM1", Value: "8A"})
	hdr.Append(Card{Keyword: "TTYPE2", Value: "COUNTS"})
	hdr.Append(Card{Keyword: "TFORM2", Value: "J"})
	hdr.Append(Card{Keyword: "TTYPE3", Value: "FLUX"})
	hdr.Append(Card{Keyword: "TFORM3", Value: "E"})
	hdr.Append(Card{Keyword: "TTYPE4", Value: "SAMPLES"})
	hdr.Append(Card{Keyword: "TFORM4", Value: "1PI(3)"})
	hdr.Append(Card{Keyword: "EXTNAME", Value: "EVENTS"})

	var buf bytes.Buffer

	require.NoError(t, WriteEmptyPrimary(&buf, nil))

	_, err := hdr.WriteTo(&buf)
	require.NoError(t, err)

	buf.Write(rows.Bytes())
	buf.Write(heap.Bytes())

	pad := (BlockSize - buf.Len()%BlockSize) % BlockSize
	buf.Write(make([]byte, pad))

	return buf.Bytes()
}

func TestBinTableColumns(t *testing.T) {
	raw := buildBinTable(t)

	l, err := NewHDUList(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	hdu, err := l.ByName("EVENTS", 0)
	require.NoError(t, err)

	tbl, ok := hdu.(*BinTableHDU)
	require.True(t, ok)

	assert.Equal(t, KindBinTable, tbl.Kind())
	assert.Equal(t, 3, tbl.NumRows())
	assert.Len(t, tbl.Columns(), 4)
	assert.False(t, tbl.DataRead())

	name, err := tbl.Column("NAME")
	require.NoError(t, err)

	v, err := name.Value(0)
	require.NoError(t, err)
	assert.Equal(t, "alpha", v)

	counts, err := tbl.Column("COUNTS")
	require.NoError(t, err)

	v, err = counts.Value(2)
	require.NoError(t, err)
	assert.Equal(t, int64(30), v)

	// reading a cell marks the table's data as touched
	assert.True(t, tbl.DataRead())

	flux, err := tbl.Column("FLUX")
	require.NoError(t, err)

	all, err := flux.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2.25, 0.5}, all)

	_, err = tbl.Column("MISSING")
	assert.Error(t, err)

	_, err = counts.Value(3)
	assert.Error(t, err)
}

func TestBinTableVarLength(t *testing.T) {
	raw := buildBinTable(t)

	l, err := NewHDUList(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	hdu, err := l.At(1)
	require.NoError(t, err)
	tbl := hdu.(*BinTableHDU)

	col, err := tbl.Column("SAMPLES")
	require.NoError(t, err)
	assert.Equal(t, byte('P'), col.Code)

	v, err := col.Value(1)
	require.NoError(t, err)
	assert.Equal(t, []int16{3, 4, 5}, v)

	v, err = col.Value(2)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestBinTableScaled(t *testing.T) {
	raw := buildBinTable(t)

	l, err := NewHDUList(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	hdu, err := l.At(1)
	require.NoError(t, err)

	// TSCAL/TZERO on an integer column promotes values to float64
	hdu.Header().Set("TSCAL2", 0.5, "")
	hdu.Header().Set("TZERO2", 100.0, "")

	tbl, err := newBinTableHDU(hdu.(*BinTableHDU).hduCore)
	require.NoError(t, err)

	counts, err := tbl.Column("COUNTS")
	require.NoError(t, err)

	v, err := counts.Value(0)
	require.NoError(t, err)
	assert.Equal(t, 105.0, v)
}

// buildASCIITable writes an empty primary plus a two-column ASCII table.
func buildASCIITable(t *testing.T) []byte {
	t.Helper()

	lines := []string{
		"NGC1234   12.50",
		"NGC5678  -03.25",
	}
	rowLen := len(lines[0])

	hdr := NewHeader()
	hdr.Append(Card{Keyword: "XTENSION", Value: "TABLE"})
	hdr.Append(Card{Keyword: "BITPIX", Value: int64(8)})
	hdr.Append(Card{Keyword: "NAXIS", Value: int64(2)})
	hdr.Append(Card{Keyword: "NAXIS1", Value: int64(rowLen)})
	hdr.Append(Card{Keyword: "NAXIS2", Value: int64(2)})
	hdr.Append(Card{Keyword: "PCOUNT", Value: int64(0)})
	hdr.Append(Card{Keyword: "GCOUNT", Value: int64(1)})
	hdr.Append(Card{Keyword: "TFIELDS", Value: int64(2)})
	hdr.Append(Card{Keyword: "TTYPE1", Value: "TARGET"})
	hdr.Append(Card{Keyword: "TFORM1", Value: "A8"})
	hdr.Append(Card{Keyword: "TBCOL1", Value: int64(1)})
	hdr.Append(Card{Keyword: "TTYPE2", Value: "MAG"})
	hdr.Append(Card{Keyword: "TFORM2", Value: "F6.2"})
	hdr.Append(Card{Keyword: "TBCOL2", Value: int64(10)})
	hdr.Append(Card{Keyword: "EXTNAME", Value: "CATALOG"})

	var buf bytes.Buffer

	require.NoError(t, WriteEmptyPrimary(&buf, nil))

	_, err := hdr.WriteTo(&buf)
	require.NoError(t, err)

	for _, line := range lines {
		buf.WriteString(line)
	}

	pad := (BlockSize - buf.Len()%BlockSize) % BlockSize
	buf.Write(make([]byte, pad))

	return buf.Bytes()
}

func TestASCIITable(t *testing.T) {
	raw := buildASCIITable(t)

	l, err := NewHDUList(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	hdu, err := l.ByName("CATALOG", 0)
	require.NoError(t, err)

	tbl, ok := hdu.(*TableHDU)
	require.True(t, ok)

	assert.Equal(t, KindTable, tbl.Kind())
	assert.Equal(t, 2, tbl.NumRows())

	target, err := tbl.Column("TARGET")
	require.NoError(t, err)

	v, err := target.Value(1)
	require.NoError(t, err)
	assert.Equal(t, "NGC5678", v)

	mag, err := tbl.Column("MAG")
	require.NoError(t, err)

	f, err := mag.Float(0)
	require.NoError(t, err)
	assert.Equal(t, 12.5, f)

	f, err = mag.Float(1)
	require.NoError(t, err)
	assert.Equal(t, -3.25, f)
}
