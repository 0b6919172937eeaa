package fits

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteImageRoundTrip(t *testing.T) {
	for _, dtype := range []DType{Uint8, Int16, Int32, Int64, Float32, Float64} {
		t.Run(dtype.String(), func(t *testing.T) {
			img := arange(dtype, 3, 5)

			var buf bytes.Buffer

			require.NoError(t, WriteImage(&buf, nil, img))
			assert.Equal(t, 0, buf.Len()%BlockSize)

			l, err := NewHDUList(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
			require.NoError(t, err)

			prim, err := l.Primary()
			require.NoError(t, err)
			assert.Equal(t, dtype, prim.DType())

			data, err := prim.Data()
			require.NoError(t, err)
			assert.True(t, data.Equal(img))
		})
	}
}

func TestWriteImageFloatSpecials(t *testing.T) {
	img := NewArray(Float32, 2, 2)
	img.SetFloat(math.NaN(), 0, 0)
	img.SetFloat(1.5, 0, 1)
	img.SetFloat(-2.25, 1, 0)
	img.SetFloat(math.Inf(1), 1, 1)

	var buf bytes.Buffer

	require.NoError(t, WriteImage(&buf, nil, img))

	l, err := NewHDUList(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	prim, err := l.Primary()
	require.NoError(t, err)

	data, err := prim.Data()
	require.NoError(t, err)
	assert.True(t, data.Equal(img))
}

func TestWriteImageDropsStructuralCards(t *testing.T) {
	hdr := NewHeader()
	hdr.Append(Card{Keyword: "BITPIX", Value: int64(-64)}) // lies; must be ignored
	hdr.Append(Card{Keyword: "NAXIS1", Value: int64(999)})
	hdr.Append(Card{Keyword: "OBJECT", Value: "M 31"})

	var buf bytes.Buffer

	require.NoError(t, WriteImage(&buf, hdr, arange(Int16, 2, 3)))

	l, err := NewHDUList(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	prim, err := l.Primary()
	require.NoError(t, err)

	assert.Equal(t, 16, prim.Header().BitPix())
	assert.Equal(t, []int{2, 3}, prim.Shape())

	obj, ok := prim.Header().Str("OBJECT")
	assert.True(t, ok)
	assert.Equal(t, "M 31", obj)
}

func TestWriteEmptyPrimary(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteEmptyPrimary(&buf, nil))
	assert.Equal(t, BlockSize, buf.Len())

	l, err := NewHDUList(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	prim, err := l.Primary()
	require.NoError(t, err)
	assert.Empty(t, prim.Shape())
	assert.True(t, prim.DataRead())

	_, err = prim.Data()
	assert.Error(t, err)
}
