package fits

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cardImage(s string) string {
	return s + strings.Repeat(" ", cardSize-len(s))
}

func TestParseCard(t *testing.T) {
	testdata := []struct {
		image   string
		keyword string
		value   any
		comment string
	}{
		{"SIMPLE  =                    T / conforms to FITS standard", "SIMPLE", true, "conforms to FITS standard"},
		{"EXTEND  =                    F", "EXTEND", false, ""},
		{"BITPIX  =                  -32 / array data type", "BITPIX", int64(-32), "array data type"},
		{"NAXIS1  =                 2048", "NAXIS1", int64(2048), ""},
		{"BSCALE  =              1.0E-03", "BSCALE", 1e-3, ""},
		{"CRVAL1  =          5.63056810618", "CRVAL1", 5.63056810618, ""},
		{"DEXP    =              1.25D+02 / fortran exponent", "DEXP", 125.0, "fortran exponent"},
		{"GAIN    =             (1.5,2.5)", "GAIN", complex(1.5, 2.5), ""},
		{"EXTNAME = 'SCI     '           / extension name", "EXTNAME", "SCI", "extension name"},
		{"OBJECT  = 'O''NEIL''S STAR'", "OBJECT", "O'NEIL'S STAR", ""},
		{"COMMENT   FITS (Flexible Image Transport System)", "COMMENT", nil, "FITS (Flexible Image Transport System)"},
		{"HISTORY   reprocessed 2004-02-05", "HISTORY", nil, "reprocessed 2004-02-05"},
		{"END", "END", nil, ""},
	}

	for _, d := range testdata {
		c, err := parseCard(cardImage(d.image))
		require.NoError(t, err, d.image)

		assert.Equal(t, d.keyword, c.Keyword, d.image)
		assert.Equal(t, d.value, c.Value, d.image)
		assert.Equal(t, d.comment, c.Comment, d.image)
	}
}

func TestParseCardErrors(t *testing.T) {
	_, err := parseCard(cardImage("BADNUM  = 12q4"))
	assert.Error(t, err)

	_, err = parseCard(cardImage("BADSTR  = 'no closing quote"))
	assert.Error(t, err)
}

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader()
	h.Append(Card{Keyword: "SIMPLE", Value: true, Comment: "conforms to FITS standard"})
	h.Append(Card{Keyword: "BITPIX", Value: int64(16)})
	h.Append(Card{Keyword: "NAXIS", Value: int64(2)})
	h.Append(Card{Keyword: "NAXIS1", Value: int64(100)})
	h.Append(Card{Keyword: "NAXIS2", Value: int64(50)})
	h.Append(Card{Keyword: "BSCALE", Value: 0.003})
	h.Append(Card{Keyword: "OBJECT", Value: "M 31", Comment: "target"})
	h.Append(Card{Keyword: "HIERARCH", Value: "it's a quote"})
	h.Append(Card{Keyword: "COMMENT", Comment: "free text"})

	var buf bytes.Buffer

	n, err := h.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(BlockSize), n)
	assert.Equal(t, BlockSize, buf.Len())

	got, hlen, err := parseHeader(bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(BlockSize), hlen)

	for _, c := range h.Cards() {
		rc, ok := got.Get(c.Keyword)
		require.True(t, ok, c.Keyword)
		assert.Equal(t, c.Value, rc.Value, c.Keyword)
		assert.Equal(t, c.Comment, rc.Comment, c.Keyword)
	}

	// END is appended on write
	assert.True(t, got.Has("END"))
}

func TestHeaderMultiBlock(t *testing.T) {
	h := NewHeader()
	for i := 0; i < cardsPerBlock+5; i++ {
		h.Append(Card{Keyword: axisKeyword("KEY", i), Value: int64(i)})
	}

	var buf bytes.Buffer

	_, err := h.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2*BlockSize, buf.Len())

	got, hlen, err := parseHeader(bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2*BlockSize), hlen)

	v, ok := got.Int("KEY40")
	assert.True(t, ok)
	assert.Equal(t, int64(40), v)
}

func TestHeaderAccessors(t *testing.T) {
	h := NewHeader()
	h.Append(Card{Keyword: "BITPIX", Value: int64(-64)})
	h.Append(Card{Keyword: "NAXIS", Value: int64(3)})
	h.Append(Card{Keyword: "NAXIS1", Value: int64(11)})
	h.Append(Card{Keyword: "NAXIS2", Value: int64(10)})
	h.Append(Card{Keyword: "NAXIS3", Value: int64(7)})
	h.Append(Card{Keyword: "EXPTIME", Value: 30.5})

	assert.Equal(t, -64, h.BitPix())
	assert.Equal(t, 3, h.NAxis())

	// slowest axis first, the reverse of NAXISn order
	assert.Equal(t, []int{7, 10, 11}, h.Shape())

	f, ok := h.Float("NAXIS1")
	assert.True(t, ok)
	assert.Equal(t, 11.0, f)

	assert.Equal(t, 30.5, h.FloatOr("EXPTIME", 0))
	assert.Equal(t, int64(99), h.IntOr("MISSING", 99))

	h.Set("EXPTIME", 60.0, "updated")
	assert.Equal(t, 60.0, h.FloatOr("EXPTIME", 0))
	assert.Equal(t, 6, h.Len())
}
