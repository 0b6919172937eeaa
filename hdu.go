package fits

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Kind identifies the type of an HDU.
type Kind int

const (
	KindPrimary Kind = iota
	KindImage
	KindTable
	KindBinTable
	KindCompressedImage
)

func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindImage:
		return "image"
	case KindTable:
		return "table"
	case KindBinTable:
		return "bintable"
	case KindCompressedImage:
		return "compimage"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinel errors for unsupported data representations.
var (
	// ErrNoSection is returned when a subset read is requested from an HDU
	// that does not support it. Compressed images store tiles, not a flat
	// pixel grid, so a rectangular byte-range read would return compressed
	// bytes rather than pixels.
	ErrNoSection = errors.New("fits: HDU does not support section access")

	// ErrUnsupportedCompression is returned for tile compression schemes
	// other than GZIP_1.
	ErrUnsupportedCompression = errors.New("fits: unsupported tile compression")
)

// An HDU is one header-plus-data unit of a FITS file.
type HDU interface {
	Header() *Header
	Name() string
	Version() int
	Kind() Kind

	// DataRead reports whether the HDU's data has been materialized.
	DataRead() bool
}

// hduCore carries the bookkeeping shared by all HDU kinds.
type hduCore struct {
	hdr      *Header
	r        io.ReaderAt
	dataOff  int64
	dataSize int64
	name     string
	ver      int
	kind     Kind
}

func (h *hduCore) Header() *Header { return h.hdr }
func (h *hduCore) Name() string    { return h.name }
func (h *hduCore) Version() int    { return h.ver }
func (h *hduCore) Kind() Kind      { return h.kind }

// An ImageHDU is a primary HDU or IMAGE extension holding an N-dimensional
// array. Data is not read until Data or Section.Slice is called.
type ImageHDU struct {
	hduCore

	shape  []int
	dtype  DType
	bscale float64
	bzero  float64

	mu   sync.Mutex
	data *Array
}

// Shape returns the data dimensions in row-major order. A dataless HDU
// (NAXIS=0) returns an empty shape.
func (h *ImageHDU) Shape() []int { return h.shape }

// DType returns the stored element type.
func (h *ImageHDU) DType() DType { return h.dtype }

// DataRead reports whether the full array has been loaded.
func (h *ImageHDU) DataRead() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.data != nil || h.dataSize == 0
}

// Data reads and caches the full array, applying BSCALE/BZERO scaling.
func (h *ImageHDU) Data() (*Array, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.data != nil {
		return h.data, nil
	}

	if h.dataSize == 0 {
		return nil, fmt.Errorf("fits: HDU %q has no data", h.name)
	}

	raw := make([]byte, h.dataSize)
	if _, err := h.r.ReadAt(raw, h.dataOff); err != nil {
		return nil, fmt.Errorf("read data of %q: %w", h.name, err)
	}

	arr := NewArray(h.dtype, h.shape...)
	arr.decodeInto(0, raw, arr.Len())

	h.data = arr.scaled(h.bscale, h.bzero)

	return h.data, nil
}

// Section returns a lazy subset accessor for the image. Unlike Data, a
// section read fetches only the byte ranges covering the requested subset.
func (h *ImageHDU) Section() *Section { return &Section{hdu: h} }

// A CompressedImageHDU is a BINTABLE extension with ZIMAGE=T, storing a
// tile-compressed image. It deliberately has no Section method: subsets
// cannot be read without decompressing, so only full Data loads are
// offered.
type CompressedImageHDU struct {
	hduCore

	tbl *BinTableHDU

	zshape  []int // row-major, like Header.Shape
	ztile   []int // row-major tile dims
	zdtype  DType
	cmptype string

	mu   sync.Mutex
	data *Array
}

// Shape returns the dimensions of the decompressed image in row-major
// order.
func (h *CompressedImageHDU) Shape() []int { return h.zshape }

// CompressionType returns the ZCMPTYPE value, e.g. "GZIP_1" or "RICE_1".
func (h *CompressedImageHDU) CompressionType() string { return h.cmptype }

// DataRead reports whether the image has been decompressed.
func (h *CompressedImageHDU) DataRead() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.data != nil
}

// Data decompresses and caches the full image. Only GZIP_1 tiles are
// supported; other schemes return ErrUnsupportedCompression.
func (h *CompressedImageHDU) Data() (*Array, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.data != nil {
		return h.data, nil
	}

	if h.cmptype != "GZIP_1" {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedCompression, h.cmptype)
	}

	col, err := h.tbl.Column("COMPRESSED_DATA")
	if err != nil {
		return nil, fmt.Errorf("compressed image %q: %w", h.name, err)
	}

	out := NewArray(h.zdtype, h.zshape...)

	nrows := h.tbl.NumRows()
	for row := 0; row < nrows; row++ {
		blob, err := col.Bytes(row)
		if err != nil {
			return nil, fmt.Errorf("compressed image %q tile %d: %w", h.name, row, err)
		}

		if err := h.placeTile(out, row, blob); err != nil {
			return nil, fmt.Errorf("compressed image %q tile %d: %w", h.name, row, err)
		}
	}

	bscale := h.hdr.FloatOr("BSCALE", 1)
	bzero := h.hdr.FloatOr("BZERO", 0)

	h.data = out.scaled(bscale, bzero)

	return h.data, nil
}

// placeTile gunzips one tile and scatters it into the output array. Tiles
// are ordered with the fastest FITS axis varying first, and edge tiles are
// clipped to the image bounds.
func (h *CompressedImageHDU) placeTile(out *Array, tileIx int, blob []byte) error {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("gunzip: %w", err)
	}

	raw, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("gunzip: %w", err)
	}

	if err := zr.Close(); err != nil {
		return fmt.Errorf("gunzip: %w", err)
	}

	n := len(h.zshape)

	// tile counts per axis, row-major
	tn := make([]int, n)
	for i := range tn {
		tn[i] = (h.zshape[i] + h.ztile[i] - 1) / h.ztile[i]
	}

	// decompose the tile index, last (fastest) axis first
	origin := make([]int, n)

	t := tileIx
	for i := n - 1; i >= 0; i-- {
		origin[i] = (t % tn[i]) * h.ztile[i]
		t /= tn[i]
	}

	if t != 0 {
		return fmt.Errorf("tile index %d out of range", tileIx)
	}

	// clipped tile extent
	ext := make([]int, n)
	count := 1

	for i := range ext {
		ext[i] = h.ztile[i]
		if origin[i]+ext[i] > h.zshape[i] {
			ext[i] = h.zshape[i] - origin[i]
		}

		count *= ext[i]
	}

	esz := h.zdtype.Size()
	if len(raw) < count*esz {
		return fmt.Errorf("tile has %d bytes, want %d", len(raw), count*esz)
	}

	tile := NewArray(h.zdtype, ext...)
	tile.decodeInto(0, raw, count)

	// scatter by contiguous rows along the fastest axis
	norm := make([]axisRange, n)
	for i := range norm {
		norm[i] = axisRange{start: origin[i], stop: origin[i] + ext[i]}
	}

	src := 0
	iterRanges(norm, h.zshape, func(offset, run int) {
		tile.copyFlat(out, offset, src, run)
		src += run
	})

	return nil
}

// copyFlat copies count elements from a's flat offset src to out's flat
// offset dst. Both arrays must share a dtype.
func (a *Array) copyFlat(out *Array, dst, src, count int) {
	a.copyInto(out, dst, src, count)
}

// scanHDU parses one HDU starting at off and returns it along with the
// offset of the next HDU. io.EOF is returned (with a nil HDU) at the end
// of the file.
func scanHDU(r io.ReaderAt, off int64, primary bool) (HDU, int64, error) {
	hdr, hlen, err := parseHeader(r, off)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, io.EOF
		}

		return nil, 0, err
	}

	if primary {
		if simple, ok := hdr.Bool("SIMPLE"); !ok {
			return nil, 0, errors.New("fits: primary header lacks SIMPLE card")
		} else if !simple {
			return nil, 0, errors.New("fits: SIMPLE=F files are not supported")
		}
	} else if !hdr.Has("XTENSION") {
		return nil, 0, errors.New("fits: extension header lacks XTENSION card")
	}

	dtype, err := dtypeFromBitpix(hdr.BitPix())
	if err != nil {
		return nil, 0, err
	}

	dataSize := dataSizeOf(hdr, dtype)
	padded := (dataSize + BlockSize - 1) / BlockSize * BlockSize

	core := hduCore{
		hdr:      hdr,
		r:        r,
		dataOff:  off + hlen,
		dataSize: dataSize,
		name:     extName(hdr, primary),
		ver:      int(hdr.IntOr("EXTVER", 1)),
	}

	next := off + hlen + padded

	xt, _ := hdr.Str("XTENSION")
	xt = strings.TrimSpace(xt)

	switch {
	case primary || xt == "IMAGE":
		core.kind = KindImage
		if primary {
			core.kind = KindPrimary
		}

		h := &ImageHDU{
			hduCore: core,
			shape:   hdr.Shape(),
			dtype:   dtype,
			bscale:  hdr.FloatOr("BSCALE", 1),
			bzero:   hdr.FloatOr("BZERO", 0),
		}

		return h, next, nil
	case xt == "TABLE":
		core.kind = KindTable

		h, err := newTableHDU(core)

		return h, next, err
	case xt == "BINTABLE":
		core.kind = KindBinTable

		tbl, err := newBinTableHDU(core)
		if err != nil {
			return nil, 0, err
		}

		if z, _ := hdr.Bool("ZIMAGE"); z {
			h, err := newCompressedImageHDU(tbl)

			return h, next, err
		}

		return tbl, next, nil
	default:
		return nil, 0, fmt.Errorf("fits: unknown extension type %q", xt)
	}
}

// dataSizeOf computes the data segment size in bytes before padding:
// |BITPIX|/8 x GCOUNT x (PCOUNT + NAXIS1 x ... x NAXISn).
func dataSizeOf(hdr *Header, dtype DType) int64 {
	naxis := hdr.NAxis()
	if naxis == 0 {
		return 0
	}

	prod := int64(1)

	for i := 1; i <= naxis; i++ {
		n := hdr.IntOr(axisKeyword("NAXIS", i), 0)
		if n == 0 {
			return 0
		}

		prod *= n
	}

	gcount := hdr.IntOr("GCOUNT", 1)
	pcount := hdr.IntOr("PCOUNT", 0)

	return int64(dtype.Size()) * gcount * (pcount + prod)
}

func extName(hdr *Header, primary bool) string {
	if name, ok := hdr.Str("EXTNAME"); ok {
		return strings.TrimSpace(name)
	}

	if primary {
		return "PRIMARY"
	}

	return ""
}

// newCompressedImageHDU reads the ZIMAGE reserved keywords off an already
// parsed bintable.
func newCompressedImageHDU(tbl *BinTableHDU) (*CompressedImageHDU, error) {
	hdr := tbl.hdr

	znaxis := int(hdr.IntOr("ZNAXIS", 0))
	if znaxis == 0 {
		return nil, errors.New("fits: compressed image lacks ZNAXIS")
	}

	zdtype, err := dtypeFromBitpix(int(hdr.IntOr("ZBITPIX", 0)))
	if err != nil {
		return nil, fmt.Errorf("fits: compressed image: %w", err)
	}

	// row-major like Header.Shape; default tiling is one image row per tile
	zshape := make([]int, znaxis)
	ztile := make([]int, znaxis)

	for i := 1; i <= znaxis; i++ {
		zn := int(hdr.IntOr(axisKeyword("ZNAXIS", i), 0))
		zshape[znaxis-i] = zn

		def := 1
		if i == 1 {
			def = zn
		}

		ztile[znaxis-i] = int(hdr.IntOr(axisKeyword("ZTILE", i), int64(def)))
	}

	cmptype, _ := hdr.Str("ZCMPTYPE")

	core := tbl.hduCore
	core.kind = KindCompressedImage

	return &CompressedImageHDU{
		hduCore: core,
		tbl:     tbl,
		zshape:  zshape,
		ztile:   ztile,
		zdtype:  zdtype,
		cmptype: strings.TrimSpace(cmptype),
	}, nil
}
