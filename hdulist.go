package fits

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// An HDUList is the ordered set of HDUs in an open FITS file. Opened
// lazily (the default), headers are parsed as HDUs are referenced and data
// is read only when an HDU's Data, Section, or table columns are touched.
type HDUList struct {
	r      io.ReaderAt
	size   int64
	closer io.Closer
	url    string

	mu       sync.Mutex
	hdus     []HDU
	nextOff  int64
	complete bool
}

// NewHDUList opens a FITS file from any io.ReaderAt. The reader stays
// owned by the caller; Close on the returned list is a no-op.
func NewHDUList(r io.ReaderAt, size int64) (*HDUList, error) {
	l := &HDUList{r: r, size: size}

	// the primary header is always validated up front
	if _, err := l.At(0); err != nil {
		return nil, err
	}

	return l, nil
}

// scanTo parses headers until index i exists or the file ends. Callers
// must hold l.mu.
func (l *HDUList) scanTo(i int) error {
	for !l.complete && (i < 0 || len(l.hdus) <= i) {
		if l.nextOff >= l.size {
			l.complete = true

			break
		}

		hdu, next, err := scanHDU(l.r, l.nextOff, len(l.hdus) == 0)
		if err != nil {
			if errors.Is(err, io.EOF) {
				l.complete = true

				break
			}

			return err
		}

		l.hdus = append(l.hdus, hdu)
		l.nextOff = next
	}

	return nil
}

// At returns the i'th HDU, parsing headers forward as needed.
func (l *HDUList) At(i int) (HDU, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.scanTo(i); err != nil {
		return nil, err
	}

	if i < 0 || i >= len(l.hdus) {
		return nil, fmt.Errorf("fits: HDU index %d out of range", i)
	}

	return l.hdus[i], nil
}

// Primary returns HDU 0 as an image HDU.
func (l *HDUList) Primary() (*ImageHDU, error) {
	hdu, err := l.At(0)
	if err != nil {
		return nil, err
	}

	img, ok := hdu.(*ImageHDU)
	if !ok {
		return nil, fmt.Errorf("fits: primary HDU has kind %v", hdu.Kind())
	}

	return img, nil
}

// ByName returns the first HDU whose EXTNAME matches name and, when ver is
// nonzero, whose EXTVER matches ver.
func (l *HDUList) ByName(name string, ver int) (HDU, error) {
	for i := 0; ; i++ {
		hdu, err := l.At(i)
		if err != nil {
			return nil, fmt.Errorf("fits: no HDU named %q", name)
		}

		if hdu.Name() == name && (ver == 0 || hdu.Version() == ver) {
			return hdu, nil
		}
	}
}

// Image returns the i'th HDU as an image HDU.
func (l *HDUList) Image(i int) (*ImageHDU, error) {
	hdu, err := l.At(i)
	if err != nil {
		return nil, err
	}

	img, ok := hdu.(*ImageHDU)
	if !ok {
		return nil, fmt.Errorf("fits: HDU %d has kind %v, not an image", i, hdu.Kind())
	}

	return img, nil
}

// Section returns the lazy subset accessor of the i'th HDU. Compressed
// image HDUs store tiles rather than a flat pixel grid, so they have no
// section support and return ErrNoSection.
func (l *HDUList) Section(i int) (*Section, error) {
	hdu, err := l.At(i)
	if err != nil {
		return nil, err
	}

	switch h := hdu.(type) {
	case *ImageHDU:
		return h.Section(), nil
	case *CompressedImageHDU:
		return nil, fmt.Errorf("%w: HDU %d is a compressed image", ErrNoSection, i)
	default:
		return nil, fmt.Errorf("%w: HDU %d has kind %v", ErrNoSection, i, hdu.Kind())
	}
}

// Len returns the number of HDUs, scanning the remainder of the file if
// necessary.
func (l *HDUList) Len() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.scanTo(-1); err != nil {
		return 0, err
	}

	return len(l.hdus), nil
}

// loadAll forces a full scan and materializes every HDU's data. Used by
// the eager open mode.
func (l *HDUList) loadAll() error {
	n, err := l.Len()
	if err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		hdu, err := l.At(i)
		if err != nil {
			return err
		}

		switch h := hdu.(type) {
		case *ImageHDU:
			if h.dataSize > 0 {
				if _, err := h.Data(); err != nil {
					return err
				}
			}
		case *CompressedImageHDU:
			if _, err := h.Data(); err != nil {
				return err
			}
		}
	}

	return nil
}

// partiallyRead reports whether any HDU's data is still unread, or the
// file has not been fully scanned.
func (l *HDUList) partiallyRead() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.complete {
		return true
	}

	for _, hdu := range l.hdus {
		if !hdu.DataRead() {
			return true
		}
	}

	return false
}

// URL returns the location the list was opened from, if it was opened
// through a remote source.
func (l *HDUList) URL() string { return l.url }

// String summarizes the scanned HDUs. While data remains unread the
// summary is marked "partially read".
func (l *HDUList) String() string {
	partial := l.partiallyRead()

	l.mu.Lock()
	defer l.mu.Unlock()

	var sb strings.Builder

	fmt.Fprintf(&sb, "HDUList(%d HDUs", len(l.hdus))

	if !l.complete {
		sb.WriteString("+")
	}

	if partial {
		sb.WriteString(", partially read")
	}

	sb.WriteString(")\n")

	for i, hdu := range l.hdus {
		fmt.Fprintf(&sb, "[%d] %-10s %-9s %s\n", i, hdu.Name(), hdu.Kind(), hduDims(hdu))
	}

	return sb.String()
}

func hduDims(hdu HDU) string {
	switch h := hdu.(type) {
	case *ImageHDU:
		if len(h.shape) == 0 {
			return "()"
		}

		return fmt.Sprintf("%v %s", h.shape, h.dtype)
	case *CompressedImageHDU:
		return fmt.Sprintf("%v %s [%s]", h.zshape, h.zdtype, h.cmptype)
	case *BinTableHDU:
		return fmt.Sprintf("%d rows x %d cols", h.nrows, len(h.cols))
	case *TableHDU:
		return fmt.Sprintf("%d rows x %d cols", h.nrows, len(h.cols))
	default:
		return ""
	}
}

// Close releases the underlying source, if the list owns one.
func (l *HDUList) Close() error {
	if l.closer == nil {
		return nil
	}

	return l.closer.Close()
}
