package fits

import (
	"fmt"
)

// A Range selects part of one axis for a section read. The zero Range
// selects the whole axis. Start is inclusive and Stop exclusive; negative
// values count back from the end of the axis, as in Python slice notation.
type Range struct {
	Start, Stop int

	scalar bool
	whole  bool
	toEnd  bool
}

// All selects an entire axis.
func All() Range { return Range{whole: true} }

// Span selects the half-open interval [start, stop) on an axis.
func Span(start, stop int) Range { return Range{Start: start, Stop: stop} }

// From selects [start, end-of-axis).
func From(start int) Range { return Range{Start: start, toEnd: true} }

// Index selects a single element on an axis and drops that axis from the
// result shape.
func Index(i int) Range { return Range{Start: i, scalar: true} }

type axisRange struct {
	start, stop int
	scalar      bool
}

// normalizeRanges resolves ranges against a shape: negative indices are
// wrapped, slice bounds are clamped, and omitted trailing ranges select
// whole axes. Scalar indices out of bounds are an error; out-of-bounds
// slices merely produce empty axes.
func normalizeRanges(shape []int, ranges []Range) ([]axisRange, []int, error) {
	if len(ranges) > len(shape) {
		return nil, nil, fmt.Errorf("%d ranges for %d-dimensional data", len(ranges), len(shape))
	}

	norm := make([]axisRange, len(shape))
	outShape := make([]int, 0, len(shape))

	for k, n := range shape {
		var r Range
		if k < len(ranges) {
			r = ranges[k]
		} else {
			r = All()
		}

		switch {
		case r.scalar:
			i := r.Start
			if i < 0 {
				i += n
			}

			if i < 0 || i >= n {
				return nil, nil, fmt.Errorf("index %d out of range for axis %d (size %d)", r.Start, k, n)
			}

			norm[k] = axisRange{start: i, stop: i + 1, scalar: true}
		case r.whole, r == Range{}:
			norm[k] = axisRange{start: 0, stop: n}
			outShape = append(outShape, n)
		default:
			start, stop := r.Start, r.Stop
			if start < 0 {
				start += n
			}

			if r.toEnd {
				stop = n
			} else if stop < 0 {
				stop += n
			}

			start = clamp(start, 0, n)
			stop = clamp(stop, start, n)

			norm[k] = axisRange{start: start, stop: stop}
			outShape = append(outShape, stop-start)
		}
	}

	return norm, outShape, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}

// iterRanges visits the selected elements as maximal contiguous runs in
// row-major order, calling fn with the flat element offset and run length.
// Fully-selected trailing axes are coalesced into single runs so that
// whole-row and whole-plane reads turn into one call each.
func iterRanges(norm []axisRange, shape []int, fn func(offset, count int)) {
	n := len(shape)
	if n == 0 {
		fn(0, 1)

		return
	}

	stride := make([]int, n)

	s := 1
	for i := n - 1; i >= 0; i-- {
		stride[i] = s
		s *= shape[i]
	}

	// coalesce the fully-covered suffix
	m := n - 1
	run := 1

	for m >= 0 && norm[m].start == 0 && norm[m].stop == shape[m] {
		run *= shape[m]
		m--
	}

	if m < 0 {
		fn(0, run)

		return
	}

	run *= norm[m].stop - norm[m].start
	if run == 0 {
		return
	}

	for i := 0; i < m; i++ {
		if norm[i].stop <= norm[i].start {
			return
		}
	}

	idx := make([]int, m)
	for i := range idx {
		idx[i] = norm[i].start
	}

	for {
		off := norm[m].start * stride[m]
		for i := 0; i < m; i++ {
			off += idx[i] * stride[i]
		}

		fn(off, run)

		i := m - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < norm[i].stop {
				break
			}

			idx[i] = norm[i].start
		}

		if i < 0 {
			return
		}
	}
}

// A Section provides access to rectangular subsets of an image HDU's data
// without reading the full array. Only the byte ranges that intersect the
// request are fetched from the underlying source, which keeps remote access
// proportional to the subset size rather than the file size.
//
// Compressed image HDUs have no Section; see HDUList.Section.
type Section struct {
	hdu *ImageHDU
}

// Shape returns the data dimensions in row-major order.
func (s *Section) Shape() []int { return s.hdu.shape }

// DType returns the element type of the stored data. Note that a
// non-trivial BSCALE/BZERO scaling promotes read results to Float64.
func (s *Section) DType() DType { return s.hdu.dtype }

// Slice reads the subset selected by the given per-axis ranges. Omitted
// trailing ranges select whole axes, so a 2-d image row prefix can be read
// with a single range. BSCALE/BZERO scaling is applied the same way a full
// Data load applies it.
func (s *Section) Slice(ranges ...Range) (*Array, error) {
	h := s.hdu

	norm, outShape, err := normalizeRanges(h.shape, ranges)
	if err != nil {
		return nil, fmt.Errorf("section of %q: %w", h.Name(), err)
	}

	out := NewArray(h.dtype, outShape...)
	esz := h.dtype.Size()

	var (
		raw  []byte
		rerr error
		dst  int
	)

	iterRanges(norm, h.shape, func(offset, count int) {
		if rerr != nil {
			return
		}

		need := count * esz
		if cap(raw) < need {
			raw = make([]byte, need)
		}

		raw = raw[:need]

		if _, err := h.r.ReadAt(raw, h.dataOff+int64(offset)*int64(esz)); err != nil {
			rerr = fmt.Errorf("section read at %d: %w", offset, err)

			return
		}

		out.decodeInto(dst, raw, count)
		dst += count
	})

	if rerr != nil {
		return nil, rerr
	}

	return out.scaled(h.bscale, h.bzero), nil
}
