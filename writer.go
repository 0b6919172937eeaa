package fits

import (
	"fmt"
	"io"
)

// structural keywords that WriteImage and WriteImageExt manage themselves;
// they are dropped from caller-supplied headers to keep the output valid.
var structuralKeywords = map[string]bool{
	"SIMPLE": true, "XTENSION": true, "BITPIX": true, "NAXIS": true,
	"PCOUNT": true, "GCOUNT": true, "END": true,
}

func isStructural(keyword string) bool {
	if structuralKeywords[keyword] {
		return true
	}

	return len(keyword) > 5 && keyword[:5] == "NAXIS"
}

// WriteImage writes a primary HDU holding the given array. Cards from hdr
// (which may be nil) are carried over, minus the structural keywords that
// are derived from the array itself.
func WriteImage(w io.Writer, hdr *Header, arr *Array) error {
	out := NewHeader()
	out.Append(Card{Keyword: "SIMPLE", Value: true, Comment: "conforms to FITS standard"})

	return writeImageHDU(w, out, hdr, arr)
}

// WriteEmptyPrimary writes a dataless primary HDU, the conventional lead
// block of a file whose images live in extensions.
func WriteEmptyPrimary(w io.Writer, hdr *Header) error {
	out := NewHeader()
	out.Append(Card{Keyword: "SIMPLE", Value: true, Comment: "conforms to FITS standard"})
	out.Append(Card{Keyword: "BITPIX", Value: int64(8)})
	out.Append(Card{Keyword: "NAXIS", Value: int64(0)})
	out.Append(Card{Keyword: "EXTEND", Value: true})

	if hdr != nil {
		for _, c := range hdr.Cards() {
			if !isStructural(c.Keyword) && c.Keyword != "EXTEND" {
				out.Append(c)
			}
		}
	}

	if _, err := out.WriteTo(w); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	return nil
}

// WriteImageExt writes an IMAGE extension HDU holding the given array.
func WriteImageExt(w io.Writer, hdr *Header, arr *Array) error {
	out := NewHeader()
	out.Append(Card{Keyword: "XTENSION", Value: "IMAGE", Comment: "image extension"})

	return writeImageHDU(w, out, hdr, arr)
}

func writeImageHDU(w io.Writer, out, hdr *Header, arr *Array) error {
	shape := arr.Shape()

	out.Append(Card{Keyword: "BITPIX", Value: int64(arr.DType()), Comment: "array data type"})
	out.Append(Card{Keyword: "NAXIS", Value: int64(len(shape)), Comment: "number of array dimensions"})

	// NAXIS1 is the fastest axis, i.e. the last of the row-major shape
	for i := 1; i <= len(shape); i++ {
		out.Append(Card{
			Keyword: axisKeyword("NAXIS", i),
			Value:   int64(shape[len(shape)-i]),
		})
	}

	if _, isExt := out.Get("XTENSION"); isExt {
		out.Append(Card{Keyword: "PCOUNT", Value: int64(0)})
		out.Append(Card{Keyword: "GCOUNT", Value: int64(1)})
	}

	if hdr != nil {
		for _, c := range hdr.Cards() {
			if !isStructural(c.Keyword) {
				out.Append(c)
			}
		}
	}

	if _, err := out.WriteTo(w); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	data := arr.encode(make([]byte, 0, arr.Len()*arr.DType().Size()))

	pad := (BlockSize - len(data)%BlockSize) % BlockSize
	data = append(data, make([]byte, pad)...)

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	return nil
}
