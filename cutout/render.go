package cutout

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"
)

func colorGray(t float64) color.Gray {
	if t < 0 {
		t = 0
	}

	if t > 1 {
		t = 1
	}

	return color.Gray{Y: uint8(t*255 + 0.5)}
}

// Gray renders the cutout as an 8-bit grayscale image with a linear
// min-max stretch. NaN pixels render black. Row 0 of the data is drawn at
// the bottom, following the FITS display convention.
func (c *Cutout) Gray() *image.Gray {
	shape := c.Data.Shape()
	ny, nx := shape[0], shape[1]

	lo, hi := math.Inf(1), math.Inf(-1)

	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			v := c.Data.Float(y, x)
			if math.IsNaN(v) {
				continue
			}

			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}

	span := hi - lo
	if span <= 0 || math.IsInf(span, 0) {
		span = 1
	}

	img := image.NewGray(image.Rect(0, 0, nx, ny))

	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			v := c.Data.Float(y, x)
			if math.IsNaN(v) {
				continue
			}

			img.SetGray(x, ny-1-y, colorGray((v-lo)/span))
		}
	}

	return img
}

// WritePNG encodes a grayscale preview. A positive width rescales the
// image to that width, preserving aspect ratio.
func (c *Cutout) WritePNG(w io.Writer, width int) error {
	img := c.Gray()

	if width > 0 && width != img.Bounds().Dx() {
		b := img.Bounds()

		height := b.Dy() * width / b.Dx()
		if height < 1 {
			height = 1
		}

		scaled := image.NewGray(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)
		img = scaled
	}

	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}

	return nil
}
