// Package cutout extracts rectangular sub-regions from 2-dimensional
// image data, selected either by pixel position or by a sky coordinate
// and angular size resolved through a WCS.
//
// A cutout source can be a fully-loaded fits.Array or a lazy
// fits.Section; in the latter case only the pixels inside the cutout are
// read from the underlying (possibly remote) file.
package cutout

import (
	"errors"
	"fmt"
	"math"

	fits "github.com/fornax-navo/go-fits"
	"github.com/fornax-navo/go-fits/wcs"
)

// Mode controls how a cutout that extends past the image edge is handled.
type Mode int

const (
	// Trim clips the cutout to the image bounds.
	Trim Mode = iota

	// Partial keeps the requested size, filling pixels outside the image
	// with NaN (or the configured fill value). The result is promoted to
	// float64.
	Partial

	// Strict fails if any part of the cutout falls outside the image.
	Strict
)

// ErrNoOverlap is returned when the requested region lies entirely
// outside the image.
var ErrNoOverlap = errors.New("cutout: region does not overlap image")

// A Source2D provides shaped, sliceable 2-d data. Both *fits.Array and
// *fits.Section satisfy it.
type Source2D interface {
	Shape() []int
	Slice(ranges ...fits.Range) (*fits.Array, error)
}

// A Position locates the cutout center.
type Position struct {
	x, y float64
	sky  bool
	w    *wcs.WCS
}

// PixelPosition centers the cutout on 0-based pixel coordinates (x, y).
func PixelPosition(x, y float64) Position {
	return Position{x: x, y: y}
}

// SkyPosition centers the cutout on world coordinates in degrees,
// resolved through the given WCS.
func SkyPosition(lon, lat float64, w *wcs.WCS) Position {
	return Position{x: lon, y: lat, sky: true, w: w}
}

// A Size gives the cutout extent.
type Size struct {
	ny, nx  int
	angular bool
	dy, dx  float64
}

// PixelSize requests a cutout of ny rows by nx columns.
func PixelSize(ny, nx int) Size {
	return Size{ny: ny, nx: nx}
}

// AngularSize requests a cutout of dy by dx degrees, converted to pixels
// through the WCS pixel scale.
func AngularSize(dy, dx float64) Size {
	return Size{angular: true, dy: dy, dx: dx}
}

// Option configures New.
type Option interface {
	apply(*config)
}

type config struct {
	mode Mode
	w    *wcs.WCS
	fill float64
}

type optionFunc func(*config)

func (o optionFunc) apply(c *config) { o(c) }

// WithMode selects the edge-handling mode. The default is Trim.
func WithMode(m Mode) Option {
	return optionFunc(func(c *config) { c.mode = m })
}

// WithWCS attaches a WCS, used to resolve angular sizes and to produce
// the shifted WCS of the cutout. A WCS given via SkyPosition takes
// precedence.
func WithWCS(w *wcs.WCS) Option {
	return optionFunc(func(c *config) { c.w = w })
}

// WithFillValue overrides the NaN fill used in Partial mode.
func WithFillValue(v float64) Option {
	return optionFunc(func(c *config) { c.fill = v })
}

// A Cutout is an extracted sub-image.
type Cutout struct {
	// Data holds the cutout pixels.
	Data *fits.Array

	// Origin is the (x, y) pixel of the parent image at the cutout's
	// (0, 0) corner.
	Origin [2]int

	w *wcs.WCS
}

// WCS returns the cutout's world coordinate system, with the reference
// pixel shifted to match the cutout frame. It is nil when no WCS was
// supplied.
func (c *Cutout) WCS() *wcs.WCS { return c.w }

// New extracts a cutout from src centered on pos. The center pixel of
// axis length n is placed at round(center) - (n-1)/2, so odd sizes center
// exactly and even sizes extend one pixel further up.
func New(src Source2D, pos Position, size Size, opts ...Option) (*Cutout, error) {
	cfg := config{fill: math.NaN()}
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if pos.w != nil {
		cfg.w = pos.w
	}

	shape := src.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("cutout: source is %d-dimensional, need 2", len(shape))
	}

	ny, nx := shape[0], shape[1]

	cx, cy := pos.x, pos.y
	if pos.sky {
		if cfg.w == nil {
			return nil, errors.New("cutout: sky position requires a WCS")
		}

		cx, cy = cfg.w.WorldToPixel(pos.x, pos.y)
	}

	sy, sx := size.ny, size.nx
	if size.angular {
		if cfg.w == nil {
			return nil, errors.New("cutout: angular size requires a WCS")
		}

		scale := cfg.w.PixelScale()
		sy = int(math.Round(size.dy / scale))
		sx = int(math.Round(size.dx / scale))
	}

	if sy <= 0 || sx <= 0 {
		return nil, fmt.Errorf("cutout: invalid size %dx%d", sy, sx)
	}

	y0 := int(math.Round(cy)) - (sy-1)/2
	x0 := int(math.Round(cx)) - (sx-1)/2
	y1 := y0 + sy
	x1 := x0 + sx

	// clipped extent
	cy0, cy1 := clip(y0, 0, ny), clip(y1, 0, ny)
	cx0, cx1 := clip(x0, 0, nx), clip(x1, 0, nx)

	if cy0 >= cy1 || cx0 >= cx1 {
		return nil, ErrNoOverlap
	}

	if cfg.mode == Strict && (y0 < 0 || x0 < 0 || y1 > ny || x1 > nx) {
		return nil, fmt.Errorf("cutout: region [%d:%d, %d:%d] exceeds image bounds (%d, %d)",
			y0, y1, x0, x1, ny, nx)
	}

	data, err := src.Slice(fits.Span(cy0, cy1), fits.Span(cx0, cx1))
	if err != nil {
		return nil, err
	}

	origin := [2]int{cx0, cy0}

	if cfg.mode == Partial && (cy1-cy0 != sy || cx1-cx0 != sx) {
		data = embed(data, cfg.fill, sy, sx, cy0-y0, cx0-x0)
		origin = [2]int{x0, y0}
	}

	out := &Cutout{Data: data, Origin: origin}

	if cfg.w != nil {
		out.w = cfg.w.Shift(float64(origin[0]), float64(origin[1]))
	}

	return out, nil
}

// embed places data into a fill-initialized float64 array of the full
// requested size at offset (oy, ox).
func embed(data *fits.Array, fill float64, sy, sx, oy, ox int) *fits.Array {
	out := fits.NewArray(fits.Float64, sy, sx)

	for y := 0; y < sy; y++ {
		for x := 0; x < sx; x++ {
			out.SetFloat(fill, y, x)
		}
	}

	shape := data.Shape()
	for y := 0; y < shape[0]; y++ {
		for x := 0; x < shape[1]; x++ {
			out.SetFloat(data.Float(y, x), oy+y, ox+x)
		}
	}

	return out
}

func clip(v, lo, hi int) int {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
