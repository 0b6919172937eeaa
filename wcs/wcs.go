// Package wcs implements the small subset of the FITS world coordinate
// system needed to convert between pixel and sky coordinates: the linear
// CD/CDELT transformation plus the gnomonic (TAN) projection. SIP
// distortion and other projections are out of scope.
package wcs

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	fits "github.com/fornax-navo/go-fits"
)

const deg2rad = math.Pi / 180

// A WCS maps 0-based pixel coordinates onto world coordinates in degrees.
type WCS struct {
	crpix [2]float64 // 1-based reference pixel, FITS convention
	crval [2]float64 // world coordinates at the reference pixel, degrees
	cd    *mat.Dense // linear transform, degrees per pixel
	inv   *mat.Dense
	ctype [2]string
	tan   bool
}

// FromHeader builds a WCS from the standard keywords: CRPIX/CRVAL plus
// either the CD matrix or CDELT with an optional PC matrix. A CTYPE pair
// ending in -TAN selects the gnomonic projection; otherwise the transform
// is treated as linear in the world coordinates.
func FromHeader(hdr *fits.Header) (*WCS, error) {
	w := &WCS{}

	for i := 0; i < 2; i++ {
		var ok bool
		if w.crpix[i], ok = hdr.Float(fmt.Sprintf("CRPIX%d", i+1)); !ok {
			return nil, fmt.Errorf("wcs: missing CRPIX%d", i+1)
		}

		if w.crval[i], ok = hdr.Float(fmt.Sprintf("CRVAL%d", i+1)); !ok {
			return nil, fmt.Errorf("wcs: missing CRVAL%d", i+1)
		}

		ct, _ := hdr.Str(fmt.Sprintf("CTYPE%d", i+1))
		w.ctype[i] = strings.TrimSpace(ct)
	}

	w.tan = strings.HasSuffix(w.ctype[0], "-TAN") && strings.HasSuffix(w.ctype[1], "-TAN")

	w.cd = cdMatrix(hdr)

	w.inv = mat.NewDense(2, 2, nil)
	if err := w.inv.Inverse(w.cd); err != nil {
		return nil, fmt.Errorf("wcs: singular CD matrix: %w", err)
	}

	return w, nil
}

// cdMatrix assembles the linear part of the transform. CD keywords win
// over CDELT/PC; missing elements default to an identity scaling.
func cdMatrix(hdr *fits.Header) *mat.Dense {
	if hdr.Has("CD1_1") || hdr.Has("CD2_2") {
		return mat.NewDense(2, 2, []float64{
			hdr.FloatOr("CD1_1", 0), hdr.FloatOr("CD1_2", 0),
			hdr.FloatOr("CD2_1", 0), hdr.FloatOr("CD2_2", 0),
		})
	}

	cdelt1 := hdr.FloatOr("CDELT1", 1)
	cdelt2 := hdr.FloatOr("CDELT2", 1)

	pc := mat.NewDense(2, 2, []float64{
		hdr.FloatOr("PC1_1", 1), hdr.FloatOr("PC1_2", 0),
		hdr.FloatOr("PC2_1", 0), hdr.FloatOr("PC2_2", 1),
	})

	scale := mat.NewDense(2, 2, []float64{cdelt1, 0, 0, cdelt2})

	cd := mat.NewDense(2, 2, nil)
	cd.Mul(scale, pc)

	return cd
}

// CTypes returns the axis types, e.g. "RA---TAN", "DEC--TAN".
func (w *WCS) CTypes() (string, string) { return w.ctype[0], w.ctype[1] }

// PixelScale returns the mean absolute scale in degrees per pixel.
func (w *WCS) PixelScale() float64 {
	return math.Sqrt(math.Abs(mat.Det(w.cd)))
}

// PixelToWorld converts 0-based pixel coordinates to world coordinates in
// degrees.
func (w *WCS) PixelToWorld(x, y float64) (lon, lat float64) {
	px := x - (w.crpix[0] - 1)
	py := y - (w.crpix[1] - 1)

	xi := w.cd.At(0, 0)*px + w.cd.At(0, 1)*py
	eta := w.cd.At(1, 0)*px + w.cd.At(1, 1)*py

	if !w.tan {
		return w.crval[0] + xi, w.crval[1] + eta
	}

	return tanToWorld(xi*deg2rad, eta*deg2rad, w.crval[0]*deg2rad, w.crval[1]*deg2rad)
}

// WorldToPixel converts world coordinates in degrees to 0-based pixel
// coordinates.
func (w *WCS) WorldToPixel(lon, lat float64) (x, y float64) {
	var xi, eta float64

	if w.tan {
		xi, eta = worldToTan(lon*deg2rad, lat*deg2rad, w.crval[0]*deg2rad, w.crval[1]*deg2rad)
		xi /= deg2rad
		eta /= deg2rad
	} else {
		xi = lon - w.crval[0]
		eta = lat - w.crval[1]
	}

	px := w.inv.At(0, 0)*xi + w.inv.At(0, 1)*eta
	py := w.inv.At(1, 0)*xi + w.inv.At(1, 1)*eta

	return px + (w.crpix[0] - 1), py + (w.crpix[1] - 1)
}

// Shift returns a copy of the WCS with the reference pixel moved so that
// pixel (dx, dy) of the original becomes pixel (0, 0). Used to keep a
// cutout's WCS consistent with its parent image.
func (w *WCS) Shift(dx, dy float64) *WCS {
	out := *w
	out.crpix[0] -= dx
	out.crpix[1] -= dy

	return &out
}

// UpdateHeader writes the solution into hdr as CRPIX/CRVAL/CTYPE plus a CD
// matrix, replacing cards already present. Stale CDELT/PC cards may remain;
// CD takes precedence when the header is read back.
func (w *WCS) UpdateHeader(hdr *fits.Header) {
	for i := 0; i < 2; i++ {
		n := i + 1

		if w.ctype[i] != "" {
			hdr.Set(fmt.Sprintf("CTYPE%d", n), w.ctype[i], "")
		}

		hdr.Set(fmt.Sprintf("CRPIX%d", n), w.crpix[i], "")
		hdr.Set(fmt.Sprintf("CRVAL%d", n), w.crval[i], "")
	}

	hdr.Set("CD1_1", w.cd.At(0, 0), "")
	hdr.Set("CD1_2", w.cd.At(0, 1), "")
	hdr.Set("CD2_1", w.cd.At(1, 0), "")
	hdr.Set("CD2_2", w.cd.At(1, 1), "")
}

// tanToWorld deprojects gnomonic plane coordinates (radians) around the
// reference point (lon0, lat0).
func tanToWorld(xi, eta, lon0, lat0 float64) (lon, lat float64) {
	rho := math.Hypot(xi, eta)
	if rho == 0 {
		return lon0 / deg2rad, lat0 / deg2rad
	}

	c := math.Atan(rho)

	sinc, cosc := math.Sin(c), math.Cos(c)

	lat = math.Asin(cosc*math.Sin(lat0) + eta*sinc*math.Cos(lat0)/rho)
	lon = lon0 + math.Atan2(xi*sinc, rho*math.Cos(lat0)*cosc-eta*math.Sin(lat0)*sinc)

	return lon / deg2rad, lat / deg2rad
}

// worldToTan projects world coordinates (radians) onto the gnomonic plane
// around the reference point (lon0, lat0).
func worldToTan(lon, lat, lon0, lat0 float64) (xi, eta float64) {
	dlon := lon - lon0

	cosc := math.Sin(lat0)*math.Sin(lat) + math.Cos(lat0)*math.Cos(lat)*math.Cos(dlon)

	xi = math.Cos(lat) * math.Sin(dlon) / cosc
	eta = (math.Cos(lat0)*math.Sin(lat) - math.Sin(lat0)*math.Cos(lat)*math.Cos(dlon)) / cosc

	return xi, eta
}
