// Package fits reads FITS files, the standard container format for
// astronomical array data, from local and remote locations.
//
// Files are opened lazily: headers are parsed as HDUs are referenced, and
// data is read only when referenced. Combined with the remote package's
// range-capable sources, this means that opening a multi-gigabyte file in
// an archive and reading a small image section downloads only the headers
// and the bytes covering that section.
//
// # Usage
//
// To open a local file and read a subset of an image extension:
//
//	hdul, _ := fits.Open(ctx, "j8pu0y010_drc.fits")
//	defer hdul.Close()
//
//	sec, _ := hdul.Section(1)
//	cut, _ := sec.Slice(fits.Span(1000, 1002), fits.Span(2000, 2003))
//
// Remote URLs work the same way. Access options are forwarded to the
// remote layer:
//
//	hdul, _ := fits.Open(ctx, "s3://stpubdata/hst/public/j8pu/j8pu0y010/j8pu0y010_drc.fits",
//		fits.WithRemoteOptions(remote.Options{Anonymous: true}))
//
// Use EagerHDUs to scan and load the whole file at open time instead.
package fits
