// Package remote presents local and network-hosted files through a
// random-access read interface, so that file formats with internal
// structure (such as FITS) can be read piecewise without downloading whole
// objects.
//
// A Source is an io.ReaderAt with a known size. Sources are looked up by
// URL scheme through a SourceMux: file paths and file:// URLs map onto the
// local filesystem, http:// and https:// use HTTP range requests, and
// s3://, gs://, and azblob:// use blob-store range reads. Schemes with no
// native range support (git+https and friends) fall back to buffering the
// whole object through a go-fsimpl filesystem.
//
// # Options
//
// Options carries the per-open settings that astronomical archives
// commonly need: anonymous access to public buckets, static credentials,
// a block size, and a caching strategy. For example, to open a file in a
// public S3 bucket:
//
//	src, err := remote.Open(ctx, "s3://stpubdata/hst/public/j8pu/j8pu0y010_drc.fits",
//		remote.Options{Anonymous: true})
//
// # Caching
//
// Network reads are wrapped in a block cache according to Options.Cache.
// The default readahead strategy fetches a block past the requested span,
// which suits header-then-data scan patterns; blockcache keeps an LRU of
// fixed-size blocks for random access; whole buffers the entire object on
// first read.
package remote
