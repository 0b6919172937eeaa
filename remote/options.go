package remote

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// CacheStrategy selects how network reads are cached. The names follow the
// conventions of remote-filesystem layers in other ecosystems.
type CacheStrategy string

const (
	// CacheDefault resolves to CacheReadahead.
	CacheDefault CacheStrategy = ""

	// CacheNone issues every read directly against the backend.
	CacheNone CacheStrategy = "none"

	// CacheReadahead rounds reads up to whole blocks and fetches one block
	// beyond the requested span, keeping recent blocks in an LRU. Suits
	// mostly-sequential scans.
	CacheReadahead CacheStrategy = "readahead"

	// CacheBlocks keeps an LRU of fixed-size blocks with no readahead.
	// Suits random access such as image section reads.
	CacheBlocks CacheStrategy = "blockcache"

	// CacheWhole buffers the entire object on first read.
	CacheWhole CacheStrategy = "whole"
)

// Default block cache geometry.
const (
	DefaultBlockSize = int64(5 * 1024 * 1024)
	DefaultMaxBlocks = 32
)

// Options carries per-open settings. The zero value is usable: default
// credentials, readahead caching, and a 5MiB block size. Options is
// forwarded verbatim from fits.Open's remote options, so the field set
// mirrors what remote-filesystem layers conventionally accept: an access
// key identifier, a secret key, an anonymous-access flag, a block size,
// and a caching strategy.
type Options struct {
	// Key and Secret are static credentials for object stores. When empty,
	// the backend's default credential chain applies.
	Key    string
	Secret string

	// Anonymous requests unsigned access, for public buckets.
	Anonymous bool

	// Region and Endpoint override the S3 region and endpoint.
	Region   string
	Endpoint string

	// BlockSize is the cache block size in bytes.
	BlockSize int64

	// Cache selects the caching strategy for network sources.
	Cache CacheStrategy

	// MaxBlocks bounds the number of cached blocks.
	MaxBlocks int

	// HTTPClient overrides http.DefaultClient for HTTP and S3 transports.
	HTTPClient *http.Client

	// Header adds headers to every HTTP request, e.g. authorization or a
	// user agent.
	Header http.Header

	// TracerProvider enables a trace span per backend read.
	TracerProvider trace.TracerProvider
}

func (o Options) withDefaults() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}

	if o.MaxBlocks <= 0 {
		o.MaxBlocks = DefaultMaxBlocks
	}

	if o.Cache == CacheDefault {
		o.Cache = CacheReadahead
	}

	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}

	return o
}
