package fits

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/fornax-navo/go-fits/remote"
)

// OpenOption configures Open.
type OpenOption interface {
	apply(*openConfig)
}

type openConfig struct {
	remote remote.Options
	eager  bool
}

type openOptionFunc func(*openConfig)

func (o openOptionFunc) apply(c *openConfig) { o(c) }

// WithRemoteOptions forwards options to the remote source layer:
// credentials, the anonymous flag, block size, and caching strategy.
// Fields left unset in opts keep values supplied by the other open options
// (WithHTTPClient, WithHeader, WithTracerProvider), regardless of option
// order.
func WithRemoteOptions(opts remote.Options) OpenOption {
	return openOptionFunc(func(c *openConfig) {
		prev := c.remote
		c.remote = opts

		if opts.HTTPClient == nil {
			c.remote.HTTPClient = prev.HTTPClient
		}

		if opts.Header == nil {
			c.remote.Header = prev.Header
		}

		if opts.TracerProvider == nil {
			c.remote.TracerProvider = prev.TracerProvider
		}
	})
}

// EagerHDUs disables lazy loading: every header is parsed and every HDU's
// data is read at open time. The default is lazy.
func EagerHDUs() OpenOption {
	return openOptionFunc(func(c *openConfig) {
		c.eager = true
	})
}

// WithHTTPClient overrides the HTTP client used by HTTP and S3 transports.
func WithHTTPClient(client *http.Client) OpenOption {
	return openOptionFunc(func(c *openConfig) {
		if client != nil {
			c.remote.HTTPClient = client
		}
	})
}

// WithHeader adds headers to every HTTP request made for the file, e.g.
// authorization or a user agent.
func WithHeader(hdr http.Header) OpenOption {
	return openOptionFunc(func(c *openConfig) {
		if hdr != nil {
			c.remote.Header = hdr
		}
	})
}

// WithTracerProvider records a trace span per backend read.
func WithTracerProvider(tp trace.TracerProvider) OpenOption {
	return openOptionFunc(func(c *openConfig) {
		if tp != nil {
			c.remote.TracerProvider = tp
		}
	})
}

// Open opens a FITS file by path or URL. Local paths and file:// URLs
// read from the filesystem; http(s)://, s3://, gs://, azblob://, and
// git+* URLs read remotely through the remote package, fetching only the
// byte ranges that are referenced.
func Open(ctx context.Context, location string, opts ...OpenOption) (*HDUList, error) {
	var cfg openConfig
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	src, err := remote.Open(ctx, location, cfg.remote)
	if err != nil {
		return nil, err
	}

	l, err := NewHDUList(src, src.Size())
	if err != nil {
		src.Close()

		return nil, err
	}

	l.closer = src
	l.url = src.URL()

	if cfg.eager {
		if err := l.loadAll(); err != nil {
			l.Close()

			return nil, err
		}
	}

	return l, nil
}
