package remote

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// A Source is a random-access view of a local or remote object.
type Source interface {
	// ReadAt reads len(p) bytes at the given offset, per io.ReaderAt.
	ReadAt(p []byte, off int64) (int, error)

	// Size returns the object's total length in bytes.
	Size() int64

	// URL returns the location the source was opened from.
	URL() string

	// Name returns the object's base name.
	Name() string

	Close() error
}

// A SourceProvider opens sources for a set of URL schemes.
type SourceProvider interface {
	// Schemes returns the valid URL schemes for this provider.
	Schemes() []string

	// New opens a source for the given URL.
	New(ctx context.Context, u *url.URL, opts Options) (Source, error)
}

// SourceProviderFunc adapts a function into a SourceProvider.
func SourceProviderFunc(f func(context.Context, *url.URL, Options) (Source, error), schemes ...string) SourceProvider {
	return srcp{f, schemes}
}

type srcp struct {
	newFunc func(context.Context, *url.URL, Options) (Source, error)
	schemes []string
}

func (p srcp) Schemes() []string { return p.schemes }

func (p srcp) New(ctx context.Context, u *url.URL, opts Options) (Source, error) {
	return p.newFunc(ctx, u, opts)
}

// SourceMux allows you to dynamically look up a registered source provider
// for a given URL. SourceMux is itself a SourceProvider, which provides
// the superset of all registered providers.
type SourceMux map[string]func(context.Context, *url.URL, Options) (Source, error)

var _ SourceProvider = (SourceMux)(nil)

// NewMux returns a SourceMux ready for use.
func NewMux() SourceMux {
	return SourceMux(map[string]func(context.Context, *url.URL, Options) (Source, error){})
}

// Add registers the given provider for its supported URL schemes. If any
// of its schemes are already registered, they will be overridden.
func (m SourceMux) Add(p SourceProvider) {
	for _, scheme := range p.Schemes() {
		m[scheme] = p.New
	}
}

// Lookup opens an appropriate source for the given URL. A bare path or a
// single-letter scheme (a Windows drive) is treated as a local file.
func (m SourceMux) Lookup(ctx context.Context, raw string, opts Options) (Source, error) {
	u, err := parseURL(raw)
	if err != nil {
		return nil, err
	}

	return m.New(ctx, u, opts)
}

// Schemes - implements SourceProvider
func (m SourceMux) Schemes() []string {
	schemes := make([]string, 0, len(m))
	for scheme := range m {
		schemes = append(schemes, scheme)
	}

	sort.Strings(schemes)

	return schemes
}

// New - implements SourceProvider
func (m SourceMux) New(ctx context.Context, u *url.URL, opts Options) (Source, error) {
	f, ok := m[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("no source registered for scheme %q", u.Scheme)
	}

	return f(ctx, u, opts)
}

// parseURL is url.Parse with local-path affordances: no scheme, or a
// scheme that is really a drive letter, means a plain file path.
func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}

	if u.Scheme == "" || len(u.Scheme) == 1 {
		return &url.URL{Scheme: "file", Path: raw}, nil
	}

	return u, nil
}

// DefaultMux returns a mux with all providers in this package registered.
func DefaultMux() SourceMux {
	mux := NewMux()
	mux.Add(FileSource)
	mux.Add(HTTPSource)
	mux.Add(BlobSource)
	mux.Add(FSSource)

	return mux
}

// Open looks up a source for the URL on the default mux and wraps it in
// the block cache and tracing layers selected by opts. Local files are
// never cache-wrapped.
func Open(ctx context.Context, raw string, opts Options) (Source, error) {
	opts = opts.withDefaults()

	u, err := parseURL(raw)
	if err != nil {
		return nil, err
	}

	src, err := DefaultMux().New(ctx, u, opts)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "file" && opts.Cache != CacheNone {
		src, err = newCachedSource(src, opts)
		if err != nil {
			src.Close()

			return nil, err
		}
	}

	if opts.TracerProvider != nil {
		src = newTracedSource(ctx, src, opts.TracerProvider)
	}

	return src, nil
}

// basename returns the final path element of a URL path.
func basename(u *url.URL) string {
	p := strings.TrimRight(u.Path, "/")
	if i := strings.LastIndex(p, "/"); i != -1 {
		p = p[i+1:]
	}

	if p == "" {
		return u.Host
	}

	return p
}
