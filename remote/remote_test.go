package remote

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)

	return u
}

func TestParseURL(t *testing.T) {
	testdata := []struct {
		in     string
		scheme string
		path   string
	}{
		{"/data/test0.fits", "file", "/data/test0.fits"},
		{"relative/test0.fits", "file", "relative/test0.fits"},
		{"C:/data/test0.fits", "file", "C:/data/test0.fits"},
		{"file:///data/test0.fits", "file", "/data/test0.fits"},
		{"https://example.com/test0.fits", "https", "/test0.fits"},
		{"s3://stpubdata/hst/test0.fits", "s3", "/hst/test0.fits"},
	}

	for _, d := range testdata {
		u, err := parseURL(d.in)
		require.NoError(t, err, d.in)

		assert.Equal(t, d.scheme, u.Scheme, d.in)
		assert.Equal(t, d.path, u.Path, d.in)
	}
}

func TestMuxUnknownScheme(t *testing.T) {
	mux := DefaultMux()

	_, err := mux.Lookup(context.Background(), "gopher://example.com/x", Options{})
	assert.ErrorContains(t, err, `no source registered for scheme "gopher"`)
}

func TestMuxSchemes(t *testing.T) {
	mux := NewMux()
	mux.Add(FileSource)
	mux.Add(HTTPSource)

	assert.Equal(t, []string{"file", "http", "https"}, mux.Schemes())
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test0.fits")

	content := []byte("SIMPLE  =                    T")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	src, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)

	defer src.Close()

	assert.Equal(t, int64(len(content)), src.Size())
	assert.Equal(t, "test0.fits", src.Name())

	p := make([]byte, 6)

	n, err := src.ReadAt(p, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "SIMPLE", string(p))
}

func TestFileSourceMissing(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.fits"), Options{})
	assert.Error(t, err)
}

// rangeServer serves content with full Range support and counts requests.
func rangeServer(t *testing.T, content []byte) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.ServeContent(w, r, "test0.fits", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)

	return srv, &calls
}

func TestHTTPSourceRange(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 100)
	srv, calls := rangeServer(t, content)

	src, err := newHTTPSource(context.Background(), mustParseURL(t, srv.URL+"/test0.fits"), Options{})
	require.NoError(t, err)

	defer src.Close()

	assert.Equal(t, int64(len(content)), src.Size())
	assert.Equal(t, "test0.fits", src.Name())

	p := make([]byte, 10)

	n, err := src.ReadAt(p, 500)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "0123456789", string(p))

	// reading past the end clamps and reports EOF
	n, err = src.ReadAt(p, int64(len(content))-4)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 4, n)

	_, err = src.ReadAt(p, int64(len(content)))
	assert.Equal(t, io.EOF, err)

	// probe plus two range reads; nothing fetched the whole body
	assert.Equal(t, int64(3), calls.Load())
}

func TestHTTPSourceNoRangeSupport(t *testing.T) {
	content := bytes.Repeat([]byte("abcdefgh"), 50)

	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write(content)
	}))
	t.Cleanup(srv.Close)

	src, err := newHTTPSource(context.Background(), mustParseURL(t, srv.URL), Options{})
	require.NoError(t, err)

	defer src.Close()

	assert.Equal(t, int64(len(content)), src.Size())

	p := make([]byte, 8)

	n, err := src.ReadAt(p, 16)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "abcdefgh", string(p))

	// the whole body was buffered by the probe; no further requests
	assert.Equal(t, int64(1), calls.Load())
}

func TestHTTPSourceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	_, err := newHTTPSource(context.Background(), mustParseURL(t, srv.URL+"/missing"), Options{})
	require.Error(t, err)

	var he httpErr

	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.StatusCode())
}

func TestHTTPSourceSendsHeaders(t *testing.T) {
	var got atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		http.ServeContent(w, r, "x", time.Time{}, bytes.NewReader([]byte("data")))
	}))
	t.Cleanup(srv.Close)

	opts := Options{Header: http.Header{"Authorization": []string{"Bearer tok"}}}

	src, err := newHTTPSource(context.Background(), mustParseURL(t, srv.URL), opts)
	require.NoError(t, err)

	defer src.Close()

	assert.Equal(t, "Bearer tok", got.Load())
}

func TestOpenWrapsHTTPInCache(t *testing.T) {
	content := bytes.Repeat([]byte("z"), 4096)
	srv, calls := rangeServer(t, content)

	src, err := Open(context.Background(), srv.URL, Options{Cache: CacheWhole})
	require.NoError(t, err)

	defer src.Close()

	p := make([]byte, 16)

	_, err = src.ReadAt(p, 0)
	require.NoError(t, err)

	_, err = src.ReadAt(p, 2048)
	require.NoError(t, err)

	// probe plus the single whole-object fetch
	assert.Equal(t, int64(2), calls.Load())
}

func TestContentRangeTotal(t *testing.T) {
	total, err := contentRangeTotal("bytes 0-0/4423680")
	require.NoError(t, err)
	assert.Equal(t, int64(4423680), total)

	_, err = contentRangeTotal("bytes 0-0")
	assert.Error(t, err)

	_, err = contentRangeTotal("bytes 0-0/x")
	assert.Error(t, err)
}

func TestBasename(t *testing.T) {
	assert.Equal(t, "test0.fits", basename(mustParseURL(t, "https://example.com/a/test0.fits")))
	assert.Equal(t, "a", basename(mustParseURL(t, "https://example.com/a/")))
	assert.Equal(t, "example.com", basename(mustParseURL(t, "https://example.com")))
}
