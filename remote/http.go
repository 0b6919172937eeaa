package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// HTTPSource is used to register the HTTP(S) backend with a SourceMux.
//
//nolint:gochecknoglobals
var HTTPSource = SourceProviderFunc(newHTTPSource, "http", "https")

// httpSource reads an HTTP-hosted object with Range requests. Servers that
// ignore Range get their whole body buffered once instead, so the source
// still works, it is just no longer partial.
type httpSource struct {
	ctx    context.Context
	u      *url.URL
	client *http.Client
	hdr    http.Header
	size   int64

	mu    sync.Mutex
	whole []byte
}

func newHTTPSource(ctx context.Context, u *url.URL, opts Options) (Source, error) {
	opts = opts.withDefaults()

	s := &httpSource{
		ctx:    ctx,
		u:      u,
		client: opts.HTTPClient,
		hdr:    opts.Header,
	}

	// probe range support with a one-byte request
	resp, err := s.request("bytes=0-0")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		total, err := contentRangeTotal(resp.Header.Get("Content-Range"))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", u, err)
		}

		s.size = total
		_, _ = io.Copy(io.Discard, resp.Body)
	case http.StatusOK:
		// no range support; buffer the body now
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", u, err)
		}

		s.whole = body
		s.size = int64(len(body))
	default:
		return nil, httpError(http.MethodGet, resp.StatusCode)
	}

	return s, nil
}

func (s *httpSource) request(rangeHdr string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.u.String(), nil)
	if err != nil {
		return nil, err
	}

	for k, vs := range s.hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if rangeHdr != "" {
		req.Header.Set("Range", rangeHdr)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == 0 || resp.StatusCode >= 400 {
		resp.Body.Close()

		return nil, httpError(http.MethodGet, resp.StatusCode)
	}

	return resp, nil
}

func (s *httpSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("http read: negative offset %d", off)
	}

	if off >= s.size {
		return 0, io.EOF
	}

	want := int64(len(p))
	if off+want > s.size {
		want = s.size - off
	}

	s.mu.Lock()
	whole := s.whole
	s.mu.Unlock()

	if whole != nil {
		n := copy(p, whole[off:off+want])
		if int64(n) < int64(len(p)) {
			return n, io.EOF
		}

		return n, nil
	}

	resp, err := s.request(fmt.Sprintf("bytes=%d-%d", off, off+want-1))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		// the server stopped honouring ranges; fall back to buffering
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", s.u, err)
		}

		s.mu.Lock()
		s.whole = body
		s.size = int64(len(body))
		s.mu.Unlock()

		return s.ReadAt(p, off)
	}

	n, err := io.ReadFull(resp.Body, p[:want])
	if err != nil {
		return n, fmt.Errorf("read %s: %w", s.u, err)
	}

	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}

	return n, nil
}

func (s *httpSource) Size() int64  { return s.size }
func (s *httpSource) URL() string  { return s.u.String() }
func (s *httpSource) Name() string { return basename(s.u) }
func (s *httpSource) Close() error { return nil }

// contentRangeTotal parses the total length out of a Content-Range header
// such as "bytes 0-0/4423680".
func contentRangeTotal(v string) (int64, error) {
	i := strings.LastIndex(v, "/")
	if i == -1 {
		return 0, fmt.Errorf("bad Content-Range %q", v)
	}

	total, err := strconv.ParseInt(v[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad Content-Range %q", v)
	}

	return total, nil
}

// httpError represents an HTTP error with its status code
func httpError(method string, statusCode int) error {
	return httpErr{method: method, statusCode: statusCode}
}

type httpErr struct {
	method     string
	statusCode int
}

func (e httpErr) Error() string {
	return fmt.Sprintf("http %s failed with status %d", e.method, e.statusCode)
}

func (e httpErr) StatusCode() int { return e.statusCode }
