package remote

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/hairyhenderson/go-fsimpl"
	"github.com/hairyhenderson/go-fsimpl/gitfs"
)

// FSSource is used to register the go-fsimpl fallback backend with a
// SourceMux. It serves schemes with no native range support by buffering
// the whole object through an fs.FS, so exotic locations still open; they
// are just not partial reads.
//
//nolint:gochecknoglobals
var FSSource = SourceProviderFunc(newFSSource, "git", "git+file", "git+http", "git+https", "git+ssh")

//nolint:gochecknoglobals
var fallbackMux = sync.OnceValue(func() fsimpl.FSMux {
	mux := fsimpl.NewMux()
	mux.Add(gitfs.FS)

	return mux
})

func newFSSource(ctx context.Context, u *url.URL, opts Options) (Source, error) {
	base, name := splitFSURL(u)

	fsys, err := fallbackMux().Lookup(base.String())
	if err != nil {
		return nil, err
	}

	fsys = fsimpl.WithContextFS(ctx, fsys)

	if opts.Header != nil {
		fsys = fsimpl.WithHeaderFS(opts.Header, fsys)
	}

	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}

	return &memSource{data: b, url: u.String(), name: name}, nil
}

// splitFSURL separates the filesystem root from the file name. Git URLs
// use "//" to separate the repository from the path within it; the file
// name is the final element after that separator.
func splitFSURL(u *url.URL) (*url.URL, string) {
	base := *u

	p := u.Path
	if i := strings.Index(strings.TrimPrefix(p, "/"), "//"); i != -1 {
		inner := p[i+3:]
		dir, file := path.Split(inner)
		base.Path = p[:i+3] + dir

		return &base, file
	}

	dir, file := path.Split(p)
	base.Path = dir

	return &base, file
}

// memSource serves a fully-buffered object.
type memSource struct {
	data []byte
	url  string
	name string
}

func (s *memSource) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(s.data).ReadAt(p, off)
}

func (s *memSource) Size() int64  { return int64(len(s.data)) }
func (s *memSource) URL() string  { return s.url }
func (s *memSource) Name() string { return s.name }
func (s *memSource) Close() error { return nil }
