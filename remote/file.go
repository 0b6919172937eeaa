package remote

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// FileSource is used to register the local-file backend with a SourceMux.
//
//nolint:gochecknoglobals
var FileSource = SourceProviderFunc(newFileSource, "file")

type fileSource struct {
	f    *os.File
	size int64
	url  string
}

func newFileSource(_ context.Context, u *url.URL, _ Options) (Source, error) {
	path := pathForURL(u)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return &fileSource{f: f, size: fi.Size(), url: u.String()}, nil
}

// pathForURL returns the filesystem path for a file URL. Windows drive
// paths and UNCs are supported.
func pathForURL(u *url.URL) string {
	path := u.Path
	if path == "" {
		return u.Opaque
	}

	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}

	// a file:// URL with a host part is a UNC
	switch u.Host {
	case ".":
		path = "//./" + path
	case "":
		// nothin'
	default:
		path = "//" + u.Host + path
	}

	return path
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }
func (s *fileSource) Size() int64                             { return s.size }
func (s *fileSource) URL() string                             { return s.url }
func (s *fileSource) Name() string                            { return filepath.Base(s.f.Name()) }
func (s *fileSource) Close() error                            { return s.f.Close() }
