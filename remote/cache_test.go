package remote

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is an in-memory backend that records every ReadAt issued
// against it.
type fakeSource struct {
	data  []byte
	reads []int64
}

func (s *fakeSource) ReadAt(p []byte, off int64) (int, error) {
	s.reads = append(s.reads, off)

	r := bytes.NewReader(s.data)

	return r.ReadAt(p, off)
}

func (s *fakeSource) Size() int64  { return int64(len(s.data)) }
func (s *fakeSource) URL() string  { return "fake://x" }
func (s *fakeSource) Name() string { return "x" }
func (s *fakeSource) Close() error { return nil }

func cacheOver(t *testing.T, data []byte, strategy CacheStrategy, blockSize int64) (Source, *fakeSource) {
	t.Helper()

	backend := &fakeSource{data: data}

	src, err := newCachedSource(backend, Options{
		Cache:     strategy,
		BlockSize: blockSize,
		MaxBlocks: 8,
	})
	require.NoError(t, err)

	return src, backend
}

func TestCacheBlocks(t *testing.T) {
	data := []byte("0123456789abcdefghij")
	src, backend := cacheOver(t, data, CacheBlocks, 4)

	p := make([]byte, 6)

	// offset 2 spans blocks 0 and 1
	n, err := src.ReadAt(p, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "234567", string(p))
	assert.Equal(t, []int64{0, 4}, backend.reads)

	// fully cached: no new backend reads
	_, err = src.ReadAt(p, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 4}, backend.reads)

	// a later offset fetches only its own blocks
	_, err = src.ReadAt(p[:2], 13)
	require.NoError(t, err)
	assert.Equal(t, "de", string(p[:2]))
	assert.Equal(t, []int64{0, 4, 12}, backend.reads)
}

func TestCacheReadahead(t *testing.T) {
	data := []byte("0123456789abcdefghij")
	src, backend := cacheOver(t, data, CacheReadahead, 4)

	p := make([]byte, 3)

	_, err := src.ReadAt(p, 0)
	require.NoError(t, err)

	// block 0 plus the readahead of block 1
	assert.Equal(t, []int64{0, 4}, backend.reads)

	// the prefetched block serves the next read
	_, err = src.ReadAt(p, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 4, 8}, backend.reads)
}

func TestCacheReadaheadStopsAtEnd(t *testing.T) {
	data := []byte("01234567")
	src, backend := cacheOver(t, data, CacheReadahead, 4)

	p := make([]byte, 2)

	// reading the final block must not prefetch past the object
	_, err := src.ReadAt(p, 6)
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, backend.reads)
}

func TestCacheWhole(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 100)
	src, backend := cacheOver(t, data, CacheWhole, 0)

	p := make([]byte, 10)

	_, err := src.ReadAt(p, 0)
	require.NoError(t, err)

	_, err = src.ReadAt(p, 90)
	require.NoError(t, err)

	assert.Equal(t, []int64{0}, backend.reads)
}

func TestCacheShortFinalBlock(t *testing.T) {
	data := []byte("0123456789") // blocks of 4: 4, 4, 2
	src, _ := cacheOver(t, data, CacheBlocks, 4)

	p := make([]byte, 4)

	n, err := src.ReadAt(p, 8)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "89", string(p[:2]))

	_, err = src.ReadAt(p, 10)
	assert.Equal(t, io.EOF, err)
}

func TestCacheUnknownStrategy(t *testing.T) {
	_, err := newCachedSource(&fakeSource{}, Options{Cache: "bogus"})
	assert.Error(t, err)
}

func TestCachePassesThroughMetadata(t *testing.T) {
	src, _ := cacheOver(t, []byte("abc"), CacheBlocks, 4)

	assert.Equal(t, int64(3), src.Size())
	assert.Equal(t, "fake://x", src.URL())
	assert.Equal(t, "x", src.Name())
	assert.NoError(t, src.Close())
}
