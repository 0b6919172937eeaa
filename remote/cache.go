package remote

import (
	"fmt"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cachedSource wraps a backend source in a block cache. Reads are rounded
// out to fixed-size blocks keyed by block index; the readahead strategy
// additionally fetches one block past the requested span.
type cachedSource struct {
	src       Source
	blockSize int64
	readahead bool

	mu     sync.Mutex
	blocks *lru.Cache[int64, []byte]
	whole  []byte
}

func newCachedSource(src Source, opts Options) (Source, error) {
	switch opts.Cache {
	case CacheWhole:
		return &cachedSource{src: src}, nil
	case CacheReadahead, CacheBlocks:
		blocks, err := lru.New[int64, []byte](opts.MaxBlocks)
		if err != nil {
			return nil, err
		}

		return &cachedSource{
			src:       src,
			blockSize: opts.BlockSize,
			readahead: opts.Cache == CacheReadahead,
			blocks:    blocks,
		}, nil
	default:
		return nil, fmt.Errorf("unknown cache strategy %q", opts.Cache)
	}
}

func (s *cachedSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("cached read: negative offset %d", off)
	}

	size := s.src.Size()
	if off >= size {
		return 0, io.EOF
	}

	want := int64(len(p))
	if off+want > size {
		want = size - off
	}

	var err error
	if s.blocks == nil {
		err = s.readWhole(p[:want], off)
	} else {
		err = s.readBlocks(p[:want], off)
	}

	if err != nil {
		return 0, err
	}

	if want < int64(len(p)) {
		return int(want), io.EOF
	}

	return int(want), nil
}

// readWhole serves the CacheWhole strategy: the first read downloads the
// entire object.
func (s *cachedSource) readWhole(p []byte, off int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.whole == nil {
		buf := make([]byte, s.src.Size())
		if _, err := s.src.ReadAt(buf, 0); err != nil {
			return err
		}

		s.whole = buf
	}

	copy(p, s.whole[off:])

	return nil
}

// readBlocks serves block-wise strategies.
func (s *cachedSource) readBlocks(p []byte, off int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := off / s.blockSize
	last := (off + int64(len(p)) - 1) / s.blockSize

	for bi := first; bi <= last; bi++ {
		block, err := s.block(bi)
		if err != nil {
			return err
		}

		blockStart := bi * s.blockSize

		// copy the overlap of this block with the request
		from := int64(0)
		if off > blockStart {
			from = off - blockStart
		}

		to := int64(len(block))
		if blockStart+to > off+int64(len(p)) {
			to = off + int64(len(p)) - blockStart
		}

		copy(p[blockStart+from-off:], block[from:to])
	}

	if s.readahead {
		// warm the next block; errors surface on the read that needs it
		next := last + 1
		if next*s.blockSize < s.src.Size() {
			_, _ = s.block(next)
		}
	}

	return nil
}

// block returns block bi, fetching and caching it on a miss. The final
// block of the object may be short. Callers must hold s.mu.
func (s *cachedSource) block(bi int64) ([]byte, error) {
	if block, ok := s.blocks.Get(bi); ok {
		return block, nil
	}

	start := bi * s.blockSize

	n := s.blockSize
	if start+n > s.src.Size() {
		n = s.src.Size() - start
	}

	block := make([]byte, n)
	if _, err := s.src.ReadAt(block, start); err != nil && err != io.EOF {
		return nil, err
	}

	s.blocks.Add(bi, block)

	return block, nil
}

func (s *cachedSource) Size() int64  { return s.src.Size() }
func (s *cachedSource) URL() string  { return s.src.URL() }
func (s *cachedSource) Name() string { return s.src.Name() }
func (s *cachedSource) Close() error { return s.src.Close() }
