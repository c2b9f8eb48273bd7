// Package bufpool provides a tiered buffer pool for the page buffers that
// back outstanding OSD requests.
//
// Request pages (see pkg/request) are always multiples of PageSize. The pool
// is tiered around common allocation shapes seen on the read/write path: a
// handful of pages for a small I/O, a full stripe-unit's worth for a large
// one. Buffers larger than the large tier are allocated directly and never
// pooled, so one oversized writepages_start call cannot pin an outsized
// buffer in the pool forever.
//
// All operations are safe for concurrent use via sync.Pool.
package bufpool

import (
	"sync"
)

// PageSize is the fixed page granularity every request's page vector is
// built from.
const PageSize = 4096

// Default buffer size classes, expressed as a whole number of pages.
const (
	// DefaultSmallSize covers control-path reads and small object I/O (16 pages, 64KiB).
	DefaultSmallSize = 16 * PageSize

	// DefaultMediumSize covers a moderate multi-page read or write (256 pages, 1MiB).
	DefaultMediumSize = 256 * PageSize

	// DefaultLargeSize covers a full default object/stripe-unit write (1024 pages, 4MiB).
	DefaultLargeSize = 1024 * PageSize
)

// Pool manages a set of byte slice pools organized by size class.
// It automatically selects the appropriate pool based on requested size
// and provides fallback allocation for oversized requests.
type Pool struct {
	small      sync.Pool
	medium     sync.Pool
	large      sync.Pool
	smallSize  int
	mediumSize int
	largeSize  int
}

// Config holds configuration for creating a custom buffer pool.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		SmallSize:  DefaultSmallSize,
		MediumSize: DefaultMediumSize,
		LargeSize:  DefaultLargeSize,
	}
}

// NewPool creates a new buffer pool with the given configuration.
// If cfg is nil, default values are used.
func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		defaultCfg := DefaultConfig()
		cfg = &defaultCfg
	}

	if cfg.SmallSize <= 0 {
		cfg.SmallSize = DefaultSmallSize
	}
	if cfg.MediumSize <= 0 {
		cfg.MediumSize = DefaultMediumSize
	}
	if cfg.LargeSize <= 0 {
		cfg.LargeSize = DefaultLargeSize
	}

	p := &Pool{
		smallSize:  cfg.SmallSize,
		mediumSize: cfg.MediumSize,
		largeSize:  cfg.LargeSize,
	}

	p.small = sync.Pool{
		New: func() any {
			buf := make([]byte, p.smallSize)
			return &buf
		},
	}
	p.medium = sync.Pool{
		New: func() any {
			buf := make([]byte, p.mediumSize)
			return &buf
		},
	}
	p.large = sync.Pool{
		New: func() any {
			buf := make([]byte, p.largeSize)
			return &buf
		},
	}

	return p
}

// Get returns a byte slice of at least the requested size. The caller must
// call Put() when finished to return the buffer to the pool; a buffer above
// LargeSize is allocated directly and Put() on it is a silent no-op.
func (p *Pool) Get(size int) []byte {
	var bufPtr *[]byte

	switch {
	case size <= p.smallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= p.mediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= p.largeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}

	buf := *bufPtr
	return buf[:size]
}

// GetPages returns a page vector of n page-sized buffers carved out of a
// single pooled allocation of n*PageSize bytes.
func (p *Pool) GetPages(n int) [][]byte {
	if n <= 0 {
		return nil
	}
	backing := p.Get(n * PageSize)
	pages := make([][]byte, n)
	for i := 0; i < n; i++ {
		pages[i] = backing[i*PageSize : (i+1)*PageSize]
	}
	return pages
}

// Put returns a buffer to the pool for reuse. The buffer must have been
// obtained from Get() or GetPages() (passing its first page's backing
// slice) and must not be used after Put().
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}

	switch cap(buf) {
	case p.smallSize:
		fullBuf := buf[:cap(buf)]
		p.small.Put(&fullBuf)
	case p.mediumSize:
		fullBuf := buf[:cap(buf)]
		p.medium.Put(&fullBuf)
	case p.largeSize:
		fullBuf := buf[:cap(buf)]
		p.large.Put(&fullBuf)
	default:
		return
	}
}

// globalPool is the package-level buffer pool with default configuration.
var globalPool = NewPool(nil)

// Get returns a byte slice of at least the requested size from the global pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// GetPages returns n page-sized buffers from the global pool, backed by a
// single pooled allocation. Free the whole vector with PutPages.
func GetPages(n int) [][]byte {
	return globalPool.GetPages(n)
}

// Put returns a buffer to the global pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}

// PutPages returns a page vector obtained from GetPages to the global pool.
// It reconstructs the original backing allocation from the first page.
func PutPages(pages [][]byte) {
	if len(pages) == 0 {
		return
	}
	first := pages[0]
	backing := first[:cap(first)]
	globalPool.Put(backing)
}
