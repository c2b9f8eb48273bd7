package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAllocation(t *testing.T) {
	t.Run("AllocatesSmallBuffer", func(t *testing.T) {
		buf := Get(100)
		defer Put(buf)

		assert.GreaterOrEqual(t, len(buf), 100)
		assert.Equal(t, DefaultSmallSize, cap(buf))
	})

	t.Run("AllocatesMediumBuffer", func(t *testing.T) {
		buf := Get(DefaultSmallSize + 1)
		defer Put(buf)

		assert.GreaterOrEqual(t, len(buf), DefaultSmallSize+1)
		assert.Equal(t, DefaultMediumSize, cap(buf))
	})

	t.Run("AllocatesLargeBuffer", func(t *testing.T) {
		buf := Get(DefaultMediumSize + 1)
		defer Put(buf)

		assert.GreaterOrEqual(t, len(buf), DefaultMediumSize+1)
		assert.Equal(t, DefaultLargeSize, cap(buf))
	})

	t.Run("AllocatesOversizedBuffer", func(t *testing.T) {
		buf := Get(DefaultLargeSize + 1)
		defer Put(buf)

		assert.Equal(t, len(buf), cap(buf))
	})

	t.Run("AllocatesZeroSizeBuffer", func(t *testing.T) {
		buf := Get(0)
		defer Put(buf)

		assert.NotNil(t, buf)
		assert.Equal(t, DefaultSmallSize, cap(buf))
	})
}

func TestBufferPutAndReuse(t *testing.T) {
	t.Run("ReusesReturnedSmallBuffer", func(t *testing.T) {
		buf1 := Get(1024)
		Put(buf1)

		buf2 := Get(1024)
		Put(buf2)

		assert.Equal(t, cap(buf1), cap(buf2))
	})

	t.Run("HandlesNilPut", func(t *testing.T) {
		require.NotPanics(t, func() {
			Put(nil)
		})
	})

	t.Run("DoesNotPoolOversizedBuffers", func(t *testing.T) {
		buf := Get(2 * DefaultLargeSize)
		Put(buf)

		buf2 := Get(2 * DefaultLargeSize)
		defer Put(buf2)

		assert.Equal(t, len(buf2), cap(buf2))
	})
}

func TestCustomPool(t *testing.T) {
	pool := NewPool(&Config{
		SmallSize:  PageSize,
		MediumSize: 8 * PageSize,
		LargeSize:  64 * PageSize,
	})

	small := pool.Get(PageSize / 2)
	assert.Equal(t, PageSize, cap(small))
	pool.Put(small)

	medium := pool.Get(4 * PageSize)
	assert.Equal(t, 8*PageSize, cap(medium))
	pool.Put(medium)

	large := pool.Get(40 * PageSize)
	assert.Equal(t, 64*PageSize, cap(large))
	pool.Put(large)
}

func TestNewPoolNilAndZeroConfig(t *testing.T) {
	pool := NewPool(nil)
	buf := pool.Get(100)
	assert.Equal(t, DefaultSmallSize, cap(buf))
	pool.Put(buf)

	pool2 := NewPool(&Config{})
	buf2 := pool2.Get(100)
	assert.Equal(t, DefaultSmallSize, cap(buf2))
	pool2.Put(buf2)
}

func TestGetPagesReturnsPageSizedSlices(t *testing.T) {
	pages := GetPages(4)
	require.Len(t, pages, 4)
	for _, p := range pages {
		assert.Len(t, p, PageSize)
	}
	PutPages(pages)
}

func TestGetPagesZeroIsNil(t *testing.T) {
	assert.Nil(t, GetPages(0))
}

func TestPutPagesEmptyIsNoop(t *testing.T) {
	require.NotPanics(t, func() {
		PutPages(nil)
	})
}

func TestBufferPoolConcurrency(t *testing.T) {
	const numGoroutines = 10
	const iterations = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				size := (id*100 + j) % (4 * DefaultLargeSize)
				buf := Get(size)
				if len(buf) > 0 {
					buf[0] = byte(id)
				}
				Put(buf)
			}
		}(i)
	}

	wg.Wait()
}

func BenchmarkGetPages(b *testing.B) {
	for i := 0; i < b.N; i++ {
		pages := GetPages(16)
		PutPages(pages)
	}
}
