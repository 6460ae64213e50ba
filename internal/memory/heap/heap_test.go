package heap_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpkernel/core/internal/memory/heap"
	"github.com/mpkernel/core/internal/memory/page"
	"github.com/mpkernel/core/internal/metrics"
)

func newTestHeap(t *testing.T) *heap.Heap {
	t.Helper()
	m := metrics.NewPageMetrics(prometheus.NewRegistry())
	pages, err := page.New(0, 8192*page.Size, m)
	require.NoError(t, err)
	h, err := heap.New(pages)
	require.NoError(t, err)
	return h
}

func TestAlloc_RejectsNonPositiveSize(t *testing.T) {
	h := newTestHeap(t)
	_, err := h.Alloc(0)
	assert.Error(t, err)
}

// TestAllocFree_RoundTrip exercises spec §8's alloc/free invariant at
// the heap layer: freeing every outstanding small-object allocation
// restores the original usage figure.
func TestAllocFree_RoundTrip(t *testing.T) {
	h := newTestHeap(t)
	before := h.UsedBytes()

	var ptrs []uintptr
	for _, size := range []int{8, 40, 100, 300, 1000} {
		p, err := h.Alloc(size)
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	assert.Greater(t, h.UsedBytes(), before)

	for _, p := range ptrs {
		require.NoError(t, h.Free(p))
	}
	assert.Equal(t, before, h.UsedBytes())
}

func TestAlloc_DistinctAllocationsDoNotOverlap(t *testing.T) {
	h := newTestHeap(t)
	seen := make(map[uintptr]bool)
	for i := 0; i < 50; i++ {
		p, err := h.Alloc(32)
		require.NoError(t, err)
		assert.False(t, seen[p], "allocator handed out the same address twice")
		seen[p] = true
	}
}

func TestAlloc_LargeRequestBypassesSizeClasses(t *testing.T) {
	h := newTestHeap(t)
	p, err := h.Alloc(3 * page.Size)
	require.NoError(t, err)
	require.NoError(t, h.Free(p))
}

func TestFree_RejectsUnknownPointer(t *testing.T) {
	h := newTestHeap(t)
	assert.Error(t, h.Free(0xdeadbeef))
}

func TestFree_RejectsDoubleFree(t *testing.T) {
	h := newTestHeap(t)
	p, err := h.Alloc(64)
	require.NoError(t, err)
	require.NoError(t, h.Free(p))
	assert.Error(t, h.Free(p))
}

func TestAlloc_ReusesFreedBlockOfSameClass(t *testing.T) {
	h := newTestHeap(t)
	p1, err := h.Alloc(16)
	require.NoError(t, err)
	require.NoError(t, h.Free(p1))

	p2, err := h.Alloc(16)
	require.NoError(t, err)
	assert.Equal(t, p1, p2, "a freed same-class block should be reused before carving a new page")
}
