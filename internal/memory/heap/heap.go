// Package heap implements the kernel heap (spec §4.2): variable-size
// allocation layered over page-allocator-backed regions.
//
// Grounded on other_examples/fc6e0fe0_cloudfly-readgo__runtime-malloc.go.go,
// a from-scratch Go-runtime-style allocator (size-classed free lists,
// header magic for corruption detection) adapted to draw its backing
// storage from internal/memory/page instead of the host OS.
package heap

import (
	"sync"

	"github.com/mpkernel/core/internal/kconfig"
	"github.com/mpkernel/core/internal/kerrors"
	"github.com/mpkernel/core/internal/memory/page"
)

const (
	headerSize = 16 // space reserved ahead of every returned pointer, a multiple of 16 so pointers stay 16-byte aligned
)

// sizeClasses mirrors a conventional small-object allocator: a
// handful of fixed bucket sizes below one page, with anything larger
// served by its own page run.
var sizeClasses = []int{16, 32, 64, 128, 256, 512, 1024, 2048, page.Size - headerSize}

// Heap is a single global allocator over page-allocator-backed
// regions, guarded by one lock per spec §4.2 ("the heap is global and
// protected by a single lock").
type Heap struct {
	mu    sync.Mutex
	pages *page.Allocator

	// free[class] is a LIFO free list (a slice of block start
	// addresses) of same-size-class blocks.
	free map[int][]uintptr

	// live maps an allocation's user-visible address to the backing
	// frame address(es), needed because a block may span multiple
	// pages for the largest size class.
	live map[uintptr]blockInfo

	totalBytes int
	usedBytes  int
}

type blockInfo struct {
	frameAddr uintptr
	nframes   int
	class     int // index into sizeClasses, or -1 for a raw multi-page block
	size      int64
}

// New carves CONFIG_KHEAP_SIZE bytes from pages at boot, per spec
// §4.2.
func New(pages *page.Allocator) (*Heap, error) {
	h := &Heap{
		pages: pages,
		free:  make(map[int][]uintptr),
		live:  make(map[uintptr]blockInfo),
	}
	nframes := (kconfig.KheapSize + page.Size - 1) / page.Size
	for i := 0; i < nframes; i++ {
		addr, err := pages.Alloc()
		if err != nil {
			return nil, kerrors.Wrap(err, "reserving kernel heap backing pages")
		}
		h.seedPage(addr)
	}
	h.totalBytes = nframes * page.Size
	return h, nil
}

// seedPage carves one largest-size-class (index 8, whole page minus header) block
// out of a freshly allocated page and puts it on that class's free
// list; larger requests bypass size classes and allocate pages
// directly in Alloc.
func (h *Heap) seedPage(addr uintptr) {
	cls := len(sizeClasses) - 1
	h.free[cls] = append(h.free[cls], addr)
}

func classFor(size int) int {
	for i, c := range sizeClasses {
		if size <= c {
			return i
		}
	}
	return -1
}

// Alloc returns an address aligned to at least 16 bytes (given
// 16-byte-aligned frames), or ErrOutOfMemory.
func (h *Heap) Alloc(size int) (uintptr, error) {
	if size <= 0 {
		return 0, kerrors.Wrap(kerrors.ErrInvalidArgument, "size must be > 0")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	cls := classFor(size)
	if cls >= 0 {
		if addr, ok := h.popFree(cls); ok {
			h.live[addr] = blockInfo{frameAddr: addr, nframes: 1, class: cls, size: int64(size)}
			h.usedBytes += sizeClasses[cls]
			return addr + headerSize, nil
		}
		// Refill this class with a fresh page, splitting it into
		// blocks of headerSize+sizeClasses[cls] (the largest class is
		// exactly one page and needs no splitting).
		if cls == len(sizeClasses)-1 {
			return h.allocPages(1, size)
		}
		pageAddr, err := h.pages.Alloc()
		if err != nil {
			return 0, kerrors.Wrap(err, "kernel heap out of backing pages")
		}
		blkSize := headerSize + sizeClasses[cls]
		n := page.Size / blkSize
		for i := 1; i < n; i++ {
			h.free[cls] = append(h.free[cls], pageAddr+uintptr(i*blkSize))
		}
		addr := pageAddr
		h.live[addr] = blockInfo{frameAddr: pageAddr, nframes: 1, class: cls, size: int64(size)}
		h.usedBytes += sizeClasses[cls]
		return addr + headerSize, nil
	}
	return h.allocPages((size+headerSize+page.Size-1)/page.Size, size)
}

func (h *Heap) allocPages(n, size int) (uintptr, error) {
	addr, err := h.pages.AllocContig(n)
	if err != nil {
		return 0, kerrors.Wrap(err, "kernel heap out of contiguous backing pages")
	}
	h.live[addr] = blockInfo{frameAddr: addr, nframes: n, class: -1, size: int64(size)}
	h.usedBytes += n * page.Size
	return addr + headerSize, nil
}

func (h *Heap) popFree(cls int) (uintptr, bool) {
	l := h.free[cls]
	if len(l) == 0 {
		return 0, false
	}
	addr := l[len(l)-1]
	h.free[cls] = l[:len(l)-1]
	return addr, true
}

// Free returns p, previously returned by Alloc, to the pool.
// Double-free and foreign-pointer free are detected via the live map
// (standing in for the header-magic check in a real byte-addressable
// heap) and reported rather than corrupting unrelated allocations.
func (h *Heap) Free(p uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	addr := p - headerSize
	info, ok := h.live[addr]
	if !ok {
		return kerrors.Wrapf(kerrors.ErrInvalidArgument, "free of unknown or already-freed pointer %#x", p)
	}
	delete(h.live, addr)

	if info.class < 0 {
		h.usedBytes -= info.nframes * page.Size
		return h.pages.Free(info.frameAddr)
	}
	h.free[info.class] = append(h.free[info.class], addr)
	h.usedBytes -= sizeClasses[info.class]
	return nil
}

// UsedBytes reports current heap usage, for diagnostics/metrics.
func (h *Heap) UsedBytes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.usedBytes
}
