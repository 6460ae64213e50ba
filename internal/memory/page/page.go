// Package page implements the physical page allocator (spec §4.1):
// it partitions usable RAM, as reported by the firmware memory map,
// into fixed-size frames and hands out single frames or contiguous
// runs.
//
// Grounded on original_source/kernel/page_alloc.c (free-list of frame
// descriptors, linear contiguous-run scan) and biscuit's convention of
// returning a sentinel (there, nil; here, an error) on exhaustion
// rather than panicking, since out-of-memory is a caller-visible
// condition, not a programming error.
package page

import (
	"sync"

	"github.com/mpkernel/core/internal/kerrors"
	"github.com/mpkernel/core/internal/metrics"
	"github.com/mpkernel/core/internal/platform"
)

// Size is the fixed frame size in bytes.
const Size = 4096

type state int

const (
	available state = iota
	allocated
	chained
	chainedLast
)

type frame_t struct {
	state state
	// prev/next form the doubly linked free list; meaningful only
	// while state == available.
	prev, next int
}

const nilFrame = -1

// Allocator owns a contiguous array of frame records indexed by frame
// number and the free list threaded through them.
type Allocator struct {
	mu sync.Mutex

	base    uintptr // physical address of frame 0
	frames  []frame_t
	freeHd  int
	freeLen int

	metrics *metrics.PageMetrics
}

// NewFromFirmwareMap reserves a frame table at the low end of the
// largest free range reported by m and places every remaining frame
// on the free list, per spec §4.1's page_alloc_init contract.
func NewFromFirmwareMap(m platform.FirmwareMap, mt *metrics.PageMetrics) (*Allocator, error) {
	var best platform.MemRange
	found := false
	for _, r := range m.Ranges() {
		if r.Kind != platform.MemFree {
			continue
		}
		if !found || (r.End-r.Start) > (best.End-best.Start) {
			best, found = r, true
		}
	}
	if !found {
		return nil, kerrors.Wrap(kerrors.ErrOutOfMemory, "no free firmware memory range")
	}
	return New(best.Start, best.End, mt)
}

// New reserves a frame table at the low end of [start, end) and
// places every remaining frame on the free list.
func New(start, end uintptr, mt *metrics.PageMetrics) (*Allocator, error) {
	if end <= start {
		return nil, kerrors.Wrap(kerrors.ErrInvalidArgument, "empty range")
	}
	total := int((end - start) / Size)
	if total <= 0 {
		return nil, kerrors.Wrap(kerrors.ErrInvalidArgument, "range smaller than one frame")
	}
	// Reserve enough frames at the low end to hold the frame table
	// itself; frame_t is small so this is conservatively one frame
	// per ~170 frames, rounded up to whole frames.
	tableBytes := total * 24 // generous upper bound per frame_t
	reserved := (tableBytes + Size - 1) / Size
	if reserved >= total {
		return nil, kerrors.Wrap(kerrors.ErrInvalidArgument, "range too small for its own frame table")
	}

	a := &Allocator{
		base:    start,
		frames:  make([]frame_t, total),
		freeHd:  nilFrame,
		metrics: mt,
	}
	for i := reserved; i < total; i++ {
		a.pushFree(i)
	}
	if mt != nil {
		mt.SetTotal(float64(a.freeLen))
		mt.SetFree(float64(a.freeLen))
	}
	return a, nil
}

func (a *Allocator) pushFree(i int) {
	a.frames[i] = frame_t{state: available, prev: nilFrame, next: a.freeHd}
	if a.freeHd != nilFrame {
		a.frames[a.freeHd].prev = i
	}
	a.freeHd = i
	a.freeLen++
}

func (a *Allocator) removeFree(i int) {
	f := &a.frames[i]
	if f.prev != nilFrame {
		a.frames[f.prev].next = f.next
	} else {
		a.freeHd = f.next
	}
	if f.next != nilFrame {
		a.frames[f.next].prev = f.prev
	}
	a.freeLen--
}

func (a *Allocator) addr(i int) uintptr { return a.base + uintptr(i)*Size }
func (a *Allocator) index(addr uintptr) (int, bool) {
	if addr < a.base {
		return 0, false
	}
	off := addr - a.base
	if off%Size != 0 {
		return 0, false
	}
	i := int(off / Size)
	if i < 0 || i >= len(a.frames) {
		return 0, false
	}
	return i, true
}

// Alloc returns one frame's address, or ErrOutOfMemory.
func (a *Allocator) Alloc() (uintptr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.freeHd == nilFrame {
		return 0, kerrors.ErrOutOfMemory
	}
	i := a.freeHd
	a.removeFree(i)
	a.frames[i].state = allocated
	a.observeFreeLocked()
	return a.addr(i), nil
}

// AllocContig returns the address of the first of n physically
// contiguous frames, or ErrOutOfMemory if no such run exists. Scan is
// O(len(frames)); see spec §4.1 for the complexity note.
func (a *Allocator) AllocContig(n int) (uintptr, error) {
	if n <= 0 {
		return 0, kerrors.Wrap(kerrors.ErrInvalidArgument, "n must be >= 1")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	run := 0
	for i := 0; i < len(a.frames); i++ {
		if a.frames[i].state == available {
			run++
			if run == n {
				start := i - n + 1
				for j := start; j < i; j++ {
					a.removeFree(j)
					a.frames[j].state = chained
				}
				a.removeFree(i)
				a.frames[i].state = chainedLast
				a.observeFreeLocked()
				return a.addr(start), nil
			}
		} else {
			run = 0
		}
	}
	return 0, kerrors.ErrOutOfMemory
}

// Free returns a single allocation or a contiguous run to the pool,
// identified by the state of the frame at addr. Freeing an address
// whose frame is not allocated/chained is a programming error: it is
// wrapped as ErrInvalidArgument for the caller to log, per spec §4.1.
func (a *Allocator) Free(addr uintptr) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	i, ok := a.index(addr)
	if !ok {
		return kerrors.Wrapf(kerrors.ErrInvalidArgument, "address %#x is not frame-aligned within range", addr)
	}
	switch a.frames[i].state {
	case allocated:
		a.pushFree(i)
	case chained, chainedLast:
		// addr must be the run's first frame: a Chained frame mid-run
		// does not identify the run's start, so only the handle
		// returned by AllocContig is a valid Free argument. Walk
		// forward freeing Chained frames until ChainedLast inclusive.
		if i > 0 && a.frames[i-1].state == chained {
			return kerrors.Wrapf(kerrors.ErrInvalidArgument, "address %#x is not the start of its run", addr)
		}
		for {
			cur := a.frames[i].state
			a.pushFree(i)
			if cur == chainedLast {
				break
			}
			i++
			if i >= len(a.frames) {
				break
			}
		}
	default:
		return kerrors.Wrapf(kerrors.ErrInvalidArgument, "double free or free of unallocated frame at %#x", addr)
	}
	a.observeFreeLocked()
	return nil
}

func (a *Allocator) observeFreeLocked() {
	if a.metrics != nil {
		a.metrics.SetFree(float64(a.freeLen))
	}
}

// FreeFrames returns the current number of frames on the free list,
// used by tests asserting the alloc/free round-trip invariant (spec §8).
func (a *Allocator) FreeFrames() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freeLen
}
