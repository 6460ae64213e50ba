package cpu

import (
	"sync"

	"github.com/mpkernel/core/internal/kconfig"
	"github.com/mpkernel/core/internal/platform"
)

// ThreadHandle is an opaque, stable reference to a thread. The
// scheduler owns the arena threads live in; per the spec's Design
// Notes, per-CPU state never stores a raw thread pointer, only this
// handle, so ownership and lifetime stay in one place.
type ThreadHandle uint64

// NoThread is the zero handle, meaning "none".
const NoThread ThreadHandle = 0

// Record is the per-CPU state named in spec §3: current/previous/idle
// thread handles, the FPU owner, a saved-context slot for the idle
// path, and a lock. Only the owning CPU writes Current; other CPUs
// may read it under Lock (e.g. to decide whether an IPI is needed).
type Record struct {
	Idx int

	mu sync.Mutex

	Current  ThreadHandle
	Previous ThreadHandle
	Idle     ThreadHandle
	FPUOwner ThreadHandle

	// SavedContext is an opaque blob written/read by the context-switch
	// path; the core never interprets its contents, only the
	// architecture glue does (out of scope per spec §1).
	SavedContext []byte

	// MonotonicClockID names which ktime.Counter backs this CPU's
	// reschedule-IPI-triggered flag check.
	MonotonicClockID string

	// RescheduleIPIPending is set by a remote CPU requesting this CPU
	// reschedule and cleared by the tick/IPI handler.
	RescheduleIPIPending bool
}

// Lock/Unlock expose the per-CPU lock explicitly, per the spec's
// Design Notes call for typed, explicit access rather than ambient
// global state.
func (r *Record) Lock()   { r.mu.Lock() }
func (r *Record) Unlock() { r.mu.Unlock() }

// Table owns every CPU's Record plus the platform.LocalController
// used to resolve "the current CPU".
type Table struct {
	mu          sync.RWMutex
	records     []*Record
	controllers map[int]platform.LocalController
}

// NewTable allocates n CPU records (indices 0..n-1, unpopulated
// controllers); the caller binds each CPU's controller with
// BindController (cmd/ksim does so for every CPU before SMP bringup).
func NewTable(n int) *Table {
	if n > kconfig.MaxCPUs {
		n = kconfig.MaxCPUs
	}
	t := &Table{
		records:     make([]*Record, n),
		controllers: make(map[int]platform.LocalController),
	}
	for i := range t.records {
		t.records[i] = &Record{Idx: i}
	}
	return t
}

// BindController associates idx's local interrupt controller.
func (t *Table) BindController(idx int, lc platform.LocalController) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.controllers[idx] = lc
}

// N returns the number of CPU records.
func (t *Table) N() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Record returns the CPU record for idx.
func (t *Table) Record(idx int) *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[idx]
}

// Controller returns idx's local interrupt controller.
func (t *Table) Controller(idx int) platform.LocalController {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.controllers[idx]
}

// WithLocal resolves "the current CPU" via its bound controller's
// LocalID and invokes fn with its record, the explicit-access pattern
// the spec's Design Notes prescribe in place of an ambient
// current_cpu() that any code can call without acknowledging which
// lock protects what.
func (t *Table) WithLocal(lc platform.LocalController, fn func(r *Record)) {
	idx := lc.LocalID()
	r := t.Record(idx)
	r.Lock()
	defer r.Unlock()
	fn(r)
}

// IndexOf resolves lc's CPU index without taking its lock, used by
// code (like run-queue selection) that only needs the index.
func (t *Table) IndexOf(lc platform.LocalController) int { return lc.LocalID() }
