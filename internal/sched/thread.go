// Package sched implements the per-CPU run-queue scheduler core:
// the run-queue abstraction, FIFO and round-robin policies, and
// thread lifecycle/dispatch/blocking (spec §4.4-4.7).
//
// Grounded on other_examples/*toysched-step4..7* (a from-scratch
// G/M/P-style toy scheduler: run queues, a dispatch loop, blocking via
// channels) for the overall shape, and on biscuit's
// proc_new/_thread_new lifecycle pattern in main.go, generalized from
// process-level to the spec's thread-level model. Per the spec's
// Design Notes, threads are arena-allocated and referenced by a
// stable handle (cpu.ThreadHandle) everywhere outside this package;
// no other package stores a *Thread directly.
package sched

import (
	"github.com/mpkernel/core/internal/cpu"
)

// ThreadID is the stable handle by which every other subsystem
// (run-queues, mutexes, timers) refers to a thread.
type ThreadID = cpu.ThreadHandle

// State is a thread's lifecycle state (spec §3 "Thread").
type State int

const (
	Ready State = iota
	Running
	Pending
	Delay
	Suspended
	CancelArmed
	Canceling
	Completed
	Terminated
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Pending:
		return "pending"
	case Delay:
		return "delay"
	case Suspended:
		return "suspended"
	case CancelArmed:
		return "cancel-armed"
	case Canceling:
		return "canceling"
	case Completed:
		return "completed"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// CancelState and CancelType implement spec §4.7 "Cancellation".
type CancelState int

const (
	CancelEnabled CancelState = iota
	CancelDisabled
)

type CancelType int

const (
	CancelDeferred CancelType = iota
	CancelAsync
)

// CleanupFn is one entry of a thread's cleanup-handler chain, run in
// LIFO order on completion (spec §3 "Thread", §4.7 "Termination").
type CleanupFn func()

// Attrs configures spawn.
type Attrs struct {
	Name        string
	PolicyID    PolicyID
	Params      PolicyParams // tagged per-policy blob, e.g. FIFOParams/RRParams
	Affinity    *cpu.Set
	StackSize   int
	StartSuspended bool
	Joinable    bool
	CancelState CancelState
	CancelType  CancelType
}

// Thread is the canonical thread record (spec §3). Only the scheduler
// core mutates it; everything else goes through ThreadID + the
// scheduler's API.
type Thread struct {
	ID       ThreadID
	Name     string
	PolicyID PolicyID
	Params   PolicyParams
	Affinity *cpu.Set
	State    State

	CPUIdx int // valid when State == Running

	// Queue hooks: which run-queue (if any) currently owns this
	// thread, recorded by scope/policy rather than a raw pointer per
	// the spec's Design Notes.
	queueScope queueScope

	StackSize  int
	FreeOnExit bool

	FPUUser bool

	PendingSignal uint64
	BlockedSignal uint64

	OwnedMutexes []MutexLike

	// Killed marks a thread forcibly terminated via Scheduler.Kill: its
	// next dispatch (or, if it was never dispatched, the kill itself)
	// completes it with the killed retval instead of running its entry
	// point, the same short-circuit CancelArmed uses for async cancel.
	Killed bool

	// waitObj is the blocking primitive this thread is currently
	// parked on, if any; Cancel uses it to implement spec §4.7's "wait
	// returns with an interruption status" path instead of only
	// marking a pending flag a deferred-cancel thread must poll.
	waitObj Waitable

	cleanup []CleanupFn

	Joinable   bool
	Joiner     ThreadID
	RetVal     interface{}
	completion chan struct{}

	CyclesRun    int64
	ResumeTSNS   int64

	CancelState   CancelState
	CancelType    CancelType
	CancelPending bool

	entry func(arg interface{}) interface{}
	arg   interface{}
}

// MutexLike is the minimal view of a mutex the thread record needs
// (full ownership list bookkeeping for priority-inheritance restore on
// forced termination), satisfied by internal/kmutex.Mutex.
type MutexLike interface {
	OwnerReleaseForTermination()
}

// Waitable is implemented by blocking primitives (mutexes, timed
// sleeps) so Cancel can pull a blocked thread out of
// whatever wait-queue it sits on, per spec §4.7 "Cancellation during a
// mutex wait: the wait returns with an interruption status and the
// mutex is not acquired." Interrupt reports whether id was actually
// waiting here (a no-op call after the wait already resolved returns
// false).
type Waitable interface {
	Interrupt(id ThreadID) bool
}

// queueScope names where in the run-queue hierarchy a Ready thread
// currently sits, used only for bookkeeping/remove(); see runqueue.go.
type queueScope struct {
	kind ScopeKind
	cpu  int
	grp  cpu.GroupID
}

// ScopeKind enumerates the three places a thread's queue hook can
// point, per spec §4.7 reschedule()'s search order.
type ScopeKind int

const (
	ScopeNone ScopeKind = iota
	ScopeCPU
	ScopeGroup
	ScopeSystem
)

// PushCleanup appends a handler to the LIFO cleanup chain.
func (t *Thread) PushCleanup(fn CleanupFn) { t.cleanup = append(t.cleanup, fn) }

func (t *Thread) runCleanup() {
	for i := len(t.cleanup) - 1; i >= 0; i-- {
		t.cleanup[i]()
	}
}
