package sched

import (
	"container/list"
	"sync"

	"github.com/mpkernel/core/internal/kconfig"
)

// entry is one run-queue node: a thread id plus the params snapshot it
// was enqueued with (policies compare on this, not by re-reading the
// arena, so a concurrent priority change doesn't reorder an in-flight
// comparison).
type entry struct {
	id     ThreadID
	params PolicyParams
}

// RunQueue is the abstract queue of runnable threads described in
// spec §4.4: enqueue/dequeue/remove plus the two comparison
// operations reschedule() needs. One implementation
// (priorityRunQueue, an array of per-priority FIFO queues with a
// best-priority hint) serves both FIFO and RR: the spec's two
// policies differ only in *when* they choose head-vs-tail insertion
// and in their tick hook, both of which live in fifo.go/rr.go, not
// here.
type RunQueue interface {
	// Enqueue adds id with params at the queue's head or tail.
	// against, if non-nil, is the params of the thread currently
	// running on the target CPU; Enqueue reports whether the newly
	// queued thread should preempt it.
	Enqueue(id ThreadID, params PolicyParams, head bool, against PolicyParams) (preempts bool)
	// Dequeue removes and returns the best (highest precedence then
	// highest priority) entry.
	Dequeue() (ThreadID, PolicyParams, bool)
	// Remove drops id from wherever it sits in the queue, if present.
	Remove(id ThreadID)
	// PreemptionCheck reports whether this queue's best entry should
	// preempt against.
	PreemptionCheck(against PolicyParams) bool
	// HeadCompare reports whether this queue's best entry outranks
	// other.
	HeadCompare(other PolicyParams) bool
	Len() int
}

// peeker is an optional capability: run-queues that support a
// non-destructive best-entry read implement it. priorityRunQueue
// does; Reschedule's pickBest skips any run-queue that does not
// implement it.
type peeker interface {
	Peek() (ThreadID, PolicyParams, bool)
}

func (q *priorityRunQueue) Peek() (ThreadID, PolicyParams, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.runnable == 0 {
		return 0, nil, false
	}
	for p := q.best; p >= 0; p-- {
		l := &q.queues[p]
		if l.Len() == 0 {
			continue
		}
		e := l.Front().Value.(entry)
		return e.id, e.params, true
	}
	return 0, nil, false
}

// priorityRunQueue is an array of per-priority FIFO lists indexed
// 0..MaxPriority, plus a cached best (non-empty, highest-numbered)
// priority, matching spec §3's Run-queue invariant.
type priorityRunQueue struct {
	mu       sync.Mutex
	queues   [kconfig.MaxPriority + 1]list.List
	byID     map[ThreadID]*list.Element
	byIDPrio map[ThreadID]int
	runnable int
	best     int // -1 when empty
}

func newPriorityRunQueue() *priorityRunQueue {
	return &priorityRunQueue{
		byID:     make(map[ThreadID]*list.Element),
		byIDPrio: make(map[ThreadID]int),
		best:     -1,
	}
}

func (q *priorityRunQueue) Enqueue(id ThreadID, params PolicyParams, head bool, against PolicyParams) bool {
	q.mu.Lock()
	prio := clampPriority(params.Priority())
	e := entry{id: id, params: params}
	var el *list.Element
	if head {
		el = q.queues[prio].PushFront(e)
	} else {
		el = q.queues[prio].PushBack(e)
	}
	q.byID[id] = el
	q.byIDPrio[id] = prio
	q.runnable++
	if prio > q.best {
		q.best = prio
	}
	q.mu.Unlock()

	if against == nil {
		return false
	}
	return threadPrecedenceCompare(params, against)
}

func (q *priorityRunQueue) Dequeue() (ThreadID, PolicyParams, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.runnable == 0 {
		return 0, nil, false
	}
	for p := q.best; p >= 0; p-- {
		l := &q.queues[p]
		if l.Len() == 0 {
			continue
		}
		front := l.Front()
		e := front.Value.(entry)
		l.Remove(front)
		delete(q.byID, e.id)
		delete(q.byIDPrio, e.id)
		q.runnable--
		q.recomputeBestLocked()
		return e.id, e.params, true
	}
	return 0, nil, false
}

func (q *priorityRunQueue) Remove(id ThreadID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	el, ok := q.byID[id]
	if !ok {
		return
	}
	prio := q.byIDPrio[id]
	q.queues[prio].Remove(el)
	delete(q.byID, id)
	delete(q.byIDPrio, id)
	q.runnable--
	q.recomputeBestLocked()
}

func (q *priorityRunQueue) recomputeBestLocked() {
	if q.runnable == 0 {
		q.best = -1
		return
	}
	for p := len(q.queues) - 1; p >= 0; p-- {
		if q.queues[p].Len() > 0 {
			q.best = p
			return
		}
	}
	q.best = -1
}

func (q *priorityRunQueue) PreemptionCheck(against PolicyParams) bool {
	q.mu.Lock()
	best := q.best
	q.mu.Unlock()
	if best < 0 || against == nil {
		return false
	}
	return best > against.Priority()
}

func (q *priorityRunQueue) HeadCompare(other PolicyParams) bool {
	q.mu.Lock()
	best := q.best
	q.mu.Unlock()
	if best < 0 {
		return false
	}
	if other == nil {
		return true
	}
	return best > other.Priority()
}

func (q *priorityRunQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.runnable
}

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > kconfig.MaxPriority {
		return kconfig.MaxPriority
	}
	return p
}
