package sched

// ReadyReason names why a thread is being enqueued onto a run-queue,
// driving the head-vs-tail decision (spec §4.5).
type ReadyReason int

const (
	ReasonUnblocked ReadyReason = iota
	ReasonPreempted
	ReasonYield
	ReasonPriorityRaised
	ReasonPriorityLowered
	ReasonPriorityUnchanged
	ReasonSpawn
)

// Policy is the pluggable scheduling policy interface: it owns how a
// ready transition maps to head/tail insertion and what, if anything,
// its tick hook does to the currently running thread's params.
type Policy interface {
	ID() PolicyID
	NewRunQueue() RunQueue
	// PlacementFor reports the head/tail placement for reason.
	PlacementFor(reason ReadyReason) (head bool)
	// Tick is called once per scheduler tick for the thread currently
	// running under this policy. It returns the (possibly updated)
	// params and whether the thread's slice expired and it must be
	// preempted.
	Tick(params PolicyParams) (updated PolicyParams, expired bool)
}

// fifoPolicy implements spec §4.5: priorities 0..MaxPriority, strict
// FIFO within a priority, no timeslicing ("the tick hook never
// preempts a FIFO thread in favor of an equal-or-lower-priority one" —
// enforced naturally here since Tick never reports expired).
type fifoPolicy struct{}

// FIFO is the shared fixed-priority FIFO policy instance.
var FIFO Policy = fifoPolicy{}

func (fifoPolicy) ID() PolicyID          { return PolicyFIFO }
func (fifoPolicy) NewRunQueue() RunQueue { return newPriorityRunQueue() }

func (fifoPolicy) PlacementFor(reason ReadyReason) bool {
	switch reason {
	case ReasonPreempted, ReasonPriorityLowered:
		return true // head
	default:
		return false // tail
	}
}

func (fifoPolicy) Tick(params PolicyParams) (PolicyParams, bool) {
	return params, false
}
