package sched

// rrPolicy implements spec §4.6: same transition rules as FIFO, plus a
// per-thread time slice decremented on every tick; at zero Tick reports
// it expired and refills it, and Scheduler.Tick requests a reschedule.
// The thread is not re-enqueued at the tail of its priority: Reschedule
// does not replace a running thread with one of equal priority, so
// equal-priority RR threads take turns only when they Yield or block. A
// preempted RR thread that resumes continues with its *unused* slice
// (RemainSliceNS survives a Preempted enqueue unchanged) rather than
// being reset, per spec §4.6's explicit requirement.
type rrPolicy struct{}

var RR Policy = rrPolicy{}

func (rrPolicy) ID() PolicyID          { return PolicyRR }
func (rrPolicy) NewRunQueue() RunQueue { return newPriorityRunQueue() }

func (rrPolicy) PlacementFor(reason ReadyReason) bool {
	switch reason {
	case ReasonPreempted, ReasonPriorityLowered:
		return true // head
	default:
		return false // tail
	}
}

// Tick decrements the running thread's remaining slice; at zero it
// reports expired and returns the slice refilled for its next turn.
func (rrPolicy) Tick(params PolicyParams) (PolicyParams, bool) {
	rr, ok := params.(RRParams)
	if !ok {
		return params, false
	}
	rr.RemainSliceNS -= tickPeriodNS
	if rr.RemainSliceNS <= 0 {
		expired := rr
		expired.RemainSliceNS = rr.TimeSliceNS // refilled for the next dispatch
		return expired, true
	}
	return rr, false
}

// tickPeriodNS is the nanosecond duration Tick is assumed to be
// called at; the scheduler core calls Tick once per HZ tick, so this
// mirrors kconfig.HZ rather than a wall-clock read, keeping the RR
// policy itself free of a ktime dependency.
var tickPeriodNS int64 = int64(1e9) / int64(1000)

// SetTickPeriodNS lets the scheduler core configure the assumed tick
// period to match kconfig.HZ at boot.
func SetTickPeriodNS(ns int64) { tickPeriodNS = ns }
