package timer

import (
	"github.com/mpkernel/core/internal/kerrors"
)

// ClockID names which of spec §4.11's three notional clocks an
// interval timer is bound to. Only ClockReal is required by the
// core; ClockVirtual/ClockProfiling are carried as the spec allows
// ("may be stubs") so a future accounting hook has a defined home.
type ClockID int

const (
	ClockReal ClockID = iota
	ClockVirtual
	ClockProfiling
)

// ItimerVal is spec §3's "itimerval": an initial delay plus a
// repeating interval, both in nanoseconds. A zero Interval makes the
// timer one-shot.
type ItimerVal struct {
	InitialNS  int64
	IntervalNS int64
}

// IntervalTimer binds a timer.Node to one of the three clock
// identities, tracking enabled state and remaining-intervals count
// per spec §3 "Interval timer".
type IntervalTimer struct {
	chain  *Chain
	clock  ClockID
	node   *Node
	val    ItimerVal
	armed  bool
	remain int64 // -1 means unbounded
}

// NewIntervalTimer constructs a disarmed interval timer on clock,
// invoking handler on each firing (handler receives the missed-
// interval count, per Chain.Process).
func NewIntervalTimer(chain *Chain, clock ClockID, handler func(missed int)) *IntervalTimer {
	it := &IntervalTimer{chain: chain, clock: clock, remain: -1}
	it.node = &Node{Handler: func(missed int) {
		it.onFire(missed)
		if handler != nil {
			handler(missed)
		}
	}}
	return it
}

// Arm starts (or rearms) the timer at nowNS + val.InitialNS, repeating
// every val.IntervalNS thereafter unless IntervalNS is zero.
// maxFirings, if > 0, disarms the timer after that many firings
// (spec §3's "remaining-intervals count"); 0 behaves as 1, and a
// negative value (e.g. -1) means unbounded.
func (it *IntervalTimer) Arm(nowNS int64, val ItimerVal, maxFirings int64) error {
	if val.InitialNS < 0 || val.IntervalNS < 0 {
		return kerrors.Wrap(kerrors.ErrInvalidArgument, "itimerval must be non-negative")
	}
	if it.armed {
		it.chain.Remove(it.node)
	}
	it.val = val
	it.remain = maxFirings
	it.node.Expires = nowNS + val.InitialNS
	it.node.Interval = val.IntervalNS
	it.chain.Add(it.node)
	it.armed = true
	return nil
}

// Disarm removes the timer from the chain without invoking its
// handler.
func (it *IntervalTimer) Disarm() {
	if !it.armed {
		return
	}
	it.chain.Remove(it.node)
	it.armed = false
}

// Enabled reports whether the timer is currently armed.
func (it *IntervalTimer) Enabled() bool { return it.armed }

// onFire is invoked (via the chain's handler callback, lock released)
// on every firing; it decrements the remaining-firings count and
// disarms once exhausted, matching real itimer "it_value reaches
// zero and it_interval is zero" semantics generalized to a bounded
// repeat count.
func (it *IntervalTimer) onFire(missed int) {
	if it.val.IntervalNS == 0 {
		it.armed = false // a one-shot node is not re-queued after firing
		return
	}
	if it.remain < 0 {
		return
	}
	it.remain -= int64(1 + missed)
	if it.remain <= 0 {
		// Chain.Process already re-queued a periodic node before
		// invoking this handler (lock released); pull it back out now
		// that the bounded firing count is exhausted.
		it.chain.Remove(it.node)
		it.armed = false
	}
}
