package sched

// PolicyID names a scheduling policy. The spec's "opaque per-policy
// parameter blob" (Design Notes) becomes a small tagged interface
// here: each policy defines its own Params type and type-asserts it
// back, rather than casting a fixed-size byte array.
type PolicyID int

const (
	PolicyFIFO PolicyID = iota
	PolicyRR
)

// PolicyParams is the tagged per-policy scheduling parameter blob
// (spec §3 "Thread", Design Notes "opaque parameter blob").
type PolicyParams interface {
	Policy() PolicyID
	Priority() int
	// WithPriority returns a copy of this params blob with Priority()
	// replaced, used by priority-set and by kmutex's priority-inheritance
	// boost/restore to mutate priority without knowing the concrete
	// per-policy type.
	WithPriority(prio int) PolicyParams
}

// FIFOParams is PolicyFIFO's parameter blob: just a priority.
type FIFOParams struct {
	Prio int
}

func (p FIFOParams) Policy() PolicyID { return PolicyFIFO }
func (p FIFOParams) Priority() int    { return p.Prio }
func (p FIFOParams) WithPriority(prio int) PolicyParams {
	p.Prio = prio
	return p
}

// RRParams is PolicyRR's parameter blob: priority plus time-slice
// state (spec §4.6).
type RRParams struct {
	Prio            int
	TimeSliceNS     int64
	RemainSliceNS   int64
}

func (p RRParams) Policy() PolicyID { return PolicyRR }
func (p RRParams) Priority() int    { return p.Prio }
func (p RRParams) WithPriority(prio int) PolicyParams {
	p.Prio = prio
	return p
}

// precedence defines the cross-policy comparison order for
// reschedule() (spec §4.7 "governed by a policy-precedence index").
// Lower value compares as higher precedence. RR and FIFO share
// precedence in this core (both are fixed-priority classes over the
// same 0..MaxPriority range); a future deadline/fair-share class would
// slot in at a different precedence without touching this logic,
// per SPEC_FULL.md's sched_policy.c-derived precedence-accessor
// supplement.
var policyPrecedence = map[PolicyID]int{
	PolicyFIFO: 0,
	PolicyRR:   0,
}

func precedenceOf(p PolicyID) int { return policyPrecedence[p] }

// threadPrecedenceCompare implements spec §4.7's
// thread_precedence_compare: within a policy (or across policies of
// equal precedence), the thread with the numerically higher priority
// wins (spec's adopted open-question resolution: higher number =
// higher priority), uniformly for FIFO and RR.
func threadPrecedenceCompare(a, b PolicyParams) bool {
	pa, pb := precedenceOf(a.Policy()), precedenceOf(b.Policy())
	if pa != pb {
		return pa < pb
	}
	return a.Priority() > b.Priority()
}
