package sched

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mpkernel/core/internal/cpu"
	"github.com/mpkernel/core/internal/kconfig"
	"github.com/mpkernel/core/internal/kerrors"
	"github.com/mpkernel/core/internal/metrics"
)

// threadRuntime is the cooperative handoff between a thread's own
// goroutine and the CPU loop that dispatches it: the CPU signals
// resume to let the thread run, and waits on yield for the thread to
// relinquish the CPU (by yielding, blocking, being preempted, or
// completing). This stands in for the stack-switch a bare-metal
// context switch performs, grounded on other_examples's toysched G
// type's blockChan handshake.
type threadRuntime struct {
	resume chan struct{}
	yield  chan struct{}
}

// Scheduler is the scheduler core (spec §4.7): thread arena, dispatch,
// blocking/waking, tick hook, and termination.
type Scheduler struct {
	log *zap.Logger
	m   *metrics.SchedMetrics

	cpus   *cpu.Table
	groups *cpu.Registry

	policies map[PolicyID]Policy

	threadsMu sync.Mutex
	threads   map[ThreadID]*Thread
	runtimes  map[ThreadID]*threadRuntime
	nextID    uint64

	rqMu        sync.Mutex
	sysRQ       map[PolicyID]RunQueue
	cpuRQ       map[int]map[PolicyID]RunQueue
	grpRQ       map[cpu.GroupID]map[PolicyID]RunQueue
	knownGroups map[cpu.GroupID]*cpu.Group

	idle map[int]ThreadID
}

// New builds a scheduler over cpus/groups. Callers register FIFO and
// RR (or any Policy) with RegisterPolicy before spawning threads.
func New(cpus *cpu.Table, groups *cpu.Registry, log *zap.Logger, m *metrics.SchedMetrics) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	SetTickPeriodNS(int64(1e9) / int64(kconfig.HZ))
	return &Scheduler{
		log:      log,
		m:        m,
		cpus:     cpus,
		groups:   groups,
		policies: make(map[PolicyID]Policy),
		threads:  make(map[ThreadID]*Thread),
		runtimes: make(map[ThreadID]*threadRuntime),
		sysRQ:       make(map[PolicyID]RunQueue),
		cpuRQ:       make(map[int]map[PolicyID]RunQueue),
		grpRQ:       make(map[cpu.GroupID]map[PolicyID]RunQueue),
		knownGroups: make(map[cpu.GroupID]*cpu.Group),
		idle:        make(map[int]ThreadID),
	}
}

// RegisterPolicy publishes a policy so Spawn can target it.
func (s *Scheduler) RegisterPolicy(p Policy) { s.policies[p.ID()] = p }

func (s *Scheduler) rqFor(scope ScopeKind, cpuIdx int, grp cpu.GroupID, pid PolicyID) RunQueue {
	s.rqMu.Lock()
	defer s.rqMu.Unlock()
	switch scope {
	case ScopeCPU:
		m, ok := s.cpuRQ[cpuIdx]
		if !ok {
			m = make(map[PolicyID]RunQueue)
			s.cpuRQ[cpuIdx] = m
		}
		rq, ok := m[pid]
		if !ok {
			rq = s.policies[pid].NewRunQueue()
			m[pid] = rq
		}
		return rq
	case ScopeGroup:
		m, ok := s.grpRQ[grp]
		if !ok {
			m = make(map[PolicyID]RunQueue)
			s.grpRQ[grp] = m
		}
		rq, ok := m[pid]
		if !ok {
			rq = s.policies[pid].NewRunQueue()
			m[pid] = rq
		}
		return rq
	default:
		rq, ok := s.sysRQ[pid]
		if !ok {
			rq = s.policies[pid].NewRunQueue()
			s.sysRQ[pid] = rq
		}
		return rq
	}
}

// noteGroup records g so groupHasMember can resolve membership
// later purely from the scheduler's own state, without a reverse
// lookup API on cpu.Registry.
func (s *Scheduler) noteGroup(g *cpu.Group) {
	s.rqMu.Lock()
	s.knownGroups[g.ID] = g
	s.rqMu.Unlock()
}

// scopeFor resolves which run-queue scope a thread's affinity
// targets: a single-CPU affinity goes straight to that CPU's
// run-queue, a proper subset is interned as a CPU group, and an
// affinity covering every CPU (or none given) goes system-wide.
func (s *Scheduler) scopeFor(aff *cpu.Set) (ScopeKind, int, cpu.GroupID) {
	if aff == nil {
		return ScopeSystem, 0, 0
	}
	n := aff.Count()
	switch {
	case n == 0:
		return ScopeSystem, 0, 0
	case n == 1:
		return ScopeCPU, aff.Members()[0], 0
	case n == s.cpus.N():
		return ScopeSystem, 0, 0
	default:
		g := s.groups.Intern(aff)
		s.noteGroup(g)
		return ScopeGroup, 0, g.ID
	}
}

// Spawn creates a new thread (spec §4.7 "spawn"). It starts Ready
// (or Suspended if attrs request it) and, unless suspended, is made
// runnable on the run-queue its affinity resolves to.
func (s *Scheduler) Spawn(attrs Attrs, entry func(arg interface{}) interface{}, arg interface{}) (ThreadID, error) {
	if _, ok := s.policies[attrs.PolicyID]; !ok {
		return 0, kerrors.Wrapf(kerrors.ErrInvalidArgument, "unregistered policy %d", attrs.PolicyID)
	}
	if attrs.Params == nil || attrs.Params.Policy() != attrs.PolicyID {
		return 0, kerrors.Wrap(kerrors.ErrInvalidArgument, "params must match policy")
	}
	id := ThreadID(atomic.AddUint64(&s.nextID, 1))
	stackSize := attrs.StackSize
	if stackSize <= 0 {
		stackSize = kconfig.DefaultStackSize
	}
	t := &Thread{
		ID:          id,
		Name:        attrs.Name,
		PolicyID:    attrs.PolicyID,
		Params:      attrs.Params,
		Affinity:    attrs.Affinity,
		StackSize:   stackSize,
		FreeOnExit:  true,
		Joinable:    attrs.Joinable,
		CancelState: attrs.CancelState,
		CancelType:  attrs.CancelType,
		completion:  make(chan struct{}),
		entry:       entry,
		arg:         arg,
	}
	if attrs.StartSuspended {
		t.State = Suspended
	} else {
		t.State = Ready
	}

	rt := &threadRuntime{resume: make(chan struct{}), yield: make(chan struct{})}

	s.threadsMu.Lock()
	s.threads[id] = t
	s.runtimes[id] = rt
	s.threadsMu.Unlock()

	go s.threadMain(id)

	if t.State == Ready {
		s.makeReady(id, ReasonSpawn)
	}
	return id, nil
}

func (s *Scheduler) threadMain(id ThreadID) {
	rt := s.runtime(id)
	<-rt.resume // wait for first dispatch
	t := s.thread(id)
	ret := t.entry(t.arg)
	s.finish(id, ret, Completed)
	rt.yield <- struct{}{}
}

func (s *Scheduler) thread(id ThreadID) *Thread {
	s.threadsMu.Lock()
	defer s.threadsMu.Unlock()
	return s.threads[id]
}

func (s *Scheduler) runtime(id ThreadID) *threadRuntime {
	s.threadsMu.Lock()
	defer s.threadsMu.Unlock()
	return s.runtimes[id]
}

// makeReady transitions id to Ready and enqueues it on the run-queue
// its affinity resolves to, per reason's head/tail placement rule. Only
// a thread pinned to a single CPU is checked for preemption: if the
// enqueue reports that it beats that CPU's current thread, that CPU is
// asked to reschedule. Group- and system-scoped enqueues request no
// reschedule.
func (s *Scheduler) makeReady(id ThreadID, reason ReadyReason) {
	t := s.thread(id)
	t.State = Ready
	policy := s.policies[t.PolicyID]
	head := policy.PlacementFor(reason)

	scope, cpuIdx, grp := s.scopeFor(t.Affinity)
	t.queueScope = queueScope{kind: scope, cpu: cpuIdx, grp: grp}
	rq := s.rqFor(scope, cpuIdx, grp, t.PolicyID)

	var against PolicyParams
	targetCPU := cpuIdx
	if scope != ScopeCPU {
		targetCPU = -1 // group/system scope: no preemption check and no reschedule request
	}
	if targetCPU >= 0 {
		if cur := s.cpus.Record(targetCPU); cur != nil {
			cur.Lock()
			curID := cur.Current
			cur.Unlock()
			if curID != 0 {
				if ct := s.thread(curID); ct != nil {
					against = ct.Params
				}
			}
		}
	}

	preempts := rq.Enqueue(id, t.Params, head, against)
	if s.m != nil {
		s.m.RunqDepth.WithLabelValues(scope.label(), policyLabel(t.PolicyID)).Set(float64(rq.Len()))
	}
	if preempts && targetCPU >= 0 {
		s.requestReschedule(targetCPU)
	}
}

func (k ScopeKind) label() string {
	switch k {
	case ScopeCPU:
		return "cpu"
	case ScopeGroup:
		return "group"
	default:
		return "system"
	}
}

func policyLabel(p PolicyID) string {
	switch p {
	case PolicyFIFO:
		return "fifo"
	case PolicyRR:
		return "rr"
	default:
		return "unknown"
	}
}

// requestReschedule sets the target CPU's IPI-pending flag and, if that
// CPU has a bound controller, sends the reschedule IPI (vector 0xF3
// per spec §6) through it, whichever CPU the caller runs on.
func (s *Scheduler) requestReschedule(cpuIdx int) {
	rec := s.cpus.Record(cpuIdx)
	rec.Lock()
	rec.RescheduleIPIPending = true
	rec.Unlock()
	if s.m != nil {
		s.m.Preemptions.Inc()
	}
	if lc := s.cpus.Controller(cpuIdx); lc != nil {
		lc.SendIPI(cpuIdx, 0xF3)
	}
}

// Reschedule is the single decision point (spec §4.7): it picks the
// best runnable thread across this CPU's own run-queues, the
// run-queues of every group this CPU belongs to, and the system-wide
// run-queues, in that precedence order on ties, and switches to it if
// it beats (or replaces) the thread currently running here. If no
// thread beats the current one, it returns without switching.
func (s *Scheduler) Reschedule(cpuIdx int) {
	if s.m != nil {
		s.m.Reschedules.Inc()
	}
	rec := s.cpus.Record(cpuIdx)
	rec.Lock()
	rec.RescheduleIPIPending = false
	curID := rec.Current
	rec.Unlock()

	// A current thread that has yielded, blocked or completed no longer
	// competes: whatever wins replaces it.
	var curParams PolicyParams
	if curID != 0 {
		if ct := s.thread(curID); ct != nil && ct.State == Running {
			curParams = ct.Params
		} else {
			curID = 0
		}
	}

	best, bestRQ, ok := s.pickBest(cpuIdx, curParams)
	if !ok {
		if curID == 0 {
			s.dispatchIdle(cpuIdx)
		}
		return
	}
	if curID != 0 && !threadPrecedenceCompare(best, curParams) {
		// current thread is still at least as good; best was only
		// peeked, so it's still sitting on its run-queue untouched.
		return
	}
	s.dispatch(cpuIdx, curID, bestRQ)
}

// pickBest peeks (non-destructively where possible) the best
// candidate across CPU, group, and system scopes for cpuIdx, without
// yet committing to removing it.
func (s *Scheduler) pickBest(cpuIdx int, against PolicyParams) (PolicyParams, RunQueue, bool) {
	var bestParams PolicyParams
	var bestRQ RunQueue
	found := false

	consider := func(rq RunQueue) {
		pk, ok := rq.(peeker)
		if !ok {
			return
		}
		_, params, ok := pk.Peek()
		if !ok {
			return
		}
		if !found || threadPrecedenceCompare(params, bestParams) {
			bestParams, bestRQ, found = params, rq, true
		}
	}

	s.rqMu.Lock()
	cpuRQs := s.cpuRQ[cpuIdx]
	var groupRQs []map[PolicyID]RunQueue
	for gid, m := range s.grpRQ {
		if g, ok := s.knownGroups[gid]; ok && groupHasMember(g, cpuIdx) {
			groupRQs = append(groupRQs, m)
		}
	}
	sysRQs := s.sysRQ
	s.rqMu.Unlock()

	for _, rq := range cpuRQs {
		consider(rq)
	}
	for _, m := range groupRQs {
		for _, rq := range m {
			consider(rq)
		}
	}
	for _, rq := range sysRQs {
		consider(rq)
	}
	return bestParams, bestRQ, found
}

// groupHasMember scans g's (immutable, small) member list; cheap
// relative to the dispatch decision as a whole.
func groupHasMember(g *cpu.Group, cpuIdx int) bool {
	for _, m := range g.Members {
		if m == cpuIdx {
			return true
		}
	}
	return false
}

// dispatch performs the context switch (spec §4.7 "Context switch"):
// the outgoing thread (if any) is transitioned back to Ready and
// re-enqueued if it's still runnable, the incoming thread is removed
// from its run-queue and marked Running, and control is handed to its
// goroutine via the cooperative resume/yield channels.
func (s *Scheduler) dispatch(cpuIdx int, outgoing ThreadID, winnerRQ RunQueue) {
	id, params, ok := winnerRQ.Dequeue()
	if !ok {
		return
	}

	rec := s.cpus.Record(cpuIdx)

	if outgoing != 0 {
		ot := s.thread(outgoing)
		if ot != nil && ot.State == Running {
			s.makeReady(outgoing, ReasonPreempted)
		}
	}

	t := s.thread(id)
	// spec §4.7: "the next dispatch into t immediately raises the cancel
	// path" for an async-canceled thread, and the same applies to a
	// forced Kill. This is the single chokepoint every dispatch passes
	// through (whether it's a thread's first dispatch ever, or its
	// hundredth after repeated Yield/Block cycles), so checking here
	// catches a cancel/kill delivered at any point in a thread's life,
	// not just before it starts running. The thread's goroutine is left
	// parked forever on its resume channel; it is never referenced again.
	if t.State == CancelArmed || t.Killed {
		retval := canceledRetval
		if t.Killed {
			retval = killedRetval
		}
		s.finish(id, retval, Completed)
		rec.Lock()
		rec.Previous = rec.Current
		rec.Current = 0
		rec.Unlock()
		return
	}
	t.State = Running
	t.CPUIdx = cpuIdx
	t.Params = params

	rec.Lock()
	rec.Previous = rec.Current
	rec.Current = id
	rec.Unlock()

	if s.m != nil {
		s.m.ContextSwitches.Inc()
	}

	rt := s.runtime(id)
	rt.resume <- struct{}{}
	<-rt.yield
}

// SpawnIdle creates cpuIdx's idle thread: priority 0, pinned to
// cpuIdx, parked until dispatchIdle runs it. idleBody should loop
// until stop is closed, e.g. parking on a channel/short sleep to
// model a halt instruction rather than busy-spinning the host CPU.
func (s *Scheduler) SpawnIdle(cpuIdx int, idleBody func(stop <-chan struct{})) (ThreadID, error) {
	stop := make(chan struct{})
	affinity := cpu.NewSet().Add(cpuIdx)
	id, err := s.Spawn(Attrs{
		Name:           "idle",
		PolicyID:       PolicyFIFO,
		Params:         FIFOParams{Prio: 0},
		Affinity:       affinity,
		Joinable:       false,
		StartSuspended: true,
	}, func(arg interface{}) interface{} {
		idleBody(stop)
		return nil
	}, nil)
	if err != nil {
		return 0, err
	}
	// The idle thread is never placed on a run-queue: dispatchIdle
	// switches to it directly when no runnable candidate exists, per
	// spec §3's invariant that "current" is always either the idle
	// thread or a Running thread on this CPU.
	s.rqMu.Lock()
	s.idle[cpuIdx] = id
	s.rqMu.Unlock()
	s.cpus.Record(cpuIdx).Idle = id
	return id, nil
}

func (s *Scheduler) dispatchIdle(cpuIdx int) {
	s.rqMu.Lock()
	id, ok := s.idle[cpuIdx]
	s.rqMu.Unlock()
	if !ok {
		return
	}
	t := s.thread(id)
	if t.State == Running {
		return
	}
	t.State = Running
	t.CPUIdx = cpuIdx
	rec := s.cpus.Record(cpuIdx)
	rec.Lock()
	rec.Previous = rec.Current
	rec.Current = id
	rec.Unlock()
	rt := s.runtime(id)
	rt.resume <- struct{}{}
	<-rt.yield
}

// RunCPU drives cpuIdx's dispatch loop until stop is closed: it
// repeatedly reschedules, which blocks (via the resume/yield
// handshake) for as long as the dispatched thread runs. This is the
// host-side stand-in for "the CPU fetches and executes instructions";
// cmd/ksim runs one of these per simulated CPU.
func (s *Scheduler) RunCPU(cpuIdx int, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		s.Reschedule(cpuIdx)
	}
}

// Tick is the periodic tick hook (spec §4.7 "Tick hook"), called from
// the local clock eventer's handler on cpuIdx. It advances the running
// thread's accounting, calls its policy's tick hook, and on RR slice
// exhaustion requests a reschedule of cpuIdx. The thread is not
// re-enqueued at its priority's tail: it keeps running until it yields
// or blocks, as Reschedule does not replace it with a thread of equal
// priority.
func (s *Scheduler) Tick(cpuIdx int) {
	rec := s.cpus.Record(cpuIdx)
	rec.Lock()
	curID := rec.Current
	rec.Unlock()
	if curID == 0 {
		return
	}
	t := s.thread(curID)
	if t == nil || t.State != Running {
		return
	}
	t.CyclesRun++
	policy := s.policies[t.PolicyID]
	updated, expired := policy.Tick(t.Params)
	t.Params = updated
	if expired {
		s.requestReschedule(cpuIdx)
	}
}

// ProcessPendingIPI runs Reschedule if cpuIdx has a pending
// IPI-triggered reschedule request, called from the tick handler and
// from the reschedule-IPI vector handler itself.
func (s *Scheduler) ProcessPendingIPI(cpuIdx int) {
	rec := s.cpus.Record(cpuIdx)
	rec.Lock()
	pending := rec.RescheduleIPIPending
	rec.Unlock()
	if pending {
		s.Reschedule(cpuIdx)
	}
}

// Yield voluntarily relinquishes the CPU (spec §4.5/4.6 "yield"): the
// calling thread is re-enqueued at the tail of its priority and the
// CPU immediately reschedules.
func (s *Scheduler) Yield(id ThreadID) {
	s.makeReady(id, ReasonYield)
	s.relinquish(id)
}

// relinquish hands control from the calling thread's goroutine back
// to its CPU's dispatch loop and blocks until redispatched.
func (s *Scheduler) relinquish(id ThreadID) {
	rt := s.runtime(id)
	rt.yield <- struct{}{}
	<-rt.resume
}

// Block transitions the calling thread to Pending without requeuing
// it anywhere (the caller — e.g. internal/kmutex — is responsible for
// recording it on its own wait-queue) and relinquishes the CPU. It
// returns when some other code calls Wake(id).
func (s *Scheduler) Block(id ThreadID) {
	s.blockAs(id, Pending)
}

// BlockDelay is Block's counterpart for a timed sleep: spec §3 lists
// Delay as a lifecycle state distinct from a generic Pending wait on a
// mutex or wait-queue, so internal/timer.Sleep calls this instead of
// Block.
func (s *Scheduler) BlockDelay(id ThreadID) {
	s.blockAs(id, Delay)
}

func (s *Scheduler) blockAs(id ThreadID, state State) {
	t := s.thread(id)
	t.State = state
	s.relinquish(id)
}

// SetWaitObject records w as the blocking primitive id is currently
// parked on, so Cancel can interrupt it. Callers clear it (pass nil)
// once the wait resolves by any means (acquired, timed out, woken).
func (s *Scheduler) SetWaitObject(id ThreadID, w Waitable) {
	t := s.thread(id)
	if t != nil {
		t.waitObj = w
	}
}

// Wake transitions id from Pending back to Ready and makes it
// runnable again, per spec §4.7 "Blocking and waking".
func (s *Scheduler) Wake(id ThreadID) {
	t := s.thread(id)
	if t == nil || t.State == Completed || t.State == Terminated {
		return
	}
	s.makeReady(id, ReasonUnblocked)
}

// SetPriority implements the priority-set primitive referenced by
// spec §4.5's transition rules (raised -> tail of new priority,
// lowered -> head, unchanged -> no movement) and by mutex priority
// inheritance boosts.
func (s *Scheduler) SetPriority(id ThreadID, newParams PolicyParams) {
	t := s.thread(id)
	old := t.Params.Priority()
	t.Params = newParams
	if t.State != Ready {
		// Running or blocked threads simply carry the new params;
		// only a Ready thread's run-queue position needs to move.
		return
	}
	switch {
	case newParams.Priority() > old:
		scope, cpuIdx, grp := t.queueScope.kind, t.queueScope.cpu, t.queueScope.grp
		s.rqFor(scope, cpuIdx, grp, t.PolicyID).Remove(id)
		s.makeReady(id, ReasonPriorityRaised)
	case newParams.Priority() < old:
		scope, cpuIdx, grp := t.queueScope.kind, t.queueScope.cpu, t.queueScope.grp
		s.rqFor(scope, cpuIdx, grp, t.PolicyID).Remove(id)
		s.makeReady(id, ReasonPriorityLowered)
	}
}

// Current returns the thread handle currently running on cpuIdx.
func (s *Scheduler) Current(cpuIdx int) ThreadID {
	rec := s.cpus.Record(cpuIdx)
	rec.Lock()
	defer rec.Unlock()
	return rec.Current
}

// Params returns id's current policy parameters (used by kmutex for
// priority-inheritance comparisons).
func (s *Scheduler) Params(id ThreadID) PolicyParams {
	t := s.thread(id)
	if t == nil {
		return nil
	}
	return t.Params
}

// State returns id's current lifecycle state.
func (s *Scheduler) State(id ThreadID) State {
	t := s.thread(id)
	if t == nil {
		return Terminated
	}
	return t.State
}

func (s *Scheduler) finish(id ThreadID, retval interface{}, final State) {
	t := s.thread(id)
	t.runCleanup()
	t.RetVal = retval
	t.State = Completed
	close(t.completion)
	if !t.Joinable {
		t.State = Terminated
	}
}

// Join blocks the caller until id completes, returning its retval,
// per spec §4.7 "Termination".
func (s *Scheduler) Join(id ThreadID) (interface{}, error) {
	t := s.thread(id)
	if t == nil {
		return nil, kerrors.ErrNotFound
	}
	if !t.Joinable {
		return nil, kerrors.Wrap(kerrors.ErrInvalidArgument, "thread is not joinable")
	}
	<-t.completion
	t.State = Terminated
	return t.RetVal, nil
}

// Cancel implements spec §4.7 "Cancellation". A thread currently
// blocked on a Waitable (mutex wait, timed sleep) is pulled out of
// that wait immediately regardless of cancel type/state, matching
// §4.7's "cancellation during a mutex wait" carve-out; otherwise the
// pending flag is recorded for the next testcancel/async dispatch.
func (s *Scheduler) Cancel(id ThreadID) error {
	t := s.thread(id)
	if t == nil {
		return kerrors.ErrNotFound
	}
	t.CancelPending = true
	if (t.State == Pending || t.State == Delay) && t.waitObj != nil {
		t.waitObj.Interrupt(id)
		return nil
	}
	if t.CancelType == CancelAsync && t.CancelState == CancelEnabled {
		t.State = CancelArmed
	}
	return nil
}

// Kill implements spec §4.7's "terminated (external kill)" path: every
// mutex id currently owns is force-released via
// MutexLike.OwnerReleaseForTermination (undoing any priority boost
// that ownership caused), and id is marked so it completes with the
// killed retval instead of running further. Ready and Running threads
// hit that check at their next dispatch; Suspended threads, which have
// no resume path, are completed directly; and Pending/Delay threads
// are pulled off their wait-queue immediately, same as Cancel's
// blocked-thread path. Killing an already-completed thread is a no-op.
func (s *Scheduler) Kill(id ThreadID) error {
	t := s.thread(id)
	if t == nil {
		return kerrors.ErrNotFound
	}
	if t.State == Completed || t.State == Terminated {
		return nil
	}

	owned := t.OwnedMutexes
	t.OwnedMutexes = nil
	for _, m := range owned {
		m.OwnerReleaseForTermination()
	}
	t.Killed = true

	switch t.State {
	case Suspended:
		s.finish(id, killedRetval, Completed)
	case Pending, Delay:
		if t.waitObj != nil {
			t.waitObj.Interrupt(id)
		}
	}
	return nil
}

// TrackOwnedMutex records m as currently owned by id (spec §3's "a
// list of mutexes it currently owns"), so Kill can release it without
// that thread ever calling Unlock itself.
func (s *Scheduler) TrackOwnedMutex(id ThreadID, m MutexLike) {
	t := s.thread(id)
	if t == nil {
		return
	}
	t.OwnedMutexes = append(t.OwnedMutexes, m)
}

// UntrackOwnedMutex removes m from id's owned-mutex list, called on
// release (including the implicit release a forced kill performs).
func (s *Scheduler) UntrackOwnedMutex(id ThreadID, m MutexLike) {
	t := s.thread(id)
	if t == nil {
		return
	}
	for i, om := range t.OwnedMutexes {
		if om == m {
			t.OwnedMutexes = append(t.OwnedMutexes[:i], t.OwnedMutexes[i+1:]...)
			return
		}
	}
}

// TestCancel implements spec §4.7's testcancel: called by a thread on
// itself at a cancellation point.
func (s *Scheduler) TestCancel(id ThreadID) bool {
	t := s.thread(id)
	if t.CancelState != CancelEnabled || t.CancelType != CancelDeferred {
		return false
	}
	if !t.CancelPending {
		return false
	}
	t.CancelPending = false
	s.finish(id, canceledRetval, Completed)
	return true
}

// canceledRetval is the conventional value Join observes for a
// canceled thread.
var canceledRetval = struct{ canceled bool }{canceled: true}

// IsCanceledRetval reports whether v is the sentinel Join observes
// after TestCancel completed a thread.
func IsCanceledRetval(v interface{}) bool {
	_, ok := v.(struct{ canceled bool })
	return ok
}

// killedRetval is the conventional value Join observes for a thread
// forcibly terminated via Kill.
var killedRetval = struct{ killed bool }{killed: true}

// IsKilledRetval reports whether v is the sentinel Join observes after
// Kill completed a thread.
func IsKilledRetval(v interface{}) bool {
	_, ok := v.(struct{ killed bool })
	return ok
}
