package kmutex_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpkernel/core/internal/kerrors"
	"github.com/mpkernel/core/internal/kmutex"
	"github.com/mpkernel/core/internal/sched"
)

// fakeScheduler is a minimal stand-in for *sched.Scheduler satisfying
// kmutex.Scheduler, enough to drive Lock/Unlock/Interrupt without a
// full dispatch loop.
type fakeScheduler struct {
	mu      sync.Mutex
	params  map[sched.ThreadID]sched.PolicyParams
	blocked map[sched.ThreadID]chan struct{}
	waitObj map[sched.ThreadID]sched.Waitable
	owned   map[sched.ThreadID][]sched.MutexLike
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		params:  make(map[sched.ThreadID]sched.PolicyParams),
		blocked: make(map[sched.ThreadID]chan struct{}),
		waitObj: make(map[sched.ThreadID]sched.Waitable),
		owned:   make(map[sched.ThreadID][]sched.MutexLike),
	}
}

func (f *fakeScheduler) TrackOwnedMutex(id sched.ThreadID, m sched.MutexLike) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owned[id] = append(f.owned[id], m)
}

func (f *fakeScheduler) UntrackOwnedMutex(id sched.ThreadID, m sched.MutexLike) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.owned[id]
	for i, om := range list {
		if om == m {
			f.owned[id] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (f *fakeScheduler) ownedCount(id sched.ThreadID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.owned[id])
}

func (f *fakeScheduler) setParams(id sched.ThreadID, p sched.PolicyParams) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params[id] = p
}

func (f *fakeScheduler) Params(id sched.ThreadID) sched.PolicyParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params[id]
}

func (f *fakeScheduler) SetPriority(id sched.ThreadID, p sched.PolicyParams) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params[id] = p
}

func (f *fakeScheduler) Block(id sched.ThreadID) {
	f.mu.Lock()
	ch := make(chan struct{})
	f.blocked[id] = ch
	f.mu.Unlock()
	<-ch
}

func (f *fakeScheduler) Wake(id sched.ThreadID) {
	f.mu.Lock()
	ch, ok := f.blocked[id]
	delete(f.blocked, id)
	f.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (f *fakeScheduler) SetWaitObject(id sched.ThreadID, w sched.Waitable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w == nil {
		delete(f.waitObj, id)
		return
	}
	f.waitObj[id] = w
}

const (
	threadL sched.ThreadID = 1
	threadH sched.ThreadID = 2
)

// TestMutex_PriorityInheritance exercises spec §8's worked example:
// L (priority 10) holds M; H (priority 50) blocks on it; L is boosted
// to 50 for the duration of H's wait and restored to 10 once M is
// released to H.
func TestMutex_PriorityInheritance(t *testing.T) {
	fs := newFakeScheduler()
	fs.setParams(threadL, sched.FIFOParams{Prio: 10})
	fs.setParams(threadH, sched.FIFOParams{Prio: 50})

	m := kmutex.New(kmutex.Attrs{
		Type:     kmutex.TypeDefault,
		Protocol: kmutex.ProtocolInherit,
		Wakeup:   kmutex.WakeupPriority,
	}, fs)

	require.NoError(t, m.Lock(threadL))
	assert.Equal(t, threadL, m.Owner())

	hDone := make(chan error, 1)
	go func() { hDone <- m.Lock(threadH) }()

	require.Eventually(t, func() bool { return m.WaiterCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 50, fs.Params(threadL).Priority(), "owner should be boosted to the waiter's priority")

	require.NoError(t, m.Unlock(threadL))
	require.NoError(t, <-hDone)

	assert.Equal(t, threadH, m.Owner())
	assert.Equal(t, 10, fs.Params(threadL).Priority(), "former owner's priority should be restored on release")
}

// TestMutex_Interrupt implements spec §4.7's "cancellation during a
// mutex wait": the blocked waiter's Lock call returns ErrInterrupted
// without acquiring the mutex, and the owner is unaffected.
func TestMutex_Interrupt(t *testing.T) {
	fs := newFakeScheduler()
	fs.setParams(threadL, sched.FIFOParams{Prio: 10})
	fs.setParams(threadH, sched.FIFOParams{Prio: 10})

	m := kmutex.New(kmutex.Attrs{Wakeup: kmutex.WakeupFIFO}, fs)
	require.NoError(t, m.Lock(threadL))

	waitDone := make(chan error, 1)
	go func() { waitDone <- m.Lock(threadH) }()
	require.Eventually(t, func() bool { return m.WaiterCount() == 1 }, time.Second, time.Millisecond)

	assert.True(t, m.Interrupt(threadH))
	err := <-waitDone
	assert.True(t, kerrors.Is(err, kerrors.ErrInterrupted))
	assert.Equal(t, threadL, m.Owner(), "mutex should remain with the original owner")

	assert.False(t, m.Interrupt(threadH), "a second interrupt on an already-resolved wait is a no-op")
}

func TestMutex_TryLock(t *testing.T) {
	fs := newFakeScheduler()
	m := kmutex.New(kmutex.Attrs{}, fs)
	require.NoError(t, m.TryLock(threadL))
	err := m.TryLock(threadH)
	assert.True(t, kerrors.Is(err, kerrors.ErrWouldBlock))
}

func TestMutex_RecursiveType(t *testing.T) {
	fs := newFakeScheduler()
	m := kmutex.New(kmutex.Attrs{Type: kmutex.TypeRecursive}, fs)
	require.NoError(t, m.Lock(threadL))
	require.NoError(t, m.Lock(threadL))
	require.NoError(t, m.Unlock(threadL))
	assert.Equal(t, threadL, m.Owner(), "still held after one of two recursive locks is released")
	require.NoError(t, m.Unlock(threadL))
	assert.Equal(t, sched.ThreadID(0), m.Owner())
}

func TestMutex_ErrorCheckDeadlock(t *testing.T) {
	fs := newFakeScheduler()
	m := kmutex.New(kmutex.Attrs{Type: kmutex.TypeErrorCheck}, fs)
	require.NoError(t, m.Lock(threadL))
	err := m.Lock(threadL)
	assert.True(t, kerrors.Is(err, kerrors.ErrDeadlock))
}

// TestMutex_TracksOwnershipForForcedTermination backs spec §3's "list
// of mutexes it currently owns": Lock records the mutex against its
// new owner and Unlock's hand-off to the next waiter keeps that
// bookkeeping accurate, which is what a forced-kill path needs to
// release ownership without the owner ever calling Unlock itself.
func TestMutex_TracksOwnershipForForcedTermination(t *testing.T) {
	fs := newFakeScheduler()
	fs.setParams(threadL, sched.FIFOParams{Prio: 10})
	fs.setParams(threadH, sched.FIFOParams{Prio: 10})

	m := kmutex.New(kmutex.Attrs{Wakeup: kmutex.WakeupFIFO}, fs)
	require.NoError(t, m.Lock(threadL))
	assert.Equal(t, 1, fs.ownedCount(threadL))

	waitDone := make(chan error, 1)
	go func() { waitDone <- m.Lock(threadH) }()
	require.Eventually(t, func() bool { return m.WaiterCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Unlock(threadL))
	require.NoError(t, <-waitDone)

	assert.Equal(t, 0, fs.ownedCount(threadL), "release must untrack the former owner")
	assert.Equal(t, 1, fs.ownedCount(threadH), "hand-off to the waiter must track the new owner")
}

// TestMutex_OwnerReleaseForTermination exercises the primitive a
// forced kill calls on every mutex its target still owns: the mutex
// passes to the next waiter exactly as if the owner had called Unlock.
func TestMutex_OwnerReleaseForTermination(t *testing.T) {
	fs := newFakeScheduler()
	fs.setParams(threadL, sched.FIFOParams{Prio: 10})
	fs.setParams(threadH, sched.FIFOParams{Prio: 10})

	m := kmutex.New(kmutex.Attrs{Wakeup: kmutex.WakeupFIFO}, fs)
	require.NoError(t, m.Lock(threadL))

	waitDone := make(chan error, 1)
	go func() { waitDone <- m.Lock(threadH) }()
	require.Eventually(t, func() bool { return m.WaiterCount() == 1 }, time.Second, time.Millisecond)

	m.OwnerReleaseForTermination()

	require.NoError(t, <-waitDone)
	assert.Equal(t, threadH, m.Owner(), "the waiting thread must acquire after the terminated owner's forced release")
}

func TestMutex_DestroyBusy(t *testing.T) {
	fs := newFakeScheduler()
	m := kmutex.New(kmutex.Attrs{}, fs)
	require.NoError(t, m.Lock(threadL))
	err := m.Destroy()
	assert.True(t, kerrors.Is(err, kerrors.ErrBusy))
	require.NoError(t, m.Unlock(threadL))
	assert.NoError(t, m.Destroy())
}
