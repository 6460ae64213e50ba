package timer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpkernel/core/internal/sched"
	"github.com/mpkernel/core/internal/timer"
)

// fakeSleepScheduler is the minimal timer.Scheduler a Sleep test needs.
type fakeSleepScheduler struct {
	mu      sync.Mutex
	blocked map[sched.ThreadID]chan struct{}
	waitObj map[sched.ThreadID]sched.Waitable
}

func newFakeSleepScheduler() *fakeSleepScheduler {
	return &fakeSleepScheduler{
		blocked: make(map[sched.ThreadID]chan struct{}),
		waitObj: make(map[sched.ThreadID]sched.Waitable),
	}
}

func (f *fakeSleepScheduler) BlockDelay(id sched.ThreadID) {
	f.mu.Lock()
	ch := make(chan struct{})
	f.blocked[id] = ch
	f.mu.Unlock()
	<-ch
}

func (f *fakeSleepScheduler) Wake(id sched.ThreadID) {
	f.mu.Lock()
	ch, ok := f.blocked[id]
	delete(f.blocked, id)
	f.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (f *fakeSleepScheduler) SetWaitObject(id sched.ThreadID, w sched.Waitable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w == nil {
		delete(f.waitObj, id)
		return
	}
	f.waitObj[id] = w
}

func (f *fakeSleepScheduler) waitObjFor(id sched.ThreadID) sched.Waitable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waitObj[id]
}

func TestSleep_FiresAtDeadline(t *testing.T) {
	c := timer.New()
	fs := newFakeSleepScheduler()
	const self sched.ThreadID = 1

	done := make(chan struct{})
	go func() {
		timer.Sleep(c, fs, self, 0, 100)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)
	c.Process(100)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleep did not return after its timer fired")
	}
}

// TestSleep_Interrupt implements spec §4.7's suspension-point
// cancellation for sleep: interrupting a sleeping thread wakes it
// early, without the timer ever firing.
func TestSleep_Interrupt(t *testing.T) {
	c := timer.New()
	fs := newFakeSleepScheduler()
	const self sched.ThreadID = 1

	done := make(chan struct{})
	go func() {
		timer.Sleep(c, fs, self, 0, int64(time.Hour))
		close(done)
	}()

	require.Eventually(t, func() bool { return fs.waitObjFor(self) != nil }, time.Second, time.Millisecond)
	w := fs.waitObjFor(self)
	assert.True(t, w.Interrupt(self))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("interrupted sleep did not return")
	}
	assert.Equal(t, 0, c.Len(), "the node must be pulled off the chain once interrupted")
}
