package sched_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpkernel/core/internal/cpu"
	"github.com/mpkernel/core/internal/kmutex"
	"github.com/mpkernel/core/internal/sched"
)

func newTestScheduler(n int) (*sched.Scheduler, *cpu.Table) {
	table := cpu.NewTable(n)
	groups := cpu.NewRegistry()
	s := sched.New(table, groups, nil, nil)
	s.RegisterPolicy(sched.FIFO)
	s.RegisterPolicy(sched.RR)
	return s, table
}

func runCPUForTest(t *testing.T, s *sched.Scheduler, cpuIdx int) chan struct{} {
	t.Helper()
	stop := make(chan struct{})
	if _, err := s.SpawnIdle(cpuIdx, func(stopIdle <-chan struct{}) {
		<-stopIdle
	}); err != nil {
		t.Fatalf("SpawnIdle: %v", err)
	}
	go s.RunCPU(cpuIdx, stop)
	return stop
}

func TestScheduler_SpawnRunJoin(t *testing.T) {
	s, _ := newTestScheduler(1)
	stop := runCPUForTest(t, s, 0)
	defer close(stop)

	id, err := s.Spawn(sched.Attrs{
		PolicyID: sched.PolicyFIFO,
		Params:   sched.FIFOParams{Prio: 10},
		Joinable: true,
	}, func(arg interface{}) interface{} { return 42 }, nil)
	require.NoError(t, err)

	ret, err := s.Join(id)
	require.NoError(t, err)
	assert.Equal(t, 42, ret)
}

// TestScheduler_HigherPriorityRunsFirst spawns a low- then a
// high-priority FIFO thread pinned to the same CPU before that CPU's
// dispatch loop starts, so both sit on the run-queue together; the
// first reschedule must pick the higher-priority one, verifying
// reschedule()'s precedence rule (spec §4.7).
func TestScheduler_HigherPriorityRunsFirst(t *testing.T) {
	s, _ := newTestScheduler(1)
	affinity := cpu.NewSet().Add(0)

	orderCh := make(chan string, 2)
	spawn := func(name string, prio int) sched.ThreadID {
		id, err := s.Spawn(sched.Attrs{
			Name: name, PolicyID: sched.PolicyFIFO, Params: sched.FIFOParams{Prio: prio},
			Affinity: affinity, Joinable: true,
		}, func(arg interface{}) interface{} {
			orderCh <- name
			return nil
		}, nil)
		require.NoError(t, err)
		return id
	}

	lowID := spawn("low", 1)
	highID := spawn("high", 50)

	stop := runCPUForTest(t, s, 0)
	defer close(stop)

	_, err := s.Join(lowID)
	require.NoError(t, err)
	_, err = s.Join(highID)
	require.NoError(t, err)

	close(orderCh)
	var order []string
	for name := range orderCh {
		order = append(order, name)
	}
	assert.Equal(t, []string{"high", "low"}, order)
}

// TestScheduler_YieldRoundRobin spawns two RR threads at the same
// priority pinned to one CPU and checks both get to run to completion,
// exercising Yield's tail-requeue path.
func TestScheduler_YieldRoundRobin(t *testing.T) {
	s, _ := newTestScheduler(1)
	stop := runCPUForTest(t, s, 0)
	defer close(stop)

	affinity := cpu.NewSet().Add(0)
	var joinIDs []sched.ThreadID
	for i := 0; i < 2; i++ {
		selfCh := make(chan sched.ThreadID, 1)
		id, err := s.Spawn(sched.Attrs{
			PolicyID: sched.PolicyRR,
			Params:   sched.RRParams{Prio: 5, TimeSliceNS: int64(time.Millisecond)},
			Affinity: affinity,
			Joinable: true,
		}, func(arg interface{}) interface{} {
			self := <-selfCh
			s.Yield(self)
			return nil
		}, nil)
		require.NoError(t, err)
		selfCh <- id
		joinIDs = append(joinIDs, id)
	}

	for _, id := range joinIDs {
		_, err := s.Join(id)
		require.NoError(t, err)
	}
}

func TestScheduler_CancelDeferredSetsPendingFlag(t *testing.T) {
	s, _ := newTestScheduler(1)
	stop := runCPUForTest(t, s, 0)
	defer close(stop)

	started := make(chan struct{})
	canceled := make(chan struct{})
	selfCh := make(chan sched.ThreadID, 1)
	id, err := s.Spawn(sched.Attrs{
		PolicyID: sched.PolicyFIFO,
		Params:   sched.FIFOParams{Prio: 1},
		Joinable: true,
	}, func(arg interface{}) interface{} {
		self := <-selfCh
		close(started)
		for !s.TestCancel(self) {
			s.Yield(self)
		}
		close(canceled)
		return nil
	}, nil)
	require.NoError(t, err)
	selfCh <- id

	<-started
	require.NoError(t, s.Cancel(id))

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("TestCancel never observed the pending cancellation")
	}

	ret, err := s.Join(id)
	require.NoError(t, err)
	assert.True(t, sched.IsCanceledRetval(ret))
}

// TestScheduler_CancelAsyncShortCircuitsBeforeFirstDispatch exercises
// spec §4.7's async-cancel rule: canceling a CancelAsync thread before
// its first dispatch makes that dispatch complete it with the
// canceled retval instead of ever running its entry point.
func TestScheduler_CancelAsyncShortCircuitsBeforeFirstDispatch(t *testing.T) {
	s, _ := newTestScheduler(1)
	affinity := cpu.NewSet().Add(0)

	ran := false
	id, err := s.Spawn(sched.Attrs{
		PolicyID:    sched.PolicyFIFO,
		Params:      sched.FIFOParams{Prio: 1},
		Affinity:    affinity,
		Joinable:    true,
		CancelState: sched.CancelEnabled,
		CancelType:  sched.CancelAsync,
	}, func(arg interface{}) interface{} {
		ran = true
		return nil
	}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Cancel(id))

	stop := runCPUForTest(t, s, 0)
	defer close(stop)

	ret, err := s.Join(id)
	require.NoError(t, err)
	assert.True(t, sched.IsCanceledRetval(ret))
	assert.False(t, ran, "an async-canceled thread must never run its entry point")
}

// TestScheduler_KillReleasesOwnedMutexes exercises spec §4.7's forced
// external-kill path end to end: killing a thread that currently owns
// a mutex force-releases it to the waiter queued behind it, and the
// killed thread's Join observes the killed retval rather than running
// to its own completion.
func TestScheduler_KillReleasesOwnedMutexes(t *testing.T) {
	s, _ := newTestScheduler(1)
	stop := runCPUForTest(t, s, 0)
	defer close(stop)

	m := kmutex.New(kmutex.Attrs{Wakeup: kmutex.WakeupFIFO}, s)

	started := make(chan struct{})
	victimSelfCh := make(chan sched.ThreadID, 1)
	victim, err := s.Spawn(sched.Attrs{
		PolicyID: sched.PolicyFIFO,
		Params:   sched.FIFOParams{Prio: 1},
		Joinable: true,
	}, func(arg interface{}) interface{} {
		self := <-victimSelfCh
		require.NoError(t, m.Lock(self))
		close(started)
		for {
			s.Yield(self)
		}
	}, nil)
	require.NoError(t, err)
	victimSelfCh <- victim

	<-started

	waiterDone := make(chan error, 1)
	waiterSelfCh := make(chan sched.ThreadID, 1)
	waiter, err := s.Spawn(sched.Attrs{
		PolicyID: sched.PolicyFIFO,
		Params:   sched.FIFOParams{Prio: 1},
		Joinable: true,
	}, func(arg interface{}) interface{} {
		self := <-waiterSelfCh
		waiterDone <- m.Lock(self)
		return nil
	}, nil)
	require.NoError(t, err)
	waiterSelfCh <- waiter

	require.Eventually(t, func() bool { return m.WaiterCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Kill(victim))

	require.NoError(t, <-waiterDone)
	assert.Equal(t, waiter, m.Owner(), "killing the mutex owner must hand it off to the waiter")

	ret, err := s.Join(victim)
	require.NoError(t, err)
	assert.True(t, sched.IsKilledRetval(ret))
}
