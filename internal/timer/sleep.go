package timer

import "github.com/mpkernel/core/internal/sched"

// Scheduler is the subset of *sched.Scheduler Sleep needs, mirroring
// internal/kmutex's narrow Scheduler interface so this package is
// testable without a full scheduler.
type Scheduler interface {
	BlockDelay(id sched.ThreadID)
	Wake(id sched.ThreadID)
	SetWaitObject(id sched.ThreadID, w sched.Waitable)
}

// sleepWait implements sched.Waitable for a single parked Sleep call,
// letting Cancel interrupt it (spec §4.7's suspension points include
// "sleep").
type sleepWait struct {
	sched Scheduler
	node  *Node
	done  chan struct{}
}

func (w *sleepWait) Interrupt(id sched.ThreadID) bool {
	select {
	case <-w.done:
		return false // already fired
	default:
	}
	close(w.done)
	w.sched.Wake(id)
	return true
}

// Sleep implements spec §6's sleep(ns): it parks self on chain until
// nowNS+durationNS elapses, or returns early if canceled while
// sleeping (spec §4.7 "suspension points... sleep").
func Sleep(chain *Chain, s Scheduler, self sched.ThreadID, nowNS, durationNS int64) {
	w := &sleepWait{sched: s, done: make(chan struct{})}
	w.node = &Node{
		Expires: nowNS + durationNS,
		Handler: func(missed int) {
			select {
			case <-w.done:
				return
			default:
			}
			close(w.done)
			s.Wake(self)
		},
	}
	chain.Add(w.node)
	s.SetWaitObject(self, w)
	s.BlockDelay(self)
	s.SetWaitObject(self, nil)
	chain.Remove(w.node) // no-op if the node already fired and was extracted
}
