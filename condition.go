package flowz

import (
	"sync"
	"sync/atomic"
)

// waiter is the per-Wait handle parked in a Condition's queue. The signaled
// flag is the rendezvous: Signal sets it after unlinking the waiter, and the
// waiting fiber spins its yield loop until it observes the flag.
type waiter struct {
	signaled atomic.Bool
}

// Condition is a condition variable that suspends the current fiber rather
// than the OS thread carrying it. An input parks its owner's fiber here when
// a dequeue finds the queue empty; the worker that was driving the fiber
// regains control and moves on to other boxes.
//
// The waiter queue is a lock-free List so that Signal and AnyWaiting never
// take the owning input's mutex.
type Condition struct {
	waiters List[*waiter]
}

// Wait atomically releases mu, parks the current fiber until a Signal
// arrives, and re-acquires mu before returning. The fiber may be resumed
// spuriously (any pending-work wakeup reaches it); Wait absorbs those by
// yielding again until its own waiter has been signaled.
func (c *Condition) Wait(mu *sync.Mutex, fb *fiber) {
	w := &waiter{}
	c.waiters.PushFront(w)
	mu.Unlock()
	for {
		fb.yield()
		if w.signaled.Load() {
			break
		}
	}
	mu.Lock()
}

// Signal wakes at most one waiter and reports whether one was present.
func (c *Condition) Signal() bool {
	w, ok := c.waiters.PopFront()
	if !ok {
		return false
	}
	w.signaled.Store(true)
	return true
}

// AnyWaiting is an advisory, lock-free probe used by the deadlock detector.
// Unless the owning input's mutex is held it may report transient false
// positives and negatives.
func (c *Condition) AnyWaiting() bool {
	return !c.waiters.Empty()
}
