package flowz

import (
	"sync"
	"sync/atomic"
)

// Event is a one-shot latching notification. Set transitions it from unset
// to set exactly once and wakes every waiter, past and future; a set event
// never becomes unset. Set is observable by any subsequent Wait on any
// goroutine without further synchronization from the caller.
//
// The collective uses events for its start and done blockers and for
// per-box completion. The zero Event is not usable; construct with NewEvent.
type Event struct {
	once  sync.Once
	done  chan struct{}
	state atomic.Bool
}

// NewEvent creates an unset Event.
func NewEvent() *Event {
	return &Event{done: make(chan struct{})}
}

// Set latches the event and wakes all waiters. Idempotent.
func (e *Event) Set() {
	e.once.Do(func() {
		e.state.Store(true)
		close(e.done)
	})
}

// Wait blocks until the event is set. Returns immediately if already set.
func (e *Event) Wait() {
	<-e.done
}

// IsSet reports whether the event has been set.
func (e *Event) IsSet() bool {
	return e.state.Load()
}
