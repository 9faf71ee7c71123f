package flowz

import (
	"sync"
	"testing"
)

func TestEvent(t *testing.T) {
	t.Run("Initially Unset", func(t *testing.T) {
		e := NewEvent()
		if e.IsSet() {
			t.Error("new event should be unset")
		}
	})

	t.Run("Set Is Observable", func(t *testing.T) {
		e := NewEvent()
		e.Set()
		if !e.IsSet() {
			t.Error("event should be set")
		}
		e.Wait() // must not block
	})

	t.Run("Set Is Idempotent", func(t *testing.T) {
		e := NewEvent()
		e.Set()
		e.Set()
		if !e.IsSet() {
			t.Error("event should remain set")
		}
	})

	t.Run("Wakes All Waiters", func(t *testing.T) {
		e := NewEvent()
		const waiters = 8

		var started, done sync.WaitGroup
		started.Add(waiters)
		done.Add(waiters)
		for i := 0; i < waiters; i++ {
			go func() {
				started.Done()
				e.Wait()
				if !e.IsSet() {
					t.Error("woke before event was set")
				}
				done.Done()
			}()
		}
		started.Wait()
		e.Set()
		done.Wait()
	})
}
