package flowz

import (
	"sync/atomic"
	"testing"
)

func TestFiber(t *testing.T) {
	t.Run("Body Does Not Start Until Resume", func(t *testing.T) {
		var ran atomic.Bool
		f := newFiber(func() {
			ran.Store(true)
		})
		if ran.Load() {
			t.Fatal("body ran before first resume")
		}
		f.resume()
		if !ran.Load() {
			t.Error("body did not run after resume")
		}
	})

	t.Run("Resume Runs To Completion", func(t *testing.T) {
		var steps []int
		f := newFiber(func() {
			steps = append(steps, 1)
		})
		// The fiber and the test alternate, never overlap, so no locking.
		f.resume()
		if len(steps) != 1 {
			t.Fatalf("expected 1 step, got %d", len(steps))
		}
	})

	t.Run("Alternation", func(t *testing.T) {
		var order []string
		var f *fiber
		f = newFiber(func() {
			order = append(order, "a")
			f.yield()
			order = append(order, "b")
			f.yield()
			order = append(order, "c")
		})

		f.resume()
		order = append(order, "1")
		f.resume()
		order = append(order, "2")
		f.resume()
		order = append(order, "3")

		want := []string{"a", "1", "b", "2", "c", "3"}
		if len(order) != len(want) {
			t.Fatalf("expected %v, got %v", want, order)
		}
		for i := range want {
			if order[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, order)
			}
		}
	})
}
