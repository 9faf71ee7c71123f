package flowz

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// emitter sends a fixed sequence and halts.
type emitter struct {
	Box
	out    *Out[int]
	values []int
}

func (e *emitter) Init() {
	e.out = NewOut[int](e)
}

func (e *emitter) Compute() {
	for _, v := range e.values {
		e.out.Enqueue(v)
	}
}

// collector drains its input until end-of-stream.
type collector struct {
	Box
	in       *In[int]
	got      []int
	sawDrain bool
}

func (c *collector) Init() {
	c.in = NewIn[int](c)
}

func (c *collector) Compute() {
	for {
		v, ok := c.in.Dequeue()
		if !ok {
			c.sawDrain = true
			return
		}
		c.got = append(c.got, v)
	}
}

// relay forwards each value through a transform.
type relay struct {
	Box
	in  *In[int]
	out *Out[int]
	fn  func(int) int
}

func (r *relay) Init() {
	r.in = NewIn[int](r)
	r.out = NewOut[int](r)
}

func (r *relay) Compute() {
	for v, ok := r.in.Dequeue(); ok; v, ok = r.in.Dequeue() {
		r.out.Enqueue(r.fn(v))
	}
}

func TestCollective(t *testing.T) {
	t.Run("Halt Propagation", func(t *testing.T) {
		c := NewCollective("halt", 2)
		src := CreateBox(c, "source", &emitter{values: []int{1, 2, 3}})
		sink := CreateBox(c, "sink", &collector{})
		Connect(c, sink.in, src.out)
		c.ConstructionCompleted()
		c.Join()

		if !src.IsHalted() || !sink.IsHalted() {
			t.Fatal("both boxes should be halted after Join")
		}
		if !sink.sawDrain {
			t.Error("final dequeue should report end-of-stream")
		}
		want := []int{1, 2, 3}
		if len(sink.got) != len(want) {
			t.Fatalf("expected %v, got %v", want, sink.got)
		}
		for i := range want {
			if sink.got[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, sink.got)
			}
		}
		if !sink.in.CausedHalt() {
			t.Error("the drained input should be marked as the halt cause")
		}
	})

	t.Run("Channel Replay", func(t *testing.T) {
		c := NewCollective("replay", 1)
		src := CreateBox(c, "source", &emitter{})
		sink := CreateBox(c, "sink", &collector{})

		// Values enqueued before the connection exists are replayed into
		// it, so construction may complete in any order.
		src.out.Enqueue(10)
		src.out.Enqueue(20)
		Connect(c, sink.in, src.out)

		c.ConstructionCompleted()
		c.Join()

		if len(sink.got) != 2 || sink.got[0] != 10 || sink.got[1] != 20 {
			t.Errorf("expected [10 20] via replay, got %v", sink.got)
		}
	})

	t.Run("Pipeline Ordering", func(t *testing.T) {
		c := NewCollective("pipeline", 4)
		src := CreateBox(c, "source", &emitter{values: []int{1, 2, 3, 4, 5}})
		dbl := CreateBox(c, "double", &relay{fn: func(v int) int { return v * 2 }})
		sink := CreateBox(c, "sink", &collector{})
		Connect(c, dbl.in, src.out)
		Connect(c, sink.in, dbl.out)
		c.ConstructionCompleted()
		c.Join()

		want := []int{2, 4, 6, 8, 10}
		if len(sink.got) != len(want) {
			t.Fatalf("expected %v, got %v", want, sink.got)
		}
		for i := range want {
			if sink.got[i] != want[i] {
				t.Fatalf("delivery order violated: expected %v, got %v", want, sink.got)
			}
		}
	})

	t.Run("Fan Out Replays To Every Input", func(t *testing.T) {
		c := NewCollective("fanout", 4)
		src := CreateBox(c, "source", &emitter{values: []int{7, 8, 9}})
		a := CreateBox(c, "a", &collector{})
		b := CreateBox(c, "b", &collector{})
		Connect(c, a.in, src.out)
		Connect(c, b.in, src.out)
		c.ConstructionCompleted()
		c.Join()

		for _, sink := range []*collector{a, b} {
			if len(sink.got) != 3 || sink.got[0] != 7 || sink.got[1] != 8 || sink.got[2] != 9 {
				t.Errorf("%s: expected [7 8 9], got %v", sink.Name(), sink.got)
			}
		}
	})

	t.Run("IsDone Is Monotone", func(t *testing.T) {
		c := NewCollective("done", 1)
		CreateBox(c, "source", &emitter{values: []int{1}})
		if c.IsDone() {
			t.Fatal("not done before construction completes")
		}
		c.ConstructionCompleted()
		c.Join()
		if !c.IsDone() {
			t.Fatal("done after Join")
		}
		if !c.IsDone() {
			t.Fatal("IsDone must stay true")
		}
	})

	t.Run("Empty Collective", func(t *testing.T) {
		c := NewCollective("empty", 1)
		c.ConstructionCompleted()
		c.Join()
		if !c.IsDone() {
			t.Error("an empty collective is immediately done")
		}
	})

	t.Run("Box Join", func(t *testing.T) {
		c := NewCollective("boxjoin", 2)
		src := CreateBox(c, "source", &emitter{values: []int{1}})
		c.ConstructionCompleted()
		src.Join()
		if !src.IsHalted() {
			t.Error("box should be halted after its Join returns")
		}
		c.Join()
	})

	t.Run("OnBoxHalted Hook", func(t *testing.T) {
		c := NewCollective("hooks", 2)
		var halts atomic.Int32
		if err := c.OnBoxHalted(func(_ context.Context, _ BoxEvent) error {
			halts.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("hook registration failed: %v", err)
		}
		src := CreateBox(c, "source", &emitter{values: []int{1}})
		sink := CreateBox(c, "sink", &collector{})
		Connect(c, sink.in, src.out)
		c.ConstructionCompleted()
		c.Join()

		// hookz delivery is asynchronous; give it a moment.
		deadline := time.Now().Add(2 * time.Second)
		for halts.Load() != 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if halts.Load() != 2 {
			t.Errorf("expected 2 halt events, got %d", halts.Load())
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		c := NewCollective("metrics", 2)
		src := CreateBox(c, "source", &emitter{values: []int{1}})
		sink := CreateBox(c, "sink", &collector{})
		Connect(c, sink.in, src.out)
		c.ConstructionCompleted()
		c.Join()

		if created := c.Metrics().Counter(CollectiveBoxesCreated).Value(); created != 2 {
			t.Errorf("expected 2 boxes created, got %v", created)
		}
		if halted := c.Metrics().Counter(CollectiveBoxesHalted).Value(); halted != 2 {
			t.Errorf("expected 2 boxes halted, got %v", halted)
		}
		if conns := c.Metrics().Counter(CollectiveConnections).Value(); conns != 1 {
			t.Errorf("expected 1 connection, got %v", conns)
		}
	})

	t.Run("CreateBox After Completion Panics", func(t *testing.T) {
		c := NewCollective("misuse", 1)
		c.ConstructionCompleted()
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("expected a panic")
			}
			err, ok := r.(*Error)
			if !ok || !errors.Is(err, ErrConstructionCompleted) {
				t.Fatalf("expected ErrConstructionCompleted, got %v", r)
			}
		}()
		CreateBox(c, "late", &emitter{})
	})

	t.Run("Double Completion Panics", func(t *testing.T) {
		c := NewCollective("twice", 1)
		c.ConstructionCompleted()
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected a panic")
			}
		}()
		c.ConstructionCompleted()
	})

	t.Run("Foreign Connect Panics", func(t *testing.T) {
		c1 := NewCollective("one", 1)
		c2 := NewCollective("two", 1)
		src := CreateBox(c1, "source", &emitter{})
		sink := CreateBox(c2, "sink", &collector{})
		defer func() {
			r := recover()
			err, ok := r.(*Error)
			if !ok || !errors.Is(err, ErrForeignCollective) {
				t.Fatalf("expected ErrForeignCollective, got %v", r)
			}
			c1.Close()
			c2.Close()
		}()
		Connect(c2, sink.in, src.out)
	})

	t.Run("Close Releases Workers", func(t *testing.T) {
		c := NewCollective("close", 2)
		CreateBox(c, "source", &emitter{values: []int{1}})
		// Never completed; Close must still return.
		if err := c.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
		if err := c.Close(); err != nil {
			t.Errorf("second close failed: %v", err)
		}
	})
}

// starver waits on an input nobody will ever satisfy while feeding its own
// output, forming a cycle with its peer.
type starver struct {
	Box
	in  *In[int]
	out *Out[int]
}

func (s *starver) Init() {
	s.in = NewIn[int](s)
	s.out = NewOut[int](s)
}

func (s *starver) Compute() {
	s.in.Dequeue()
}

func TestDetectDeadlock(t *testing.T) {
	t.Run("Two Box Cycle", func(t *testing.T) {
		c := NewCollective("deadlock", 2)
		a := CreateBox(c, "a", &starver{})
		b := CreateBox(c, "b", &starver{})
		Connect(c, a.in, b.out)
		Connect(c, b.in, a.out)
		c.ConstructionCompleted()

		// The witness appears once both fibers have parked.
		var witness Computer
		deadline := time.Now().Add(5 * time.Second)
		for witness == nil && time.Now().Before(deadline) {
			witness = c.DetectDeadlock(true)
			if witness == nil {
				time.Sleep(time.Millisecond)
			}
		}
		if witness == nil {
			t.Fatal("expected a deadlock witness")
		}
		name := witness.core().Name()
		if name != "a" && name != "b" {
			t.Errorf("witness should be one of the cycle, got %q", name)
		}
		if hits := c.Metrics().Counter(CollectiveDeadlocksHit).Value(); hits < 1 {
			t.Error("deadlock counter should have incremented")
		}
		c.Close()
	})

	t.Run("No Deadlock In A Live Graph", func(t *testing.T) {
		c := NewCollective("live", 2)
		src := CreateBox(c, "source", &emitter{values: []int{1, 2, 3}})
		sink := CreateBox(c, "sink", &collector{})
		Connect(c, sink.in, src.out)
		c.ConstructionCompleted()
		c.Join()

		if w := c.DetectDeadlock(true); w != nil {
			t.Errorf("no witness expected in a completed graph, got %q", w.core().Name())
		}
	})

	t.Run("Cycle Beside A Halting Box Still Deadlocks", func(t *testing.T) {
		// a and b wait on each other; a third box that halts cleanly does
		// not unblock them.
		c := NewCollective("mixed", 2)
		a := CreateBox(c, "a", &starver{})
		b := CreateBox(c, "b", &starver{})
		CreateBox(c, "free", &emitter{values: []int{1}})
		Connect(c, a.in, b.out)
		Connect(c, b.in, a.out)
		c.ConstructionCompleted()

		var witness Computer
		deadline := time.Now().Add(5 * time.Second)
		for witness == nil && time.Now().Before(deadline) {
			witness = c.DetectDeadlock(true)
			if witness == nil {
				time.Sleep(time.Millisecond)
			}
		}
		if witness == nil {
			t.Fatal("expected a deadlock witness")
		}
		name := witness.core().Name()
		if name != "a" && name != "b" {
			t.Errorf("witness should be in the cycle, got %q", name)
		}
		c.Close()
	})
}
