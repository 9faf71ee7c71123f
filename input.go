package flowz

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
)

// inlet is the scheduler's type-erased view of an In. The collective uses
// it for halt propagation and deadlock detection without knowing the
// payload type.
type inlet interface {
	ownerBox() *Box
	isBlocked() bool
	checkWillHalt()
	lock()
	unlock()
	connectedOutlets() []outlet
}

// In is the receiving endpoint of a channel: an unbounded FIFO owned by
// exactly one box. Any number of outputs may fan into one input; per
// (output, input) pair delivery order is the output's enqueue order.
//
// Dequeue is the runtime's only suspension point: when the queue is empty
// the owner's fiber parks on the input's condition variable and the worker
// moves on. Construct with NewIn during Init.
type In[T any] struct {
	own        *Box
	mu         sync.Mutex
	cond       Condition
	queue      []T
	connected  []outlet
	drained    bool
	causedHalt bool
}

// NewIn creates an input owned by the given box and registers it. Must be
// called before the collective's construction completes, conventionally
// from the box's Init.
func NewIn[T any](owner Owner) *In[T] {
	b := owner.core()
	in := &In[T]{own: b}
	b.registerInput(in)
	return in
}

// Dequeue removes and returns the next value. When the queue is empty it
// suspends the calling fiber until a value arrives or the input drains.
// Returns ok=false only when the input is permanently drained: every
// connected output's owner has halted and the queue has been exhausted.
func (in *In[T]) Dequeue() (value T, ok bool) {
	in.mu.Lock()
	for {
		if len(in.queue) > 0 {
			value = in.queue[0]
			in.queue = in.queue[1:]
			in.mu.Unlock()
			return value, true
		}
		// An upstream may have halted while values were still queued, in
		// which case no further checkWillHalt arrives; the drain condition
		// has to be re-evaluated here once the queue empties.
		if !in.drained && in.upstreamHalted() {
			in.drained = true
			in.causedHalt = true
		}
		if in.drained {
			in.mu.Unlock()
			return value, false
		}
		in.cond.Wait(&in.mu, in.own.fib)
	}
}

// upstreamHalted reports whether every connected output's owner has
// halted. Vacuously true for an input with no connections, which therefore
// drains on its first empty dequeue instead of blocking forever. Caller
// holds in.mu.
func (in *In[T]) upstreamHalted() bool {
	for _, o := range in.connected {
		if !o.ownerBox().halted.Load() {
			return false
		}
	}
	return true
}

// enqueue delivers one value from a connected output. Called with the
// output's mutex held; takes the input's own mutex, so the lock order is
// always output before input.
func (in *In[T]) enqueue(value T) {
	in.mu.Lock()
	in.queue = append(in.queue, value)
	in.cond.Signal()
	in.mu.Unlock()
	in.own.markPending()
}

// didConnect records a newly connected upstream output.
func (in *In[T]) didConnect(o outlet) {
	in.mu.Lock()
	in.connected = append(in.connected, o)
	in.mu.Unlock()
}

// CausedHalt reports whether this input's drain condition is what released
// its owner's final Dequeue. Meaningful once the owner has halted.
func (in *In[T]) CausedHalt() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.causedHalt
}

func (in *In[T]) ownerBox() *Box { return in.own }

// isBlocked reports whether a fiber is parked in the input's condition
// variable. Advisory unless the input is locked.
func (in *In[T]) isBlocked() bool {
	return in.cond.AnyWaiting()
}

func (in *In[T]) lock()   { in.mu.Lock() }
func (in *In[T]) unlock() { in.mu.Unlock() }

// connectedOutlets snapshots the connected outputs. The connection set is
// frozen once construction completes, which is the only time the scheduler
// reads it without the lock.
func (in *In[T]) connectedOutlets() []outlet {
	return in.connected
}

// checkWillHalt re-evaluates the drain condition after an upstream halt:
// if every connected output's owner has halted and the queue is empty, the
// input is terminally drained. The blocked fiber (if any) is woken to
// observe end-of-stream.
func (in *In[T]) checkWillHalt() {
	in.mu.Lock()
	if in.drained || len(in.queue) > 0 || !in.upstreamHalted() {
		in.mu.Unlock()
		return
	}
	in.drained = true
	in.causedHalt = true
	in.cond.Signal()
	in.mu.Unlock()

	if c := in.own.collective; c != nil {
		capitan.Info(context.Background(), SignalInputDrained,
			FieldCollective.Field(string(c.name)),
			FieldBox.Field(string(in.own.name)),
			FieldTimestamp.Field(float64(c.clock.Now().Unix())),
		)
	}
	in.own.drainedInput()
}
