package flowz

import "sync"

// outlet is the scheduler's type-erased view of an Out.
type outlet interface {
	ownerBox() *Box
	connectedInlets() []inlet
}

// connection wires one input into an output. nextIndex is the replay
// cursor: the index of the first log entry the input has not yet received.
// It is monotone and never exceeds the log length.
type connection[T any] struct {
	in        *In[T]
	nextIndex int
}

// Out is the sending endpoint of a channel, owned by exactly one box. It
// retains a replay log of every value ever enqueued so that inputs
// connected late still observe the complete history in order. Enqueue
// never suspends.
type Out[T any] struct {
	own   *Box
	mu    sync.Mutex
	log   []T
	conns []connection[T]
}

// NewOut creates an output owned by the given box and registers it. Must
// be called before the collective's construction completes, conventionally
// from the box's Init.
func NewOut[T any](owner Owner) *Out[T] {
	b := owner.core()
	o := &Out[T]{own: b}
	b.registerOutput(o)
	return o
}

// Enqueue appends value to the replay log and delivers it to every
// connected input. Delivery to each input follows that connection's replay
// cursor, so a single (output, input) pair always observes the enqueue
// order. Fan-in order across outputs is the serialization order of the
// Enqueue calls themselves.
func (o *Out[T]) Enqueue(value T) {
	o.mu.Lock()
	o.log = append(o.log, value)
	o.transmit()
	o.mu.Unlock()
}

// connect registers in with a zero replay cursor and immediately replays
// the existing log, so graph construction may complete in any order.
// Returns how many values were replayed.
func (o *Out[T]) connect(in *In[T]) int {
	o.mu.Lock()
	o.conns = append(o.conns, connection[T]{in: in})
	in.didConnect(o)
	replayed := len(o.log)
	o.transmit()
	o.mu.Unlock()
	return replayed
}

// transmit drains the replay log into every connection's input from its
// cursor forward. Caller holds o.mu.
func (o *Out[T]) transmit() {
	for i := range o.conns {
		c := &o.conns[i]
		for c.nextIndex < len(o.log) {
			c.in.enqueue(o.log[c.nextIndex])
			c.nextIndex++
		}
	}
}

func (o *Out[T]) ownerBox() *Box { return o.own }

func (o *Out[T]) connectedInlets() []inlet {
	o.mu.Lock()
	defer o.mu.Unlock()
	results := make([]inlet, len(o.conns))
	for i := range o.conns {
		results[i] = o.conns[i].in
	}
	return results
}
