package flowz

import (
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
)

// Box is the embeddable core of a computation node. User box types embed
// Box, implement Compute, and optionally Init and Terminate; CreateBox
// wires the rest. All fields are owned by the collective; user code
// interacts with a box only through its channels and the collective API.
//
// Lifecycle: constructing → ready (Init returned, registration complete) →
// runnable/blocked alternation → halted (Compute returned) → joined. The
// halted state is monotone.
type Box struct {
	name       Name
	collective *Collective
	fib        *fiber
	completion *Event

	// pending is the scheduler admission gate: test-and-cleared by a
	// worker before resuming the fiber. running serializes workers so a
	// fiber is never resumed on two workers at once.
	pending atomic.Bool
	running atomic.Bool
	halted  atomic.Bool

	mu      sync.Mutex
	inputs  []inlet
	outputs []outlet
}

func (b *Box) core() *Box { return b }

// Name returns the box's registered name.
func (b *Box) Name() Name {
	return b.name
}

// IsHalted reports whether the box's Compute body has returned.
func (b *Box) IsHalted() bool {
	return b.halted.Load()
}

// Collective returns the collective that owns this box. Nil until the box
// has been registered through CreateBox.
func (b *Box) Collective() *Collective {
	return b.collective
}

// Join blocks until the box has halted.
func (b *Box) Join() {
	b.completion.Wait()
}

// markPending flags the box for scheduling. Called whenever one of its
// inputs receives a value or drains.
func (b *Box) markPending() {
	b.pending.Store(true)
}

// drainedInput is markPending for the halt path; split out so the input
// does not need to know why it is waking its owner.
func (b *Box) drainedInput() {
	b.pending.Store(true)
}

// registerInput attaches an input during construction.
func (b *Box) registerInput(in inlet) {
	c := b.collective
	if c == nil {
		misuse(ErrUnownedEndpoint, clockz.RealClock.Now(), b.name)
	}
	if c.completed.Load() {
		misuse(ErrConstructionCompleted, c.clock.Now(), c.name, b.name)
	}
	b.mu.Lock()
	b.inputs = append(b.inputs, in)
	b.mu.Unlock()
}

// registerOutput attaches an output during construction.
func (b *Box) registerOutput(o outlet) {
	c := b.collective
	if c == nil {
		misuse(ErrUnownedEndpoint, clockz.RealClock.Now(), b.name)
	}
	if c.completed.Load() {
		misuse(ErrConstructionCompleted, c.clock.Now(), c.name, b.name)
	}
	b.mu.Lock()
	b.outputs = append(b.outputs, o)
	b.mu.Unlock()
}

// snapshotInputs returns the box's inputs. The slices are frozen once
// construction completes.
func (b *Box) snapshotInputs() []inlet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputs
}

func (b *Box) snapshotOutputs() []outlet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outputs
}
