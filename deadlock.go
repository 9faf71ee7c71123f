package flowz

import (
	"context"
	"strconv"

	"github.com/zoobzio/capitan"
)

// vertex is a node in the wait-for graph DetectDeadlock builds over the
// non-halted boxes.
type vertex struct {
	box          Computer
	inNeighbors  map[*vertex]struct{}
	outNeighbors map[*vertex]struct{}
}

// DetectDeadlock looks for boxes that can never make progress: it builds a
// directed graph in which every blocked input contributes edges from its
// owner to the owners of its connected outputs, then removes every vertex
// that is transitively unblocked. This resembles Kahn's topological
// sorting, except a vertex is removed regardless of whether it has
// remaining in-edges. Whatever remains is deadlocked; one such box is
// returned as a witness, or nil when none exists. O(V+E).
//
// With lockAll true every non-halted box's mutex and every one of its
// inputs' mutexes are held for the duration, so the answer is definitive.
// Without locking, concurrent progress can yield transient false positives
// and negatives; the result is advisory.
//
// The runtime never breaks a deadlock itself; that policy belongs to the
// host.
func (c *Collective) DetectDeadlock(lockAll bool) Computer {
	_, span := c.tracer.StartSpan(context.Background(), CollectiveDeadlockSpan)
	defer span.Finish()
	span.SetTag(CollectiveTagLocked, strconv.FormatBool(lockAll))
	c.metrics.Counter(CollectiveDeadlockRuns).Inc()

	// Snapshot the non-halted boxes.
	var snapshot []Computer
	it := c.boxes.Begin()
	for it.Valid() {
		if box := it.Value(); !box.core().halted.Load() {
			snapshot = append(snapshot, box)
		}
		it.Next()
	}
	it.Release()

	if lockAll {
		for _, box := range snapshot {
			b := box.core()
			b.mu.Lock()
			for _, in := range b.inputs {
				in.lock()
			}
		}
		defer func() {
			for _, box := range snapshot {
				b := box.core()
				for _, in := range b.inputs {
					in.unlock()
				}
				b.mu.Unlock()
			}
		}()
	}

	vertices := make(map[*Box]*vertex, len(snapshot))
	for _, box := range snapshot {
		vertices[box.core()] = &vertex{
			box:          box,
			inNeighbors:  make(map[*vertex]struct{}),
			outNeighbors: make(map[*vertex]struct{}),
		}
	}

	// Construct the edges: a blocked input makes its owner wait on every
	// producer feeding that input.
	// Input slices are frozen once construction completes, and under
	// lockAll this goroutine already holds every box mutex, so the edge
	// walk reads them directly.
	for _, box := range snapshot {
		inVertex := vertices[box.core()]
		for _, in := range box.core().inputs {
			if !in.isBlocked() {
				continue
			}
			for _, o := range in.connectedOutlets() {
				owner := o.ownerBox()
				if owner.halted.Load() {
					continue
				}
				outVertex := vertices[owner]
				if outVertex == nil {
					continue
				}
				inVertex.outNeighbors[outVertex] = struct{}{}
				outVertex.inNeighbors[inVertex] = struct{}{}
			}
		}
	}

	// Separate the vertices nothing is waiting on, then flood the
	// unblocked property downstream.
	blocked := make(map[*vertex]struct{})
	var unblocked []*vertex
	for _, v := range vertices {
		if len(v.inNeighbors) > 0 {
			blocked[v] = struct{}{}
		} else {
			unblocked = append(unblocked, v)
		}
	}
	for len(unblocked) > 0 {
		v := unblocked[0]
		unblocked = unblocked[1:]
		for downstream := range v.outNeighbors {
			if _, ok := blocked[downstream]; ok {
				delete(blocked, downstream)
				unblocked = append(unblocked, downstream)
			}
		}
	}

	for v := range blocked {
		witness := v.box
		b := witness.core()
		span.SetTag(CollectiveTagWitness, string(b.name))
		c.metrics.Counter(CollectiveDeadlocksHit).Inc()
		now := c.clock.Now()
		capitan.Warn(context.Background(), SignalDeadlockDetected,
			FieldCollective.Field(string(c.name)),
			FieldWitness.Field(string(b.name)),
			FieldLocked.Field(lockAll),
			FieldTimestamp.Field(float64(now.Unix())),
		)
		_ = c.hooks.Emit(context.Background(), CollectiveEventDeadlock, BoxEvent{ //nolint:errcheck
			Collective: c.name,
			Box:        b.name,
			Halted:     int(c.haltedBoxes.Load()),
			Total:      int(c.boxCount.Load()),
			Timestamp:  now,
		})
		return witness
	}
	capitan.Info(context.Background(), SignalDeadlockClear,
		FieldCollective.Field(string(c.name)),
		FieldLocked.Field(lockAll),
		FieldTimestamp.Field(float64(c.clock.Now().Unix())),
	)
	return nil
}
