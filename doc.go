// Package flowz provides a dataflow concurrency runtime for Go.
//
// # Overview
//
// flowz lets you compose a static graph of boxes (computation nodes)
// connected by typed, directed, unbounded channels, and drives the graph to
// completion with a collective scheduler: a fixed pool of workers that
// multiplex over cooperative, per-box fibers. The runtime guarantees forward
// progress under a halt-propagation policy, detects terminal deadlocks on
// request, and coordinates construction, execution, and shutdown.
//
// # Core Concepts
//
//   - Box: a user computation with typed inputs and outputs. A box type
//     embeds flowz.Box and implements Compute (the fiber body), plus optional
//     Init and Terminate.
//   - In[T] / Out[T]: channel endpoints. An output keeps a replay log of
//     everything ever enqueued and fans out to any number of inputs, each
//     with its own replay cursor, so late connections still observe the full
//     history. An input is an unbounded FIFO whose Dequeue suspends the
//     calling fiber (never the worker) while empty.
//   - Collective: the owner of the box graph, the worker pool, and the
//     registry. Construction is explicit: create boxes, connect channels,
//     then call ConstructionCompleted to release the workers.
//   - Halt: the terminal state of a box, entered when Compute returns. Halt
//     propagates downstream: an input whose upstream producers have all
//     halted and whose queue is empty reports end-of-stream, and a box whose
//     inputs have all drained is expected to return in turn.
//
// # Example
//
//	c := flowz.NewCollective("pipeline", 0) // 0 workers = hardware concurrency
//
//	src := flowz.CreateBox(c, "source", &source{})
//	dbl := flowz.CreateBox(c, "doubler", &doubler{})
//	flowz.Connect(c, dbl.in, src.out)
//
//	c.ConstructionCompleted()
//	c.Join()
//
// # Scheduling Model
//
// Scheduling is two-tier: parallel workers on the outside, a cooperative
// scheduler over fibers within. A box's fiber never runs on two workers at
// once; the atomic pending-work flag is the admission gate. The only
// suspension point inside user code is a Dequeue on an empty input:
// Enqueue, local computation, and non-channel I/O never suspend.
//
// There is no cancellation and there are no timeouts in the core. A graph
// terminates exclusively through halt propagation. DetectDeadlock reports a
// witness box when the remaining boxes are transitively blocked; breaking
// the deadlock is left to the host.
//
// # Observability
//
// The runtime emits capitan signals for box and collective lifecycle events
// (see signals.go), keeps counters and gauges in a metricz registry, traces
// Join and DetectDeadlock with tracez spans, and offers typed hookz hooks
// (OnBoxHalted, OnDeadlock) for host callbacks. Time is read through a
// clockz.Clock so tests can substitute a fake clock.
//
// The package also ships a lock-free, reference-counted forward list
// (List[T]) used for the box registry, and a terminals subpackage of
// codepoint-cursor helpers consumed by external parser code.
package flowz
