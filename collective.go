package flowz

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Collective.
const (
	// Metrics.
	CollectiveBoxesCreated  = metricz.Key("collective.boxes.created.total")
	CollectiveBoxesHalted   = metricz.Key("collective.boxes.halted.total")
	CollectiveConnections   = metricz.Key("collective.connections.total")
	CollectiveDeadlockRuns  = metricz.Key("collective.deadlock.runs.total")
	CollectiveDeadlocksHit  = metricz.Key("collective.deadlock.detected.total")
	CollectiveWorkerCount   = metricz.Key("collective.workers")
	CollectiveLiveBoxes     = metricz.Key("collective.boxes.live")

	// Spans.
	CollectiveJoinSpan     = tracez.Key("collective.join")
	CollectiveDeadlockSpan = tracez.Key("collective.deadlock")

	// Tags.
	CollectiveTagBoxes   = tracez.Tag("collective.boxes")
	CollectiveTagHalted  = tracez.Tag("collective.halted")
	CollectiveTagLocked  = tracez.Tag("collective.locked")
	CollectiveTagWitness = tracez.Tag("collective.witness")

	// Hook event keys.
	CollectiveEventBoxHalted = hookz.Key("collective.box_halted")
	CollectiveEventDeadlock  = hookz.Key("collective.deadlock")
)

// BoxEvent describes a box lifecycle transition. It is emitted via hookz
// when a box halts and when a deadlock witness is found, so hosts can
// monitor graph progress without polling.
type BoxEvent struct {
	Collective Name      // Collective name
	Box        Name      // Box name
	Halted     int       // Boxes halted so far
	Total      int       // Boxes registered
	Timestamp  time.Time // When the event occurred
}

// Collective owns a box graph, the worker pool that drives it, and the
// registry the workers sweep. Construction is a distinct phase: boxes are
// created and channels connected while the workers park on the start
// blocker; ConstructionCompleted releases them. The collective is done when
// every box has halted.
//
// Example:
//
//	c := flowz.NewCollective("pipeline", 0)
//	src := flowz.CreateBox(c, "source", &source{})
//	sink := flowz.CreateBox(c, "sink", &sink{})
//	flowz.Connect(c, sink.in, src.out)
//	c.ConstructionCompleted()
//	c.Join()
type Collective struct {
	name Name

	// boxes is the live-box registry the workers sweep. Reads go through
	// the lock-free list protocol; mu serializes construction only.
	boxes List[Computer]
	mu    sync.Mutex

	startBlocker *Event
	blocker      *Event
	completed    atomic.Bool
	boxCount     atomic.Int64
	haltedBoxes  atomic.Int64

	workers int
	wg      sync.WaitGroup

	clock   clockz.Clock
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[BoxEvent]

	closeOnce sync.Once
	closeErr  error
}

// NewCollective creates a collective and starts its worker pool. A
// non-positive workers count selects hardware concurrency; the pool always
// has at least one worker. Workers idle on the start blocker until
// ConstructionCompleted.
func NewCollective(name Name, workers int) *Collective {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}

	metrics := metricz.New()
	metrics.Counter(CollectiveBoxesCreated)
	metrics.Counter(CollectiveBoxesHalted)
	metrics.Counter(CollectiveConnections)
	metrics.Counter(CollectiveDeadlockRuns)
	metrics.Counter(CollectiveDeadlocksHit)
	metrics.Gauge(CollectiveWorkerCount)
	metrics.Gauge(CollectiveLiveBoxes)

	c := &Collective{
		name:         name,
		startBlocker: NewEvent(),
		blocker:      NewEvent(),
		workers:      workers,
		clock:        clockz.RealClock,
		metrics:      metrics,
		tracer:       tracez.New(),
		hooks:        hookz.New[BoxEvent](),
	}
	c.metrics.Gauge(CollectiveWorkerCount).Set(float64(workers))

	c.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go c.runWorker(i)
	}
	return c
}

// CreateBox registers a user box with the collective: the back-reference
// is set, Init runs under the construction lock, the Compute body is
// wrapped in a cooperative fiber, and the box enters the registry flagged
// as having pending work. Returns the box for further wiring.
//
// Calling CreateBox after ConstructionCompleted is construction misuse and
// panics.
func CreateBox[B Computer](c *Collective, name Name, box B) B {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completed.Load() {
		misuse(ErrConstructionCompleted, c.clock.Now(), c.name, name)
	}

	b := box.core()
	b.name = name
	b.collective = c
	b.completion = NewEvent()

	if init, ok := any(box).(Initializer); ok {
		init.Init()
	}

	b.fib = newFiber(func() {
		box.Compute()
		c.boxReturned(box)
	})
	b.pending.Store(true)
	c.boxes.PushFront(box)
	c.boxCount.Add(1)

	c.metrics.Counter(CollectiveBoxesCreated).Inc()
	c.metrics.Gauge(CollectiveLiveBoxes).Set(float64(c.boxCount.Load() - c.haltedBoxes.Load()))
	capitan.Info(context.Background(), SignalBoxCreated,
		FieldCollective.Field(string(c.name)),
		FieldBox.Field(string(name)),
		FieldBoxCount.Field(int(c.boxCount.Load())),
		FieldTimestamp.Field(float64(c.clock.Now().Unix())),
	)
	return box
}

// Connect wires output into input and replays the output's history into
// the new connection, so wiring order does not matter. Payload types must
// match; the compiler enforces it. Both endpoints must belong to this
// collective, and the graph must still be under construction.
func Connect[T any](c *Collective, in *In[T], out *Out[T]) {
	if c.completed.Load() {
		misuse(ErrConstructionCompleted, c.clock.Now(), c.name)
	}
	if in.own == nil || out.own == nil {
		misuse(ErrUnownedEndpoint, c.clock.Now(), c.name)
	}
	if in.own.collective != c || out.own.collective != c {
		misuse(ErrForeignCollective, c.clock.Now(), c.name, out.own.name, in.own.name)
	}

	replayed := out.connect(in)

	c.metrics.Counter(CollectiveConnections).Inc()
	capitan.Info(context.Background(), SignalChannelConnected,
		FieldCollective.Field(string(c.name)),
		FieldBox.Field(string(in.own.name)),
		FieldReplayed.Field(replayed),
		FieldTimestamp.Field(float64(c.clock.Now().Unix())),
	)
}

// ConstructionCompleted declares the graph complete and releases the
// workers. Must be called exactly once; a second call panics. An empty
// collective is done immediately.
func (c *Collective) ConstructionCompleted() {
	if !c.completed.CompareAndSwap(false, true) {
		misuse(ErrAlreadyCompleted, c.clock.Now(), c.name)
	}
	if c.boxCount.Load() == 0 {
		c.blocker.Set()
	}
	capitan.Info(context.Background(), SignalConstructionCompleted,
		FieldCollective.Field(string(c.name)),
		FieldBoxCount.Field(int(c.boxCount.Load())),
		FieldWorkerCount.Field(c.workers),
		FieldTimestamp.Field(float64(c.clock.Now().Unix())),
	)
	c.startBlocker.Set()
}

// IsDone reports whether every box has halted or the collective has been
// closed; Close sets it even while boxes remain unhalted. Monotone.
func (c *Collective) IsDone() bool {
	return c.blocker.IsSet()
}

// Join blocks until every box has halted and its completion event has
// fired.
func (c *Collective) Join() {
	_, span := c.tracer.StartSpan(context.Background(), CollectiveJoinSpan)
	defer span.Finish()

	c.blocker.Wait()
	it := c.boxes.Begin()
	for it.Valid() {
		it.Value().core().Join()
		it.Next()
	}
	it.Release()

	span.SetTag(CollectiveTagBoxes, strconv.Itoa(int(c.boxCount.Load())))
	span.SetTag(CollectiveTagHalted, strconv.Itoa(int(c.haltedBoxes.Load())))
}

// Close releases the workers even if construction never completed and
// waits for them to exit. Idempotent. A collective abandoned without
// ConstructionCompleted would otherwise park its workers forever.
func (c *Collective) Close() error {
	c.closeOnce.Do(func() {
		c.blocker.Set()
		c.startBlocker.Set()
		c.wg.Wait()
		c.hooks.Close()
		capitan.Info(context.Background(), SignalCollectiveClosed,
			FieldCollective.Field(string(c.name)),
			FieldTimestamp.Field(float64(c.clock.Now().Unix())),
		)
	})
	return c.closeErr
}

// runWorker is the scheduler loop: sweep the registry, admit each box
// whose pending flag test-and-clears, and lend the thread to its fiber
// until it yields. The running gate guarantees a fiber is never resumed on
// two workers at once; the pending exchange is the admission gate.
//
// Idle policy is a spin over the registry with a scheduler yield between
// empty sweeps. Wake-on-enqueue is preserved because an enqueue both
// signals the input's condition variable and re-flags the owner's pending
// bit, which the next sweep observes.
func (c *Collective) runWorker(id int) {
	defer c.wg.Done()
	c.startBlocker.Wait()

	capitan.Info(context.Background(), SignalWorkerStarted,
		FieldCollective.Field(string(c.name)),
		FieldWorker.Field(id),
		FieldTimestamp.Field(float64(c.clock.Now().Unix())),
	)

	for !c.blocker.IsSet() {
		ran := false
		it := c.boxes.Begin()
		for it.Valid() {
			b := it.Value().core()
			if !b.halted.Load() && b.running.CompareAndSwap(false, true) {
				if b.pending.CompareAndSwap(true, false) {
					b.fib.resume()
					ran = true
				}
				b.running.Store(false)
			}
			it.Next()
		}
		it.Release()
		if !ran {
			runtime.Gosched()
		}
	}

	capitan.Info(context.Background(), SignalWorkerStopped,
		FieldCollective.Field(string(c.name)),
		FieldWorker.Field(id),
		FieldTimestamp.Field(float64(c.clock.Now().Unix())),
	)
}

// boxReturned runs on the box's fiber immediately after Compute returns:
// optional Terminate, the monotone halt mark, completion, downstream halt
// propagation, and the done blocker when this was the last box.
func (c *Collective) boxReturned(box Computer) {
	b := box.core()
	if t, ok := any(box).(Terminator); ok {
		t.Terminate()
	}
	b.halted.Store(true)
	b.completion.Set()

	halted := c.haltedBoxes.Add(1)
	total := c.boxCount.Load()

	c.propagateHalt(b)

	c.metrics.Counter(CollectiveBoxesHalted).Inc()
	c.metrics.Gauge(CollectiveLiveBoxes).Set(float64(total - halted))
	now := c.clock.Now()
	capitan.Info(context.Background(), SignalBoxHalted,
		FieldCollective.Field(string(c.name)),
		FieldBox.Field(string(b.name)),
		FieldHaltedCount.Field(int(halted)),
		FieldBoxCount.Field(int(total)),
		FieldTimestamp.Field(float64(now.Unix())),
	)
	_ = c.hooks.Emit(context.Background(), CollectiveEventBoxHalted, BoxEvent{ //nolint:errcheck
		Collective: c.name,
		Box:        b.name,
		Halted:     int(halted),
		Total:      int(total),
		Timestamp:  now,
	})

	if halted == total {
		c.blocker.Set()
		capitan.Info(context.Background(), SignalCollectiveDone,
			FieldCollective.Field(string(c.name)),
			FieldBoxCount.Field(int(total)),
			FieldTimestamp.Field(float64(c.clock.Now().Unix())),
		)
	}
}

// propagateHalt re-evaluates every input downstream of a halted box. Each
// dependent box's full input set is checked so a box with several drained
// inputs settles in one pass.
func (c *Collective) propagateHalt(b *Box) {
	dependents := make(map[*Box]struct{})
	for _, o := range b.snapshotOutputs() {
		for _, in := range o.connectedInlets() {
			owner := in.ownerBox()
			if !owner.halted.Load() {
				dependents[owner] = struct{}{}
			}
		}
	}
	for dep := range dependents {
		for _, in := range dep.snapshotInputs() {
			in.checkWillHalt()
		}
	}
}

// OnBoxHalted registers a handler invoked whenever a box halts.
func (c *Collective) OnBoxHalted(handler func(context.Context, BoxEvent) error) error {
	_, err := c.hooks.Hook(CollectiveEventBoxHalted, handler)
	return err
}

// OnDeadlock registers a handler invoked when DetectDeadlock finds a
// witness.
func (c *Collective) OnDeadlock(handler func(context.Context, BoxEvent) error) error {
	_, err := c.hooks.Hook(CollectiveEventDeadlock, handler)
	return err
}

// Name returns the collective's name.
func (c *Collective) Name() Name {
	return c.name
}

// Metrics returns the metrics registry for this collective.
func (c *Collective) Metrics() *metricz.Registry {
	return c.metrics
}

// Tracer returns the tracer for this collective.
func (c *Collective) Tracer() *tracez.Tracer {
	return c.tracer
}

// WithClock sets a custom clock for testing.
func (c *Collective) WithClock(clock clockz.Clock) *Collective {
	c.clock = clock
	return c
}

