package flowz

import "github.com/zoobzio/capitan"

// Signal values for runtime events.
// Signals follow the pattern: <component>.<event>.
var (
	// Box lifecycle.
	SignalBoxCreated = capitan.NewSignal("box.created", "Box created")
	SignalBoxHalted  = capitan.NewSignal("box.halted", "Box halted")

	// Collective lifecycle.
	SignalConstructionCompleted = capitan.NewSignal("collective.construction-completed", "Collective construction completed")
	SignalCollectiveDone        = capitan.NewSignal("collective.done", "Collective done")
	SignalCollectiveClosed      = capitan.NewSignal("collective.closed", "Collective closed")

	// Workers.
	SignalWorkerStarted = capitan.NewSignal("worker.started", "Worker started")
	SignalWorkerStopped = capitan.NewSignal("worker.stopped", "Worker stopped")

	// Channels.
	SignalChannelConnected = capitan.NewSignal("channel.connected", "Channel connected")
	SignalInputDrained     = capitan.NewSignal("input.drained", "Input drained")

	// Deadlock detection.
	SignalDeadlockDetected = capitan.NewSignal("deadlock.detected", "Deadlock detected")
	SignalDeadlockClear    = capitan.NewSignal("deadlock.clear", "Deadlock clear")
)

// Field keys for signal payloads.
var (
	// Common fields.
	FieldCollective = capitan.NewStringKey("collective") // Collective instance name
	FieldBox        = capitan.NewStringKey("box")        // Box instance name
	FieldTimestamp  = capitan.NewFloat64Key("timestamp") // Unix timestamp

	// Collective fields.
	FieldBoxCount    = capitan.NewIntKey("box_count")    // Registered boxes
	FieldHaltedCount = capitan.NewIntKey("halted_count") // Halted boxes so far
	FieldWorkerCount = capitan.NewIntKey("worker_count") // Worker pool size

	// Worker fields.
	FieldWorker = capitan.NewIntKey("worker") // Worker index

	// Channel fields.
	FieldReplayed = capitan.NewIntKey("replayed") // Values replayed on connect

	// Deadlock fields.
	FieldLocked  = capitan.NewBoolKey("locked")  // Whether lockAll was used
	FieldWitness = capitan.NewStringKey("witness") // Name of the witness box
)
