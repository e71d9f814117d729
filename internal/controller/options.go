package controller

import (
	"log/slog"
	"time"
)

// StateChangeCallback is called when the controller transitions between
// Inactive and Active. err is the latched error at the time of the transition.
type StateChangeCallback func(oldState, newState State, err error)

// InstructionCallback is called for each instruction lifecycle event.
type InstructionCallback func(ev InstructionEvent)

// InstructionEventKind names what happened to an instruction.
type InstructionEventKind string

// Instruction event kinds.
const (
	InstructionScheduled InstructionEventKind = "scheduled"
	InstructionExecuted  InstructionEventKind = "executed"
	InstructionCancelled InstructionEventKind = "cancelled"
	InstructionFailed    InstructionEventKind = "failed"
	InstructionIdle      InstructionEventKind = "idle" // keep-alive packet, ID is 0
)

// InstructionEvent describes one instruction lifecycle event.
type InstructionEvent struct {
	Kind       InstructionEventKind
	ID         uint32
	Payload    string // "uniform", "grid" or "" for idle
	QueueDepth int
	Err        error
}

// Options configures a new Controller. The zero value is valid.
type Options struct {
	// Logger for controller operations. If nil, uses slog.Default().
	Logger *slog.Logger

	// IdleInterval sends a keep-alive packet when the queue stays empty this
	// long. Zero disables idle packets.
	IdleInterval time.Duration

	// OnStateChange is called on Start and when the worker exits (optional).
	OnStateChange StateChangeCallback

	// OnInstruction is called for instruction lifecycle events (optional).
	// It runs on the calling goroutine and must not block.
	OnInstruction InstructionCallback
}
