package controller

// State represents the lifecycle state of a Controller.
type State string

// Controller states.
const (
	StateInactive State = "inactive" // No worker goroutine
	StateActive   State = "active"   // Worker goroutine running

	// StateJoinTimedOut is only returned by Join; a Controller never holds it.
	StateJoinTimedOut State = "join_timed_out"
)
