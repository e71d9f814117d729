package events

// Event type constants for kelindar/event.
const (
	TypeControllerStateChanged uint32 = iota + 1
	TypeInstructionScheduled
	TypeInstructionExecuted
	TypeInstructionCancelled
	TypeInstructionFailed
	TypeIdlePacket
	TypeControllerError
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ControllerStateChangedEvent is published when a controller's worker starts or exits.
type ControllerStateChangedEvent struct {
	Controller string `json:"controller"`
	OldState   string `json:"old_state"`
	NewState   string `json:"new_state"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// Type returns the event type identifier for ControllerStateChangedEvent.
func (e ControllerStateChangedEvent) Type() uint32 { return TypeControllerStateChanged }

// IsActive reports whether the controller entered the active state.
func (e ControllerStateChangedEvent) IsActive() bool { return e.NewState == "active" }

// InstructionScheduledEvent is published when an instruction joins the queue.
type InstructionScheduledEvent struct {
	Controller string `json:"controller"`
	ID         uint32 `json:"id"`
	Payload    string `json:"payload"`
	QueueDepth int    `json:"queue_depth"`
	Timestamp  string `json:"timestamp"`
}

// Type returns the event type identifier for InstructionScheduledEvent.
func (e InstructionScheduledEvent) Type() uint32 { return TypeInstructionScheduled }

// InstructionExecutedEvent is published after an instruction reached the device.
type InstructionExecutedEvent struct {
	Controller string `json:"controller"`
	ID         uint32 `json:"id"`
	Payload    string `json:"payload"`
	QueueDepth int    `json:"queue_depth"`
	Timestamp  string `json:"timestamp"`
}

// Type returns the event type identifier for InstructionExecutedEvent.
func (e InstructionExecutedEvent) Type() uint32 { return TypeInstructionExecuted }

// InstructionCancelledEvent is published when a queued instruction is cancelled.
type InstructionCancelledEvent struct {
	Controller string `json:"controller"`
	ID         uint32 `json:"id"`
	Payload    string `json:"payload"`
	QueueDepth int    `json:"queue_depth"`
	Timestamp  string `json:"timestamp"`
}

// Type returns the event type identifier for InstructionCancelledEvent.
func (e InstructionCancelledEvent) Type() uint32 { return TypeInstructionCancelled }

// InstructionFailedEvent is published when the device rejects an instruction
// or an idle packet. ID is 0 for idle packets.
type InstructionFailedEvent struct {
	Controller string `json:"controller"`
	ID         uint32 `json:"id"`
	Payload    string `json:"payload"`
	Error      string `json:"error"`
	Timestamp  string `json:"timestamp"`
}

// Type returns the event type identifier for InstructionFailedEvent.
func (e InstructionFailedEvent) Type() uint32 { return TypeInstructionFailed }

// IdlePacketEvent is published for each keep-alive packet sent.
type IdlePacketEvent struct {
	Controller string `json:"controller"`
	Timestamp  string `json:"timestamp"`
}

// Type returns the event type identifier for IdlePacketEvent.
func (e IdlePacketEvent) Type() uint32 { return TypeIdlePacket }

// ControllerErrorEvent is published for controller errors, latched or returned.
type ControllerErrorEvent struct {
	Controller string `json:"controller"`
	Code       string `json:"code"`
	Error      string `json:"error"`
	Timestamp  string `json:"timestamp"`
}

// Type returns the event type identifier for ControllerErrorEvent.
func (e ControllerErrorEvent) Type() uint32 { return TypeControllerError }
