package events

import (
	"sync"
	"time"

	"github.com/smazurov/mkctl/internal/controller"
)

// ControllerHooks sets the callbacks in opts so controller activity is
// published on bus under name. Callbacks already present in opts still run.
func ControllerHooks(bus *Bus, name string, opts *controller.Options) {
	var (
		mu       sync.Mutex
		reported error
	)
	prevState := opts.OnStateChange
	opts.OnStateChange = func(oldState, newState controller.State, err error) {
		ev := ControllerStateChangedEvent{
			Controller: name,
			OldState:   string(oldState),
			NewState:   string(newState),
			Timestamp:  now(),
		}
		if err != nil {
			ev.Error = err.Error()
			ev.Code = controller.Code(err)
		}
		bus.Publish(ev)

		// The latched error surfaces when the worker exits. It stays latched
		// across restarts, so it is published once.
		if err != nil && newState == controller.StateInactive && firstReport(&mu, &reported, err) {
			bus.Publish(ControllerErrorEvent{
				Controller: name,
				Code:       controller.Code(err),
				Error:      err.Error(),
				Timestamp:  ev.Timestamp,
			})
		}

		if prevState != nil {
			prevState(oldState, newState, err)
		}
	}

	prevInstr := opts.OnInstruction
	opts.OnInstruction = func(ev controller.InstructionEvent) {
		bus.Publish(instructionEvent(name, ev))
		if prevInstr != nil {
			prevInstr(ev)
		}
	}
}

func firstReport(mu *sync.Mutex, reported *error, err error) bool {
	mu.Lock()
	defer mu.Unlock()

	if *reported == err {
		return false
	}
	*reported = err
	return true
}

func instructionEvent(name string, ev controller.InstructionEvent) Event {
	ts := now()
	switch ev.Kind {
	case controller.InstructionScheduled:
		return InstructionScheduledEvent{Controller: name, ID: ev.ID, Payload: ev.Payload, QueueDepth: ev.QueueDepth, Timestamp: ts}
	case controller.InstructionExecuted:
		return InstructionExecutedEvent{Controller: name, ID: ev.ID, Payload: ev.Payload, QueueDepth: ev.QueueDepth, Timestamp: ts}
	case controller.InstructionCancelled:
		return InstructionCancelledEvent{Controller: name, ID: ev.ID, Payload: ev.Payload, QueueDepth: ev.QueueDepth, Timestamp: ts}
	case controller.InstructionIdle:
		return IdlePacketEvent{Controller: name, Timestamp: ts}
	default:
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return InstructionFailedEvent{Controller: name, ID: ev.ID, Payload: ev.Payload, Error: msg, Timestamp: ts}
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
