package nats

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/mkctl/internal/controller"
	"github.com/smazurov/mkctl/internal/events"
)

// Controller is the part of *controller.Controller the bridge drives.
type Controller interface {
	Schedule(instr *controller.Instruction) (uint32, error)
	Cancel(id uint32) bool
	Start() error
	Stop()
	State() controller.State
	Err() error
}

// Bridge exposes one controller to remote producers. It answers control
// requests and republishes the controller's bus events on NATS.
type Bridge struct {
	url      string
	name     string
	ctrl     Controller
	eventBus *events.Bus
	conn     *nats.Conn
	subs     []*nats.Subscription
	unsubs   []func()
	stop     chan struct{}
	done     chan struct{}
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewBridge creates a bridge serving ctrl under name.
func NewBridge(url, name string, ctrl Controller, eventBus *events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		url:      url,
		name:     name,
		ctrl:     ctrl,
		eventBus: eventBus,
		logger:   logger.With("component", "nats-bridge", "controller", name),
	}
}

// Start connects to NATS, subscribes to the control subjects and begins
// forwarding controller events.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return errors.New("NATS bridge already started")
	}

	conn, err := nats.Connect(b.url,
		nats.Name("mkctl-bridge-"+b.name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS bridge disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS bridge reconnected")
		}),
	)
	if err != nil {
		return err
	}

	b.conn = conn
	b.logger.Info("NATS bridge connected", "url", b.url)

	handlers := map[string]nats.MsgHandler{
		ActionSchedule: b.handleSchedule,
		ActionCancel:   b.handleCancel,
		ActionStart:    b.handleStart,
		ActionStop:     b.handleStop,
		ActionState:    b.handleState,
	}
	for action, handler := range handlers {
		sub, err := conn.Subscribe(SubjectControl(b.name, action), handler)
		if err != nil {
			b.cleanup()
			return err
		}
		b.subs = append(b.subs, sub)
	}

	if b.eventBus != nil {
		b.startForwarding()
	}

	b.logger.Info("NATS bridge subscribed to control subjects")
	return nil
}

// startForwarding relays bus events for this controller onto NATS.
func (b *Bridge) startForwarding() {
	ch := make(chan any, 256)
	b.unsubs = []func(){
		events.SubscribeToChannel[events.ControllerStateChangedEvent](b.eventBus, ch),
		events.SubscribeToChannel[events.InstructionScheduledEvent](b.eventBus, ch),
		events.SubscribeToChannel[events.InstructionExecutedEvent](b.eventBus, ch),
		events.SubscribeToChannel[events.InstructionCancelledEvent](b.eventBus, ch),
		events.SubscribeToChannel[events.InstructionFailedEvent](b.eventBus, ch),
		events.SubscribeToChannel[events.IdlePacketEvent](b.eventBus, ch),
	}

	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.forward(b.conn, ch, b.stop, b.done)
}

func (b *Bridge) forward(conn *nats.Conn, ch <-chan any, stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case ev := <-ch:
			subject, data, err := b.encodeEvent(ev)
			if err != nil {
				b.logger.Warn("Failed to marshal event", "error", err)
				continue
			}
			if subject == "" {
				continue
			}
			if err := conn.Publish(subject, data); err != nil {
				b.logger.Warn("Failed to publish event", "subject", subject, "error", err)
			}
		}
	}
}

// encodeEvent maps a bus event to its NATS subject and payload. Events of
// other controllers yield an empty subject.
func (b *Bridge) encodeEvent(ev any) (string, []byte, error) {
	var msg InstructionMessage
	switch e := ev.(type) {
	case events.ControllerStateChangedEvent:
		if e.Controller != b.name {
			return "", nil, nil
		}
		data, err := StateMessage{
			Controller: e.Controller,
			Timestamp:  e.Timestamp,
			OldState:   e.OldState,
			NewState:   e.NewState,
			Error:      e.Error,
			Code:       e.Code,
		}.Marshal()
		return SubjectEventState(b.name), data, err
	case events.InstructionScheduledEvent:
		msg = InstructionMessage{Controller: e.Controller, Timestamp: e.Timestamp, Event: "scheduled", ID: e.ID, Payload: e.Payload, QueueDepth: e.QueueDepth}
	case events.InstructionExecutedEvent:
		msg = InstructionMessage{Controller: e.Controller, Timestamp: e.Timestamp, Event: "executed", ID: e.ID, Payload: e.Payload, QueueDepth: e.QueueDepth}
	case events.InstructionCancelledEvent:
		msg = InstructionMessage{Controller: e.Controller, Timestamp: e.Timestamp, Event: "cancelled", ID: e.ID, Payload: e.Payload, QueueDepth: e.QueueDepth}
	case events.InstructionFailedEvent:
		msg = InstructionMessage{Controller: e.Controller, Timestamp: e.Timestamp, Event: "failed", ID: e.ID, Payload: e.Payload, Error: e.Error}
	case events.IdlePacketEvent:
		msg = InstructionMessage{Controller: e.Controller, Timestamp: e.Timestamp, Event: "idle"}
	default:
		return "", nil, nil
	}

	if msg.Controller != b.name {
		return "", nil, nil
	}
	data, err := msg.Marshal()
	return SubjectEventInstruction(b.name), data, err
}

func (b *Bridge) handleSchedule(msg *nats.Msg) {
	req, err := UnmarshalSchedule(msg.Data)
	if err != nil {
		b.logger.Warn("Failed to unmarshal schedule request", "error", err, "subject", msg.Subject)
		b.respond(msg, Reply{Error: err.Error(), Code: controller.ErrCodeInvalidInstruction})
		return
	}

	in, err := req.Instruction()
	if err != nil {
		b.respond(msg, Reply{Error: err.Error(), Code: controller.ErrCodeInvalidInstruction})
		return
	}

	id, err := b.ctrl.Schedule(in)
	if err != nil {
		b.logger.Debug("Remote schedule rejected", "error", err)
		b.respond(msg, errorReply(err))
		return
	}
	b.respond(msg, Reply{OK: true, ID: id})
}

func (b *Bridge) handleCancel(msg *nats.Msg) {
	req, err := UnmarshalCancel(msg.Data)
	if err != nil {
		b.logger.Warn("Failed to unmarshal cancel request", "error", err, "subject", msg.Subject)
		b.respond(msg, Reply{Error: err.Error()})
		return
	}
	b.respond(msg, Reply{OK: true, ID: req.ID, Cancelled: b.ctrl.Cancel(req.ID)})
}

func (b *Bridge) handleStart(msg *nats.Msg) {
	if err := b.ctrl.Start(); err != nil {
		b.logger.Info("Remote start failed", "error", err)
		r := errorReply(err)
		r.State = string(b.ctrl.State())
		b.respond(msg, r)
		return
	}
	b.respond(msg, Reply{OK: true, State: string(b.ctrl.State())})
}

func (b *Bridge) handleStop(msg *nats.Msg) {
	b.ctrl.Stop()
	b.respond(msg, Reply{OK: true, State: string(b.ctrl.State())})
}

// handleState reports the state together with any latched worker error.
func (b *Bridge) handleState(msg *nats.Msg) {
	r := Reply{OK: true, State: string(b.ctrl.State())}
	if err := b.ctrl.Err(); err != nil {
		r.Error = err.Error()
		r.Code = controller.Code(err)
	}
	b.respond(msg, r)
}

func (b *Bridge) respond(msg *nats.Msg, r Reply) {
	if msg.Reply == "" {
		return
	}
	data, err := r.Marshal()
	if err != nil {
		b.logger.Warn("Failed to marshal reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		b.logger.Warn("Failed to send reply", "subject", msg.Subject, "error", err)
	}
}

// cleanup unsubscribes and closes connection.
func (b *Bridge) cleanup() {
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil

	if b.stop != nil {
		close(b.stop)
		<-b.done
		b.stop, b.done = nil, nil
	}

	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil

	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// Stop closes the bridge connection.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cleanup()
	b.logger.Info("NATS bridge stopped")
}

// IsConnected returns true if the bridge is connected to NATS.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}
