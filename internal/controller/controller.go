package controller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/mkctl/internal/device"
)

// Controller serializes display instructions onto one device handle through a
// single worker goroutine.
//
// Schedule, Cancel, Pending, Stop, Join, State and Err may be called from any
// goroutine. Start and Close are serialized with each other.
type Controller struct {
	device device.Handle
	layout device.Layout
	opts   Options
	logger *slog.Logger

	lifecycleMu sync.Mutex // serializes Start and Close
	closed      atomic.Bool

	stateMu sync.Mutex
	state   State
	done    chan struct{} // closed when the current worker returns

	stopMu        sync.Mutex
	stopRequested bool

	queue queue

	errMu sync.Mutex
	err   error

	wake chan struct{}
}

// Create opens the identified device and returns an inactive controller
// driving it.
func Create(id device.Identifier, model device.Model, opts *Options) (*Controller, error) {
	var logger *slog.Logger
	if opts != nil {
		logger = opts.Logger
	}
	h, err := device.Open(id, model, logger)
	if err != nil {
		return nil, newError(ErrCodeDeviceOpen, "failed to open device "+id.String(), err)
	}
	return New(h, opts), nil
}

// New returns an inactive controller that takes ownership of h.
func New(h device.Handle, opts *Options) *Controller {
	if h == nil {
		panic("controller: nil device handle")
	}

	c := &Controller{
		device: h,
		layout: h.Layout(),
		state:  StateInactive,
		wake:   make(chan struct{}, 1),
	}
	if opts != nil {
		c.opts = *opts
	}

	c.logger = c.opts.Logger
	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// Close releases the device handle and drops any queued instructions.
// It returns ErrStillActive without releasing anything while the worker runs.
func (c *Controller) Close() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	if c.State() == StateActive {
		return ErrStillActive
	}
	c.waitWorker()

	if n := c.queue.clear(); n > 0 {
		c.logger.Debug("Dropped queued instructions", "count", n)
	}

	if err := c.device.Close(); err != nil {
		c.logger.Error("Failed to close device", "error", err)
		return newError(ErrCodeDeviceClose, "failed to close device", err)
	}

	c.closed.Store(true)
	c.logger.Debug("Controller closed")
	return nil
}

// Schedule appends a copy of instr to the queue and returns its ID.
func (c *Controller) Schedule(instr *Instruction) (uint32, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if err := instr.validate(c.layout); err != nil {
		return 0, err
	}

	queued := instr.clone()
	id, depth := c.queue.push(queued)
	c.signal()

	c.logger.Debug("Instruction scheduled", "id", id, "payload", queued.Kind(), "queue_depth", depth)
	c.notifyInstruction(InstructionEvent{
		Kind:       InstructionScheduled,
		ID:         id,
		Payload:    queued.Kind(),
		QueueDepth: depth,
	})
	return id, nil
}

// Cancel removes the queued instruction with the given ID. It reports false
// when no such instruction is queued. An instruction the worker has already
// started may still complete.
func (c *Controller) Cancel(id uint32) bool {
	in, depth := c.queue.cancel(id)
	if in == nil {
		return false
	}

	c.logger.Debug("Instruction cancelled", "id", id, "queue_depth", depth)
	c.notifyInstruction(InstructionEvent{
		Kind:       InstructionCancelled,
		ID:         id,
		Payload:    in.Kind(),
		QueueDepth: depth,
	})
	return true
}

// Pending returns the IDs of queued instructions in execution order.
func (c *Controller) Pending() []uint32 {
	return c.queue.ids()
}

// Len returns the number of queued instructions.
func (c *Controller) Len() int {
	return c.queue.len()
}

// Start enables device control and launches the worker. When enabling
// control fails no worker is started and the state is unchanged.
func (c *Controller) Start() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if c.State() == StateActive {
		return ErrAlreadyActive
	}

	// The previous worker may still be reporting its exit.
	c.waitWorker()

	if err := c.device.EnableControl(); err != nil {
		c.logger.Error("Failed to enable control", "error", err)
		return newError(ErrCodeControlEnable, "failed to enable control", err)
	}

	c.setStopRequested(false)

	done := make(chan struct{})
	c.stateMu.Lock()
	oldState := c.state
	c.state = StateActive
	c.done = done
	c.stateMu.Unlock()

	c.logger.Info("Controller started", "queue_depth", c.queue.len())
	c.notifyStateChange(oldState, StateActive, c.Err())

	go c.run(done)
	return nil
}

// Stop asks the worker to exit before its next instruction. It does not
// wait and does not interrupt an in-flight device call.
func (c *Controller) Stop() {
	if c.closed.Load() {
		return
	}
	c.setStopRequested(true)
	c.signal()
}

// Join waits up to timeout for the worker to exit. It returns the terminal
// state, or StateJoinTimedOut if the worker is still running.
func (c *Controller) Join(timeout time.Duration) State {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.JoinContext(ctx)
}

// JoinContext is Join bounded by ctx instead of a timeout.
func (c *Controller) JoinContext(ctx context.Context) State {
	c.stateMu.Lock()
	state, done := c.state, c.done
	c.stateMu.Unlock()

	if state != StateActive {
		return state
	}

	select {
	case <-done:
		return c.State()
	case <-ctx.Done():
	}

	// Prefer the real outcome when the worker exited as the deadline hit.
	select {
	case <-done:
		return c.State()
	default:
		return StateJoinTimedOut
	}
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Err returns the first error latched by the worker, or nil.
func (c *Controller) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// latchError records err unless an error is already latched.
func (c *Controller) latchError(err error) bool {
	c.errMu.Lock()
	defer c.errMu.Unlock()

	if c.err != nil {
		return false
	}
	c.err = err
	return true
}

func (c *Controller) isStopRequested() bool {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	return c.stopRequested
}

func (c *Controller) setStopRequested(v bool) {
	c.stopMu.Lock()
	c.stopRequested = v
	c.stopMu.Unlock()
}

// waitWorker blocks until the last worker, if any, has returned. The caller
// must have observed a non-active state.
func (c *Controller) waitWorker() {
	c.stateMu.Lock()
	done := c.done
	c.stateMu.Unlock()

	if done != nil {
		<-done
	}
}

// signal wakes the worker without blocking.
func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) notifyStateChange(oldState, newState State, err error) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(oldState, newState, err)
	}
}

func (c *Controller) notifyInstruction(ev InstructionEvent) {
	if c.opts.OnInstruction != nil {
		c.opts.OnInstruction(ev)
	}
}
