package controller

import (
	"fmt"
	"time"
)

// run is the worker goroutine body.
func (c *Controller) run(done chan struct{}) {
	defer close(done)

	if err := c.loop(); err != nil {
		if c.latchError(err) {
			c.logger.Error("Execution loop failed", "error", err)
		}
	}

	if err := c.device.DisableControl(); err != nil {
		c.logger.Error("Failed to disable control", "error", err)
		c.latchError(newError(ErrCodeControlDisable, "failed to disable control", err))
	}

	c.stateMu.Lock()
	c.state = StateInactive
	c.stateMu.Unlock()

	latched := c.Err()
	c.logger.Info("Controller stopped", "queue_depth", c.queue.len(), "error", latched)
	c.notifyStateChange(StateActive, StateInactive, latched)
}

// loop executes queued instructions until a stop request or a device failure.
func (c *Controller) loop() error {
	var idle <-chan time.Time
	if c.opts.IdleInterval > 0 {
		ticker := time.NewTicker(c.opts.IdleInterval)
		defer ticker.Stop()
		idle = ticker.C
	}

	for {
		if c.isStopRequested() {
			return nil
		}

		in := c.queue.head()
		if in == nil {
			select {
			case <-c.wake:
			case <-idle:
				if c.isStopRequested() || c.queue.len() > 0 {
					continue
				}
				if err := c.sendIdle(); err != nil {
					return err
				}
			}
			continue
		}

		if err := c.execute(in); err != nil {
			return err
		}

		if in.Duration > 0 && !c.hold(in.Duration) {
			return nil
		}
	}
}

// execute applies one instruction and removes it from the queue.
func (c *Controller) execute(in *Instruction) error {
	if err := in.apply(c.device); err != nil {
		c.notifyInstruction(InstructionEvent{
			Kind:       InstructionFailed,
			ID:         in.ID,
			Payload:    in.Kind(),
			QueueDepth: c.queue.len(),
			Err:        err,
		})
		return newError(ErrCodeExecution, fmt.Sprintf("instruction %d (%s) failed", in.ID, in.Kind()), err)
	}

	// A concurrent Cancel may already have taken it.
	_, depth := c.queue.remove(in)

	c.logger.Debug("Instruction executed", "id", in.ID, "payload", in.Kind(), "queue_depth", depth)
	c.notifyInstruction(InstructionEvent{
		Kind:       InstructionExecuted,
		ID:         in.ID,
		Payload:    in.Kind(),
		QueueDepth: depth,
	})
	return nil
}

func (c *Controller) sendIdle() error {
	if err := c.device.SendIdle(); err != nil {
		c.notifyInstruction(InstructionEvent{Kind: InstructionFailed, Err: err})
		return newError(ErrCodeExecution, "idle packet failed", err)
	}
	c.notifyInstruction(InstructionEvent{Kind: InstructionIdle})
	return nil
}

// hold keeps the current colors for d. It returns false when interrupted by
// a stop request.
func (c *Controller) hold(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return true
		case <-c.wake:
			if c.isStopRequested() {
				return false
			}
		}
	}
}
