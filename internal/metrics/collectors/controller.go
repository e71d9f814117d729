// Package collectors feeds controller activity from the event bus into metrics.
package collectors

import (
	"log/slog"
	"sync"

	"github.com/smazurov/mkctl/internal/events"
	"github.com/smazurov/mkctl/internal/metrics"
)

// EventSubscriber is the part of events.Bus the collector needs.
type EventSubscriber interface {
	Subscribe(handler any) func()
}

// ControllerCollector turns controller events into Prometheus metrics.
type ControllerCollector struct {
	logger   *slog.Logger
	eventBus EventSubscriber
	unsubs   []func()
	mu       sync.Mutex
}

// NewControllerCollector creates a collector reading from eventBus.
func NewControllerCollector(eventBus EventSubscriber, logger *slog.Logger) *ControllerCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControllerCollector{
		logger:   logger.With("component", "controller_collector"),
		eventBus: eventBus,
	}
}

// Start subscribes to controller events.
func (c *ControllerCollector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unsubs != nil {
		return
	}

	c.unsubs = []func(){
		c.eventBus.Subscribe(func(e events.ControllerStateChangedEvent) {
			metrics.SetActive(e.Controller, e.IsActive())
		}),
		c.eventBus.Subscribe(func(e events.InstructionScheduledEvent) {
			metrics.RecordInstruction(e.Controller, metrics.ResultScheduled)
			metrics.SetQueueDepth(e.Controller, e.QueueDepth)
		}),
		c.eventBus.Subscribe(func(e events.InstructionExecutedEvent) {
			metrics.RecordInstruction(e.Controller, metrics.ResultExecuted)
			metrics.SetQueueDepth(e.Controller, e.QueueDepth)
		}),
		c.eventBus.Subscribe(func(e events.InstructionCancelledEvent) {
			metrics.RecordInstruction(e.Controller, metrics.ResultCancelled)
			metrics.SetQueueDepth(e.Controller, e.QueueDepth)
		}),
		c.eventBus.Subscribe(func(e events.InstructionFailedEvent) {
			metrics.RecordInstruction(e.Controller, metrics.ResultFailed)
		}),
		c.eventBus.Subscribe(func(e events.IdlePacketEvent) {
			metrics.RecordIdlePacket(e.Controller)
		}),
		c.eventBus.Subscribe(func(e events.ControllerErrorEvent) {
			c.logger.Debug("Recording controller error", "controller", e.Controller, "code", e.Code)
			metrics.RecordError(e.Controller, e.Code, e.Error)
		}),
	}
	c.logger.Debug("Controller collector started")
}

// Stop unsubscribes from the event bus.
func (c *ControllerCollector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}
