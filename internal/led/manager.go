package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/mkctl/internal/events"
)

// Manager subscribes to controller state events and keeps the status LED in
// sync with one controller.
type Manager struct {
	indicator   Indicator
	eventBus    *events.Bus
	controller  string
	unsubscribe func()
	logger      *slog.Logger

	mu      sync.Mutex
	pattern Pattern
}

// NewManager creates a manager that follows the controller called name.
func NewManager(indicator Indicator, eventBus *events.Bus, name string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		indicator:  indicator,
		eventBus:   eventBus,
		controller: name,
		logger:     logger.With("component", "status_led"),
	}
}

// Start turns the LED off and begins listening for state changes.
func (m *Manager) Start() {
	m.apply(PatternOff)
	m.unsubscribe = m.eventBus.Subscribe(func(e events.ControllerStateChangedEvent) {
		m.handleEvent(e)
	})
	m.logger.Debug("Status LED manager started", "controller", m.controller)
}

// Stop unsubscribes and turns the LED off.
func (m *Manager) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.apply(PatternOff)
	m.logger.Debug("Status LED manager stopped")
}

func (m *Manager) handleEvent(e events.ControllerStateChangedEvent) {
	if e.Controller != m.controller {
		return
	}

	switch {
	case e.IsActive():
		m.apply(PatternSolid)
	case e.Error != "":
		m.apply(PatternBlink)
	default:
		m.apply(PatternOff)
	}
}

// Pattern returns the pattern last applied.
func (m *Manager) Pattern() Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pattern
}

func (m *Manager) apply(p Pattern) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p == m.pattern {
		return
	}
	if err := m.indicator.Set(p); err != nil {
		m.logger.Warn("Failed to set status LED", "pattern", string(p), "error", err)
		return
	}
	m.pattern = p
}
