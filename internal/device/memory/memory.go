// Package memory provides a device.Handle that records every call in memory.
// It backs tests and headless previews, and registers itself as the "memory"
// driver on import.
package memory

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/mkctl/internal/device"
)

// Op names a Handle operation.
type Op string

// Recorded operations.
const (
	OpEnable  Op = "enable"
	OpDisable Op = "disable"
	OpIdle    Op = "idle"
	OpUniform Op = "uniform"
	OpGrid    Op = "grid"
	OpClose   Op = "close"
)

// ErrInjected is the default error returned by a failing operation.
var ErrInjected = errors.New("injected device failure")

// Call records one Handle invocation.
type Call struct {
	Op    Op
	Color device.RGB
	Grid  device.Grid
	At    time.Time
}

// Handle is an in-memory device.Handle. All methods are safe for concurrent use
// so tests can inspect it while a controller is driving it.
type Handle struct {
	mu       sync.Mutex
	layout   device.Layout
	calls    []Call
	failures map[Op]failure
	blocks   map[Op]chan struct{}
	current  device.Grid
	enabled  bool
	closed   bool
}

type failure struct {
	err   error
	after int // successful calls allowed before failing
}

func init() {
	device.Register("memory", func(_ string, model device.Model, _ *slog.Logger) (device.Handle, error) {
		return New(model.Layout()), nil
	})
}

// New creates a memory handle with the given layout.
func New(layout device.Layout) *Handle {
	return &Handle{
		layout:   layout,
		failures: make(map[Op]failure),
		blocks:   make(map[Op]chan struct{}),
		current:  device.NewGrid(layout, device.RGB{}),
	}
}

// FailOn makes op return err (ErrInjected when nil) on every call.
func (h *Handle) FailOn(op Op, err error) {
	h.FailAfter(op, 0, err)
}

// FailAfter lets op succeed n times and fail afterwards.
func (h *Handle) FailAfter(op Op, n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[op] = failure{err: err, after: n}
}

// Heal clears any failure set for op.
func (h *Handle) Heal(op Op) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failures, op)
}

// Block makes op wait until the returned release function is called.
func (h *Handle) Block(op Op) (release func()) {
	ch := make(chan struct{})
	h.mu.Lock()
	h.blocks[op] = ch
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.blocks, op)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns a copy of the recorded calls.
func (h *Handle) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call(nil), h.calls...)
}

// Count returns how many times op was called.
func (h *Handle) Count(op Op) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Current returns the grid as last successfully written.
func (h *Handle) Current() device.Grid {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current.Clone()
}

// Enabled reports whether control is currently enabled.
func (h *Handle) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled
}

// Closed reports whether Close succeeded.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// record appends the call and returns the injected error, if any.
func (h *Handle) record(c Call) error {
	h.mu.Lock()
	block := h.blocks[c.Op]
	h.mu.Unlock()
	if block != nil {
		<-block
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c.At = time.Now()
	h.calls = append(h.calls, c)

	if f, ok := h.failures[c.Op]; ok {
		if f.after <= 0 {
			return f.err
		}
		f.after--
		h.failures[c.Op] = f
	}
	return nil
}

func (h *Handle) EnableControl() error {
	if err := h.record(Call{Op: OpEnable}); err != nil {
		return err
	}
	h.mu.Lock()
	h.enabled = true
	h.mu.Unlock()
	return nil
}

func (h *Handle) DisableControl() error {
	if err := h.record(Call{Op: OpDisable}); err != nil {
		return err
	}
	h.mu.Lock()
	h.enabled = false
	h.mu.Unlock()
	return nil
}

func (h *Handle) SendIdle() error {
	return h.record(Call{Op: OpIdle})
}

func (h *Handle) SetAllUniform(c device.RGB) error {
	if err := h.record(Call{Op: OpUniform, Color: c}); err != nil {
		return err
	}
	h.mu.Lock()
	h.current = device.NewGrid(h.layout, c)
	h.mu.Unlock()
	return nil
}

func (h *Handle) SetAllGrid(g device.Grid) error {
	if err := g.Validate(h.layout); err != nil {
		return err
	}
	if err := h.record(Call{Op: OpGrid, Grid: g.Clone()}); err != nil {
		return err
	}
	h.mu.Lock()
	h.current = g.Clone()
	h.mu.Unlock()
	return nil
}

func (h *Handle) Layout() device.Layout {
	return h.layout
}

func (h *Handle) Close() error {
	if err := h.record(Call{Op: OpClose}); err != nil {
		return err
	}
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}
