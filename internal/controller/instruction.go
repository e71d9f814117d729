package controller

import (
	"errors"
	"time"

	"github.com/smazurov/mkctl/internal/device"
)

// Payload is the color content of an Instruction. It is either Uniform or Grid.
type Payload interface {
	kind() string
}

// Uniform sets every LED to one color.
type Uniform struct {
	Color device.RGB
}

func (Uniform) kind() string { return "uniform" }

// Grid sets each LED individually.
type Grid struct {
	Colors device.Grid
}

func (Grid) kind() string { return "grid" }

// Instruction is one unit of work for the execution loop.
type Instruction struct {
	// ID is assigned by Schedule. Any value set by the caller is ignored.
	ID uint32

	Payload Payload

	// Duration keeps the loop on this instruction for at least this long after
	// it was applied. Zero moves on immediately.
	Duration time.Duration
}

// NewUniform returns an instruction that sets every LED to c.
func NewUniform(c device.RGB) *Instruction {
	return &Instruction{Payload: Uniform{Color: c}}
}

// NewGrid returns an instruction that sets every LED from g. The grid is copied.
func NewGrid(g device.Grid) *Instruction {
	return &Instruction{Payload: Grid{Colors: g.Clone()}}
}

// Kind returns "uniform", "grid", or "" when the payload is missing.
func (i *Instruction) Kind() string {
	if i == nil || i.Payload == nil {
		return ""
	}
	return i.Payload.kind()
}

// validate checks the instruction against the device layout.
func (i *Instruction) validate(layout device.Layout) error {
	if i == nil {
		return newError(ErrCodeInvalidInstruction, "instruction is nil", nil)
	}
	if i.Duration < 0 {
		return newError(ErrCodeInvalidInstruction, "negative duration", nil)
	}
	switch p := i.Payload.(type) {
	case Uniform:
		return nil
	case Grid:
		if err := p.Colors.Validate(layout); err != nil {
			return newError(ErrCodeInvalidInstruction, "grid does not match device layout", err)
		}
		return nil
	case nil:
		return newError(ErrCodeInvalidInstruction, "instruction has no payload", nil)
	default:
		return newError(ErrCodeInvalidInstruction, "unsupported payload", errors.New(p.kind()))
	}
}

// clone returns a copy the caller can no longer mutate.
func (i *Instruction) clone() *Instruction {
	c := *i
	if g, ok := i.Payload.(Grid); ok {
		c.Payload = Grid{Colors: g.Colors.Clone()}
	}
	return &c
}

// apply sends the payload to the device.
func (i *Instruction) apply(h device.Handle) error {
	switch p := i.Payload.(type) {
	case Uniform:
		return h.SetAllUniform(p.Color)
	case Grid:
		return h.SetAllGrid(p.Colors)
	default:
		return ErrInvalidInstruction
	}
}
