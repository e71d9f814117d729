package device

import (
	"errors"
	"fmt"
	"strings"
)

// Grid dimensions shared by every supported keyboard. Full-grid packets always
// address the whole matrix, unused cells are simply ignored by the firmware.
const (
	MaxRows = 7
	MaxCols = 24
)

// ErrUnknownDriver is returned by Open when no driver is registered under the
// identifier's driver name.
var ErrUnknownDriver = errors.New("unknown device driver")

// Handle is an open connection to a keyboard's LED controller.
// A Handle is not safe for concurrent use; the controller guarantees that only
// its worker goroutine drives the handle while control is enabled.
type Handle interface {
	// EnableControl switches the keyboard into host-controlled lighting mode.
	EnableControl() error

	// DisableControl hands lighting back to the keyboard firmware.
	DisableControl() error

	// SendIdle sends a keep-alive packet without changing any colors.
	SendIdle() error

	// SetAllUniform sets every LED to the same color.
	SetAllUniform(c RGB) error

	// SetAllGrid sets every LED from a per-cell grid shaped like Layout().
	SetAllGrid(g Grid) error

	// Layout returns the fixed grid dimensions of the keyboard.
	Layout() Layout

	// Close releases the handle.
	Close() error
}

// Identifier names a device as "driver:path", e.g. "sysfs:/sys/class/leds/kbd::rgb".
type Identifier struct {
	Driver string
	Path   string
}

// ParseIdentifier parses the "driver:path" form. A bare driver name is accepted.
func ParseIdentifier(s string) (Identifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Identifier{}, fmt.Errorf("empty device identifier")
	}
	driver, path, _ := strings.Cut(s, ":")
	if driver == "" {
		return Identifier{}, fmt.Errorf("device identifier %q has no driver", s)
	}
	return Identifier{Driver: driver, Path: path}, nil
}

func (id Identifier) String() string {
	if id.Path == "" {
		return id.Driver
	}
	return id.Driver + ":" + id.Path
}
