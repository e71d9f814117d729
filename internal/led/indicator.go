// Package led drives a host status LED that mirrors a controller's state:
// solid while the worker runs, blinking after it failed, off otherwise.
package led

// Pattern is how the status LED is lit.
type Pattern string

// Supported patterns.
const (
	PatternOff   Pattern = "off"
	PatternSolid Pattern = "solid"
	PatternBlink Pattern = "blink"
)

// Indicator abstracts a single status LED.
type Indicator interface {
	Set(p Pattern) error
}
