package led

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs implements Indicator using the Linux sysfs LED interface.
type sysfs struct {
	path string
}

// New returns an Indicator for the sysfs LED called name. An empty name, or
// an LED that does not exist, yields a no-op indicator.
func New(name string, logger *slog.Logger) Indicator {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		return newNoop(logger)
	}

	s, err := newSysfs(sysfsLEDPath, name)
	if err != nil {
		logger.Warn("Status LED unavailable, using no-op", "led", name, "error", err)
		return newNoop(logger)
	}
	logger.Info("Using sysfs status LED", "path", s.path)
	return s
}

func newSysfs(root, name string) (*sysfs, error) {
	path := filepath.Join(root, name)
	if _, err := os.Stat(filepath.Join(path, "brightness")); err != nil {
		return nil, fmt.Errorf("LED %q not found at %s: %w", name, path, err)
	}
	return &sysfs{path: path}, nil
}

// Set writes the trigger and brightness for p.
func (s *sysfs) Set(p Pattern) error {
	var trigger, brightness string
	switch p {
	case PatternSolid:
		trigger, brightness = "none", "1"
	case PatternBlink:
		trigger, brightness = "heartbeat", ""
	case PatternOff:
		trigger, brightness = "none", "0"
	default:
		return fmt.Errorf("unknown LED pattern %q", p)
	}

	if err := os.WriteFile(filepath.Join(s.path, "trigger"), []byte(trigger), 0o644); err != nil {
		return fmt.Errorf("failed to set LED trigger: %w", err)
	}
	// The heartbeat trigger drives brightness itself.
	if brightness == "" {
		return nil
	}
	if err := os.WriteFile(filepath.Join(s.path, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}
